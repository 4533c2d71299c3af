// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sonarr is a minimal Sonarr v3 API client covering series and
// episode lookup, episode file deletion and episode searches.
package sonarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/autobrr/analyzarr/pkg/httphelpers"
	"github.com/autobrr/analyzarr/pkg/redact"
)

// ErrNotFound is matched by errors for 404 responses.
var ErrNotFound = errors.New("sonarr: not found")

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
	Version    string
}

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// NewClient constructs a new Client using the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "analyzarr"
	}
	if version := strings.TrimSpace(cfg.Version); version != "" && !strings.Contains(ua, version) {
		ua = fmt.Sprintf("%s/%s", ua, version)
	}

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("sonarr %s %s returned %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err is worth retrying: transport failures and
// 429/5xx responses are, other HTTP statuses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

type Series struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	SortTitle string `json:"sortTitle"`
	TvdbID    int    `json:"tvdbId"`
	Year      int    `json:"year"`
	Path      string `json:"path"`
	Monitored bool   `json:"monitored"`
}

type Episode struct {
	ID            int    `json:"id"`
	SeriesID      int    `json:"seriesId"`
	EpisodeFileID int    `json:"episodeFileId"`
	SeasonNumber  int    `json:"seasonNumber"`
	EpisodeNumber int    `json:"episodeNumber"`
	Title         string `json:"title"`
	HasFile       bool   `json:"hasFile"`
	Monitored     bool   `json:"monitored"`
}

type EpisodeFile struct {
	ID           int    `json:"id"`
	SeriesID     int    `json:"seriesId"`
	SeasonNumber int    `json:"seasonNumber"`
	RelativePath string `json:"relativePath"`
	Path         string `json:"path"`
	SceneName    string `json:"sceneName"`
	ReleaseGroup string `json:"releaseGroup"`
	Size         int64  `json:"size"`
}

// ParseResult is the subset of /api/v3/parse used to map a release name to
// a series and its episodes.
type ParseResult struct {
	Title    string    `json:"title"`
	Series   *Series   `json:"series"`
	Episodes []Episode `json:"episodes"`
}

type Command struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}

// ListSeries returns every series in the library.
func (c *Client) ListSeries(ctx context.Context) ([]Series, error) {
	var series []Series
	if err := c.do(ctx, http.MethodGet, "/api/v3/series", nil, nil, &series); err != nil {
		return nil, err
	}
	return series, nil
}

func (c *Client) GetSeries(ctx context.Context, id int) (*Series, error) {
	var series Series
	if err := c.do(ctx, http.MethodGet, "/api/v3/series/"+strconv.Itoa(id), nil, nil, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// ListEpisodes returns the episodes of a series.
func (c *Client) ListEpisodes(ctx context.Context, seriesID int) ([]Episode, error) {
	query := url.Values{}
	query.Set("seriesId", strconv.Itoa(seriesID))

	var episodes []Episode
	if err := c.do(ctx, http.MethodGet, "/api/v3/episode", query, nil, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

func (c *Client) GetEpisode(ctx context.Context, id int) (*Episode, error) {
	var episode Episode
	if err := c.do(ctx, http.MethodGet, "/api/v3/episode/"+strconv.Itoa(id), nil, nil, &episode); err != nil {
		return nil, err
	}
	return &episode, nil
}

func (c *Client) GetEpisodeFile(ctx context.Context, id int) (*EpisodeFile, error) {
	var file EpisodeFile
	if err := c.do(ctx, http.MethodGet, "/api/v3/episodefile/"+strconv.Itoa(id), nil, nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteEpisodeFile removes the file from disk and from the library.
func (c *Client) DeleteEpisodeFile(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/api/v3/episodefile/"+strconv.Itoa(id), nil, nil, nil)
}

// SearchEpisodes queues an EpisodeSearch command for the given episodes.
func (c *Client) SearchEpisodes(ctx context.Context, episodeIDs []int) (*Command, error) {
	if len(episodeIDs) == 0 {
		return nil, errors.New("sonarr: no episode ids to search")
	}

	payload := map[string]any{
		"name":       "EpisodeSearch",
		"episodeIds": episodeIDs,
	}

	var cmd Command
	if err := c.do(ctx, http.MethodPost, "/api/v3/command", nil, payload, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Parse asks Sonarr to map a release title to a series and episodes.
func (c *Client) Parse(ctx context.Context, title string) (*ParseResult, error) {
	query := url.Values{}
	query.Set("title", title)

	var result ParseResult
	if err := c.do(ctx, http.MethodGet, "/api/v3/parse", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.do(ctx, http.MethodGet, "/api/v3/system/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	if c.httpClient == nil {
		return errors.New("sonarr HTTP client is not configured")
	}
	if c.host == "" {
		return errors.New("sonarr host is not configured")
	}

	endpoint := c.host + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "failed to encode sonarr request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to build sonarr request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(redact.URLError(err), "sonarr %s %s failed", method, path)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode sonarr %s response", path)
	}

	return nil
}
