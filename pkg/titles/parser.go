// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/moistari/rls"
)

// ParsedEpisode is the episode identity carried by a release or file name.
type ParsedEpisode struct {
	SceneName    string `json:"sceneName"`
	SeriesTitle  string `json:"seriesTitle"`
	Season       int    `json:"season"`
	Episode      int    `json:"episode"`
	ReleaseGroup string `json:"releaseGroup,omitempty"`
	Year         int    `json:"year,omitempty"`
	// HasCode is set when the numbers came from an explicit SxxEyy token,
	// which is the only way season 0 specials are recognized.
	HasCode bool `json:"hasCode,omitempty"`
}

// Valid reports whether a series, season and episode were all found.
func (p ParsedEpisode) Valid() bool {
	if p.SeriesTitle == "" || p.Episode <= 0 || p.Season < 0 {
		return false
	}
	return p.Season > 0 || p.HasCode
}

// Code returns the SxxEyy code for the episode.
func (p ParsedEpisode) Code() string {
	return EpisodeCode(p.Season, p.Episode)
}

// Key returns the stable episode key.
func (p ParsedEpisode) Key() string {
	return EpisodeKey(p.SeriesTitle, p.Season, p.Episode)
}

// EpisodeCode formats season and episode as SxxEyy.
func EpisodeCode(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}

// EpisodeKey builds the key shared by the store, the prequeue gate and
// cleanup: series::<compact normalized title>::SxxEyy.
func EpisodeKey(seriesTitle string, season, episode int) string {
	return "series::" + Compact(seriesTitle) + "::" + EpisodeCode(season, episode)
}

// fallback for names rls does not classify as an episode
var seriesEpisodeRe = regexp.MustCompile(`^(.+?)[ ._\-]+[sS](\d{1,2})[eE](\d{2,3})`)

// Parser parses release names with rls and caches the results.
type Parser struct {
	cache *ttlcache.Cache[string, ParsedEpisode]
}

// NewParser creates a new parser with a TTL cache
func NewParser() *Parser {
	return &Parser{
		cache: ttlcache.New(ttlcache.Options[string, ParsedEpisode]{}.SetDefaultTTL(5 * time.Minute)),
	}
}

// Parse extracts the episode identity from a file path or release name.
// The result is not Valid when no series/season/episode could be found.
func (p *Parser) Parse(name string) ParsedEpisode {
	scene := SceneName(name)
	if scene == "" {
		return ParsedEpisode{}
	}

	if cached, found := p.cache.Get(scene); found {
		return cached
	}

	parsed := parseScene(scene)
	p.cache.Set(scene, parsed, ttlcache.DefaultTTL)

	return parsed
}

func parseScene(scene string) ParsedEpisode {
	release := rls.ParseString(scene)

	parsed := ParsedEpisode{
		SceneName:    scene,
		SeriesTitle:  strings.TrimSpace(release.Title),
		Season:       release.Series,
		Episode:      release.Episode,
		ReleaseGroup: release.Group,
		Year:         release.Year,
	}

	if release.Type == rls.Episode && parsed.Season > 0 && parsed.Valid() {
		return parsed
	}

	m := seriesEpisodeRe.FindStringSubmatch(scene)
	if m == nil {
		return ParsedEpisode{SceneName: scene, ReleaseGroup: release.Group}
	}

	parsed.SeriesTitle = strings.TrimSpace(separatorRe.ReplaceAllString(m[1], " "))
	parsed.Season, _ = strconv.Atoi(m[2])
	parsed.Episode, _ = strconv.Atoi(m[3])
	parsed.HasCode = true

	return parsed
}
