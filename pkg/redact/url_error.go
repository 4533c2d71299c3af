// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact strips credentials from errors before they reach logs.
package redact

import (
	"errors"
	"net/url"
	"strings"
)

const placeholder = "REDACTED"

var sensitiveParams = map[string]struct{}{
	"apikey":   {},
	"api_key":  {},
	"passkey":  {},
	"token":    {},
	"password": {},
}

// URLError returns err with credential query parameters masked in any
// wrapped *url.Error. Errors without a *url.Error are returned unchanged.
func URLError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	return &url.Error{
		Op:  urlErr.Op,
		URL: URL(urlErr.URL),
		Err: urlErr.Err,
	}
}

// URL masks credential query parameters of raw.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	q := u.Query()
	changed := false
	for key := range q {
		if _, ok := sensitiveParams[strings.ToLower(key)]; ok {
			q.Set(key, placeholder)
			changed = true
		}
	}
	if !changed {
		return raw
	}

	u.RawQuery = q.Encode()
	return u.String()
}
