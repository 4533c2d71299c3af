// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactString replaces a string with asterisks of the same length
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}

// IsRedactedValue reports whether value is a non-empty run of asterisks,
// which is what RedactString produces for API keys.
func IsRedactedValue(value string) bool {
	return value != "" && strings.Trim(value, "*") == ""
}
