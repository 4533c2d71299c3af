// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathcmp normalizes watched paths so events reported for the same
// file or release folder compare equal.
package pathcmp

import (
	"path"
	"strings"
)

// NormalizePath converts backslashes to forward slashes, cleans the path and
// drops a trailing slash. Windows drive roots keep their slash (C:/).
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")

	if isDrive(p) {
		drive, rest := p[:2], p[2:]
		if rest == "" {
			return drive
		}
		rest = path.Clean(rest)
		if rest == "/" || rest == "." {
			return drive + "/"
		}
		return drive + rest
	}

	p = path.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Within reports whether p is root or lies below it.
func Within(root, p string) bool {
	root, p = NormalizePath(root), NormalizePath(p)
	if root == "" || p == "" {
		return false
	}
	if p == root {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/")
}

func isDrive(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
