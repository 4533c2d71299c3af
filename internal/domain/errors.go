// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClassificationIndeterminate marks a decision where no actual title
	// could be extracted. It is a valid outcome, not a failure.
	ErrClassificationIndeterminate = errors.New("classification indeterminate")
	// ErrProtectedTag is returned when a system-owned tag is mutated through
	// the generic tag API.
	ErrProtectedTag = errors.New("tag is protected")
	// ErrConcurrencyConflict is returned when a job is already active for a key.
	ErrConcurrencyConflict = errors.New("an active job already exists for this key")
	// ErrExternalService wraps metadata or media-management failures that
	// survived every retry.
	ErrExternalService = errors.New("external service error")
	// ErrNotFound is returned for unknown keys on read or purge.
	ErrNotFound = errors.New("not found")
)

// Protected tags are written only by the decision engine and the job
// orchestrator.
const (
	TagMatched     = "matched"
	TagProblematic = "problematic-episode"
	TagOverride    = "override"
)

// IsProtectedTag reports whether tag is one of the system-owned tags. Case
// and surrounding whitespace are ignored.
func IsProtectedTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, protected := range []string{TagMatched, TagProblematic, TagOverride} {
		if strings.EqualFold(tag, protected) {
			return true
		}
	}
	return false
}

// ProtectedTagError names the tag a caller tried to mutate.
type ProtectedTagError struct {
	Tag string
}

func (e *ProtectedTagError) Error() string {
	return fmt.Sprintf("tag %q is protected", e.Tag)
}

func (e *ProtectedTagError) Is(target error) bool {
	return target == ErrProtectedTag
}

// ExternalServiceError records which remote operation failed.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}
