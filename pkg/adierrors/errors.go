// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package adierrors defines the error kinds shared across adi's
// components and a typed wrapper that preserves github.com/pkg/errors
// context while still supporting errors.Is/errors.As classification at
// component boundaries.
package adierrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure for boundary-level handling.
type Kind string

const (
	NotFound      Kind = "not_found"
	AlreadyExists Kind = "already_present"
	Conflict      Kind = "conflict"
	Unavailable   Kind = "unavailable"
	Integrity     Kind = "integrity"
	Policy        Kind = "policy"
	Transient     Kind = "transient"
	Programmer    Kind = "programmer"
)

// Error wraps an underlying error with a classification Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, adierrors.Sentinel(adierrors.NotFound)) style
// checks: any *Error target with the same Kind matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error, wrapping the cause with pkg/errors so a
// stack trace is preserved where one was captured upstream.
func New(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	} else {
		wrapped = errors.New(msg)
	}
	return &Error{Kind: kind, Msg: msg, Err: wrapped}
}

// Sentinel returns a comparable sentinel of the given kind, for use with
// errors.Is(err, adierrors.Sentinel(adierrors.NotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns Programmer, the catch-all for unclassified
// failures that escaped a component boundary.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Programmer
}

// ExitCode maps an error to the process exit code convention: 0 on
// success, 1 for most failures. Plugin commands propagate the plugin's
// own exit code separately in the CLI frontend.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
