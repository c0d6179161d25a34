// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrClosed       = errors.New("closed")
	ErrOutsideVault = errors.New("path escapes vault root")
)
