// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"errors"
	"fmt"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Sentinel errors for store operations.
// These errors can be checked using errors.Is() for classification.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDatabase indicates a general database error occurred.
	// This is a catch-all for unexpected database failures.
	ErrDatabase = errors.New("database error")
)

// DatabaseError wraps a driver error so that it matches ErrDatabase and
// carries the store.database.failure code.
func DatabaseError(err error, op string, fields ...sigilerr.Attr) error {
	if err == nil {
		return nil
	}
	return sigilerr.Wrap(fmt.Errorf("%w: %w", ErrDatabase, err), sigilerr.CodeStoreDatabaseFailure, op, fields...)
}

// InvalidInput returns an error that matches ErrInvalidInput.
func InvalidInput(format string, args ...any) error {
	return sigilerr.Wrap(ErrInvalidInput, sigilerr.CodeStoreInvalidInput, fmt.Sprintf(format, args...))
}
