// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dbapi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an API failure.
type ErrorKind int

const (
	// KindUnexpected is any non-200 status not handled explicitly.
	KindUnexpected ErrorKind = iota

	// KindNotFound is an HTTP 404 where 404 is not a valid domain signal
	// (e.g. unknown computer name on instrument lookup).
	KindNotFound

	// KindServerError is an HTTP 5xx from the session-log API.
	KindServerError
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindServerError:
		return "server error"
	default:
		return "unexpected"
	}
}

// APIError is a typed failure from the session-log API, carrying the
// HTTP status and response body for operator diagnosis.
type APIError struct {
	Kind   ErrorKind
	Op     string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("dbapi %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Body)
}

// IsNotFound reports whether err is an APIError of kind KindNotFound.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// IsServerError reports whether err is an APIError of kind KindServerError.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindServerError
}
