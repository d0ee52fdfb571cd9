// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "errors"

// Sentinel errors for coordinator operations.
var (
	// ErrBadState is returned when an operation runs before its
	// predecessor in the sequence has succeeded.
	ErrBadState = errors.New("operation not valid in current session state")

	// ErrProtocolViolation is returned when a database record carries an
	// event type that is neither START nor END. This should never occur;
	// it is surfaced, not recovered.
	ErrProtocolViolation = errors.New("session record has unknown event type")

	// ErrNoMatchingStart is returned by the update-start-record step when
	// no START record exists for the session being ended. It is distinct
	// from an insert failure: the END record has already been written.
	ErrNoMatchingStart = errors.New("no matching START record for session")
)
