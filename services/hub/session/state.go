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

// State is the coordinator's position in the session lifecycle.
//
// The closed set replaces the loose session_started / last_entry_type
// flag combination: every operation checks its required predecessor
// state and returns ErrBadState on an illegal transition.
type State int

const (
	// StateNew is a freshly created coordinator; only Setup may run.
	StateNew State = iota

	// StateSetupDone means the instrument is resolved; the consistency
	// check may run.
	StateSetupDone

	// StateConsistent means the last recorded event for the instrument
	// was an END (or no history exists); a new START may be inserted.
	StateConsistent

	// StateInconsistent means a hanging session was found. The caller
	// must choose: continue the stale session, or close it out with the
	// END sequence before starting fresh.
	StateInconsistent

	// StateStarted means a session is active for this client.
	StateStarted

	// StateEndingDone means the END sequence completed; only teardown
	// remains.
	StateEndingDone

	// StateTornDown is the terminal success state.
	StateTornDown
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSetupDone:
		return "SETUP_DONE"
	case StateConsistent:
		return "CONSISTENT"
	case StateInconsistent:
		return "INCONSISTENT"
	case StateStarted:
		return "STARTED"
	case StateEndingDone:
		return "ENDING_DONE"
	case StateTornDown:
		return "TORN_DOWN"
	default:
		return "UNKNOWN"
	}
}
