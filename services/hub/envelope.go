// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

// Command verbs accepted by the hub. Each maps to one handler; the
// paired *_CHECK verbs verify the write the unpaired verb performed.
const (
	CmdHello                  = "HELLO"
	CmdSetup                  = "SETUP"
	CmdLastSessionCheck       = "LAST_SESSION_CHECK"
	CmdContinueLastSession    = "CONTINUE_LAST_SESSION"
	CmdStartProcess           = "START_PROCESS"
	CmdStartProcessCheck      = "START_PROCESS_CHECK"
	CmdEndProcess             = "END_PROCESS"
	CmdEndProcessCheck        = "END_PROCESS_CHECK"
	CmdUpdateStartRecord      = "UPDATE_START_RECORD"
	CmdUpdateStartRecordCheck = "UPDATE_START_RECORD_CHECK"
	CmdTearDown               = "TEAR_DOWN"
	CmdStartSync              = "START_SYNC"
	CmdStopSync               = "STOP_SYNC"
	CmdMakeData               = "MAKE_DATA"
	CmdSaveNote               = "SAVE_NOTE"
	CmdDestroy                = "DESTROY"
)

// Command is the request envelope a client sends to the hub.
type Command struct {
	// ClientID identifies the sending client; by convention the
	// instrument computer's hostname. Required.
	ClientID string `json:"client_id" binding:"required"`

	// User is the operator the session is attributed to.
	User string `json:"user"`

	// Cmd is the verb to dispatch. Required.
	Cmd string `json:"cmd" binding:"required"`

	// WatchDir is the directory to mirror (START_SYNC only).
	WatchDir string `json:"watchdir,omitempty"`

	// OutputDir is where generated files land (MAKE_DATA only).
	OutputDir string `json:"outputdir,omitempty"`

	// Argv carries verb-specific positional arguments (SAVE_NOTE).
	Argv []string `json:"argv,omitempty"`
}

// Reply is the response envelope returned for every command.
//
// State false with Exception false is a negative answer, not a
// failure: LAST_SESSION_CHECK reports a hanging session that way.
// Exception true means the handler failed and Message carries the
// error text.
type Reply struct {
	State     bool `json:"state"`
	Exception bool `json:"exception"`

	// Message is a human-readable string for most verbs; TEAR_DOWN
	// returns a session.Summary instead.
	Message any `json:"message"`

	Progress int `json:"progress"`
}

func success(message any, progress int) Reply {
	return Reply{State: true, Message: message, Progress: progress}
}

func failure(err error, progress int) Reply {
	return Reply{State: false, Exception: true, Message: err.Error(), Progress: progress}
}
