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
	"fmt"
	"time"
)

// EventType is the kind of session-log event.
type EventType string

const (
	// EventStart marks the beginning of an instrument session.
	EventStart EventType = "START"

	// EventEnd marks the end of an instrument session.
	EventEnd EventType = "END"
)

// Valid reports whether the event type is one of the closed set.
// Anything else in a database record is a protocol violation.
func (e EventType) Valid() bool {
	return e == EventStart || e == EventEnd
}

// RecordStatus is the secondary status field on a session record.
type RecordStatus string

const (
	// StatusWaitingForEnd is the status of a START record whose matching
	// END has not yet been processed.
	StatusWaitingForEnd RecordStatus = "WAITING_FOR_END"

	// StatusToBeBuilt signals downstream record building may proceed.
	// Set on the END record at insert and on the matching START by the
	// post-END update.
	StatusToBeBuilt RecordStatus = "TO_BE_BUILT"
)

// InstrumentInfo describes an instrument as resolved from the database
// by computer name.
type InstrumentInfo struct {
	PID          string `json:"instrument_pid"`
	SchemaName   string `json:"schema_name"`
	ComputerName string `json:"computer_name"`
	APIURL       string `json:"api_url"`
}

// SessionRecord is one row of the remote session log.
type SessionRecord struct {
	RowID        int64        `json:"id_session_log"`
	SessionID    string       `json:"session_identifier"`
	Instrument   string       `json:"instrument"`
	EventType    EventType    `json:"event_type"`
	RecordStatus RecordStatus `json:"record_status"`
	SessionNote  string       `json:"session_note"`
	User         string       `json:"user"`
	Timestamp    string       `json:"timestamp"`
}

// timestampLayouts are the formats the API has been observed to emit.
// Timestamps without a zone are GMT.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// Time parses the record's timestamp. Zone-less timestamps are taken
// as UTC.
func (r *SessionRecord) Time() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, r.Timestamp, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", r.Timestamp)
}

// InsertSessionRequest is the payload for inserting a session record.
//
// RecordStatus is only sent for END events; the database assigns
// WAITING_FOR_END to new START records itself.
type InsertSessionRequest struct {
	EventType    EventType
	Instrument   string
	User         string
	SessionID    string
	SessionNote  string
	RecordStatus RecordStatus
}
