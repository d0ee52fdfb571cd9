// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the per-client session lifecycle coordinator.
//
// The coordinator drives the verify-after-write protocol against the
// session-log API: resolve the instrument, check that the previous
// session ended cleanly, insert-and-verify a START record, and on the
// way out insert-and-verify an END record plus the status update of the
// matching START. Each fallible sub-step is a separate method so the hub
// can expose them as discrete command verbs; no sub-step runs before its
// predecessor succeeds (ErrBadState otherwise), and completed sub-steps
// are never rolled back — the design is at-least-once with verification,
// not exactly-once.
//
// A hanging session (last recorded event is a START) is not an error:
// CheckLastSessionEnded reports it as a decision point, and the caller
// resolves it either by ContinueLastSession or by running the END
// sequence against the stale session before starting fresh.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/sessionhub/pkg/logging"
	"github.com/AleutianAI/sessionhub/services/hub/dbapi"
)

// Gateway is the session-log API surface the coordinator requires.
// *dbapi.Client satisfies it; tests substitute fakes.
type Gateway interface {
	InstrumentByComputerName(ctx context.Context, name string) (*dbapi.InstrumentInfo, error)
	LastSessionForInstrument(ctx context.Context, instrumentPID string) (*dbapi.SessionRecord, error)
	LastSessionFor(ctx context.Context, sessionID string, eventType dbapi.EventType) (*dbapi.SessionRecord, error)
	InsertSession(ctx context.Context, ins dbapi.InsertSessionRequest) error
	UpdateSessionStatus(ctx context.Context, rowID int64, recordStatus dbapi.RecordStatus) error
	SessionByRowID(ctx context.Context, rowID int64, recordStatus dbapi.RecordStatus) (*dbapi.SessionRecord, error)
}

// Consistency is the outcome of the last-session check. An inconsistent
// outcome carries the stale session's identifiers unchanged so the
// caller can decide between the continue and start-fresh policies.
type Consistency struct {
	Consistent    bool
	Message       string
	LastSessionID string
	LastRowID     int64
	LastTimestamp string
}

// Summary is the teardown report handed back to the client once a
// session is established or ended.
type Summary struct {
	InstrumentSchema string `json:"instrument_schema"`
	SessionStartTS   string `json:"session_start_ts"`
	SessionNote      string `json:"session_note"`
}

// Coordinator executes the session START/END protocol for one client.
//
// Not safe for concurrent use; the hub serializes all command dispatch,
// which is the only caller.
type Coordinator struct {
	gw           Gateway
	logger       *logging.Logger
	computerName string
	user         string

	state     State
	sessionID string
	startTime time.Time
	note      string
	progress  int

	instr *dbapi.InstrumentInfo

	lastSessionID string
	lastRowID     int64
	lastTimestamp string

	startInserted   bool
	endStage        int // 0 idle, 1 END inserted, 2 END verified, 3 START updated
	reconciling     bool
	matchedStartRow int64

	newID func() string
}

// NewCoordinator creates a coordinator in StateNew for the given client.
func NewCoordinator(gw Gateway, computerName, user string, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		gw:           gw,
		logger:       logger,
		computerName: computerName,
		user:         user,
		state:        StateNew,
		newID:        uuid.NewString,
	}
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State { return c.state }

// SessionID returns the active session identifier.
func (c *Coordinator) SessionID() string { return c.sessionID }

// StartTime returns the session's start time in local time, zero until
// the START verification (or session adoption) has run.
func (c *Coordinator) StartTime() time.Time { return c.startTime }

// Instrument returns the resolved instrument info, nil before Setup.
func (c *Coordinator) Instrument() *dbapi.InstrumentInfo { return c.instr }

// Note returns the accumulated session note.
func (c *Coordinator) Note() string { return c.note }

// SetNote replaces the session note carried on the eventual END record.
func (c *Coordinator) SetNote(note string) { c.note = note }

// Progress returns the sub-step counter reported back to clients.
func (c *Coordinator) Progress() int { return c.progress }

func (c *Coordinator) bump() int {
	p := c.progress
	c.progress++
	return p
}

// Setup resolves this computer's instrument and enters StateSetupDone.
// An unknown computer name is fatal for the session.
func (c *Coordinator) Setup(ctx context.Context) (string, error) {
	if c.state != StateNew {
		return "", fmt.Errorf("%w: setup in state %s", ErrBadState, c.state)
	}
	c.logger.Info("session setup", "computer_name", c.computerName, "user", c.user)

	info, err := c.gw.InstrumentByComputerName(ctx, c.computerName)
	if err != nil {
		return "", fmt.Errorf("fetch instrument information: %w", err)
	}
	c.instr = info
	c.state = StateSetupDone
	c.progress = 1
	c.bump()
	c.logger.Debug("instrument resolved", "instrument_pid", info.PID, "schema", info.SchemaName)
	return "Loaded instrument information from DB", nil
}

// CheckLastSessionEnded verifies the database is consistent for this
// instrument: the last recorded event must be an END, or no history may
// exist. An inconsistent outcome is a decision point, not an error; the
// stale session's id, row and timestamp are returned unchanged.
func (c *Coordinator) CheckLastSessionEnded(ctx context.Context) (Consistency, error) {
	if c.state != StateSetupDone {
		return Consistency{}, fmt.Errorf("%w: consistency check in state %s", ErrBadState, c.state)
	}

	rec, err := c.gw.LastSessionForInstrument(ctx, c.instr.PID)
	if err != nil {
		return Consistency{}, fmt.Errorf("fetch last session: %w", err)
	}

	lastEntry := dbapi.EventEnd // no history bootstraps as "last event = END"
	if rec != nil {
		lastEntry = rec.EventType
		c.lastSessionID = rec.SessionID
		c.lastRowID = rec.RowID
		c.lastTimestamp = rec.Timestamp
	}

	switch lastEntry {
	case dbapi.EventEnd:
		c.state = StateConsistent
		c.bump()
		msg := fmt.Sprintf("Verified database consistency for the %s", c.instr.SchemaName)
		c.logger.Debug(msg)
		return Consistency{Consistent: true, Message: msg}, nil
	case dbapi.EventStart:
		c.state = StateInconsistent
		c.bump()
		msg := fmt.Sprintf(
			"Database is inconsistent for the %s (last entry [id_session_log = %d] was a START)",
			c.instr.SchemaName, c.lastRowID)
		c.logger.Warn(msg, "last_session_id", c.lastSessionID)
		return Consistency{
			Consistent:    false,
			Message:       msg,
			LastSessionID: c.lastSessionID,
			LastRowID:     c.lastRowID,
			LastTimestamp: c.lastTimestamp,
		}, nil
	default:
		return Consistency{}, fmt.Errorf("%w: last entry for the %s was %q",
			ErrProtocolViolation, c.instr.SchemaName, lastEntry)
	}
}

// ContinueLastSession adopts the hanging session as this client's own:
// its id and start time become the coordinator's, and the START sequence
// is skipped entirely.
func (c *Coordinator) ContinueLastSession() (string, error) {
	if c.state != StateInconsistent {
		return "", fmt.Errorf("%w: continue in state %s", ErrBadState, c.state)
	}
	c.sessionID = c.lastSessionID
	if ts, err := (&dbapi.SessionRecord{Timestamp: c.lastTimestamp}).Time(); err == nil {
		c.startTime = ts.Local()
	}
	c.state = StateStarted
	c.bump()
	c.logger.Info("continuing hanging session", "session_id", c.sessionID)
	return "Continuing the interrupted session", nil
}

// StartInsert generates a fresh session id and inserts the START record.
func (c *Coordinator) StartInsert(ctx context.Context) (string, error) {
	if c.state != StateConsistent {
		return "", fmt.Errorf("%w: start insert in state %s", ErrBadState, c.state)
	}
	c.sessionID = c.newID()
	err := c.gw.InsertSession(ctx, dbapi.InsertSessionRequest{
		EventType:   dbapi.EventStart,
		Instrument:  c.instr.PID,
		User:        c.user,
		SessionID:   c.sessionID,
		SessionNote: c.note,
	})
	if err != nil {
		return "", fmt.Errorf("insert START log: %w", err)
	}
	c.startInserted = true
	c.bump()
	c.logger.Info("START session inserted", "session_id", c.sessionID)
	return "START session inserted into db", nil
}

// StartVerify re-fetches the record just written by StartInsert and
// captures the server-assigned start timestamp, converted to local time.
func (c *Coordinator) StartVerify(ctx context.Context) (string, error) {
	if !c.startInserted {
		return "", fmt.Errorf("%w: start verify before insert", ErrBadState)
	}
	rec, err := c.gw.LastSessionFor(ctx, c.sessionID, dbapi.EventStart)
	if err != nil {
		return "", fmt.Errorf("verify session start: %w", err)
	}
	ts, err := rec.Time()
	if err != nil {
		return "", fmt.Errorf("verify session start: %w", err)
	}
	c.startTime = ts.Local()
	c.startInserted = false
	c.state = StateStarted
	c.bump()
	c.logger.Debug("verified START insertion", "session_id", c.sessionID, "start_time", c.startTime)
	return fmt.Sprintf("Verified insertion of session %s", c.sessionID), nil
}

// ProcessStart runs the full START step: insert plus verification. Both
// must succeed or the step fails as a whole.
func (c *Coordinator) ProcessStart(ctx context.Context) error {
	if _, err := c.StartInsert(ctx); err != nil {
		return err
	}
	_, err := c.StartVerify(ctx)
	return err
}

// EndInsert inserts the END record carrying the accumulated session
// note, with record_status TO_BE_BUILT.
//
// From StateInconsistent this begins the start-fresh reconciliation: the
// stale session's id is adopted so the END sequence closes it out, after
// which the coordinator returns to StateConsistent for a fresh START.
func (c *Coordinator) EndInsert(ctx context.Context) (string, error) {
	switch c.state {
	case StateStarted:
	case StateInconsistent:
		c.sessionID = c.lastSessionID
		c.reconciling = true
		c.logger.Info("closing out hanging session", "session_id", c.sessionID)
	default:
		return "", fmt.Errorf("%w: end insert in state %s", ErrBadState, c.state)
	}

	err := c.gw.InsertSession(ctx, dbapi.InsertSessionRequest{
		EventType:    dbapi.EventEnd,
		Instrument:   c.instr.PID,
		User:         c.user,
		SessionID:    c.sessionID,
		SessionNote:  c.note,
		RecordStatus: dbapi.StatusToBeBuilt,
	})
	if err != nil {
		return "", fmt.Errorf("insert END log: %w", err)
	}
	c.endStage = 1
	c.progress = 1
	c.bump()
	c.logger.Info("END session log inserted", "session_id", c.sessionID)
	return "END session log inserted into db", nil
}

// EndVerify re-fetches the END record just written.
func (c *Coordinator) EndVerify(ctx context.Context) (string, error) {
	if c.endStage != 1 {
		return "", fmt.Errorf("%w: end verify before insert", ErrBadState)
	}
	if _, err := c.gw.LastSessionFor(ctx, c.sessionID, dbapi.EventEnd); err != nil {
		return "", fmt.Errorf("verify session end: %w", err)
	}
	c.endStage = 2
	c.bump()
	c.logger.Debug("verified END insertion", "session_id", c.sessionID)
	return "Verified END session inserted into db", nil
}

// UpdateStartRecord finds the START record matching this session and
// advances its record_status to TO_BE_BUILT. A missing START fails
// distinctly from the earlier insert sub-steps.
func (c *Coordinator) UpdateStartRecord(ctx context.Context) (string, error) {
	if c.endStage != 2 {
		return "", fmt.Errorf("%w: update start record before end verify", ErrBadState)
	}
	match, err := c.gw.LastSessionFor(ctx, c.sessionID, dbapi.EventStart)
	if err != nil {
		return "", fmt.Errorf("%w (session %s): %v", ErrNoMatchingStart, c.sessionID, err)
	}
	c.matchedStartRow = match.RowID
	c.logger.Debug("found matched START log", "id_session_log", match.RowID)

	if err := c.gw.UpdateSessionStatus(ctx, match.RowID, dbapi.StatusToBeBuilt); err != nil {
		return "", fmt.Errorf("update matching START log status: %w", err)
	}
	c.endStage = 3
	c.bump()
	c.logger.Info("matching START session log status updated", "id_session_log", match.RowID)
	return "Matching START session log's status updated", nil
}

// UpdateStartRecordVerify re-fetches the updated START row, completing
// the END sequence.
func (c *Coordinator) UpdateStartRecordVerify(ctx context.Context) (string, error) {
	if c.endStage != 3 {
		return "", fmt.Errorf("%w: update verify before update", ErrBadState)
	}
	if _, err := c.gw.SessionByRowID(ctx, c.matchedStartRow, dbapi.StatusToBeBuilt); err != nil {
		return "", fmt.Errorf("verify START log status update: %w", err)
	}
	c.endStage = 0
	c.bump()
	c.logger.Info("finished ending session", "session_id", c.sessionID)

	if c.reconciling {
		// Stale session closed out; a fresh START may now run.
		c.reconciling = false
		c.state = StateConsistent
		c.sessionID = ""
	} else {
		c.state = StateEndingDone
	}
	return "Verified updated row", nil
}

// ProcessEnd runs the full END step: insert, verify, find-and-update
// the matching START, verify the update. Failure at any sub-step aborts
// the remaining ones; completed sub-steps are not rolled back.
func (c *Coordinator) ProcessEnd(ctx context.Context) error {
	steps := []func(context.Context) (string, error){
		c.EndInsert, c.EndVerify, c.UpdateStartRecord, c.UpdateStartRecordVerify,
	}
	for _, step := range steps {
		if _, err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Teardown resets transient counters and reports the session summary.
// Purely local; always succeeds. After a completed END sequence it moves
// the coordinator to the terminal StateTornDown.
func (c *Coordinator) Teardown() Summary {
	s := Summary{
		SessionNote: c.note,
	}
	if c.instr != nil {
		s.InstrumentSchema = c.instr.SchemaName
	}
	if !c.startTime.IsZero() {
		s.SessionStartTS = c.startTime.Format("2006-01-02 15:04:05")
	}
	c.progress = 0
	if c.state == StateEndingDone {
		c.state = StateTornDown
	}
	c.logger.Debug("teardown", "state", c.state)
	return s
}
