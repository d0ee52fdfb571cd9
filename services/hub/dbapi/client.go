// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dbapi is the typed gateway to the remote session-log API.
//
// It covers exactly the operation set the session coordinator needs:
// instrument lookup by computer name, last-session queries, session
// insert, and record-status update. Every operation takes a context,
// logs at entry and on failure, and performs no automatic retries —
// callers decide whether to retry or abort.
//
// Status code contracts:
//
//   - 200 is success everywhere.
//   - 404 on the last-session-by-instrument query means "no sessions
//     yet" and is not an error.
//   - 404 on instrument lookup is APIError{KindNotFound}.
//   - 5xx on the last-session-by-instrument query is
//     APIError{KindServerError}.
//   - Any other non-200 is APIError{KindUnexpected} with the body.
package dbapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/sessionhub/pkg/logging"
)

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the session-log API under basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	http     HTTPClient
	logger   *logging.Logger
}

// NewClient creates a gateway for the API at baseURL. The credential
// pair is passed through to basic auth on every request. httpClient may
// be nil, in which case a client with a 30s transport timeout is used.
func NewClient(baseURL, username, password string, httpClient HTTPClient, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     httpClient,
		logger:   logger,
	}
}

// dataEnvelope is the {"data": ...} wrapper every API response uses.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// InstrumentByComputerName resolves the instrument registered for a
// given computer name.
func (c *Client) InstrumentByComputerName(ctx context.Context, name string) (*InstrumentInfo, error) {
	const op = "instrument lookup"
	c.logger.Debug("dbapi call", "op", op, "computer_name", name)

	q := url.Values{"computer_name": {name}}
	status, body, err := c.get(ctx, "/api/instrument", q)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusNotFound:
		return nil, c.fail(op, &APIError{Kind: KindNotFound, Op: op, Status: status, Body: body})
	default:
		return nil, c.fail(op, &APIError{Kind: KindUnexpected, Op: op, Status: status, Body: body})
	}

	var info InstrumentInfo
	if err := decodeData(body, &info); err != nil {
		return nil, c.fail(op, err)
	}
	return &info, nil
}

// LastSessionForInstrument fetches the most recent session record for
// an instrument PID. A 404 means no sessions exist yet and yields
// (nil, nil) so first-ever use bootstraps cleanly.
func (c *Client) LastSessionForInstrument(ctx context.Context, instrumentPID string) (*SessionRecord, error) {
	const op = "last session by instrument"
	c.logger.Debug("dbapi call", "op", op, "instrument", instrumentPID)

	q := url.Values{"instrument": {instrumentPID}}
	status, body, err := c.get(ctx, "/api/lastsession", q)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status >= http.StatusInternalServerError:
		return nil, c.fail(op, &APIError{Kind: KindServerError, Op: op, Status: status, Body: body})
	case status != http.StatusOK:
		return nil, c.fail(op, &APIError{Kind: KindUnexpected, Op: op, Status: status, Body: body})
	}

	var rec SessionRecord
	if err := decodeData(body, &rec); err != nil {
		return nil, c.fail(op, err)
	}
	return &rec, nil
}

// LastSessionFor re-fetches a specific just-written record by session
// identifier and event type, for verify-after-write. Any non-200 is an
// error: the record is expected to exist.
func (c *Client) LastSessionFor(ctx context.Context, sessionID string, eventType EventType) (*SessionRecord, error) {
	const op = "last session by identifier"
	c.logger.Debug("dbapi call", "op", op, "session_id", sessionID, "event_type", eventType)

	q := url.Values{
		"session_identifier": {sessionID},
		"event_type":         {string(eventType)},
	}
	status, body, err := c.get(ctx, "/api/lastsession", q)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.fail(op, &APIError{Kind: KindUnexpected, Op: op, Status: status, Body: body})
	}

	var rec SessionRecord
	if err := decodeData(body, &rec); err != nil {
		return nil, c.fail(op, err)
	}
	return &rec, nil
}

// InsertSession POSTs a new session record. Any non-200 is an error
// that must abort the caller's remaining steps.
func (c *Client) InsertSession(ctx context.Context, ins InsertSessionRequest) error {
	const op = "insert session"
	c.logger.Debug("dbapi call", "op", op,
		"event_type", ins.EventType, "session_id", ins.SessionID)

	form := url.Values{
		"event_type":         {string(ins.EventType)},
		"instrument":         {ins.Instrument},
		"user":               {ins.User},
		"session_identifier": {ins.SessionID},
		"session_note":       {ins.SessionNote},
	}
	if ins.RecordStatus != "" {
		form.Set("record_status", string(ins.RecordStatus))
	}

	status, body, err := c.send(ctx, http.MethodPost, "/api/session", form)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.fail(op, &APIError{Kind: KindUnexpected, Op: op, Status: status, Body: body})
	}
	return nil
}

// UpdateSessionStatus PUTs a new record_status onto the row identified
// by id_session_log.
func (c *Client) UpdateSessionStatus(ctx context.Context, rowID int64, recordStatus RecordStatus) error {
	const op = "update session status"
	c.logger.Debug("dbapi call", "op", op, "id_session_log", rowID, "record_status", recordStatus)

	form := url.Values{
		"id_session_log": {strconv.FormatInt(rowID, 10)},
		"record_status":  {string(recordStatus)},
	}
	status, body, err := c.send(ctx, http.MethodPut, "/api/session", form)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.fail(op, &APIError{Kind: KindUnexpected, Op: op, Status: status, Body: body})
	}
	return nil
}

// SessionByRowID re-fetches a row by id_session_log and record_status,
// verifying that a status update took effect.
func (c *Client) SessionByRowID(ctx context.Context, rowID int64, recordStatus RecordStatus) (*SessionRecord, error) {
	const op = "session by row id"
	c.logger.Debug("dbapi call", "op", op, "id_session_log", rowID)

	q := url.Values{
		"id_session_log": {strconv.FormatInt(rowID, 10)},
		"record_status":  {string(recordStatus)},
	}
	status, body, err := c.get(ctx, "/api/session", q)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.fail(op, &APIError{Kind: KindUnexpected, Op: op, Status: status, Body: body})
	}

	var rec SessionRecord
	if err := decodeData(body, &rec); err != nil {
		return nil, c.fail(op, err)
	}
	return &rec, nil
}

// get issues an authenticated GET and returns status and body.
func (c *Client) get(ctx context.Context, path string, query url.Values) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request for %s: %w", path, err)
	}
	return c.do(req)
}

// send issues an authenticated form-encoded POST or PUT.
func (c *Client) send(ctx context.Context, method, path string, form url.Values) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, "", fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, string, error) {
	req.SetBasicAuth(c.username, c.password)
	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("dbapi transport failure", "url", req.URL.String(), "error", err)
		return 0, "", fmt.Errorf("dbapi request %s: %w", req.URL.Path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, "", fmt.Errorf("read response from %s: %w", req.URL.Path, err)
	}
	return res.StatusCode, string(body), nil
}

// fail logs and returns the error unchanged.
func (c *Client) fail(op string, err error) error {
	c.logger.Error("dbapi call failed", "op", op, "error", err)
	return err
}

func decodeData(body string, target any) error {
	var env dataEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return fmt.Errorf("malformed response envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("malformed response data: %w", err)
	}
	return nil
}
