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
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "user", "pass", nil, nil)
}

func TestClient_InstrumentByComputerName(t *testing.T) {
	t.Run("resolves instrument and sends basic auth", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/instrument" {
				t.Errorf("path = %s, want /api/instrument", r.URL.Path)
			}
			if r.URL.Query().Get("computer_name") != "M1-PC" {
				t.Errorf("computer_name = %s, want M1-PC", r.URL.Query().Get("computer_name"))
			}
			user, pass, ok := r.BasicAuth()
			if !ok || user != "user" || pass != "pass" {
				t.Errorf("basic auth = %s:%s (%v), want user:pass", user, pass, ok)
			}
			w.Write([]byte(`{"data": {"instrument_pid": "FEI-Titan-1", "schema_name": "FEI Titan TEM", "computer_name": "M1-PC", "api_url": "https://example.org/api"}}`))
		})

		info, err := client.InstrumentByComputerName(context.Background(), "M1-PC")
		if err != nil {
			t.Fatalf("InstrumentByComputerName: %v", err)
		}
		if info.PID != "FEI-Titan-1" {
			t.Errorf("PID = %s, want FEI-Titan-1", info.PID)
		}
		if info.SchemaName != "FEI Titan TEM" {
			t.Errorf("SchemaName = %s, want FEI Titan TEM", info.SchemaName)
		}
	})

	t.Run("404 is a not-found error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := client.InstrumentByComputerName(context.Background(), "unknown")
		if !IsNotFound(err) {
			t.Errorf("IsNotFound = false, want true (err: %v)", err)
		}
	})
}

func TestClient_LastSessionForInstrument(t *testing.T) {
	t.Run("200 returns the record", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": {"id_session_log": 42, "session_identifier": "S0", "event_type": "START", "timestamp": "2026-03-01T09:30:00"}}`))
		})
		rec, err := client.LastSessionForInstrument(context.Background(), "FEI-Titan-1")
		if err != nil {
			t.Fatalf("LastSessionForInstrument: %v", err)
		}
		if rec.RowID != 42 || rec.SessionID != "S0" || rec.EventType != EventStart {
			t.Errorf("record = %+v, want row 42, S0, START", rec)
		}
	})

	t.Run("404 means no sessions yet, not an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		rec, err := client.LastSessionForInstrument(context.Background(), "FEI-Titan-1")
		if err != nil {
			t.Fatalf("LastSessionForInstrument: %v", err)
		}
		if rec != nil {
			t.Errorf("record = %+v, want nil", rec)
		}
	})

	t.Run("5xx is a server error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.LastSessionForInstrument(context.Background(), "FEI-Titan-1")
		if !IsServerError(err) {
			t.Errorf("IsServerError = false, want true (err: %v)", err)
		}
	})
}

func TestClient_InsertSession(t *testing.T) {
	t.Run("posts form fields", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("ParseForm: %v", err)
			}
			if r.PostForm.Get("event_type") != "START" {
				t.Errorf("event_type = %s, want START", r.PostForm.Get("event_type"))
			}
			if r.PostForm.Get("session_identifier") != "S1" {
				t.Errorf("session_identifier = %s, want S1", r.PostForm.Get("session_identifier"))
			}
			if r.PostForm.Get("record_status") != "WAITING_FOR_END" {
				t.Errorf("record_status = %s, want WAITING_FOR_END", r.PostForm.Get("record_status"))
			}
			w.Write([]byte(`{"data": {}}`))
		})

		err := client.InsertSession(context.Background(), InsertSessionRequest{
			EventType:    EventStart,
			Instrument:   "FEI-Titan-1",
			User:         "jdoe",
			SessionID:    "S1",
			RecordStatus: StatusWaitingForEnd,
		})
		if err != nil {
			t.Fatalf("InsertSession: %v", err)
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})
		err := client.InsertSession(context.Background(), InsertSessionRequest{EventType: EventStart})
		if err == nil {
			t.Error("InsertSession = nil, want error")
		}
	})
}

func TestClient_UpdateSessionStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("id_session_log") != "42" {
			t.Errorf("id_session_log = %s, want 42", r.PostForm.Get("id_session_log"))
		}
		if r.PostForm.Get("record_status") != "TO_BE_BUILT" {
			t.Errorf("record_status = %s, want TO_BE_BUILT", r.PostForm.Get("record_status"))
		}
		w.Write([]byte(`{"data": {}}`))
	})

	if err := client.UpdateSessionStatus(context.Background(), 42, StatusToBeBuilt); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
}

func TestClient_SessionByRowID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session" {
			t.Errorf("path = %s, want /api/session", r.URL.Path)
		}
		if r.URL.Query().Get("record_status") != "TO_BE_BUILT" {
			t.Errorf("record_status = %s, want TO_BE_BUILT", r.URL.Query().Get("record_status"))
		}
		w.Write([]byte(`{"data": {"id_session_log": 42, "record_status": "TO_BE_BUILT"}}`))
	})

	rec, err := client.SessionByRowID(context.Background(), 42, StatusToBeBuilt)
	if err != nil {
		t.Fatalf("SessionByRowID: %v", err)
	}
	if rec.RowID != 42 || rec.RecordStatus != StatusToBeBuilt {
		t.Errorf("record = %+v, want row 42 TO_BE_BUILT", rec)
	}
}

func TestClient_MalformedEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	if _, err := client.InstrumentByComputerName(context.Background(), "M1-PC"); err == nil {
		t.Error("InstrumentByComputerName = nil, want error for malformed body")
	}
}
