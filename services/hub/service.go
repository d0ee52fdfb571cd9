// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hub is the single point of contact for all instrument
// clients. It holds one session coordinator, one sync engine and one
// scheduled sync job per client id, created lazily on the first command
// from that client, and dispatches command envelopes to the matching
// handler.
//
// Dispatch is strictly serialized: one hub-wide mutex means at most one
// command is being handled at any instant, so no two clients' session
// sequences ever interleave at this layer. Background sync jobs run on
// their own timers, concurrently with dispatch; STOP_SYNC cancels the
// job and waits for it to finish before running the final pass, and the
// engine serializes its own passes, so the final pass cannot race a
// still-firing scheduled one.
package hub

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/sessionhub/pkg/logging"
	"github.com/AleutianAI/sessionhub/services/hub/checksum"
	"github.com/AleutianAI/sessionhub/services/hub/instrument"
	"github.com/AleutianAI/sessionhub/services/hub/session"
	filesync "github.com/AleutianAI/sessionhub/services/hub/sync"
)

// ErrUnknownCommand is returned (as a failure envelope) for verbs the
// hub does not recognize.
var ErrUnknownCommand = errors.New("unknown command")

// Deps are the shared collaborators every per-client state is built
// from. The gateway, uploader and data source are process-wide; session
// and sync state is per client.
type Deps struct {
	// Gateway talks to the remote session-log API.
	Gateway session.Gateway

	// Uploader puts synced files into object storage.
	Uploader filesync.Uploader

	// Source produces simulated data files for MAKE_DATA.
	Source instrument.DataSource

	// Cache is the persisted path-to-checksum mapping shared by all
	// sync engines. It serializes its own mutation.
	Cache *checksum.Cache

	// Extensions restricts syncing to these file extensions.
	// Empty means all files.
	Extensions []string

	// SyncInterval is the period of each client's recurring sync job.
	SyncInterval time.Duration

	// Logger. Nil falls back to the process default.
	Logger *logging.Logger
}

// clientState is everything the hub holds for one client id.
type clientState struct {
	coord    *session.Coordinator
	engine   *filesync.Engine
	watchDir string

	// jobCancel/jobDone are non-nil while a recurring sync job runs.
	jobCancel context.CancelFunc
	jobDone   chan struct{}
}

// Hub dispatches command envelopes to per-client handlers.
type Hub struct {
	mu      stdsync.Mutex
	clients map[string]*clientState
	deps    Deps
	logger  *logging.Logger
}

// NewHub creates a hub over the given shared collaborators.
func NewHub(deps Deps) *Hub {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.SyncInterval <= 0 {
		deps.SyncInterval = 10 * time.Minute
	}
	return &Hub{
		clients: make(map[string]*clientState),
		deps:    deps,
		logger:  deps.Logger,
	}
}

// Dispatch routes one command envelope to its handler and returns the
// reply envelope. A panicking or failing handler yields a structured
// failure reply; the hub itself never dies for one client's bad
// command.
func (h *Hub) Dispatch(ctx context.Context, cmd Command) (reply Reply) {
	timer := prometheus.NewTimer(commandLatency.WithLabelValues(cmd.Cmd))
	defer timer.ObserveDuration()

	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("command handler panicked", "cmd", cmd.Cmd, "client_id", cmd.ClientID, "panic", r)
			reply = failure(fmt.Errorf("internal error handling %s: %v", cmd.Cmd, r), 0)
		}
		status := "success"
		switch {
		case reply.Exception:
			status = "exception"
		case !reply.State:
			status = "failure"
		}
		commandsTotal.WithLabelValues(cmd.Cmd, status).Inc()
	}()

	st := h.clients[cmd.ClientID]
	if st == nil {
		st = &clientState{
			coord: session.NewCoordinator(h.deps.Gateway, cmd.ClientID, cmd.User, h.logger),
		}
		h.clients[cmd.ClientID] = st
		activeClients.Set(float64(len(h.clients)))
		h.logger.Info("new client connected", "client_id", cmd.ClientID)
	}

	switch cmd.Cmd {
	case CmdHello:
		return success("world", st.coord.Progress())

	case CmdSetup:
		// A fresh coordinator discards any stale session state from a
		// previous run of the same client.
		st.coord = session.NewCoordinator(h.deps.Gateway, cmd.ClientID, cmd.User, h.logger)
		return h.coordReply(st.coord)(st.coord.Setup(ctx))

	case CmdLastSessionCheck:
		cons, err := st.coord.CheckLastSessionEnded(ctx)
		if err != nil {
			return failure(err, st.coord.Progress())
		}
		// Inconsistent is a negative answer, not an exception; the
		// client decides whether to continue or restart.
		return Reply{State: cons.Consistent, Message: cons.Message, Progress: st.coord.Progress()}

	case CmdContinueLastSession:
		return h.coordReply(st.coord)(st.coord.ContinueLastSession())

	case CmdStartProcess:
		return h.coordReply(st.coord)(st.coord.StartInsert(ctx))

	case CmdStartProcessCheck:
		return h.coordReply(st.coord)(st.coord.StartVerify(ctx))

	case CmdEndProcess:
		return h.coordReply(st.coord)(st.coord.EndInsert(ctx))

	case CmdEndProcessCheck:
		return h.coordReply(st.coord)(st.coord.EndVerify(ctx))

	case CmdUpdateStartRecord:
		return h.coordReply(st.coord)(st.coord.UpdateStartRecord(ctx))

	case CmdUpdateStartRecordCheck:
		return h.coordReply(st.coord)(st.coord.UpdateStartRecordVerify(ctx))

	case CmdTearDown:
		return success(st.coord.Teardown(), st.coord.Progress())

	case CmdSaveNote:
		if len(cmd.Argv) == 0 {
			return failure(errors.New("SAVE_NOTE requires the note text as an argument"), st.coord.Progress())
		}
		st.coord.SetNote(cmd.Argv[0])
		return success("session note saved", st.coord.Progress())

	case CmdStartSync:
		return h.startSync(st, cmd)

	case CmdStopSync:
		return h.stopSync(ctx, st, cmd.ClientID)

	case CmdMakeData:
		path, err := h.deps.Source.GenerateData(ctx, cmd.OutputDir)
		if err != nil {
			return failure(err, st.coord.Progress())
		}
		return success(fmt.Sprintf("`%s` generated", path), st.coord.Progress())

	case CmdDestroy:
		h.stopJob(st)
		delete(h.clients, cmd.ClientID)
		activeClients.Set(float64(len(h.clients)))
		h.logger.Info("client state released", "client_id", cmd.ClientID)
		return success("client state released", 0)

	default:
		return failure(fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Cmd), st.coord.Progress())
	}
}

// coordReply adapts the coordinator's (message, error) results to a
// reply envelope.
func (h *Hub) coordReply(coord *session.Coordinator) func(string, error) Reply {
	return func(msg string, err error) Reply {
		if err != nil {
			return failure(err, coord.Progress())
		}
		return success(msg, coord.Progress())
	}
}

// startSync seeds the client's engine from the confirmed session and
// attaches the recurring sync job.
func (h *Hub) startSync(st *clientState, cmd Command) Reply {
	coord := st.coord
	if cmd.WatchDir == "" {
		return failure(errors.New("START_SYNC requires watchdir"), coord.Progress())
	}
	if st.jobCancel != nil {
		return success("sync already running", coord.Progress())
	}

	if st.engine == nil || st.watchDir != cmd.WatchDir {
		st.engine = filesync.NewEngine(filesync.Config{
			WatchRoot:  cmd.WatchDir,
			Extensions: h.deps.Extensions,
			Interval:   h.deps.SyncInterval,
		}, h.deps.Uploader, h.deps.Cache, h.logger)
		st.watchDir = cmd.WatchDir
	}
	// Files from before the session never sync; uploads land under
	// the instrument's identifier.
	if !coord.StartTime().IsZero() {
		st.engine.SetMTimeFloor(coord.StartTime())
	}
	if instr := coord.Instrument(); instr != nil {
		st.engine.SetRemotePrefix(instr.PID)
		st.engine.SetInstrumentName(instr.SchemaName)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	st.jobCancel = cancel
	st.jobDone = done
	engine := st.engine
	go func() {
		engine.Run(jobCtx, h.observePass(cmd.ClientID))
		close(done)
	}()

	h.logger.Info("sync job started", "client_id", cmd.ClientID, "watch_dir", cmd.WatchDir)
	return success("sync started", coord.Progress())
}

// stopSync cancels the scheduled job, waits for it to exit, then runs
// one final pass so nothing produced during the session is left behind.
func (h *Hub) stopSync(ctx context.Context, st *clientState, clientID string) Reply {
	if st.engine == nil {
		return failure(errors.New("sync has not been started for this client"), st.coord.Progress())
	}
	h.stopJob(st)

	stats, err := st.engine.SyncOnce(ctx)
	h.observePass(clientID)(stats, err)
	if err != nil {
		return failure(fmt.Errorf("final sync: %w", err), st.coord.Progress())
	}
	msg := fmt.Sprintf("final sync finished, %d file(s) uploaded", stats.Uploaded)
	h.logger.Info("sync job stopped", "client_id", clientID, "uploaded", stats.Uploaded)
	return success(msg, st.coord.Progress())
}

// stopJob cancels a running sync job and waits for it to exit. No-op
// when no job is running.
func (h *Hub) stopJob(st *clientState) {
	if st.jobCancel == nil {
		return
	}
	st.jobCancel()
	<-st.jobDone
	st.jobCancel = nil
	st.jobDone = nil
}

// observePass feeds one sync pass outcome into the metrics.
func (h *Hub) observePass(clientID string) filesync.PassFunc {
	return func(stats filesync.Stats, err error) {
		status := "clean"
		if err != nil {
			status = "errors"
		}
		syncPassesTotal.WithLabelValues(clientID, status).Inc()
		filesUploadedTotal.WithLabelValues(clientID).Add(float64(stats.Uploaded))
		uploadFailuresTotal.WithLabelValues(clientID).Add(float64(stats.Failed))
	}
}
