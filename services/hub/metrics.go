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

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// commandsTotal counts dispatched commands.
	// Labels: cmd (verb), status (success, failure, exception)
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionhub",
		Subsystem: "commands",
		Name:      "total",
		Help:      "Total commands dispatched by verb and outcome",
	}, []string{"cmd", "status"})

	// commandLatency measures command handling latency.
	// Labels: cmd
	commandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sessionhub",
		Subsystem: "commands",
		Name:      "latency_seconds",
		Help:      "Command handling latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"cmd"})

	// syncPassesTotal counts sync passes.
	// Labels: client_id, status (clean, errors)
	syncPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionhub",
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Total sync passes per client",
	}, []string{"client_id", "status"})

	// filesUploadedTotal counts successfully uploaded files.
	// Labels: client_id
	filesUploadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionhub",
		Subsystem: "sync",
		Name:      "files_uploaded_total",
		Help:      "Total files uploaded per client",
	}, []string{"client_id"})

	// uploadFailuresTotal counts failed uploads.
	// Labels: client_id
	uploadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionhub",
		Subsystem: "sync",
		Name:      "upload_failures_total",
		Help:      "Total failed uploads per client",
	}, []string{"client_id"})

	// activeClients tracks the number of live per-client states.
	activeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessionhub",
		Name:      "active_clients",
		Help:      "Number of clients with live hub state",
	})
)
