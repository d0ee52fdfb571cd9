// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sessionhub starts the instrument session hub: the HTTP
// service instrument clients talk to for session logging and data
// synchronization.
//
// # Environment Variables
//
//   - SESSIONHUB_LISTEN_ADDR: HTTP bind address (default: :8750)
//   - SESSIONHUB_DBAPI_URL: base URL of the session-log API (required)
//   - SESSIONHUB_DBAPI_USERNAME / SESSIONHUB_DBAPI_PASSWORD: API basic auth
//   - SESSIONHUB_DATA_BUCKET: object-store bucket for synced files (required)
//   - SESSIONHUB_CREDENTIAL_FILE: service-account key path (required)
//   - SESSIONHUB_CACHE_FILE: checksum cache path (required)
//
// # Usage
//
//	go build -o sessionhub ./cmd/sessionhub
//	./sessionhub serve --config /etc/sessionhub/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sessionhub/pkg/gcs"
	"github.com/AleutianAI/sessionhub/pkg/lock"
	"github.com/AleutianAI/sessionhub/pkg/logging"
	"github.com/AleutianAI/sessionhub/services/hub"
	"github.com/AleutianAI/sessionhub/services/hub/checksum"
	"github.com/AleutianAI/sessionhub/services/hub/config"
	"github.com/AleutianAI/sessionhub/services/hub/dbapi"
	"github.com/AleutianAI/sessionhub/services/hub/instrument"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "sessionhub",
		Short: "Hub service for instrument session logging and data sync",
		Long: `sessionhub tracks instrument usage sessions against a remote
session-log database and mirrors the data each session produces into
cloud object storage.`,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the hub HTTP service",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (optional)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "sessionhub",
		JSON:    true,
	})
	defer logger.Close()

	// One hub per machine: a second instance would race the first on
	// the checksum cache and the session protocol.
	guard, err := lock.Acquire(cfg.LockFile)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) {
			return fmt.Errorf("another sessionhub instance is already running (lock %s)", cfg.LockFile)
		}
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer guard.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := gcs.NewClient(ctx, cfg.DataBucket, cfg.CredentialFile)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	defer store.Close()

	cache, err := checksum.Load(cfg.CacheFile)
	if err != nil {
		// Missing or corrupt cache is fatal: syncing without it would
		// re-upload everything or, worse, trust a partial record.
		return fmt.Errorf("checksum cache: %w", err)
	}

	gateway := dbapi.NewClient(cfg.DBAPIURL, cfg.DBAPIUsername, cfg.DBAPIPassword, nil, logger)
	source := instrument.NewGCSInstrument(store, cfg.MockDataPrefix, logger)

	h := hub.NewHub(hub.Deps{
		Gateway:      gateway,
		Uploader:     store,
		Source:       source,
		Cache:        cache,
		Extensions:   cfg.Extensions,
		SyncInterval: cfg.SyncInterval,
		Logger:       logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	v1 := router.Group("/v1")
	hub.RegisterRoutes(v1, hub.NewHandlers(h))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting sessionhub", "addr", cfg.ListenAddr, "dbapi_url", cfg.DBAPIURL, "bucket", cfg.DataBucket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
		return err
	}
	logger.Info("sessionhub stopped")
	return nil
}
