// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the hub configuration from an
// optional YAML file plus SESSIONHUB_* environment variables; the
// environment wins.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full hub configuration.
type Config struct {
	// ListenAddr is the address the HTTP service binds.
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// DBAPIURL is the base URL of the remote session-log API.
	DBAPIURL string `mapstructure:"dbapi_url" validate:"required,url"`

	// DBAPIUsername/DBAPIPassword are the API basic-auth credentials.
	DBAPIUsername string `mapstructure:"dbapi_username"`
	DBAPIPassword string `mapstructure:"dbapi_password"`

	// DataBucket is the object-store bucket files sync into.
	DataBucket string `mapstructure:"data_bucket" validate:"required"`

	// MockDataPrefix is the bucket prefix holding the simulated
	// instrument's file pool.
	MockDataPrefix string `mapstructure:"mock_data_prefix"`

	// CredentialFile is the service-account key for the object store.
	CredentialFile string `mapstructure:"credential_file" validate:"required"`

	// CacheFile is the persisted path-to-checksum mapping.
	CacheFile string `mapstructure:"cache_file" validate:"required"`

	// Extensions restricts syncing to these file extensions
	// (e.g. [".tif", ".dm3"]). Empty means all files.
	Extensions []string `mapstructure:"extensions"`

	// SyncInterval is the recurring sync job period.
	SyncInterval time.Duration `mapstructure:"sync_interval" validate:"min=1s"`

	// LockFile guards against a second hub on the same machine.
	LockFile string `mapstructure:"lock_file"`

	// LogDir receives the per-day service log file. Empty disables
	// file logging.
	LogDir string `mapstructure:"log_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		ListenAddr:     ":8750",
		MockDataPrefix: "MockDataFiles",
		SyncInterval:   10 * time.Minute,
		LockFile:       filepathInTemp("sessionhub.lock"),
		LogLevel:       "info",
	}
}

// Load reads configuration from path (optional, "" skips the file),
// overlays SESSIONHUB_* environment variables and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("mock_data_prefix", cfg.MockDataPrefix)
	v.SetDefault("sync_interval", cfg.SyncInterval)
	v.SetDefault("lock_file", cfg.LockFile)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("SESSIONHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// AutomaticEnv alone does not surface env-only keys through
	// Unmarshal; bind each key explicitly.
	for _, key := range []string{
		"listen_addr", "dbapi_url", "dbapi_username", "dbapi_password",
		"data_bucket", "mock_data_prefix", "credential_file", "cache_file",
		"extensions", "sync_interval", "lock_file", "log_dir", "log_level",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func filepathInTemp(name string) string {
	return os.TempDir() + string(os.PathSeparator) + name
}
