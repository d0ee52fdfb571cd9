// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads a full YAML file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `listen_addr: ":9999"
dbapi_url: "https://lims.example.org"
dbapi_username: "hub"
dbapi_password: "secret"
data_bucket: "instrument-data"
credential_file: "/etc/sessionhub/sa.json"
cache_file: "/var/lib/sessionhub/cache.json"
extensions: [".tif", ".dm3"]
sync_interval: 5m
log_level: "debug"
`
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.ListenAddr)
		assert.Equal(t, "https://lims.example.org", cfg.DBAPIURL)
		assert.Equal(t, "hub", cfg.DBAPIUsername)
		assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
		assert.Equal(t, []string{".tif", ".dm3"}, cfg.Extensions)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("defaults fill what the file omits", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `dbapi_url: "https://lims.example.org"
data_bucket: "instrument-data"
credential_file: "/etc/sessionhub/sa.json"
cache_file: "/var/lib/sessionhub/cache.json"
`
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":8750", cfg.ListenAddr)
		assert.Equal(t, "MockDataFiles", cfg.MockDataPrefix)
		assert.Equal(t, 10*time.Minute, cfg.SyncInterval)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `dbapi_url: "https://lims.example.org"
data_bucket: "instrument-data"
credential_file: "/etc/sessionhub/sa.json"
cache_file: "/var/lib/sessionhub/cache.json"
`
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
		t.Setenv("SESSIONHUB_DATA_BUCKET", "env-bucket")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "env-bucket", cfg.DataBucket)
	})

	t.Run("missing required fields fail validation", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("bad log level fails validation", func(t *testing.T) {
		t.Setenv("SESSIONHUB_DBAPI_URL", "https://lims.example.org")
		t.Setenv("SESSIONHUB_DATA_BUCKET", "b")
		t.Setenv("SESSIONHUB_CREDENTIAL_FILE", "/sa.json")
		t.Setenv("SESSIONHUB_CACHE_FILE", "/cache.json")
		t.Setenv("SESSIONHUB_LOG_LEVEL", "loud")
		_, err := Load("")
		assert.Error(t, err)
	})
}
