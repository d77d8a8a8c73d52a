package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "SFU_SERVER", cfg.ServerID)
	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, 3*time.Second, cfg.Analysis.FlushInterval)
	assert.Equal(t, 48000, cfg.Analysis.SampleRate)
	assert.Equal(t, 10*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Transport.SignalingRetention)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.ICEServers)
}

func TestLoadFile_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\nanalysis:\n  flush_interval: 1500ms\n"), 0o600))
	t.Setenv("CALLGUARD_SERVER_ID", "RELAY_1")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.Analysis.FlushInterval)
	assert.Equal(t, "RELAY_1", cfg.ServerID)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg.Transport.Kind = TransportPostgres
	cfg.Transport.DatabaseURL = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Transport.DatabaseURL = "postgres://localhost/db"
	assert.NoError(t, cfg.Validate())

	cfg.Transport.Kind = "carrier-pigeon"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
