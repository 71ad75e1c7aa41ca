package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dandyvica/wasm-add-one/internal/host"
	"github.com/dandyvica/wasm-add-one/internal/logging"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, &Config{
		Engine: host.NameWazero,
		Log:    logging.Config{Level: "info"},
	}, cfg)
}

func TestLoad_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`engine: wasmtime
wasm: guest.wasm
log:
  level: warn
  pretty: true
`), 0o600))

	t.Run("file", func(t *testing.T) {
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		require.Equal(t, &Config{
			Engine: host.NameWasmtime,
			Wasm:   "guest.wasm",
			Log:    logging.Config{Level: "warn", Pretty: true},
		}, cfg)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("ADDONE_ENGINE", host.NameWasmer)
		t.Setenv("ADDONE_LOG_LEVEL", "debug")
		t.Setenv("ADDONE_LOG_PRETTY", "false")

		cfg, err := Load(path, nil)
		require.NoError(t, err)
		require.Equal(t, host.NameWasmer, cfg.Engine)
		require.Equal(t, "guest.wasm", cfg.Wasm)
		require.Equal(t, logging.Config{Level: "debug"}, cfg.Log)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("ADDONE_ENGINE", host.NameWasmer)

		cfg, err := Load(path, map[string]interface{}{KeyEngine: host.NameNative, KeyWasm: "other.wasm"})
		require.NoError(t, err)
		require.Equal(t, host.NameNative, cfg.Engine)
		require.Equal(t, "other.wasm", cfg.Wasm)
	})
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine: [unterminated"), 0o600))
		_, err := Load(path, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "load config")
	})

	t.Run("empty engine", func(t *testing.T) {
		_, err := Load("", map[string]interface{}{KeyEngine: ""})
		require.EqualError(t, err, "engine must not be empty")
	})
}
