package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Run("DefaultConfigIsValid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("DefaultTransportIsUnix", func(t *testing.T) {
		cfg := Default()
		assert.Equal(t, "unix", cfg.Transport.Mode)
		assert.Equal(t, "/tmp/p3_tb", cfg.Transport.SocketPath)
	})
}

func TestLoad(t *testing.T) {
	t.Run("NoFileUsesDefaults", func(t *testing.T) {
		cfg, _, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default().Transport.SocketPath, cfg.Transport.SocketPath)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cfg.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: DEBUG
transport:
  socket_path: /tmp/other.sock
server:
  shutdown_timeout: 3s
`), 0644))

		cfg, _, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "DEBUG", cfg.Logging.Level)
		assert.Equal(t, "/tmp/other.sock", cfg.Transport.SocketPath)
		assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	})

	t.Run("RPCTransportEnvSelectsTCPCaseInsensitively", func(t *testing.T) {
		t.Setenv("RPC_TRANSPORT", "TCP")

		cfg, _, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "tcp", cfg.Transport.Mode)
	})

	t.Run("InvalidTransportModeIsRejected", func(t *testing.T) {
		t.Setenv("RPC_TRANSPORT", "carrier-pigeon")

		_, _, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("InvalidLevelIsRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cfg.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: LOUD\n"), 0644))

		_, _, err := Load(path)
		require.Error(t, err)
	})
}

func TestWrite(t *testing.T) {
	t.Run("WritesLoadableSample", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sample.yaml")
		require.NoError(t, Write(path, false))

		cfg, _, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, Default().Transport.Mode, cfg.Transport.Mode)
	})

	t.Run("RefusesToOverwriteWithoutForce", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sample.yaml")
		require.NoError(t, Write(path, false))

		err := Write(path, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		assert.NoError(t, Write(path, true))
	})
}
