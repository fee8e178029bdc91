package configwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

const testConfigYAML = `
access_point:
  listeners:
    - address: 0.0.0.0:8080
upstreams:
  - id: u1
    nodes:
      "10.0.0.1:8080": 1
`

func TestLocalWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel-gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o644))

	viper.Reset()
	config.InitViper(path)

	reg := resource.NewRegistry()
	// NewLocalWatcher only reacts to subsequent writes; the initial load (as
	// at process startup) is the caller's own cfg.Registry() call.
	cfg, err := config.LoadConfigRaw()
	require.NoError(t, err)
	require.NoError(t, ApplyConfig(cfg, reg))

	w, err := NewLocalWatcher(path, reg, nil)
	require.NoError(t, err)
	defer w.Close()

	_, ok := reg.Upstreams.Get("u1")
	require.True(t, ok)

	updated := testConfigYAML + "  - id: u2\n    nodes:\n      \"10.0.0.2:8080\": 1\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		_, ok := reg.Upstreams.Get("u2")
		return ok
	}, 2*time.Second, 10*time.Millisecond, "watcher never picked up the file rewrite")
}
