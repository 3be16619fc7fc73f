package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDriverConfigAdjustClampsRatioAndDefaults(t *testing.T) {
	cfg := DriverConfig{
		MinRegisteredResourcesRatio: 1.5,
	}.Adjust()
	require.Equal(t, 1.0, cfg.MinRegisteredResourcesRatio)
	require.Equal(t, 30*time.Second, cfg.MaxRegisteredResourcesWaitingTime)
	require.Equal(t, time.Second, cfg.ReviveInterval)
	require.Equal(t, 1, cfg.CPUsPerTask)

	cfg = DriverConfig{MinRegisteredResourcesRatio: -0.3}.Adjust()
	require.Equal(t, 0.0, cfg.MinRegisteredResourcesRatio)
}

func TestExecutorConfigValidateNamesFirstMissingOption(t *testing.T) {
	_, ok := ExecutorConfig{}.Validate()
	require.False(t, ok)

	missing, ok := ExecutorConfig{DriverURL: "127.0.0.1:10240"}.Validate()
	require.False(t, ok)
	require.Equal(t, "executor-id", missing)

	_, ok = ExecutorConfig{
		DriverURL:  "127.0.0.1:10240",
		ExecutorID: "e1",
		Hostname:   "h1",
		Cores:      4,
		AppID:      "app-1",
	}.Validate()
	require.True(t, ok)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = "127.0.0.1:10240"
cpus_per_task = 2
max_frame_size = 1048576
`), 0o644))

	var cfg DriverConfig
	require.NoError(t, LoadTOML(path, &cfg))
	require.Equal(t, "127.0.0.1:10240", cfg.ListenAddr)
	require.Equal(t, 2, cfg.CPUsPerTask)
	require.Equal(t, int64(1048576), cfg.MaxFrameSize)
}
