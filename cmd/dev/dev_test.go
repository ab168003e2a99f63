package dev

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vxrn/vxrn/cmd"
	"github.com/vxrn/vxrn/internal/config"
	"github.com/vxrn/vxrn/internal/output"
)

func TestMain(m *testing.M) {
	cmd.Out = output.NewTest(io.Discard)
	os.Exit(m.Run())
}

func TestServerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Entry = "src/main.tsx"
	cfg.DisabledPatches = []string{"expo-modules-core"}

	t.Run("config values", func(t *testing.T) {
		opts := serverOptions(devCmd, "/app", cfg)
		assert.Equal(t, "/app", opts.Root)
		assert.Equal(t, "src/main.tsx", opts.Entry)
		assert.Equal(t, "0.0.0.0", opts.Host)
		assert.Equal(t, 8081, opts.Port)
		assert.Equal(t, 500, opts.HotCacheSize)
		assert.False(t, opts.UseWorker)
		require.NotNil(t, opts.Patches)
		assert.Equal(t, []string{"expo-modules-core"}, opts.Patches.Disabled)
		assert.NotEmpty(t, opts.Patches.Rules)
	})

	t.Run("flags override config", func(t *testing.T) {
		require.NoError(t, devCmd.Flags().Set("port", "19000"))
		require.NoError(t, devCmd.Flags().Set("worker", "true"))
		t.Cleanup(func() {
			devCmd.Flags().Lookup("port").Changed = false
			devCmd.Flags().Lookup("worker").Changed = false
			devPort, devWorker = 0, false
		})

		opts := serverOptions(devCmd, "/app", cfg)
		assert.Equal(t, 19000, opts.Port)
		assert.True(t, opts.UseWorker)
		assert.Equal(t, "0.0.0.0", opts.Host)
	})
}

func TestNewServer(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"package.json":                           `{"name":"app","dependencies":{"react-native":"0.74.0"}}`,
		"vxrn.config.json":                       `{"port": 9123}`,
		"index.js":                               `globalThis.ok = true;`,
		"node_modules/react-native/package.json": `{"name":"react-native","version":"0.74.0"}`,
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	old := cmd.ProjectDir
	cmd.ProjectDir = root
	defer func() { cmd.ProjectDir = old }()

	srv, err := newServer(devCmd, cmd.Out)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9123", srv.Addr())
}

func TestNewServerMissingProject(t *testing.T) {
	old := cmd.ProjectDir
	cmd.ProjectDir = filepath.Join(t.TempDir(), "missing")
	defer func() { cmd.ProjectDir = old }()

	_, err := newServer(devCmd, cmd.Out)
	require.ErrorContains(t, err, "project directory")
}
