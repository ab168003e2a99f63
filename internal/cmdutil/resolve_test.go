package cmdutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/platform"
)

func TestResolveFlag(t *testing.T) {
	tests := []struct {
		name      string
		flagValue string
		envKey    string
		envValue  string
		want      string
	}{
		{
			name:      "flag value takes priority",
			flagValue: "from-flag",
			envKey:    "TEST_RESOLVE_FLAG",
			envValue:  "from-env",
			want:      "from-flag",
		},
		{
			name:     "falls back to env var",
			envKey:   "TEST_RESOLVE_FLAG",
			envValue: "from-env",
			want:     "from-env",
		},
		{
			name:   "returns empty when both empty",
			envKey: "TEST_RESOLVE_FLAG_EMPTY",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}
			assert.Equal(t, tt.want, ResolveFlag(tt.flagValue, tt.envKey))
		})
	}
}

func TestResolveProjectDir(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		dir := t.TempDir()
		got, err := ResolveProjectDir(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("environment", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("VXRN_PROJECT_DIR", dir)
		got, err := ResolveProjectDir("")
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := ResolveProjectDir(filepath.Join(t.TempDir(), "nope"))
		require.ErrorContains(t, err, "project directory")
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "package.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		_, err := ResolveProjectDir(path)
		require.ErrorContains(t, err, "is not a directory")
	})
}

func TestResolvePlatformInteractive(t *testing.T) {
	out := output.NewTest(io.Discard)

	tests := []struct {
		name    string
		flag    string
		env     string
		want    platform.Environment
		wantErr string
	}{
		{name: "flag", flag: "ios", want: platform.IOS},
		{name: "flag is case-insensitive", flag: "Android", want: platform.Android},
		{name: "environment", env: "android", want: platform.Android},
		{name: "web rejected", flag: "web", wantErr: "must be 'ios' or 'android'"},
		{name: "unknown rejected", flag: "windows", wantErr: "platform must be"},
		{name: "missing in non-interactive mode", wantErr: "platform is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VXRN_PLATFORM", tt.env)
			got, err := ResolvePlatformInteractive(tt.flag, out)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
