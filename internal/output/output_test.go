package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{
			name:  "step",
			write: func(w *Writer) { w.Step("Patching %d modules", 3) },
			want:  "-> Patching 3 modules\n",
		},
		{
			name:  "success",
			write: func(w *Writer) { w.Success("Bundle written") },
			want:  "OK Bundle written\n",
		},
		{
			name:  "error",
			write: func(w *Writer) { w.Error("build failed: %v", "syntax error") },
			want:  "ERROR build failed: syntax error\n",
		},
		{
			name:  "warning",
			write: func(w *Writer) { w.Warning("skipping %s", "react-native-svg") },
			want:  "WARNING skipping react-native-svg\n",
		},
		{
			name:  "info is indented",
			write: func(w *Writer) { w.Info("node_modules/a/index.js") },
			want:  "   node_modules/a/index.js\n",
		},
		{
			name:  "println",
			write: func(w *Writer) { w.Println("vxrn %s", "0.1.0") },
			want:  "vxrn 0.1.0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.write(NewTest(&buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestResult(t *testing.T) {
	var buf bytes.Buffer
	NewTest(&buf).Result([]KeyValue{
		{Key: "Platform", Value: "ios"},
		{Key: "Modules", Value: "42"},
	})

	assert.Equal(t, "\n  Platform  ios\n  Modules   42\n", buf.String())
}

func TestResultEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTest(&buf).Result(nil)
	assert.Zero(t, buf.Len())
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	NewTest(&buf).Table(
		[]string{"MODULE", "FILES", "STATUS"},
		[][]string{{"react-native", "12", "patched"}, {"expo-modules-core", "1", "ok"}},
	)

	got := buf.String()
	assert.Contains(t, got, "MODULE")
	assert.Contains(t, got, "react-native")
	assert.Contains(t, got, "patched")
}

func TestSpinnerNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	w := NewTest(&buf)

	called := false
	require.NoError(t, w.Spinner("Bundling ios", func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.True(t, strings.HasPrefix(buf.String(), "-> Bundling ios...\n   Bundling ios took "), buf.String())

	buf.Reset()
	boom := errors.New("esbuild failed")
	assert.ErrorIs(t, w.Spinner("Bundling android", func() error { return boom }), boom)
	assert.Equal(t, "-> Bundling android...\n", buf.String())
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 1234567 * time.Nanosecond, want: time.Millisecond},
		{in: 999400 * time.Microsecond, want: 999 * time.Millisecond},
		{in: 2345 * time.Millisecond, want: 2300 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, elapsed(tt.in), tt.in.String())
	}
}

func TestConfirmDestructive(t *testing.T) {
	w := NewTest(&bytes.Buffer{})

	require.NoError(t, w.ConfirmDestructive("restore 3 patched files", true))

	err := w.ConfirmDestructive("restore 3 patched files", false, "a.js", "b.js", "c.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore 3 patched files")
	assert.Contains(t, err.Error(), "--yes")
}

func TestNewWriterNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.False(t, w.IsInteractive())
	assert.Same(t, &buf, w.Out())

	w.Step("plain")
	assert.True(t, strings.HasPrefix(buf.String(), "-> plain"))
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "hmr")
	logger.Info("client connected", "platform", "ios")

	got := buf.String()
	assert.Contains(t, got, "hmr")
	assert.Contains(t, got, "client connected")
	assert.Contains(t, got, "platform=ios")
}

func TestDeviceLevel(t *testing.T) {
	tests := map[string]log.Level{
		"trace": log.DebugLevel,
		"debug": log.DebugLevel,
		"log":   log.InfoLevel,
		"info":  log.InfoLevel,
		"warn":  log.WarnLevel,
		"error": log.ErrorLevel,
		"":      log.InfoLevel,
	}
	for level, want := range tests {
		assert.Equal(t, want, DeviceLevel(level), level)
	}
}
