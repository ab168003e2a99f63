package bundler

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vxrn/vxrn/internal/jstest"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
)

// setupApp writes a small project whose core library is a local fake
// package, so builds need no real react-native install.
func setupApp(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"package.json":                       `{"name":"app","dependencies":{"react-native":"0.74.0"}}`,
		"node_modules/core-lib/package.json": `{"name":"core-lib","version":"1.0.0","main":"index.js"}`,
		"node_modules/core-lib/index.js":     `globalThis.__order = ["core"]; exports.Platform = { OS: "native" };`,
		"index.ts": `import { greet } from "./src/greet";
import { Platform } from "core-lib";
import data from "./src/data.json";
export * from "./src/extra";
globalThis.__order.push("entry");
globalThis.result = greet(Platform.OS) + ":" + data.n;
`,
		"src/greet.ts":     `export const greet = (who: string): string => "hello " + who;`,
		"src/greet.ios.ts": `export const greet = (who: string): string => "hello ios " + who;`,
		"src/data.json":    `{"n": 7}`,
		"src/extra.js":     `export const extra = 1;`,
	})
	return root
}

func newTestBuilder(root string, gate <-chan struct{}) *Builder {
	return New(Options{
		Root:           root,
		Entry:          "index.ts",
		Dev:            true,
		CoreLibrary:    "core-lib",
		Prebuilt:       []string{"core-lib"},
		PatchesApplied: gate,
	})
}

func TestBuildProducesRunnableBundle(t *testing.T) {
	root := setupApp(t)
	b := newTestBuilder(root, nil)

	tests := []struct {
		env     platform.Environment
		greet   string
		outcome string
	}{
		{env: platform.IOS, greet: "src/greet.ios.ts", outcome: "hello ios native:7"},
		{env: platform.Android, greet: "src/greet.ts", outcome: "hello native:7"},
	}

	for _, tt := range tests {
		t.Run(string(tt.env), func(t *testing.T) {
			bundle, err := b.Build(context.Background(), tt.env)
			require.NoError(t, err)

			assert.Equal(t, []string{"core-lib", "src/data.json", "src/extra.js", tt.greet, "index.ts"}, bundle.Modules)
			assert.Contains(t, bundle.Code, `___modules___["index.ts"] = (exports, module) => {`)
			assert.Contains(t, bundle.Code, `createRequire("index.ts", {"./src/data.json":"src/data.json"`)

			assert.Equal(t, tt.outcome, jstest.Eval(t, bundle.Code, "globalThis.result"))
			assert.Equal(t, "core,entry", jstest.Eval(t, bundle.Code, `globalThis.__order.join(",")`))
		})
	}

	assert.FileExists(t, filepath.Join(root, "node_modules", ".vxrn", "prebuilt", "core-lib.ios.dev.js"))
}

func TestBuildIsDeterministic(t *testing.T) {
	root := setupApp(t)
	b := newTestBuilder(root, nil)

	first, err := b.Build(context.Background(), platform.IOS)
	require.NoError(t, err)
	b.Invalidate()
	second, err := b.Build(context.Background(), platform.IOS)
	require.NoError(t, err)

	assert.EqualValues(t, 2, b.Builds())
	assert.Equal(t, first.Modules, second.Modules)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, "index.ts", second.Modules[len(second.Modules)-1])
}

func TestBuildDeduplicatesConcurrentRequests(t *testing.T) {
	root := setupApp(t)
	b := newTestBuilder(root, nil)

	const callers = 4
	bundles := make([]*Bundle, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle, err := b.Build(context.Background(), platform.Android)
			assert.NoError(t, err)
			bundles[i] = bundle
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, b.Builds())
	for _, bundle := range bundles[1:] {
		assert.Same(t, bundles[0], bundle)
	}

	cached, ok := b.Cached(platform.Android)
	require.True(t, ok)
	assert.Same(t, bundles[0], cached)
}

func TestBuildWaitsForPatches(t *testing.T) {
	root := setupApp(t)
	gate := make(chan struct{})
	b := newTestBuilder(root, gate)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Build(ctx, platform.IOS)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, b.Builds())

	close(gate)
	bundle, err := b.Build(context.Background(), platform.IOS)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Code)
	assert.EqualValues(t, 1, b.Builds())
}

func TestBuildFailureIsRetried(t *testing.T) {
	root := setupApp(t)
	writeFile(t, filepath.Join(root, "index.ts"), `import { value } from "./src/later"; globalThis.result = value;`)
	b := newTestBuilder(root, nil)

	_, err := b.Build(context.Background(), platform.IOS)
	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, platform.IOS, buildErr.Environment)
	var resErr *resolve.Error
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "./src/later", resErr.Specifier)

	_, cached := b.Cached(platform.IOS)
	assert.False(t, cached)

	writeFile(t, filepath.Join(root, "src", "later.ts"), `export const value = "ok";`)
	bundle, err := b.Build(context.Background(), platform.IOS)
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.Builds())
	assert.Equal(t, "ok", jstest.Eval(t, bundle.Code, "globalThis.result"))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestBuildStylesheetIsEmptyModule(t *testing.T) {
	root := setupApp(t)
	writeFile(t, filepath.Join(root, "src", "theme.css"), ".title { color: red; }")
	writeFile(t, filepath.Join(root, "index.ts"), `import "./src/theme.css"; globalThis.result = "styled";`)
	logs := &lockedBuffer{}
	b := New(Options{
		Root:        root,
		Entry:       "index.ts",
		CoreLibrary: "core-lib",
		Prebuilt:    []string{"core-lib"},
		Logger:      log.NewWithOptions(logs, log.Options{Level: log.DebugLevel}),
	})

	bundle, err := b.Build(context.Background(), platform.Android)
	require.NoError(t, err)
	assert.Contains(t, bundle.Modules, "src/theme.css")
	assert.Equal(t, "styled", jstest.Eval(t, bundle.Code, "globalThis.result"))
	assert.Contains(t, logs.String(), "css module compiled to an empty object")
	assert.Contains(t, logs.String(), "theme.css")
}

func TestPrebuilderPath(t *testing.T) {
	p := &Prebuilder{Root: "/proj"}
	assert.Equal(t,
		filepath.Join("/proj", "node_modules", ".vxrn", "prebuilt", "react__jsx-runtime.android.prod.js"),
		p.Path("react/jsx-runtime", platform.Android, false))
}

func TestDefaultBundleName(t *testing.T) {
	assert.Equal(t, "main.jsbundle", DefaultBundleName(platform.IOS))
	assert.Equal(t, "index.android.bundle", DefaultBundleName(platform.Android))
	assert.Equal(t, "index.bundle", DefaultBundleName(platform.Web))
}
