package hot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vxrn/vxrn/internal/cjs"
	"github.com/vxrn/vxrn/internal/jstest"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/transform"
)

type fakeClients map[platform.Environment]int

func (f fakeClients) Count(env platform.Environment) int { return f[env] }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupProject(t *testing.T) (root, greet string) {
	t.Helper()
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "src", "name.ts"), `export const name = "generic";`)
	writeFile(t, filepath.Join(root, "src", "name.ios.ts"), `export const name = "ios";`)
	greet = filepath.Join(root, "src", "greet.ts")
	writeFile(t, greet, `import { name } from "./name";
import React from "react";
const pages = import.meta.glob("./pages/*.tsx");
export const greet = (): string => "hi " + name + " " + typeof React + " " + Object.keys(pages).length;
import.meta.hot.accept(() => {});
`)
	return root, greet
}

func TestTransformRoundTrip(t *testing.T) {
	root, greet := setupProject(t)
	var built []*Entry
	p, err := New(Options{
		Root:    root,
		Bare:    func(spec string) bool { return spec == "react" },
		OnBuilt: func(e *Entry) { built = append(built, e) },
	})
	require.NoError(t, err)

	entry, err := p.Transform(context.Background(), platform.IOS, greet)
	require.NoError(t, err)

	assert.Equal(t, "src/greet.ts", entry.ID)
	assert.Equal(t, map[string]string{"./name": "src/name.ios.ts", "react": "react"}, entry.ImportMap)
	assert.NotEmpty(t, entry.Hash)
	assert.NotContains(t, entry.Code, "import.meta")
	assert.True(t, strings.HasPrefix(entry.Code, "exports = ((exports) => {"))

	require.Len(t, built, 1)
	assert.Same(t, entry, built[0])

	cached, ok := p.Get(platform.IOS, "src/greet.ts")
	require.True(t, ok)
	assert.Same(t, entry, cached)

	out := jstest.Eval(t,
		cjs.Preamble,
		cjs.WrapModule("src/name.ios.ts", nil, `exports.name = "ios";`),
		cjs.WrapModule("react", nil, `module.exports = {};`),
		entry.Code,
		"exports.greet()",
	)
	assert.Equal(t, "hi ios object 0", out)
}

func TestUpdateSkipsEnvironmentsWithoutClients(t *testing.T) {
	root, greet := setupProject(t)
	p, err := New(Options{
		Root:    root,
		Bare:    func(spec string) bool { return spec == "react" },
		Clients: fakeClients{platform.Android: 1},
	})
	require.NoError(t, err)

	require.NoError(t, p.Update(context.Background(), greet))

	assert.Equal(t, 0, p.Len(platform.IOS))
	assert.Equal(t, 1, p.Len(platform.Android))
	entry, ok := p.Get(platform.Android, "src/greet.ts")
	require.True(t, ok)
	assert.Equal(t, "src/name.ts", entry.ImportMap["./name"])
}

func TestUpdateIgnoresNonSources(t *testing.T) {
	root := t.TempDir()
	logo := filepath.Join(root, "logo.png")
	writeFile(t, logo, "png")

	p, err := New(Options{Root: root})
	require.NoError(t, err)
	require.NoError(t, p.Update(context.Background(), logo))
	assert.Equal(t, 0, p.Len(platform.IOS))
}

func TestFailedTransformKeepsStaleEntry(t *testing.T) {
	root, greet := setupProject(t)
	p, err := New(Options{Root: root, Bare: func(spec string) bool { return spec == "react" }})
	require.NoError(t, err)

	first, err := p.Transform(context.Background(), platform.IOS, greet)
	require.NoError(t, err)

	writeFile(t, greet, `export const greet = (: string => ;`)
	err = p.Update(context.Background(), greet)
	require.Error(t, err)

	var transformErr *TransformError
	require.True(t, errors.As(err, &transformErr))
	assert.Equal(t, greet, transformErr.Path)

	var stageErr *transform.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "strip", stageErr.Stage)

	cached, ok := p.Get(platform.IOS, "src/greet.ts")
	require.True(t, ok)
	assert.Equal(t, first.Hash, cached.Hash)
}

func TestUnresolvableImportIsTransformError(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.js")
	writeFile(t, path, `import x from "./gone"; export default x;`)

	p, err := New(Options{Root: root})
	require.NoError(t, err)

	_, err = p.Transform(context.Background(), platform.Android, path)
	var transformErr *TransformError
	require.ErrorAs(t, err, &transformErr)
	assert.Equal(t, platform.Android, transformErr.Environment)
	_, ok := p.Get(platform.Android, "app.js")
	assert.False(t, ok)
}

func TestDenylistedPluginsAreSkipped(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "value.js")
	writeFile(t, path, `export const value = "VALUE";`)

	chain := transform.Chain{
		transform.PluginFunc{PluginName: "vxrn:import-graph", Fn: func(context.Context, transform.Source) (string, error) {
			return "", errors.New("needs a full build")
		}},
		transform.PluginFunc{PluginName: "replace", Fn: func(_ context.Context, src transform.Source) (string, error) {
			return strings.ReplaceAll(src.Code, "VALUE", "replaced"), nil
		}},
	}
	p, err := New(Options{Root: root, Plugins: chain})
	require.NoError(t, err)

	entry, err := p.Transform(context.Background(), platform.IOS, path)
	require.NoError(t, err)
	assert.Equal(t, "replaced", jstest.Eval(t, cjs.Preamble, entry.Code, "exports.value"))
}

func TestCacheIsBounded(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.js")
	b := filepath.Join(root, "b.js")
	writeFile(t, a, `export const a = 1;`)
	writeFile(t, b, `export const b = 2;`)

	p, err := New(Options{Root: root, CacheSize: 1, Environments: []platform.Environment{platform.IOS}})
	require.NoError(t, err)
	assert.Equal(t, []platform.Environment{platform.IOS}, p.Environments())

	_, err = p.Transform(context.Background(), platform.IOS, a)
	require.NoError(t, err)
	_, err = p.Transform(context.Background(), platform.IOS, b)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Len(platform.IOS))
	_, ok := p.Get(platform.IOS, "a.js")
	assert.False(t, ok)
	_, ok = p.Get(platform.IOS, "b.js")
	assert.True(t, ok)

	_, err = p.Transform(context.Background(), platform.Android, a)
	require.Error(t, err)
}

func TestHandles(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/app.tsx", true},
		{"src/app.js", true},
		{"data.json", true},
		{"logo.png", false},
		{"style.css", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Handles(tt.path))
		})
	}
}
