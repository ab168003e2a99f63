package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vxrn/vxrn/internal/jstest"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoaderFor(t *testing.T) {
	assert.Equal(t, LoaderFor("a.tsx"), LoaderFor("b.TSX"))
	assert.NotEqual(t, LoaderFor("a.ts"), LoaderFor("a.tsx"))
	assert.Equal(t, LoaderFor("a.js"), LoaderFor("a.jsx"))
}

func TestStripKeepsModuleSyntax(t *testing.T) {
	code := `import { View } from "react-native";
const size: number = 1;
export const App = () => <View style={{ width: size }} />;
if (__DEV__) { console.log("dev"); }
`
	out, err := Strip(code, "/p/src/App.tsx", true)
	require.NoError(t, err)

	assert.Contains(t, out, `from "react-native"`)
	assert.Contains(t, out, "react/jsx-runtime")
	assert.Contains(t, out, "export const App")
	assert.NotContains(t, out, ": number")
	assert.NotContains(t, out, "__DEV__")
}

func TestStripReportsSyntaxErrors(t *testing.T) {
	_, err := Strip("const = ;", "/p/src/bad.ts", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.ts")
}

func TestToCommonJS(t *testing.T) {
	out, err := ToCommonJS(`import a from "src/a.js"; export const b = a + 1;`, "/p/src/b.js")
	require.NoError(t, err)

	assert.Contains(t, out, `require("src/a.js")`)
	assert.Contains(t, out, "module.exports")
	assert.NotContains(t, out, "import a")
}

func TestStripFlow(t *testing.T) {
	code := `/* @flow */
import type { Foo } from './foo';
type Props = {| a: number |};
function f(x: number): string { return String(x); }
export default f;
`
	out, err := StripFlow(code, "/p/node_modules/rn/f.js")
	require.NoError(t, err)

	assert.NotContains(t, out, "import type")
	assert.NotContains(t, out, "{|")
	assert.NotContains(t, out, ": number")
	assert.Contains(t, out, "function f(x)")
}

func TestStripFlowTypeSyntax(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "maybe types",
			code: `function f(x: ?string): ?number { return x == null ? 0 : x.length; }
f("abc");`,
			want: "3",
		},
		{
			name: "read-only exact object with variance",
			code: `type Props = $ReadOnly<{|+onPress?: ?() => void, -label: $Exact<{text: ?string}>|}>;
const p: Props = { label: { text: "tap" } };
p.label.text;`,
			want: "tap",
		},
		{
			name: "type cast",
			code: `const y = { v: 1 };
const x = (y: any);
const z = ({ v: 2 }: Object);
x.v + z.v;`,
			want: "3",
		},
		{
			name: "spreads indexers and bounds",
			code: `type Base = { a: number };
type A = {...Base, [string]: number, -c: string, ...};
function g<T: Object, +U>(v: T): T { return v; }
g(5);`,
			want: "5",
		},
		{
			name: "class variance",
			code: `class C {
  +name: string;
  static +count: number = 2;
}
C.count;`,
			want: "2",
		},
		{
			name: "generic arrow and existential",
			code: `const id = <T>(x: T): T => x;
const list: Array<*> = [id("ok")];
list[0];`,
			want: "ok",
		},
		{
			name: "predicate function",
			code: `function isString(x: mixed): boolean %checks { return typeof x === "string"; }
String(isString("a"));`,
			want: "true",
		},
		{
			name: "plain code is untouched",
			code: `const cond = true;
const o = cond ? {a: 1} : {b: 2};
const s = {...o, c: "{| ?x |}"};
/\{\|/.test(s.c) ? s.c : "none";`,
			want: "{| ?x |}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := StripFlow(tt.code, "/p/node_modules/rn/Libraries/f.js")
			require.NoError(t, err)
			assert.Equal(t, tt.want, jstest.Eval(t, out))
		})
	}
}

func TestStripFlowKeepsJSX(t *testing.T) {
	out, err := StripFlow(`const el = <Text style={(s: any)}>Don't {(n: number)}</Text>;`, "/p/a.js")
	require.NoError(t, err)
	assert.Contains(t, out, "Don't")
	assert.Contains(t, out, "<Text")
	assert.NotContains(t, out, ": any")
	assert.NotContains(t, out, ": number")
}

func TestStripJSX(t *testing.T) {
	out, err := StripJSX(`const a = <div className="x" />;`, "/p/a.js")
	require.NoError(t, err)
	assert.Contains(t, out, `React.createElement("div"`)
}

func TestChainWithoutDenylist(t *testing.T) {
	appendName := func(name string) Plugin {
		return PluginFunc{PluginName: name, Fn: func(_ context.Context, src Source) (string, error) {
			return src.Code + name + ";", nil
		}}
	}
	chain := Chain{appendName("a"), appendName("vxrn:import-graph"), appendName("b")}

	hot := chain.Without(HotUpdateDenylist)
	assert.Equal(t, []string{"a", "b"}, hot.Names())

	out, err := hot.Run(context.Background(), Source{Code: ""})
	require.NoError(t, err)
	assert.Equal(t, "a;b;", out)
}

func TestChainWrapsPluginErrors(t *testing.T) {
	boom := errors.New("boom")
	chain := Chain{PluginFunc{PluginName: "broken", Fn: func(context.Context, Source) (string, error) {
		return "", boom
	}}}

	_, err := chain.Run(context.Background(), Source{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "plugin broken")
}

type recorder struct {
	started  []string
	finished []string
	failed   []string
}

func (r *recorder) StageStarted(stage string, _ *Unit) { r.started = append(r.started, stage) }

func (r *recorder) StageFinished(stage string, _ *Unit, _ time.Duration, err error) {
	r.finished = append(r.finished, stage)
	if err != nil {
		r.failed = append(r.failed, stage)
	}
}

func hotStages(root string) []Stage {
	return []Stage{
		StripStage{},
		ResolveStage{
			Resolver:     resolve.New(),
			Root:         root,
			Bare:         func(spec string) bool { return spec == "react" },
			PreferNative: true,
		},
		RewriteStage{},
		CommonJSStage{StripHotAPIs: true},
	}
}

func TestPipelineHotStages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "node_modules/lib/package.json"), `{"name":"lib","exports":{".":{"default":"./dist/index.js"}}}`)
	writeFile(t, filepath.Join(root, "node_modules/lib/dist/index.js"), `module.exports = "web";`)
	writeFile(t, filepath.Join(root, "node_modules/lib/dist/index.native.js"), `module.exports = "native";`)
	writeFile(t, filepath.Join(root, "src/util.ts"), `export const two = 2;`)
	path := filepath.Join(root, "src/app.ts")
	code := `import React from "react";
import lib from "lib";
import { two } from "./util";
const pages = import.meta.glob("./pages/*.tsx");
export const value: number = two;
console.log(React, lib, pages);
import.meta.hot.accept(() => { console.log("reloaded") });
`
	writeFile(t, path, code)

	rec := &recorder{}
	p := &Pipeline{Stages: hotStages(root), Instrument: rec}
	u := &Unit{ID: ModuleID(root, path), Path: path, Environment: platform.IOS, Dev: true, Code: code}

	require.NoError(t, p.Run(context.Background(), u))

	assert.Equal(t, "src/app.ts", u.ID)
	assert.Equal(t, map[string]string{
		"react":  "react",
		"lib":    "node_modules/lib/dist/index.native.js",
		"./util": "src/util.ts",
	}, u.ImportMap)
	assert.Equal(t, filepath.Join(root, "src/util.ts"), u.Deps["src/util.ts"])
	assert.Contains(t, u.Code, `require("node_modules/lib/dist/index.native.js")`)
	assert.Contains(t, u.Code, `require("src/util.ts")`)
	assert.NotContains(t, u.Code, "import.meta.hot")
	assert.NotContains(t, u.Code, "import.meta.glob")
	assert.Equal(t, []string{"strip", "resolve", "rewrite", "commonjs"}, rec.finished)
	assert.Empty(t, rec.failed)
}

func TestPipelineStopsAtFailingStage(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "src/app.js")
	code := `import missing from "./missing";`
	writeFile(t, path, code)

	rec := &recorder{}
	p := &Pipeline{Stages: hotStages(root), Instrument: rec}
	err := p.Run(context.Background(), &Unit{ID: "src/app.js", Path: path, Environment: platform.Android, Code: code})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "resolve", stageErr.Stage)

	var resErr *resolve.Error
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "./missing", resErr.Specifier)

	assert.Equal(t, []string{"strip", "resolve"}, rec.started)
	assert.Equal(t, []string{"resolve"}, rec.failed)
}

func TestModuleID(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "proj")
	assert.Equal(t, "src/a.js", ModuleID(root, filepath.Join(root, "src", "a.js")))
	assert.True(t, strings.HasSuffix(ModuleID(root, filepath.Join(string(filepath.Separator), "other", "b.js")), "other/b.js"))
}
