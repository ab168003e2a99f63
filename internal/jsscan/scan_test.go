package jsscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanImports(t *testing.T) {
	code := `import React, { useState } from "react";
import "./side";
export * from './a';
export { b as c } from "./b";
const x = require("x");
const y = import("./lazy");
foo.require("nope");
// import z from "comment"
/* require("block") */
const s = "import q from 'str'";
`
	res := Scan(code)

	assert.Equal(t, []string{"react", "./side", "./a", "./b", "x", "./lazy"}, res.Specifiers())

	kinds := map[string]ImportKind{}
	for _, imp := range res.Imports {
		kinds[imp.Specifier] = imp.Kind
		assert.Equal(t, imp.Specifier, code[imp.Start:imp.End])
	}
	assert.Equal(t, ImportStatement, kinds["react"])
	assert.Equal(t, ImportStatement, kinds["./side"])
	assert.Equal(t, ExportFrom, kinds["./a"])
	assert.Equal(t, RequireCall, kinds["x"])
	assert.Equal(t, DynamicImport, kinds["./lazy"])
}

func TestScanSkipsRegexAndDivision(t *testing.T) {
	code := `const r = /import x from "y"/g;
const d = a / b / c;
import z from "z";`

	res := Scan(code)
	assert.Equal(t, []string{"z"}, res.Specifiers())
}

func TestScanTemplateSubstitution(t *testing.T) {
	res := Scan("const t = `prefix ${require('t')} suffix`;\nconst u = `require('not')`;")
	assert.Equal(t, []string{"t"}, res.Specifiers())
}

func TestScanImportMetaIsNotAnImport(t *testing.T) {
	res := Scan(`if (import.meta.hot) { import.meta.hot.accept(() => {}) }
const o = { import: 1 };
const from = "x";`)
	assert.Empty(t, res.Imports)
}

func TestScanExports(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Export
	}{
		{
			name: "star re-export",
			code: `export * from "./all";`,
			want: Export{Star: true, From: "./all"},
		},
		{
			name: "namespace re-export",
			code: `export * as ns from "./ns";`,
			want: Export{Star: true, Namespace: "ns", From: "./ns"},
		},
		{
			name: "aliased re-export",
			code: `export { default as Button, Text } from './ui';`,
			want: Export{Names: []ExportName{{Local: "default", Exported: "Button"}, {Local: "Text", Exported: "Text"}}, From: "./ui"},
		},
		{
			name: "local list drops type-only names",
			code: "const a = 1;\nexport { a, a as b, type T };",
			want: Export{Names: []ExportName{{Local: "a", Exported: "a"}, {Local: "a", Exported: "b"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Scan(tt.code)
			require.Len(t, res.Exports, 1)
			assert.Equal(t, tt.want, res.Exports[0])
		})
	}
}

func TestRewrite(t *testing.T) {
	code := `import a from "./a"; const b = require('b'); import c from "c";`
	res := Scan(code)

	out := Rewrite(code, res.Imports, func(spec string) (string, bool) {
		switch spec {
		case "./a":
			return "src/a.js", true
		case "b":
			return "node_modules/b/index.js", true
		}
		return "", false
	})

	assert.Equal(t, `import a from "src/a.js"; const b = require('node_modules/b/index.js'); import c from "c";`, out)
}

func TestReplaceCalls(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		callee      string
		replacement string
		want        string
	}{
		{
			name:        "hot accept with nested parens and strings",
			code:        "import.meta.hot.accept(() => { console.log(\")\") })\nfoo()",
			callee:      "import.meta.hot.accept",
			replacement: "",
			want:        "\nfoo()",
		},
		{
			name:        "glob with options",
			code:        "const mods = import.meta.glob('./pages/*.tsx', { eager: true });",
			callee:      "import.meta.glob",
			replacement: "({})",
			want:        "const mods = ({});",
		},
		{
			name:        "no call",
			code:        "const accept = import.meta.hot;",
			callee:      "import.meta.hot.accept",
			replacement: "",
			want:        "const accept = import.meta.hot;",
		},
		{
			name:        "unbalanced left alone",
			code:        "import.meta.glob('x'",
			callee:      "import.meta.glob",
			replacement: "({})",
			want:        "import.meta.glob('x'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceCalls(tt.code, tt.callee, tt.replacement))
		})
	}
}
