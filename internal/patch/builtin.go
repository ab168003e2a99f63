package patch

import (
	"regexp"
	"strings"
)

var exportTypeStar = regexp.MustCompile(`(?m)^export type \* from ['"][^'"]+['"];?\s*$`)

// BuiltinRules returns the rules shipped for packages known to break the
// native bundler.
func BuiltinRules() []Rule {
	return []Rule{
		{
			// Flow-typed CommonJS that esbuild cannot parse as-is.
			Module: "@react-native/assets-registry",
			Files: []File{
				{Glob: "*.js", Strategy: Transforms{StripFlow}},
			},
		},
		{
			Module:  "@react-native/virtualized-lists",
			Version: ">=0.72.0",
			Files: []File{
				{Glob: "Lists/**/*.js", Strategy: Transforms{StripFlow}},
				{Glob: "Utilities/**/*.js", Strategy: Transforms{StripFlow}},
				{Glob: "index.js", Strategy: Transforms{StripFlow}},
			},
		},
		{
			// JSX inside .js files.
			Module: "react-native-vector-icons",
			Files: []File{
				{Glob: "lib/**/*.js", Strategy: Transforms{StripJSX}},
			},
		},
		{
			Module: "expo-modules-core",
			Files: []File{
				{Glob: "build/**/*.js", Strategy: Func(stripExportTypeStar)},
			},
		},
		{
			// Global polyfill that the prebuilt runtime already installs.
			Module: "react-native-url-polyfill",
			Files: []File{
				{Glob: "auto.js", Strategy: Literal{Old: "setupURLPolyfill();", New: "/* setupURLPolyfill(); */"}},
			},
		},
	}
}

// stripExportTypeStar drops `export type * from` lines that older
// TypeScript output leaves in .js files.
func stripExportTypeStar(_ string, content string) (Result, error) {
	if !strings.Contains(content, "export type *") {
		return Unchanged(), nil
	}
	out := exportTypeStar.ReplaceAllString(content, "")
	if out == content {
		return Unchanged(), nil
	}
	return Changed(out), nil
}
