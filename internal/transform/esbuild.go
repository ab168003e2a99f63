// Package transform wraps the single-file transpiler and defines the staged
// pipeline every compiled module passes through.
package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/vxrn/vxrn/internal/platform"
)

// LoaderFor picks the esbuild loader for a source path. Plain .js files get
// the JSX loader since React Native packages routinely ship JSX in them.
func LoaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".jsx", ".js", ".mjs", ".cjs":
		return api.LoaderJSX
	case ".json":
		return api.LoaderJSON
	case ".css":
		return api.LoaderCSS
	default:
		return api.LoaderJS
	}
}

// IsSource reports whether path is a script or JSON module the pipeline
// can compile.
func IsSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts", ".json":
		return true
	}
	return false
}

// Strip removes TypeScript and JSX syntax, keeping ES module syntax intact
// so imports can still be scanned and rewritten.
func Strip(code, path string, dev bool) (string, error) {
	opts := api.TransformOptions{
		Loader:     LoaderFor(path),
		Sourcefile: path,
		Target:     api.ES2020,
		JSX:        api.JSXAutomatic,
		Define:     platform.Defines(dev),
		LogLevel:   api.LogLevelSilent,
	}
	if opts.Loader == api.LoaderJSON {
		// JSON has no imports; emit it as a module so later stages treat it
		// like any other source.
		opts.Format = api.FormatESModule
	}
	result := api.Transform(code, opts)
	if err := messagesError(result.Errors); err != nil {
		return "", fmt.Errorf("stripping %s: %w", path, err)
	}
	return string(result.Code), nil
}

// ToCommonJS converts an ES module body into CommonJS. Input that is already
// CommonJS passes through unchanged apart from formatting.
func ToCommonJS(code, path string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: path,
		Format:     api.FormatCommonJS,
		Target:     api.ES2020,
		LogLevel:   api.LogLevelSilent,
	})
	if err := messagesError(result.Errors); err != nil {
		return "", fmt.Errorf("converting %s to commonjs: %w", path, err)
	}
	return string(result.Code), nil
}

var (
	flowPragma     = regexp.MustCompile(`(?m)^\s*(/\*\s*@flow[^*]*\*/|//\s*@flow.*)$`)
	flowImportType = regexp.MustCompile(`(?m)^\s*import\s+(type|typeof)\s+[^;]+;?\s*$`)
	flowExportType = regexp.MustCompile(`(?m)^\s*export\s+type\s+\{[^}]*\}\s*(from\s+['"][^'"]+['"])?;?\s*$`)
	flowOpaque     = regexp.MustCompile(`(?m)^\s*(export\s+)?opaque\s+type\s+[^;]+;\s*$`)
	flowDeclare    = regexp.MustCompile(`(?m)^\s*declare\s+(export\s+)?(var|let|const|function|class|type|module|opaque)\b[^\n]*$`)
)

// StripFlow removes Flow annotations. Type-only statements are dropped and
// Flow-only type syntax is rewritten into its TypeScript equivalent, then
// the TSX loader strips the remaining annotations. JSX is preserved for a
// later pass.
func StripFlow(code, path string) (string, error) {
	cleaned := flowPragma.ReplaceAllString(code, "")
	cleaned = flowImportType.ReplaceAllString(cleaned, "")
	cleaned = flowExportType.ReplaceAllString(cleaned, "")
	cleaned = flowOpaque.ReplaceAllString(cleaned, "")
	cleaned = flowDeclare.ReplaceAllString(cleaned, "")
	cleaned = normalizeFlow(cleaned)

	result := api.Transform(cleaned, api.TransformOptions{
		Loader:     api.LoaderTSX,
		Sourcefile: path,
		JSX:        api.JSXPreserve,
		Target:     api.ESNext,
		LogLevel:   api.LogLevelSilent,
	})
	if err := messagesError(result.Errors); err != nil {
		return "", fmt.Errorf("stripping flow from %s: %w", path, err)
	}
	return string(result.Code), nil
}

// StripJSX compiles JSX to React.createElement calls, leaving everything
// else untouched.
func StripJSX(code, path string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderJSX,
		Sourcefile: path,
		JSX:        api.JSXTransform,
		Target:     api.ESNext,
		LogLevel:   api.LogLevelSilent,
	})
	if err := messagesError(result.Errors); err != nil {
		return "", fmt.Errorf("stripping jsx from %s: %w", path, err)
	}
	return string(result.Code), nil
}

func messagesError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
