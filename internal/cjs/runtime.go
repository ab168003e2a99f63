// Package cjs generates the CommonJS module runtime used by native bundles
// and hot updates.
package cjs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vxrn/vxrn/internal/jsscan"
)

// Preamble defines the module table, the instance cache and createRequire.
// Every native bundle starts with it; hot updates rely on it being present.
const Preamble = `var ___modules___ = globalThis.___modules___ || (globalThis.___modules___ = {});
var ___vxrnModuleCache___ = globalThis.___vxrnModuleCache___ || (globalThis.___vxrnModuleCache___ = {});
function __vxrnExportStar(target, source) {
  if (source == null || (typeof source !== "object" && typeof source !== "function")) return target;
  Object.keys(source).forEach(function (key) {
    if (key === "default" || key === "__esModule" || Object.prototype.hasOwnProperty.call(target, key)) return;
    Object.defineProperty(target, key, { enumerable: true, get: function () { return source[key]; } });
  });
  return target;
}
function createRequire(importer, importMap) {
  return function require(specifier) {
    var id = (importMap && importMap[specifier]) || specifier;
    var cached = ___vxrnModuleCache___[id];
    if (cached) return cached.exports;
    var factory = ___modules___[id];
    if (!factory) {
      throw new Error('Module "' + id + '" not found, required by "' + importer + '"');
    }
    var module = { exports: {} };
    ___vxrnModuleCache___[id] = module;
    factory(module.exports, module);
    return module.exports;
  };
}
globalThis.createRequire = createRequire;
globalThis.__vxrnExportStar = __vxrnExportStar;
`

// WrapModule registers one compiled module under id.
func WrapModule(id string, importMap map[string]string, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "___modules___[%s] = (exports, module) => {\n", quote(id))
	fmt.Fprintf(&b, "const require = createRequire(%s, %s);\n", quote(id), encodeMap(importMap))
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("};\n")
	return b.String()
}

// WrapHotUpdate produces the payload served for a hot update. Evaluating it
// assigns the module's fresh exports to the global `exports` binding.
func WrapHotUpdate(id string, importMap map[string]string, code string) string {
	var b strings.Builder
	b.WriteString("exports = ((exports) => {\n")
	b.WriteString("const module = { exports };\n")
	fmt.Fprintf(&b, "const require = createRequire(%s, %s);\n", quote(id), encodeMap(importMap))
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("return module.exports;\n})({})\n")
	return b.String()
}

// Bootstrap requires the core runtime library, when there is one, and then
// the entry module.
func Bootstrap(entryID, coreID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "const __vxrnBootRequire = createRequire(%s, {});\n", quote(entryID))
	if coreID != "" {
		fmt.Fprintf(&b, "__vxrnBootRequire(%s);\n", quote(coreID))
	}
	fmt.Fprintf(&b, "__vxrnBootRequire(%s);\n", quote(entryID))
	return b.String()
}

// ForceExport emits statements that pin star re-exports onto module.exports
// and keep aliased or re-exported names referenced.
func ForceExport(res *jsscan.Result) string {
	var b strings.Builder
	var pinned []string
	for _, exp := range res.Exports {
		switch {
		case exp.Star && exp.Namespace == "":
			fmt.Fprintf(&b, "__vxrnExportStar(module.exports, require(%s));\n", quote(exp.From))
		case exp.Star:
			pinned = append(pinned, fmt.Sprintf("require(%s)", quote(exp.From)))
		case exp.From != "":
			for _, n := range exp.Names {
				pinned = append(pinned, fmt.Sprintf("require(%s)[%s]", quote(exp.From), quote(n.Local)))
			}
		default:
			for _, n := range exp.Names {
				if n.Local == n.Exported || !isIdentifier(n.Local) {
					continue
				}
				pinned = append(pinned, fmt.Sprintf("typeof %s === \"undefined\" ? void 0 : %s", n.Local, n.Local))
			}
		}
	}
	if len(pinned) > 0 {
		fmt.Fprintf(&b, "globalThis.__vxrnForceExport__ = [%s];\n", strings.Join(pinned, ", "))
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n" + b.String()
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func isIdentifier(s string) bool {
	if s == "" || s == "default" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c > 0x7f:
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
