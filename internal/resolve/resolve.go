// Package resolve maps module specifiers to files for a target environment.
//
// Resolution honors platform-specific extension precedence (.ios.tsx before
// .native.tsx before .tsx), package.json "exports" conditions and the
// "react-native" main field. Results are cached until Reset is called.
package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vxrn/vxrn/internal/assets"
	"github.com/vxrn/vxrn/internal/platform"
)

// Error reports a specifier that has no candidate file for an environment.
type Error struct {
	Specifier   string
	Importer    string
	Environment platform.Environment
	Reason      string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("cannot resolve %q from %s for %s", e.Specifier, e.Importer, e.Environment)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

type cacheKey struct {
	env  platform.Environment
	dir  string
	spec string
}

// Resolver resolves specifiers. The zero value is not usable; use New.
type Resolver struct {
	mu       sync.RWMutex
	cache    map[cacheKey]string
	packages map[string]*packageJSON
}

// New creates an empty Resolver.
func New() *Resolver {
	return &Resolver{
		cache:    make(map[cacheKey]string),
		packages: make(map[string]*packageJSON),
	}
}

// Reset drops every cached resolution and package.json.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]string)
	r.packages = make(map[string]*packageJSON)
}

// Resolve returns the absolute path of the file that specifier names when
// imported from importer (an absolute file path) in env.
func (r *Resolver) Resolve(specifier, importer string, env platform.Environment) (string, error) {
	spec := specifier
	if i := strings.IndexAny(spec, "?#"); i > 0 {
		spec = spec[:i]
	}
	dir := filepath.Dir(importer)
	key := cacheKey{env: env, dir: dir, spec: spec}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resolved, err := r.resolve(spec, dir, env)
	if err != nil {
		return "", &Error{Specifier: specifier, Importer: importer, Environment: env, Reason: err.Error()}
	}

	r.mu.Lock()
	r.cache[key] = resolved
	r.mu.Unlock()
	return resolved, nil
}

func (r *Resolver) resolve(spec, dir string, env platform.Environment) (string, error) {
	if isPathSpecifier(spec) {
		base := spec
		if !filepath.IsAbs(base) {
			base = filepath.Join(dir, filepath.FromSlash(spec))
		}
		if p, ok := r.resolvePath(base, env); ok {
			return p, nil
		}
		return "", fmt.Errorf("no file matches %s", base)
	}

	name, subpath := SplitPackage(spec)
	if name == "" {
		return "", fmt.Errorf("invalid package specifier")
	}
	current := dir
	for {
		if filepath.Base(current) != "node_modules" {
			pkgDir := filepath.Join(current, "node_modules", filepath.FromSlash(name))
			if isDir(pkgDir) {
				if p, ok := r.resolvePackage(pkgDir, subpath, env); ok {
					return p, nil
				}
				return "", fmt.Errorf("package %s has no entry for %q", name, "."+subpath)
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("package %s not found in any node_modules", name)
}

func (r *Resolver) resolvePackage(pkgDir, subpath string, env platform.Environment) (string, bool) {
	pkg := r.readPackage(pkgDir)
	if pkg != nil && len(pkg.Exports) > 0 {
		var exports any
		if err := json.Unmarshal(pkg.Exports, &exports); err == nil {
			if target, ok := matchExports(exports, "."+subpath, env.Conditions()); ok {
				p := filepath.Join(pkgDir, filepath.FromSlash(target))
				if isFile(p) {
					return p, true
				}
				if resolved, ok := r.resolvePath(p, env); ok {
					return resolved, true
				}
			}
		}
	}

	if subpath == "" {
		return r.resolveDir(pkgDir, env)
	}
	return r.resolvePath(filepath.Join(pkgDir, filepath.FromSlash(strings.TrimPrefix(subpath, "/"))), env)
}

// resolvePath tries base as a file (with extension probing) and then as a
// directory.
func (r *Resolver) resolvePath(base string, env platform.Environment) (string, bool) {
	if p, ok := resolveFile(base, env); ok {
		return p, true
	}
	return r.resolveDir(base, env)
}

func (r *Resolver) resolveDir(dir string, env platform.Environment) (string, bool) {
	if !isDir(dir) {
		return "", false
	}
	if pkg := r.readPackage(dir); pkg != nil {
		for _, field := range env.MainFields() {
			entry := pkg.mainField(field)
			if entry == "" {
				continue
			}
			target := filepath.Join(dir, filepath.FromSlash(entry))
			if p, ok := resolveFile(target, env); ok {
				return p, true
			}
			if target != dir {
				if p, ok := resolveFile(filepath.Join(target, "index"), env); ok {
					return p, true
				}
			}
		}
	}
	return resolveFile(filepath.Join(dir, "index"), env)
}

// resolveFile probes base with every environment extension. A base that
// already carries a known extension and exists wins over probing.
func resolveFile(base string, env platform.Environment) (string, bool) {
	ext := strings.ToLower(filepath.Ext(base))
	if knownExtension(ext) && isFile(base) {
		return base, true
	}
	for _, suffix := range env.Extensions() {
		if isFile(base + suffix) {
			return base + suffix, true
		}
	}
	if isFile(base) {
		return base, true
	}
	if assets.IsAsset(base) {
		if _, ok := assets.FindScaled(base); ok {
			return base, true
		}
	}
	return "", false
}

func knownExtension(ext string) bool {
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".json", ".css":
		return true
	}
	return assets.IsAssetExtension(ext)
}

// SplitPackage splits a bare specifier into package name and subpath
// ("@scope/pkg/a/b" -> "@scope/pkg", "/a/b").
func SplitPackage(spec string) (name, subpath string) {
	parts := strings.Split(spec, "/")
	n := 1
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return "", ""
		}
		n = 2
	}
	name = strings.Join(parts[:n], "/")
	if len(parts) > n {
		subpath = "/" + strings.Join(parts[n:], "/")
	}
	return name, subpath
}

func isPathSpecifier(spec string) bool {
	return spec == "." || spec == ".." ||
		strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		filepath.IsAbs(spec)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
