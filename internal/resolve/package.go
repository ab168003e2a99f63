package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// packageJSON holds the package.json fields that influence resolution.
type packageJSON struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Main        string          `json:"main"`
	Module      string          `json:"module"`
	ReactNative json.RawMessage `json:"react-native"`
	Browser     json.RawMessage `json:"browser"`
	Exports     json.RawMessage `json:"exports"`
}

// mainField returns the string value of an entry field. Object-valued
// "browser"/"react-native" alias maps are ignored.
func (p *packageJSON) mainField(field string) string {
	switch field {
	case "main":
		return p.Main
	case "module":
		return p.Module
	case "react-native":
		return rawString(p.ReactNative)
	case "browser":
		return rawString(p.Browser)
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (r *Resolver) readPackage(dir string) *packageJSON {
	r.mu.RLock()
	pkg, ok := r.packages[dir]
	r.mu.RUnlock()
	if ok {
		return pkg
	}

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err == nil {
		var parsed packageJSON
		if json.Unmarshal(data, &parsed) == nil {
			pkg = &parsed
		}
	}

	r.mu.Lock()
	r.packages[dir] = pkg
	r.mu.Unlock()
	return pkg
}

// ReadPackageVersion returns the "version" field of dir/package.json.
func ReadPackageVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", err
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", err
	}
	return pkg.Version, nil
}

// matchExports resolves subpath ("." or "./x") against a package "exports"
// value using the given conditions in priority order.
func matchExports(exports any, subpath string, conditions []string) (string, bool) {
	var subpaths map[string]any
	switch v := exports.(type) {
	case string, []any:
		subpaths = map[string]any{".": v}
	case map[string]any:
		isSubpathMap := false
		for k := range v {
			if strings.HasPrefix(k, ".") {
				isSubpathMap = true
				break
			}
		}
		if isSubpathMap {
			subpaths = v
		} else {
			subpaths = map[string]any{".": v}
		}
	default:
		return "", false
	}

	if target, ok := subpaths[subpath]; ok {
		return resolveTarget(target, conditions, "")
	}

	// Wildcard patterns: longest matching prefix wins.
	keys := make([]string, 0, len(subpaths))
	for k := range subpaths {
		if strings.Count(k, "*") == 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		star := strings.Index(k, "*")
		prefix, suffix := k[:star], k[star+1:]
		if len(subpath) >= len(prefix)+len(suffix) && strings.HasPrefix(subpath, prefix) && strings.HasSuffix(subpath, suffix) {
			match := subpath[len(prefix) : len(subpath)-len(suffix)]
			return resolveTarget(subpaths[k], conditions, match)
		}
	}
	return "", false
}

func resolveTarget(target any, conditions []string, wildcard string) (string, bool) {
	switch v := target.(type) {
	case string:
		if wildcard != "" {
			v = strings.ReplaceAll(v, "*", wildcard)
		}
		return v, true
	case []any:
		for _, item := range v {
			if s, ok := resolveTarget(item, conditions, wildcard); ok {
				return s, true
			}
		}
	case map[string]any:
		for _, cond := range conditions {
			if next, ok := v[cond]; ok {
				if s, ok := resolveTarget(next, conditions, wildcard); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}
