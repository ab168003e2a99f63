// Package platform describes the runtime environments a single source tree
// can target and the module-resolution rules that differ between them.
package platform

import (
	"fmt"
	"strings"
)

// Environment is a target runtime: ios, android or web.
type Environment string

const (
	// IOS targets the iOS native runtime.
	IOS Environment = "ios"
	// Android targets the Android native runtime.
	Android Environment = "android"
	// Web targets browsers.
	Web Environment = "web"
)

// Native lists the native environments in a stable order.
var Native = []Environment{IOS, Android}

// Parse validates a user-supplied environment name.
func Parse(s string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(s)))
	switch env {
	case IOS, Android, Web:
		return env, nil
	default:
		return "", fmt.Errorf("platform must be 'ios', 'android' or 'web', got %q", s)
	}
}

// IsNative reports whether the environment is a native (non-web) runtime.
func (e Environment) IsNative() bool {
	return e == IOS || e == Android
}

func (e Environment) String() string {
	return string(e)
}

var baseExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".cjs", ".json"}

// Extensions returns the file suffixes tried when resolving an extensionless
// specifier, most specific first: platform suffixes, then .native for native
// targets, then the generic list.
func (e Environment) Extensions() []string {
	var exts []string
	for _, ext := range baseExtensions {
		exts = append(exts, "."+string(e)+ext)
	}
	if e.IsNative() {
		for _, ext := range baseExtensions {
			exts = append(exts, ".native"+ext)
		}
	}
	return append(exts, baseExtensions...)
}

// Conditions returns the package.json "exports" conditions honored for the
// environment, in priority order.
func (e Environment) Conditions() []string {
	if e.IsNative() {
		return []string{"react-native", "import", "require", "default"}
	}
	return []string{"browser", "import", "require", "default"}
}

// MainFields returns the package.json entry fields consulted when a package
// has no usable "exports" map.
func (e Environment) MainFields() []string {
	if e.IsNative() {
		return []string{"react-native", "module", "main"}
	}
	return []string{"browser", "module", "main"}
}

// Defines returns the compile-time constants injected into every module.
func Defines(dev bool) map[string]string {
	if dev {
		return map[string]string{"process.env.NODE_ENV": `"development"`, "__DEV__": "true"}
	}
	return map[string]string{"process.env.NODE_ENV": `"production"`, "__DEV__": "false"}
}
