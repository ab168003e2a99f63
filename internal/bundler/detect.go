// Package bundler builds native bundles: one CommonJS module per source
// file, wrapped into a single script with a small require runtime.
package bundler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/vxrn/vxrn/internal/platform"
)

// ProjectType represents the detected project type.
type ProjectType int

const (
	// ProjectTypeUnknown indicates the project type could not be detected.
	ProjectTypeUnknown ProjectType = iota
	// ProjectTypeReactNative indicates a bare React Native project.
	ProjectTypeReactNative
	// ProjectTypeExpo indicates an Expo-managed project.
	ProjectTypeExpo
)

func (p ProjectType) String() string {
	switch p {
	case ProjectTypeReactNative:
		return "react-native"
	case ProjectTypeExpo:
		return "expo"
	default:
		return "unknown"
	}
}

// HermesMode represents the Hermes override setting.
type HermesMode string

const (
	// HermesModeAuto detects Hermes configuration from the project.
	HermesModeAuto HermesMode = "auto"
	// HermesModeOn forces Hermes compilation.
	HermesModeOn HermesMode = "on"
	// HermesModeOff disables Hermes compilation.
	HermesModeOff HermesMode = "off"
)

// ProjectConfig holds the auto-detected project configuration.
type ProjectConfig struct {
	ProjectDir  string
	ProjectType ProjectType
	Environment platform.Environment
	// EntryFile is relative to ProjectDir.
	EntryFile          string
	ReactNativeVersion string
	HermesEnabled      bool
	HermescPath        string
}

type packageJSON struct {
	Main            string            `json:"main"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *packageJSON) dependency(name string) string {
	if v := p.Dependencies[name]; v != "" {
		return v
	}
	return p.DevDependencies[name]
}

func readProjectPackage(projectDir string) (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("no package.json found in %s: is this a React Native or Expo project?", projectDir)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	return &pkg, nil
}

// DetectProject inspects the project directory for the given native
// environment.
func DetectProject(projectDir string, env platform.Environment, hermesMode HermesMode) (*ProjectConfig, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}
	if _, err := os.Stat(absDir); err != nil {
		return nil, fmt.Errorf("project directory does not exist: %w", err)
	}

	pkg, err := readProjectPackage(absDir)
	if err != nil {
		return nil, err
	}
	projectType, err := detectProjectType(pkg)
	if err != nil {
		return nil, err
	}
	entryFile, err := detectEntryFile(absDir, env, pkg)
	if err != nil {
		return nil, err
	}

	cfg := &ProjectConfig{
		ProjectDir:         absDir,
		ProjectType:        projectType,
		Environment:        env,
		EntryFile:          entryFile,
		ReactNativeVersion: pkg.dependency("react-native"),
	}

	switch hermesMode {
	case HermesModeOn:
		cfg.HermesEnabled = true
	case HermesModeOff:
	default:
		cfg.HermesEnabled = detectHermes(absDir, env, cfg.ReactNativeVersion)
	}
	if cfg.HermesEnabled {
		cfg.HermescPath, _ = findHermesc(absDir)
	}
	return cfg, nil
}

func detectProjectType(pkg *packageJSON) (ProjectType, error) {
	// Expo projects also depend on react-native, so check expo first.
	if pkg.dependency("expo") != "" {
		return ProjectTypeExpo, nil
	}
	if pkg.dependency("react-native") != "" {
		return ProjectTypeReactNative, nil
	}
	return ProjectTypeUnknown, fmt.Errorf("could not detect project type: package.json does not list react-native or expo as a dependency")
}

// detectEntryFile searches index.<env>.{tsx,ts,js}, then index.{tsx,ts,js},
// then package.json "main".
func detectEntryFile(projectDir string, env platform.Environment, pkg *packageJSON) (string, error) {
	var candidates []string
	for _, stem := range []string{"index." + string(env), "index"} {
		for _, ext := range []string{".tsx", ".ts", ".js"} {
			candidates = append(candidates, stem+ext)
		}
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(filepath.Join(projectDir, candidate)); err == nil {
			return candidate, nil
		}
	}

	if pkg.Main != "" {
		if _, err := os.Stat(filepath.Join(projectDir, pkg.Main)); err == nil {
			return pkg.Main, nil
		}
	}

	return "", fmt.Errorf("entry file not found: tried %s and package.json main in %s", strings.Join(candidates, ", "), projectDir)
}

type hermesDetection int

const (
	hermesNotFound hermesDetection = iota
	hermesEnabled
	hermesDisabled
)

// hermesDefault is the react-native range where Hermes is the default
// engine.
var hermesDefault = mustConstraint(">=0.70.0-0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// detectHermes reads the native project files and falls back to the
// react-native version default.
func detectHermes(projectDir string, env platform.Environment, rnVersion string) bool {
	var detection hermesDetection
	switch env {
	case platform.Android:
		detection = detectHermesAndroid(projectDir)
	case platform.IOS:
		detection = detectHermesIOS(projectDir)
	default:
		return false
	}

	switch detection {
	case hermesEnabled:
		return true
	case hermesDisabled:
		return false
	default:
		return isHermesDefaultVersion(rnVersion)
	}
}

// isHermesDefaultVersion checks the lowest version a dependency range
// allows, e.g. "^0.72.4" -> 0.72.4.
func isHermesDefaultVersion(rnRange string) bool {
	v, err := semver.NewVersion(strings.TrimLeft(rnRange, "^~>=<! "))
	if err != nil {
		return false
	}
	return hermesDefault.Check(v)
}

func containsAny(content string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(content, p) {
			return true
		}
	}
	return false
}

func detectHermesAndroid(projectDir string) hermesDetection {
	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		data, err := os.ReadFile(filepath.Join(projectDir, "android", "app", name))
		if err != nil {
			continue
		}
		content := string(data)
		if containsAny(content, "hermesEnabled = true", "hermesEnabled.set(true)", "enableHermes: true", "enableHermes = true") {
			return hermesEnabled
		}
		if containsAny(content, "hermesEnabled = false", "hermesEnabled.set(false)", "enableHermes: false", "enableHermes = false") {
			return hermesDisabled
		}
	}

	// android/gradle.properties is where RN >= 0.71 keeps the flag.
	if data, err := os.ReadFile(filepath.Join(projectDir, "android", "gradle.properties")); err == nil {
		content := string(data)
		if strings.Contains(content, "hermesEnabled=true") {
			return hermesEnabled
		}
		if strings.Contains(content, "hermesEnabled=false") {
			return hermesDisabled
		}
	}
	return hermesNotFound
}

func detectHermesIOS(projectDir string) hermesDetection {
	data, err := os.ReadFile(filepath.Join(projectDir, "ios", "Podfile"))
	if err != nil {
		return hermesNotFound
	}
	content := string(data)
	if containsAny(content, ":hermes_enabled => true", "hermes_enabled: true") {
		return hermesEnabled
	}
	if containsAny(content, ":hermes_enabled => false", "hermes_enabled: false") {
		return hermesDisabled
	}
	return hermesNotFound
}

// findHermesc locates the hermesc binary in node_modules.
func findHermesc(projectDir string) (string, error) {
	var osTriplet string
	switch runtime.GOOS {
	case "darwin":
		osTriplet = "osx-bin"
	case "linux":
		osTriplet = "linux64-bin"
	case "windows":
		osTriplet = "win64-bin"
	default:
		osTriplet = runtime.GOOS + "-bin"
	}

	candidates := []string{
		filepath.Join(projectDir, "node_modules", "react-native", "sdks", "hermesc", osTriplet, "hermesc"),
		filepath.Join(projectDir, "node_modules", "hermes-compiler", "hermesc", osTriplet, "hermesc"),
		filepath.Join(projectDir, "node_modules", "hermes-engine", osTriplet, "hermesc"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("hermesc binary not found in node_modules")
}
