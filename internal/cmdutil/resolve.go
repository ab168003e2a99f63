package cmdutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/platform"
)

// ResolveFlag returns flagValue if non-empty, otherwise falls back to the environment variable.
func ResolveFlag(flagValue, envKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envKey)
}

// ResolveProjectDir returns the absolute project root: the --project-dir
// flag, then VXRN_PROJECT_DIR, then the working directory. The directory
// must exist.
func ResolveProjectDir(flagValue string) (string, error) {
	dir := ResolveFlag(flagValue, "VXRN_PROJECT_DIR")
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving project directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project directory %s is not a directory", abs)
	}
	return abs, nil
}

// ResolvePlatformInteractive resolves the native platform using the priority:
// 1. --platform flag
// 2. VXRN_PLATFORM environment variable
// 3. Interactive selection
// 4. Non-interactive error with flag hint
func ResolvePlatformInteractive(flagValue string, out *output.Writer) (platform.Environment, error) {
	value := ResolveFlag(flagValue, "VXRN_PLATFORM")
	if value == "" {
		if !out.IsInteractive() {
			return "", fmt.Errorf("platform is required: set --platform (ios or android) or VXRN_PLATFORM")
		}
		options := make([]output.SelectOption, len(platform.Native))
		for i, env := range platform.Native {
			options[i] = output.SelectOption{Label: env.String(), Value: env.String()}
		}
		selected, err := out.Select("Select target platform", options)
		if err != nil {
			return "", err
		}
		value = selected
	}

	env, err := platform.Parse(value)
	if err != nil {
		return "", err
	}
	if !env.IsNative() {
		return "", fmt.Errorf("platform must be 'ios' or 'android', got %q", value)
	}
	return env, nil
}
