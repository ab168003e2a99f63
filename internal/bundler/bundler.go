package bundler

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/vxrn/vxrn/internal/platform"
)

// DefaultOutputDir is where production bundles are written.
const DefaultOutputDir = "./dist"

// BuildError is a failed native bundle build. The next Build call retries
// from scratch.
type BuildError struct {
	Environment platform.Environment
	Err         error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s bundle: %v", e.Environment, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ValidateHermesMode checks a --hermes value.
func ValidateHermesMode(h HermesMode) error {
	if h != HermesModeAuto && h != HermesModeOn && h != HermesModeOff {
		return fmt.Errorf("--hermes must be 'auto', 'on', or 'off', got %q", h)
	}
	return nil
}

// CommandExecutor abstracts subprocess execution for testing.
type CommandExecutor interface {
	Run(ctx context.Context, dir string, stdout io.Writer, stderr io.Writer, name string, args ...string) error
}

// DefaultExecutor runs commands with os/exec.
type DefaultExecutor struct{}

func (e *DefaultExecutor) Run(ctx context.Context, dir string, stdout io.Writer, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// DefaultBundleName is the file name native apps load their bundle from.
func DefaultBundleName(env platform.Environment) string {
	switch env {
	case platform.IOS:
		return "main.jsbundle"
	case platform.Android:
		return "index.android.bundle"
	default:
		return "index.bundle"
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}
