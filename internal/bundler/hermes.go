package bundler

import (
	"context"
	"fmt"
	"os"

	"github.com/vxrn/vxrn/internal/output"
)

// HermesCompiler turns a JS bundle into Hermes bytecode.
type HermesCompiler struct {
	executor CommandExecutor
	out      *output.Writer
}

// NewHermesCompiler creates a new HermesCompiler.
func NewHermesCompiler(executor CommandExecutor, out *output.Writer) *HermesCompiler {
	return &HermesCompiler{executor: executor, out: out}
}

// Compile replaces the bundle at bundlePath with its bytecode. The file
// name stays the same since apps load the bundle by name.
func (h *HermesCompiler) Compile(ctx context.Context, hermescPath, bundlePath string) error {
	if _, err := os.Stat(hermescPath); err != nil {
		return fmt.Errorf("hermesc binary not found at %s: %w", hermescPath, err)
	}
	if _, err := os.Stat(bundlePath); err != nil {
		return fmt.Errorf("bundle file not found at %s: %w", bundlePath, err)
	}

	hbcPath := bundlePath + ".hbc"
	args := []string{"-emit-binary", "-O", "-out", hbcPath, bundlePath}

	h.out.Step("Compiling to Hermes bytecode")
	h.out.Info("%s %v", hermescPath, args)

	if err := h.executor.Run(ctx, "", os.Stderr, os.Stderr, hermescPath, args...); err != nil {
		os.Remove(hbcPath)
		return fmt.Errorf("hermes compilation failed: %w", err)
	}

	if err := os.Rename(hbcPath, bundlePath); err != nil {
		return fmt.Errorf("replacing bundle with Hermes bytecode: %w", err)
	}
	return nil
}
