package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/patch"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/transform"
	"github.com/vxrn/vxrn/internal/zip"
)

// ExportOptions configures a production bundle export.
type ExportOptions struct {
	ProjectDir  string
	Environment platform.Environment
	// EntryFile overrides the detected entry, relative to ProjectDir.
	EntryFile  string
	OutputDir  string
	BundleName string
	HermesMode HermesMode
	Archive    bool
	Prebuilt   []string
	Plugins    transform.Chain
	// Patches, when set, runs over node_modules before bundling. Per-file
	// failures are reported as warnings and do not stop the export.
	Patches *patch.Engine
}

// ExportResult describes the written output.
type ExportResult struct {
	BundlePath    string
	OutputDir     string
	ArchivePath   string
	Assets        []string
	Modules       int
	HermesApplied bool
	ProjectType   ProjectType
	Environment   platform.Environment
}

// Export builds a production bundle and writes it with its assets.
func Export(ctx context.Context, opts *ExportOptions, out *output.Writer) (*ExportResult, error) {
	return ExportWithExecutor(ctx, opts, &DefaultExecutor{}, out)
}

// ExportWithExecutor is Export with an injectable command executor, used
// for Hermes compilation.
func ExportWithExecutor(ctx context.Context, opts *ExportOptions, executor CommandExecutor, out *output.Writer) (*ExportResult, error) {
	if !opts.Environment.IsNative() {
		return nil, fmt.Errorf("--platform must be 'ios' or 'android', got %q", opts.Environment)
	}
	hermesMode, err := resolveExportOptions(opts)
	if err != nil {
		return nil, err
	}

	config, err := DetectProject(opts.ProjectDir, opts.Environment, hermesMode)
	if err != nil {
		return nil, err
	}
	if opts.EntryFile != "" {
		config.EntryFile = opts.EntryFile
	}

	out.Info("Project type: %s", config.ProjectType)
	out.Info("Platform: %s", config.Environment)
	out.Info("Entry file: %s", config.EntryFile)
	out.Info("Hermes: %v", config.HermesEnabled)

	patched := make(chan struct{})
	builder := New(Options{
		Root:           config.ProjectDir,
		Entry:          config.EntryFile,
		Dev:            false,
		Prebuilt:       opts.Prebuilt,
		Plugins:        opts.Plugins,
		PatchesApplied: patched,
	})
	if err := applyPatches(ctx, opts.Patches, config.ProjectDir, out); err != nil {
		return nil, err
	}
	close(patched)

	var bundle *Bundle
	err = out.Spinner(fmt.Sprintf("Bundling %s", opts.Environment), func() error {
		var buildErr error
		bundle, buildErr = builder.Build(ctx, opts.Environment)
		return buildErr
	})
	if err != nil {
		return nil, err
	}

	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	if err := ensureDir(outputDir); err != nil {
		return nil, err
	}

	bundleName := opts.BundleName
	if bundleName == "" {
		bundleName = DefaultBundleName(opts.Environment)
	}
	result := &ExportResult{
		BundlePath:  filepath.Join(outputDir, bundleName),
		OutputDir:   outputDir,
		Modules:     len(bundle.Modules),
		ProjectType: config.ProjectType,
		Environment: opts.Environment,
	}
	if err := os.WriteFile(result.BundlePath, []byte(bundle.Code), 0o644); err != nil {
		return nil, fmt.Errorf("writing bundle: %w", err)
	}

	for _, asset := range bundle.Assets {
		written, err := asset.CopyTo(outputDir)
		if err != nil {
			return nil, fmt.Errorf("copying asset %s: %w", asset.Name, err)
		}
		result.Assets = append(result.Assets, written...)
	}

	if err := compileWithHermes(ctx, config, result, executor, out); err != nil {
		return nil, err
	}

	if opts.Archive {
		archive, err := zip.Directory(outputDir)
		if err != nil {
			return nil, fmt.Errorf("archiving output: %w", err)
		}
		result.ArchivePath = archive
	}

	return result, nil
}

func resolveExportOptions(opts *ExportOptions) (HermesMode, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		projectDir = cwd
	}

	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolving project directory: %w", err)
	}
	opts.ProjectDir = absProjectDir

	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(absProjectDir, DefaultOutputDir)
	}

	hermesMode := opts.HermesMode
	if hermesMode == "" {
		hermesMode = HermesModeAuto
	}
	return hermesMode, ValidateHermesMode(hermesMode)
}

func compileWithHermes(ctx context.Context, config *ProjectConfig, result *ExportResult, executor CommandExecutor, out *output.Writer) error {
	if !config.HermesEnabled {
		return nil
	}
	if config.HermescPath == "" {
		return fmt.Errorf("hermes is enabled but hermesc was not found in node_modules: run 'npm install' or use --hermes=off")
	}

	compiler := NewHermesCompiler(executor, out)
	if err := compiler.Compile(ctx, config.HermescPath, result.BundlePath); err != nil {
		return err
	}
	result.HermesApplied = true
	return nil
}

func applyPatches(ctx context.Context, engine *patch.Engine, root string, out *output.Writer) error {
	if engine == nil {
		return nil
	}
	// Warnings are printed after the spinner stops.
	quiet := *engine
	quiet.Out = nil
	var report *patch.Report
	err := out.Spinner("Patching dependencies", func() error {
		var applyErr error
		report, applyErr = quiet.Apply(ctx, root)
		return applyErr
	})
	if err != nil {
		return fmt.Errorf("patching dependencies: %w", err)
	}
	for _, e := range report.Errors {
		if e.File != "" {
			out.Warning("patch %s failed for %s: %v", e.Module, e.File, e.Err)
		} else {
			out.Warning("patch %s failed: %v", e.Module, e.Err)
		}
	}
	if len(report.Patched) > 0 {
		out.Info("Patched %d file(s)", len(report.Patched))
	}
	return nil
}
