package build

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vxrn/vxrn/cmd"
	"github.com/vxrn/vxrn/internal/bundler"
	"github.com/vxrn/vxrn/internal/cmdutil"
	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/patch"
)

var (
	bundlePlatform   string
	bundleEntryFile  string
	bundleOutputDir  string
	bundleBundleName string
	bundleHermes     string
	bundleArchive    bool
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Build a production bundle for a native platform",
	Long: `Build a production bundle for iOS or Android.

Detects the project type, entry file and Hermes configuration, applies the
built-in dependency patches, bundles the prebuilt runtime libraries together
with the app's own modules, and copies referenced assets next to the bundle.

Examples:
  vxrn bundle --platform ios
  vxrn bundle --platform android --hermes on --archive`,
	GroupID: cmd.GroupBuild,
	RunE: func(c *cobra.Command, args []string) error {
		return runBundle(c, cmd.Out)
	},
}

func init() {
	bundleCmd.Flags().StringVar(&bundlePlatform, "platform", "", "target platform: ios or android (env: VXRN_PLATFORM)")
	bundleCmd.Flags().StringVar(&bundleEntryFile, "entry-file", "", "path to the entry file (auto-detected if not set)")
	bundleCmd.Flags().StringVar(&bundleOutputDir, "output-dir", "", "output directory (config out_dir if not set)")
	bundleCmd.Flags().StringVar(&bundleBundleName, "bundle-name", "", "custom bundle filename (platform default if not set)")
	bundleCmd.Flags().StringVar(&bundleHermes, "hermes", string(bundler.HermesModeAuto), "Hermes bytecode compilation: auto, on, or off")
	bundleCmd.Flags().BoolVar(&bundleArchive, "archive", false, "also write a zip archive of the output directory")
	cmd.RootCmd.AddCommand(bundleCmd)
}

func runBundle(c *cobra.Command, out *output.Writer) error {
	env, err := cmdutil.ResolvePlatformInteractive(bundlePlatform, out)
	if err != nil {
		return err
	}
	if err := bundler.ValidateHermesMode(bundler.HermesMode(bundleHermes)); err != nil {
		return err
	}

	root, cfg, err := loadProject(out)
	if err != nil {
		return err
	}

	entry := bundleEntryFile
	if entry == "" {
		entry = cfg.Entry
	}
	outputDir := bundleOutputDir
	if outputDir == "" {
		outputDir = cfg.OutDir
	}

	result, err := bundler.Export(c.Context(), &bundler.ExportOptions{
		ProjectDir:  root,
		Environment: env,
		EntryFile:   entry,
		OutputDir:   underRoot(root, outputDir),
		BundleName:  bundleBundleName,
		HermesMode:  bundler.HermesMode(bundleHermes),
		Archive:     bundleArchive,
		Prebuilt:    cfg.Prebuilt,
		Patches: &patch.Engine{
			Rules:    patch.BuiltinRules(),
			Force:    cfg.ForcePatches,
			Disabled: cfg.DisabledPatches,
		},
	}, out)
	if err != nil {
		return err
	}

	if cmd.JSONOutput {
		return cmdutil.OutputJSON(struct {
			Platform      string   `json:"platform"`
			ProjectType   string   `json:"project_type"`
			OutputDir     string   `json:"output_dir"`
			BundlePath    string   `json:"bundle_path"`
			ArchivePath   string   `json:"archive_path,omitempty"`
			Modules       int      `json:"modules"`
			Assets        []string `json:"assets"`
			HermesApplied bool     `json:"hermes_applied"`
		}{
			Platform:      result.Environment.String(),
			ProjectType:   result.ProjectType.String(),
			OutputDir:     result.OutputDir,
			BundlePath:    result.BundlePath,
			ArchivePath:   result.ArchivePath,
			Modules:       result.Modules,
			Assets:        result.Assets,
			HermesApplied: result.HermesApplied,
		})
	}

	size := "unknown"
	if info, err := os.Stat(result.BundlePath); err == nil {
		size = cmdutil.FormatBytes(info.Size())
	}

	out.Success("Bundle created successfully")
	out.Result([]output.KeyValue{
		{Key: "Output", Value: result.OutputDir},
		{Key: "Bundle", Value: result.BundlePath},
		{Key: "Size", Value: size},
	})
	out.Info("Modules: %d, assets: %d", result.Modules, len(result.Assets))
	if result.ArchivePath != "" {
		out.Info("Archive: %s", result.ArchivePath)
	}
	if result.HermesApplied {
		out.Info("Hermes: compiled")
	}
	return nil
}
