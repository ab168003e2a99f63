package dev

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vxrn/vxrn/cmd"
	"github.com/vxrn/vxrn/internal/bundler"
	"github.com/vxrn/vxrn/internal/cmdutil"
	"github.com/vxrn/vxrn/internal/config"
	"github.com/vxrn/vxrn/internal/devserver"
	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/patch"
	"github.com/vxrn/vxrn/internal/platform"
)

var (
	devHost   string
	devPort   int
	devWorker bool
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Start the development server",
	Long: `Start a development server that native apps load their bundle from.

Dependencies are patched before the first bundle is served. Edits to
project files are pushed to connected devices as hot updates.

Examples:
  vxrn dev
  vxrn dev --port 8082`,
	GroupID: cmd.GroupDev,
	RunE: func(c *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv, err := newServer(c, cmd.Out)
		if err != nil {
			return err
		}
		return runServer(ctx, srv, cmd.Out)
	},
}

func init() {
	cmd.RootCmd.AddGroup(&cobra.Group{ID: cmd.GroupDev, Title: "Development:"})

	devCmd.Flags().StringVar(&devHost, "host", "", "address to listen on (config host if not set)")
	devCmd.Flags().IntVar(&devPort, "port", 0, "port to listen on (config port if not set)")
	devCmd.Flags().BoolVar(&devWorker, "worker", false, "build bundles on a background worker")
	cmd.RootCmd.AddCommand(devCmd)
}

// serverOptions merges flags over the project config.
func serverOptions(c *cobra.Command, root string, cfg *config.Config) devserver.Options {
	opts := devserver.Options{
		Root:         root,
		Entry:        cfg.Entry,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Prebuilt:     cfg.Prebuilt,
		HotCacheSize: cfg.HotCacheSize,
		UseWorker:    cfg.Worker,
		WatchIgnore:  cfg.WatchIgnore,
		Patches: &patch.Engine{
			Rules:    patch.BuiltinRules(),
			Force:    cfg.ForcePatches,
			Disabled: cfg.DisabledPatches,
		},
	}
	if c.Flags().Changed("host") {
		opts.Host = devHost
	}
	if c.Flags().Changed("port") {
		opts.Port = devPort
	}
	if c.Flags().Changed("worker") {
		opts.UseWorker = devWorker
	}
	return opts
}

func newServer(c *cobra.Command, out *output.Writer) (*devserver.Server, error) {
	root, err := cmdutil.ResolveProjectDir(cmd.ProjectDir)
	if err != nil {
		return nil, err
	}
	cfg, path, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if path != "" {
		out.Info("Using config: %s", path)
	}

	opts := serverOptions(c, root, cfg)
	if opts.Entry == "" {
		project, err := bundler.DetectProject(root, platform.IOS, bundler.HermesModeOff)
		if err != nil {
			return nil, err
		}
		opts.Entry = project.EntryFile
	}
	opts.Logger = output.NewLogger("vxrn")
	opts.Device = output.NewLogger("device")
	return devserver.New(opts)
}

func runServer(ctx context.Context, srv *devserver.Server, out *output.Writer) error {
	out.Success("Dev server starting on %s", srv.Addr())
	out.Info("Bundle: http://%s/index.bundle?platform=ios", srv.Addr())
	out.Info("Press Ctrl+C to stop")
	return srv.Run(ctx)
}
