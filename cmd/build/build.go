package build

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vxrn/vxrn/cmd"
	"github.com/vxrn/vxrn/internal/cmdutil"
	"github.com/vxrn/vxrn/internal/config"
	"github.com/vxrn/vxrn/internal/output"
)

func init() {
	cmd.RootCmd.AddGroup(&cobra.Group{ID: cmd.GroupBuild, Title: "Build:"})
}

// loadProject resolves the project root and reads its config.
func loadProject(out *output.Writer) (string, *config.Config, error) {
	root, err := cmdutil.ResolveProjectDir(cmd.ProjectDir)
	if err != nil {
		return "", nil, err
	}
	cfg, path, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	if path != "" {
		out.Info("Using config: %s", path)
	}
	return root, cfg, nil
}

// underRoot resolves p against root unless it is already absolute.
func underRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
