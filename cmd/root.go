package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vxrn/vxrn/internal/output"
)

// GroupID is a typed alias for command group identifiers.
type GroupID = string

// Command group identifiers for organizing help output.
const (
	GroupBuild GroupID = "build"
	GroupDev   GroupID = "dev"
)

// Out is the shared CLI output writer. Set by main() before Execute().
var Out *output.Writer

// Global flag values, bound to RootCmd's persistent flags.
var (
	ProjectDir string
	JSONOutput bool
)

// RootCmd is the top-level cobra command.
var RootCmd = &cobra.Command{
	Use:   "vxrn",
	Short: "Bundle and serve React Native apps",
	Long: `vxrn builds native bundles for iOS and Android from one source tree,
serves them with hot updates during development, and patches installed
dependencies so they load in a native runtime.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&ProjectDir, "project-dir", "", "project root directory (env: VXRN_PROJECT_DIR, defaults to current directory)")
	RootCmd.PersistentFlags().BoolVar(&JSONOutput, "json", false, "output results as JSON to stdout")
}
