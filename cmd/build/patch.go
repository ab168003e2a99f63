package build

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vxrn/vxrn/cmd"
	"github.com/vxrn/vxrn/internal/cmdutil"
	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/patch"
)

var (
	patchForce   bool
	patchRestore bool
	patchYes     bool
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Patch installed dependencies for the native bundler",
	Long: `Rewrite files in node_modules that the native bundler cannot load as
published. Originals are kept next to each patched file and unchanged
files are skipped on later runs.

Examples:
  vxrn patch
  vxrn patch --force
  vxrn patch --restore --yes`,
	GroupID: cmd.GroupBuild,
	RunE: func(c *cobra.Command, args []string) error {
		return runPatch(c, cmd.Out)
	},
}

func init() {
	patchCmd.Flags().BoolVar(&patchForce, "force", false, "reprocess every file, ignoring recorded fingerprints")
	patchCmd.Flags().BoolVar(&patchRestore, "restore", false, "put patched files back to their original content")
	patchCmd.Flags().BoolVar(&patchYes, "yes", false, "skip the confirmation prompt for --restore")
	cmd.RootCmd.AddCommand(patchCmd)
}

type patchSummary struct {
	Roots     int      `json:"roots"`
	Patched   []string `json:"patched"`
	Restored  []string `json:"restored,omitempty"`
	Skipped   int      `json:"skipped"`
	Unchanged int      `json:"unchanged"`
	Writes    int64    `json:"writes"`
	Errors    []string `json:"errors,omitempty"`
}

func runPatch(c *cobra.Command, out *output.Writer) error {
	root, cfg, err := loadProject(out)
	if err != nil {
		return err
	}

	engine := &patch.Engine{
		Rules:    patch.BuiltinRules(),
		Force:    patchForce || cfg.ForcePatches,
		Disabled: cfg.DisabledPatches,
		Out:      out,
	}

	var report *patch.Report
	if patchRestore {
		var shadowed []string
		shadowed, err = patch.Shadowed(root)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("This rewrites %d patched file(s) in node_modules with their originals", len(shadowed))
		if err := out.ConfirmDestructive(msg, patchYes, shadowed...); err != nil {
			return err
		}
		report, err = engine.Restore(root)
	} else {
		err = out.Spinner("Patching dependencies", func() error {
			var applyErr error
			report, applyErr = engine.Apply(c.Context(), root)
			return applyErr
		})
	}
	if err != nil {
		return err
	}

	summary := patchSummary{
		Roots:     report.Roots,
		Patched:   report.Patched,
		Restored:  report.Restored,
		Skipped:   report.Skipped,
		Unchanged: report.Unchanged,
		Writes:    report.Writes,
	}
	if summary.Patched == nil {
		summary.Patched = []string{}
	}
	for _, e := range report.Errors {
		summary.Errors = append(summary.Errors, e.Error())
	}

	if cmd.JSONOutput {
		if err := cmdutil.OutputJSON(summary); err != nil {
			return err
		}
	} else {
		printPatchReport(out, summary)
	}

	if report.Failed() {
		return fmt.Errorf("%d patch operation(s) failed", len(report.Errors))
	}
	return nil
}

func printPatchReport(out *output.Writer, s patchSummary) {
	if patchRestore {
		out.Success("Restored %d file(s)", len(s.Restored))
	} else {
		out.Success("Patched %d file(s)", len(s.Patched))
	}
	out.Result([]output.KeyValue{
		{Key: "node_modules", Value: fmt.Sprintf("%d", s.Roots)},
		{Key: "Skipped", Value: fmt.Sprintf("%d", s.Skipped)},
		{Key: "Unchanged", Value: fmt.Sprintf("%d", s.Unchanged)},
		{Key: "Writes", Value: fmt.Sprintf("%d", s.Writes)},
	})
	if len(s.Patched) > 0 {
		rows := make([][]string, len(s.Patched))
		for i, path := range s.Patched {
			rows[i] = []string{path}
		}
		out.Table([]string{"PATCHED FILE"}, rows)
	}
	for _, e := range s.Errors {
		out.Warning("%s", e)
	}
}
