package output

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// maxListedPaths bounds the paths ConfirmDestructive prints before the prompt.
const maxListedPaths = 10

// ConfirmDestructive gates an operation that rewrites files the user did
// not author. The first paths are listed before the prompt. yesFlag skips
// the prompt; without a terminal the call fails with a hint to pass --yes.
func (w *Writer) ConfirmDestructive(msg string, yesFlag bool, paths ...string) error {
	if yesFlag {
		return nil
	}
	if !w.interactive {
		return fmt.Errorf("%s; use --yes to confirm", msg)
	}

	w.Warning("%s", msg)
	for i, p := range paths {
		if i == maxListedPaths {
			w.Info("... and %d more", len(paths)-maxListedPaths)
			break
		}
		w.Info("%s", p)
	}

	confirmed := false
	if err := huh.NewConfirm().
		Title("Continue?").
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed).
		Run(); err != nil {
		return fmt.Errorf("confirmation prompt failed: %w", err)
	}
	if !confirmed {
		return fmt.Errorf("cancelled by user")
	}
	return nil
}
