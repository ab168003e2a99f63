package output

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// SelectOption is one choice of a Select prompt.
type SelectOption struct {
	Label string
	Value string
}

// Select prompts for one of options. It fails without a terminal so
// callers must fall back to a flag.
func (w *Writer) Select(title string, options []SelectOption) (string, error) {
	if !w.interactive {
		return "", fmt.Errorf("cannot prompt for selection in non-interactive mode")
	}

	huhOpts := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOpts[i] = huh.NewOption(opt.Label, opt.Value)
	}

	var value string
	err := huh.NewSelect[string]().
		Title(title).
		Options(huhOpts...).
		Value(&value).
		Run()
	if err != nil {
		return "", fmt.Errorf("selection prompt failed: %w", err)
	}

	return value, nil
}
