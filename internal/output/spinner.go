package output

import (
	"time"

	"github.com/charmbracelet/huh/spinner"
)

// Spinner runs action under an animated spinner and reports how long a
// successful action took. Without a terminal the title is printed as a step
// before the action runs.
func (w *Writer) Spinner(title string, action func() error) error {
	start := time.Now()
	if err := w.spin(title, action); err != nil {
		return err
	}
	w.Info("%s took %s", title, elapsed(time.Since(start)))
	return nil
}

func (w *Writer) spin(title string, action func() error) error {
	if !w.interactive {
		w.Step("%s...", title)
		return action()
	}

	var actionErr error
	err := spinner.New().
		Title(" " + title + "...").
		Action(func() { actionErr = action() }).
		Run()
	if err != nil {
		return err
	}
	return actionErr
}

// elapsed rounds d for display: milliseconds under a second, then tenths.
func elapsed(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(100 * time.Millisecond)
}
