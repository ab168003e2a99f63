package patch

import "fmt"

// ApplyError is a failure to patch one module or file. It never aborts the
// run; callers find these in Report.Errors.
type ApplyError struct {
	Module string
	File   string
	Err    error
}

func (e *ApplyError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("patching %s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("patching %s (%s): %v", e.Module, e.File, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
