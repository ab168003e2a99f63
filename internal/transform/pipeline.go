package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vxrn/vxrn/internal/cjs"
	"github.com/vxrn/vxrn/internal/jsscan"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
)

// Unit is one module moving through a Pipeline.
type Unit struct {
	ID          string
	Path        string
	Environment platform.Environment
	Dev         bool
	Code        string

	Scan *jsscan.Result
	// ImportMap maps each specifier as written in the source to the
	// module id it resolved to.
	ImportMap map[string]string
	// Deps maps resolved module ids to absolute file paths. Bare ids
	// served from prebuilt libraries map to "".
	Deps map[string]string
}

// Stage is one step of a Pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, u *Unit) error
}

// Instrument observes every stage a Pipeline runs.
type Instrument interface {
	StageStarted(stage string, u *Unit)
	StageFinished(stage string, u *Unit, elapsed time.Duration, err error)
}

// StageError records which stage failed for which module.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs stages in order, reporting each to Instrument.
type Pipeline struct {
	Stages     []Stage
	Instrument Instrument
}

func (p *Pipeline) Run(ctx context.Context, u *Unit) error {
	inst := p.Instrument
	if inst == nil {
		inst = NopInstrument{}
	}
	for _, stage := range p.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := stage.Name()
		inst.StageStarted(name, u)
		start := time.Now()
		err := stage.Run(ctx, u)
		inst.StageFinished(name, u, time.Since(start), err)
		if err != nil {
			return &StageError{Stage: name, Path: u.Path, Err: err}
		}
	}
	return nil
}

// NopInstrument ignores all events.
type NopInstrument struct{}

func (NopInstrument) StageStarted(string, *Unit)                        {}
func (NopInstrument) StageFinished(string, *Unit, time.Duration, error) {}

// LogInstrument writes stage timings at debug level and failures at warn.
type LogInstrument struct {
	Logger *log.Logger
}

func (l LogInstrument) StageStarted(string, *Unit) {}

func (l LogInstrument) StageFinished(stage string, u *Unit, elapsed time.Duration, err error) {
	if err != nil {
		l.Logger.Warn("stage failed", "stage", stage, "module", u.ID, "error", err)
		return
	}
	l.Logger.Debug("stage finished", "stage", stage, "module", u.ID, "elapsed", elapsed)
}

// ModuleID turns an absolute path into the id modules are registered
// under: the slash-separated path relative to root.
func ModuleID(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// PluginStage runs a plugin chain over the raw source.
type PluginStage struct {
	Chain Chain
}

func (PluginStage) Name() string { return "plugins" }

func (s PluginStage) Run(ctx context.Context, u *Unit) error {
	code, err := s.Chain.Run(ctx, Source{Path: u.Path, Code: u.Code, Environment: u.Environment, Dev: u.Dev})
	if err != nil {
		return err
	}
	u.Code = code
	return nil
}

// StripStage removes types and JSX and scans the result for imports.
type StripStage struct{}

func (StripStage) Name() string { return "strip" }

func (StripStage) Run(_ context.Context, u *Unit) error {
	code, err := Strip(u.Code, u.Path, u.Dev)
	if err != nil {
		return err
	}
	u.Code = code
	u.Scan = jsscan.Scan(code)
	return nil
}

// ResolveStage resolves every scanned specifier for the unit's
// environment.
type ResolveStage struct {
	Resolver *resolve.Resolver
	Root     string
	// Bare reports specifiers that are served under their own name, such
	// as prebuilt runtime libraries.
	Bare func(spec string) bool
	// Alias maps a resolved file to the id it is registered under when
	// that differs from its root-relative path.
	Alias func(abs string) (string, bool)
	// PreferNative swaps a resolved x.js for an existing x.native.js.
	PreferNative bool
}

func (ResolveStage) Name() string { return "resolve" }

func (s ResolveStage) Run(_ context.Context, u *Unit) error {
	if u.Scan == nil {
		u.Scan = jsscan.Scan(u.Code)
	}
	u.ImportMap = make(map[string]string)
	u.Deps = make(map[string]string)
	for _, spec := range u.Scan.Specifiers() {
		if s.Bare != nil && s.Bare(spec) {
			u.ImportMap[spec] = spec
			u.Deps[spec] = ""
			continue
		}
		abs, err := s.Resolver.Resolve(spec, u.Path, u.Environment)
		if err != nil {
			return err
		}
		if s.PreferNative {
			abs = NativeSibling(abs)
		}
		id := ModuleID(s.Root, abs)
		if s.Alias != nil {
			if alias, ok := s.Alias(abs); ok {
				id = alias
			}
		}
		u.ImportMap[spec] = id
		u.Deps[id] = abs
	}
	return nil
}

// NativeSibling returns x.native.js for x.js when that file exists, and
// abs otherwise.
func NativeSibling(abs string) string {
	if !strings.HasSuffix(abs, ".js") || strings.HasSuffix(abs, ".native.js") {
		return abs
	}
	candidate := strings.TrimSuffix(abs, ".js") + ".native.js"
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return abs
}

// RewriteStage replaces specifiers in the source with their module ids.
type RewriteStage struct{}

func (RewriteStage) Name() string { return "rewrite" }

func (RewriteStage) Run(_ context.Context, u *Unit) error {
	if u.Scan == nil {
		return nil
	}
	u.Code = jsscan.Rewrite(u.Code, u.Scan.Imports, func(spec string) (string, bool) {
		id, ok := u.ImportMap[spec]
		return id, ok
	})
	return nil
}

// CommonJSStage converts the module body to CommonJS.
type CommonJSStage struct {
	// StripHotAPIs removes import.meta.hot.accept calls and stubs
	// import.meta.glob, neither of which exists in the native runtime.
	StripHotAPIs bool
	// ForceExport appends the statements that keep star and aliased
	// exports alive through the wrapper.
	ForceExport bool
}

func (CommonJSStage) Name() string { return "commonjs" }

func (s CommonJSStage) Run(_ context.Context, u *Unit) error {
	code := u.Code
	if s.StripHotAPIs {
		code = jsscan.ReplaceCalls(code, "import.meta.hot.accept", "")
		code = jsscan.ReplaceCalls(code, "import.meta.glob", "({})")
	}
	out, err := ToCommonJS(code, u.Path)
	if err != nil {
		return err
	}
	if s.ForceExport && u.Scan != nil {
		out += cjs.ForceExport(u.Scan)
	}
	u.Code = out
	return nil
}
