package patch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/resolve"
)

// Engine applies rules to every node_modules directory of a project.
type Engine struct {
	Rules []Rule
	// Force ignores recorded fingerprints and reprocesses every file.
	Force bool
	// Disabled lists module names whose rules are skipped.
	Disabled []string
	// Concurrency bounds per-directory file workers. Zero means NumCPU.
	Concurrency int
	Out         *output.Writer
}

// Report summarizes a run.
type Report struct {
	Roots    int
	Patched  []string
	Restored []string
	// Skipped counts files whose fingerprint was unchanged.
	Skipped   int
	Unchanged int
	Writes    int64
	Errors    []*ApplyError
}

// Failed reports whether any module or file failed.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0
}

type target struct {
	module     string
	path       string
	strategies []Strategy
}

func (e *Engine) out() *output.Writer {
	if e.Out == nil {
		return output.NewTest(io.Discard)
	}
	return e.Out
}

// Apply patches every matching file under projectRoot. Failures are
// collected per module and file; only a failure to enumerate node_modules
// is returned as an error.
func (e *Engine) Apply(ctx context.Context, projectRoot string) (*Report, error) {
	roots, err := FindNodeModules(projectRoot)
	if err != nil {
		return nil, err
	}

	report := &Report{Roots: len(roots)}
	var mu sync.Mutex
	var writes atomic.Int64

	for _, nm := range roots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		e.applyRoot(ctx, nm, report, &mu, &writes)
	}

	report.Writes = writes.Load()
	sort.Strings(report.Patched)
	sort.Strings(report.Restored)
	return report, nil
}

func (e *Engine) applyRoot(ctx context.Context, nm string, report *Report, mu *sync.Mutex, writes *atomic.Int64) {
	out := e.out()
	targets := e.collect(nm, report)
	if len(targets) == 0 {
		return
	}

	c, err := loadCache(nm)
	if err != nil {
		report.Errors = append(report.Errors, &ApplyError{Module: nm, Err: err})
		out.Warning("%v", err)
		return
	}

	limit := e.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, t := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome, err := e.processFile(t, c, writes)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				applyErr := &ApplyError{Module: t.module, File: t.path, Err: err}
				report.Errors = append(report.Errors, applyErr)
				out.Warning("%v", applyErr)
				return nil
			}
			switch outcome {
			case outcomePatched:
				report.Patched = append(report.Patched, t.path)
			case outcomeRestored:
				report.Restored = append(report.Restored, t.path)
			case outcomeSkipped:
				report.Skipped++
			default:
				report.Unchanged++
			}
			return nil
		})
	}
	g.Wait()

	if err := c.save(); err != nil {
		report.Errors = append(report.Errors, &ApplyError{Module: nm, Err: err})
		out.Warning("%v", err)
	}
}

// collect expands the rules that apply inside nm into per-file targets.
// Strategies of several rules matching one file run in rule order.
func (e *Engine) collect(nm string, report *Report) []*target {
	out := e.out()
	disabled := make(map[string]bool, len(e.Disabled))
	for _, name := range e.Disabled {
		disabled[name] = true
	}

	byPath := make(map[string]*target)
	var order []string
	for _, rule := range e.Rules {
		if disabled[rule.Module] {
			continue
		}
		pkgDir := filepath.Join(nm, filepath.FromSlash(rule.Module))
		if _, err := os.Stat(filepath.Join(pkgDir, "package.json")); err != nil {
			continue
		}

		ok, err := versionMatches(pkgDir, rule.Version)
		if err != nil {
			report.Errors = append(report.Errors, &ApplyError{Module: rule.Module, Err: err})
			out.Warning("skipping %s: %v", rule.Module, err)
			continue
		}
		if !ok {
			out.Info("%s: installed version outside %q, skipping", rule.Module, rule.Version)
			continue
		}

		for _, file := range rule.Files {
			matches, err := doublestar.Glob(os.DirFS(pkgDir), file.Glob, doublestar.WithFilesOnly())
			if err != nil {
				report.Errors = append(report.Errors, &ApplyError{Module: rule.Module, Err: fmt.Errorf("glob %q: %w", file.Glob, err)})
				continue
			}
			for _, rel := range matches {
				if strings.HasSuffix(rel, ShadowSuffix) || strings.Contains(rel, "node_modules/") {
					continue
				}
				path := filepath.Join(pkgDir, filepath.FromSlash(rel))
				t, ok := byPath[path]
				if !ok {
					t = &target{module: rule.Module, path: path}
					byPath[path] = t
					order = append(order, path)
				}
				t.strategies = append(t.strategies, file.Strategy)
			}
		}
	}

	targets := make([]*target, 0, len(order))
	for _, path := range order {
		targets = append(targets, byPath[path])
	}
	return targets
}

func versionMatches(pkgDir, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	raw, err := resolve.ReadPackageVersion(pkgDir)
	if err != nil {
		return false, err
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return false, fmt.Errorf("invalid installed version %q: %w", raw, err)
	}
	return c.Check(v), nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeSkipped
	outcomePatched
	outcomeRestored
)

func (e *Engine) processFile(t *target, c *cache, writes *atomic.Int64) (outcome, error) {
	info, err := os.Stat(t.path)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("stat: %w", err)
	}
	if !e.Force && c.matches(t.path, fingerprintOf(info)) {
		return outcomeSkipped, nil
	}

	current, err := os.ReadFile(t.path)
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("reading: %w", err)
	}
	original, hasShadow, err := readIfExists(shadowPath(t.path))
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("reading original: %w", err)
	}
	if !hasShadow {
		original = current
	}

	content := string(original)
	changed := false
	for _, s := range t.strategies {
		res, err := s.Apply(t.path, content)
		if err != nil {
			return outcomeUnchanged, err
		}
		if res.Changed {
			content = res.Content
			changed = true
		}
	}

	result := outcomeUnchanged
	switch {
	case changed:
		if !hasShadow {
			if err := writeAtomic(shadowPath(t.path), original); err != nil {
				return outcomeUnchanged, fmt.Errorf("saving original: %w", err)
			}
			writes.Add(1)
		}
		if err := writeAtomic(t.path, []byte(content)); err != nil {
			return outcomeUnchanged, err
		}
		writes.Add(1)
		result = outcomePatched
	case hasShadow && !bytes.Equal(current, original):
		if err := writeAtomic(t.path, original); err != nil {
			return outcomeUnchanged, fmt.Errorf("restoring original: %w", err)
		}
		writes.Add(1)
		result = outcomeRestored
	}

	if result == outcomeUnchanged {
		return result, nil
	}
	if info, err = os.Stat(t.path); err != nil {
		return result, fmt.Errorf("stat after write: %w", err)
	}
	c.set(t.path, fingerprintOf(info))
	return result, nil
}

// Restore puts every shadowed file back to its original content, removes
// the shadows and drops the fingerprint caches.
func (e *Engine) Restore(projectRoot string) (*Report, error) {
	roots, err := FindNodeModules(projectRoot)
	if err != nil {
		return nil, err
	}

	report := &Report{Roots: len(roots)}
	for _, nm := range roots {
		shadows, err := shadowFiles(nm)
		if err != nil {
			report.Errors = append(report.Errors, &ApplyError{Module: nm, Err: err})
			continue
		}
		for _, shadow := range shadows {
			path := strings.TrimSuffix(shadow, ShadowSuffix)
			if err := restoreFile(path, shadow); err != nil {
				report.Errors = append(report.Errors, &ApplyError{Module: nm, File: path, Err: err})
				e.out().Warning("restoring %s: %v", path, err)
				continue
			}
			report.Writes++
			report.Restored = append(report.Restored, path)
		}
		if err := os.Remove(filepath.Join(nm, filepath.FromSlash(CacheFile))); err != nil && !os.IsNotExist(err) {
			report.Errors = append(report.Errors, &ApplyError{Module: nm, Err: err})
		}
	}
	sort.Strings(report.Restored)
	return report, nil
}

// Shadowed lists the files under projectRoot that have an original kept
// beside them, i.e. the files Restore would rewrite.
func Shadowed(projectRoot string) ([]string, error) {
	roots, err := FindNodeModules(projectRoot)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, nm := range roots {
		shadows, err := shadowFiles(nm)
		if err != nil {
			return nil, err
		}
		for _, shadow := range shadows {
			paths = append(paths, strings.TrimSuffix(shadow, ShadowSuffix))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// shadowFiles returns absolute shadow paths in nm, leaving nested
// node_modules to their own root.
func shadowFiles(nm string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(nm), "**/*"+ShadowSuffix, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rel := range matches {
		if strings.Contains(rel, "node_modules/") {
			continue
		}
		out = append(out, filepath.Join(nm, filepath.FromSlash(rel)))
	}
	return out, nil
}

func restoreFile(path, shadow string) error {
	original, err := os.ReadFile(shadow)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, original); err != nil {
		return err
	}
	return os.Remove(shadow)
}
