package bundler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vxrn/vxrn/internal/assets"
	"github.com/vxrn/vxrn/internal/cjs"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
	"github.com/vxrn/vxrn/internal/transform"
)

// SharedModules must exist once per bundle. Prebuilt libraries require
// them by these ids instead of inlining their own copy, so state kept in
// them is visible to app modules too.
var SharedModules = []string{assets.RegistryModule}

// Options configures a Builder.
type Options struct {
	Root string
	// Entry is the entry file, absolute or relative to Root.
	Entry string
	Dev   bool
	// CoreLibrary is required before the entry module runs. It must be one
	// of Prebuilt to be bootstrapped.
	CoreLibrary string
	Prebuilt    []string
	Plugins     transform.Chain
	Resolver    *resolve.Resolver
	Assets      *assets.Registry
	Logger      *log.Logger
	Instrument  transform.Instrument
	// PatchesApplied, when set, must be closed before any build starts.
	PatchesApplied <-chan struct{}
	Concurrency    int
}

// Bundle is one built native bundle.
type Bundle struct {
	Environment platform.Environment
	Code        string
	// Modules lists module ids in emit order; the entry is last.
	Modules []string
	Assets  []*assets.Asset
	// Generation is the invalidation counter the bundle was built at.
	Generation uint64
}

// Builder builds and caches native bundles per environment. Concurrent
// requests for one environment share a single build.
type Builder struct {
	opts       Options
	prebuilder *Prebuilder
	group      singleflight.Group
	builds     atomic.Int64

	mu    sync.Mutex
	gen   uint64
	cache map[platform.Environment]*Bundle

	sharedMu sync.RWMutex
	// shared maps resolved shared module files to their ids.
	shared map[string]string
}

// New returns a Builder. Unset options get defaults: react-native as core
// library, DefaultPrebuilt, a fresh resolver and asset registry.
func New(opts Options) *Builder {
	if opts.CoreLibrary == "" {
		opts.CoreLibrary = "react-native"
	}
	if opts.Prebuilt == nil {
		opts.Prebuilt = DefaultPrebuilt
	}
	if opts.Resolver == nil {
		opts.Resolver = resolve.New()
	}
	if opts.Assets == nil {
		opts.Assets = assets.NewRegistry(opts.Root)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Instrument == nil {
		opts.Instrument = transform.LogInstrument{Logger: opts.Logger}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Builder{
		opts: opts,
		prebuilder: &Prebuilder{
			Root:     opts.Root,
			Packages: opts.Prebuilt,
			Shared:   SharedModules,
			Resolver: opts.Resolver,
			Logger:   opts.Logger,
		},
		cache:  make(map[platform.Environment]*Bundle),
		shared: make(map[string]string),
	}
}

// Builds counts builds that actually ran.
func (b *Builder) Builds() int64 {
	return b.builds.Load()
}

// Invalidate drops cached bundles and resolutions. Builds already in
// flight finish but their result is not cached.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	b.gen++
	clear(b.cache)
	b.mu.Unlock()
	b.opts.Resolver.Reset()
}

// Cached returns the cached bundle for env, if still valid.
func (b *Builder) Cached(env platform.Environment) (*Bundle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bundle, ok := b.cache[env]
	return bundle, ok
}

// Build returns the bundle for env, building it if needed.
func (b *Builder) Build(ctx context.Context, env platform.Environment) (*Bundle, error) {
	b.mu.Lock()
	gen := b.gen
	if bundle, ok := b.cache[env]; ok {
		b.mu.Unlock()
		return bundle, nil
	}
	b.mu.Unlock()

	key := fmt.Sprintf("%s@%d", env, gen)
	ch := b.group.DoChan(key, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		bundle, err := b.build(context.WithoutCancel(ctx), env, gen)
		if err != nil {
			return nil, &BuildError{Environment: env, Err: err}
		}
		b.mu.Lock()
		if b.gen == gen {
			b.cache[env] = bundle
		}
		b.mu.Unlock()
		return bundle, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Bundle), nil
	}
}

func (b *Builder) waitForPatches(ctx context.Context) error {
	if b.opts.PatchesApplied == nil {
		return nil
	}
	select {
	case <-b.opts.PatchesApplied:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for dependency patches: %w", ctx.Err())
	}
}

// IsBare reports whether spec is served under its own name: a prebuilt
// library or a shared module a build has resolved.
func (b *Builder) IsBare(spec string) bool {
	if slices.Contains(b.opts.Prebuilt, spec) {
		return true
	}
	b.sharedMu.RLock()
	defer b.sharedMu.RUnlock()
	for _, id := range b.shared {
		if id == spec {
			return true
		}
	}
	return false
}

// SharedID returns the id a shared module file is registered under.
func (b *Builder) SharedID(abs string) (string, bool) {
	b.sharedMu.RLock()
	defer b.sharedMu.RUnlock()
	id, ok := b.shared[abs]
	return id, ok
}

// resolveShared finds the shared modules owned by a prebuilt package.
// Modules that do not resolve are left out.
func (b *Builder) resolveShared(env platform.Environment) map[string]string {
	found := sharedPaths(b.opts.Resolver, b.opts.Root, b.opts.Prebuilt, SharedModules, env)
	b.sharedMu.Lock()
	for id, abs := range found {
		b.shared[abs] = id
	}
	b.sharedMu.Unlock()
	return found
}

func sharedPaths(resolver *resolve.Resolver, root string, prebuilt, shared []string, env platform.Environment) map[string]string {
	found := make(map[string]string)
	importer := filepath.Join(root, "package.json")
	for _, id := range shared {
		name, _ := resolve.SplitPackage(id)
		if !slices.Contains(prebuilt, name) {
			continue
		}
		abs, err := resolver.Resolve(id, importer, env)
		if err != nil {
			continue
		}
		if env.IsNative() {
			abs = transform.NativeSibling(abs)
		}
		found[id] = abs
	}
	return found
}

func (b *Builder) entryPath() string {
	if filepath.IsAbs(b.opts.Entry) {
		return b.opts.Entry
	}
	return filepath.Join(b.opts.Root, b.opts.Entry)
}

type compiled struct {
	id        string
	code      string
	importMap map[string]string
	deps      map[string]string
	asset     *assets.Asset
}

func (b *Builder) build(ctx context.Context, env platform.Environment, gen uint64) (*Bundle, error) {
	if err := b.waitForPatches(ctx); err != nil {
		return nil, err
	}
	b.builds.Add(1)
	logger := b.opts.Logger.With("platform", env)
	logger.Info("building bundle")

	prebuilt := make(map[string]string, len(b.opts.Prebuilt))
	for _, pkg := range b.opts.Prebuilt {
		code, err := b.prebuilder.Ensure(ctx, pkg, env, b.opts.Dev)
		if err != nil {
			return nil, err
		}
		prebuilt[pkg] = code
	}

	entry := b.entryPath()
	entryID := transform.ModuleID(b.opts.Root, entry)
	roots := []walkNode{{id: entryID, path: entry}}
	for id, abs := range b.resolveShared(env) {
		roots = append(roots, walkNode{id: id, path: abs})
	}
	modules, err := b.walk(ctx, env, roots)
	if err != nil {
		return nil, err
	}

	var ids []string
	for id := range prebuilt {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var local []string
	for id := range modules {
		if id != entryID {
			local = append(local, id)
		}
	}
	sort.Strings(local)
	ids = append(ids, local...)
	ids = append(ids, entryID)

	var sb strings.Builder
	sb.WriteString(cjs.Preamble)
	bundle := &Bundle{Environment: env, Modules: ids, Generation: gen}
	for _, id := range ids {
		if code, ok := prebuilt[id]; ok {
			sb.WriteString(cjs.WrapModule(id, nil, code))
			continue
		}
		m := modules[id]
		sb.WriteString(cjs.WrapModule(id, m.importMap, m.code))
		if m.asset != nil {
			bundle.Assets = append(bundle.Assets, m.asset)
		}
	}
	core := ""
	if _, ok := prebuilt[b.opts.CoreLibrary]; ok {
		core = b.opts.CoreLibrary
	}
	sb.WriteString(cjs.Bootstrap(entryID, core))
	bundle.Code = sb.String()

	logger.Info("bundle ready", "modules", len(ids), "bytes", sb.Len())
	return bundle, nil
}

type walkNode struct{ id, path string }

// walk compiles the module graph level by level starting at roots.
func (b *Builder) walk(ctx context.Context, env platform.Environment, roots []walkNode) (map[string]*compiled, error) {
	modules := make(map[string]*compiled)
	seen := make(map[string]bool, len(roots))
	for _, n := range roots {
		seen[n.id] = true
	}
	level := roots

	for len(level) > 0 {
		results := make([]*compiled, len(level))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.opts.Concurrency)
		for i, n := range level {
			g.Go(func() error {
				m, err := b.compile(gctx, env, n.id, n.path)
				if err != nil {
					return err
				}
				results[i] = m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []walkNode
		for _, m := range results {
			modules[m.id] = m
			depIDs := make([]string, 0, len(m.deps))
			for id := range m.deps {
				depIDs = append(depIDs, id)
			}
			sort.Strings(depIDs)
			for _, id := range depIDs {
				path := m.deps[id]
				if path == "" || seen[id] {
					continue
				}
				seen[id] = true
				next = append(next, walkNode{id: id, path: path})
			}
		}
		level = next
	}
	return modules, nil
}

func (b *Builder) compile(ctx context.Context, env platform.Environment, id, path string) (*compiled, error) {
	m := &compiled{id: id}
	var source string
	stages := []transform.Stage{
		transform.PluginStage{Chain: b.opts.Plugins},
		transform.StripStage{},
	}

	switch {
	case assets.IsAsset(path):
		asset, err := b.opts.Assets.Describe(path)
		if err != nil {
			return nil, err
		}
		if source, err = asset.ModuleSource(); err != nil {
			return nil, err
		}
		m.asset = asset
		stages = nil
	case strings.HasSuffix(path, ".css"):
		// Styles are not supported natively.
		b.opts.Logger.Debug("css module compiled to an empty object", "file", path, "platform", env)
		return &compiled{id: id, code: "module.exports = {};\n"}, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		source = string(data)
	}

	stages = append(stages,
		transform.ResolveStage{
			Resolver:     b.opts.Resolver,
			Root:         b.opts.Root,
			Bare:         b.IsBare,
			Alias:        b.SharedID,
			PreferNative: env.IsNative(),
		},
		transform.CommonJSStage{ForceExport: env.IsNative()},
	)

	u := &transform.Unit{ID: id, Path: path, Environment: env, Dev: b.opts.Dev, Code: source}
	pipeline := &transform.Pipeline{Stages: stages, Instrument: b.opts.Instrument}
	if err := pipeline.Run(ctx, u); err != nil {
		return nil, err
	}

	m.code = u.Code
	m.importMap = u.ImportMap
	m.deps = u.Deps
	return m, nil
}
