// Package hot turns changed source files into hot-update payloads that a
// connected native client can fetch and evaluate.
//
// Each environment keeps its own bounded cache of the latest payload per
// module id. A failed transform leaves the previous payload in place.
package hot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vxrn/vxrn/internal/assets"
	"github.com/vxrn/vxrn/internal/cjs"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
	"github.com/vxrn/vxrn/internal/transform"
)

// DefaultCacheSize bounds the number of payloads kept per environment.
const DefaultCacheSize = 500

// Entry is the latest hot-update payload for one module.
type Entry struct {
	ID          string
	Environment platform.Environment
	// Code evaluates to the module's fresh exports.
	Code      string
	ImportMap map[string]string
	// Hash changes on every successful transform.
	Hash  string
	Built time.Time
}

// TransformError reports a file that could not be turned into a payload.
type TransformError struct {
	Path        string
	Environment platform.Environment
	Err         error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("hot update %s for %s: %v", e.Path, e.Environment, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ClientCounter reports how many native clients are connected per
// environment.
type ClientCounter interface {
	Count(env platform.Environment) int
}

// Options configures a Pipeline.
type Options struct {
	Root string
	// Plugins is the full plugin chain; plugins in
	// transform.HotUpdateDenylist are dropped.
	Plugins  transform.Chain
	Resolver *resolve.Resolver
	// Bare reports specifiers served under their own name by the bundle,
	// such as prebuilt libraries.
	Bare func(spec string) bool
	// Alias maps resolved files to the ids the bundle registered them
	// under.
	Alias func(abs string) (string, bool)
	// Clients gates work: environments with no connected client are
	// skipped. Nil transforms for every environment.
	Clients      ClientCounter
	Environments []platform.Environment
	CacheSize    int
	Logger       *log.Logger
	Instrument   transform.Instrument
	// OnBuilt is called after each successful transform.
	OnBuilt func(*Entry)
}

// Pipeline transforms changed files into hot-update payloads.
type Pipeline struct {
	opts    Options
	plugins transform.Chain
	// caches is fixed after New; the caches themselves are thread safe.
	caches map[platform.Environment]*lru.Cache[string, *Entry]
}

// New returns a Pipeline with one cache per environment.
func New(opts Options) (*Pipeline, error) {
	if opts.Resolver == nil {
		opts.Resolver = resolve.New()
	}
	if len(opts.Environments) == 0 {
		opts.Environments = platform.Native
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Instrument == nil {
		opts.Instrument = transform.LogInstrument{Logger: opts.Logger}
	}

	p := &Pipeline{
		opts:    opts,
		plugins: opts.Plugins.Without(transform.HotUpdateDenylist),
		caches:  make(map[platform.Environment]*lru.Cache[string, *Entry], len(opts.Environments)),
	}
	for _, env := range opts.Environments {
		cache, err := lru.New[string, *Entry](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating hot update cache: %w", err)
		}
		p.caches[env] = cache
	}
	return p, nil
}

// Handles reports whether path is something the pipeline transforms.
// Assets and styles only change through a full reload.
func Handles(path string) bool {
	return transform.IsSource(path) && !assets.IsAsset(path)
}

// Update transforms path for every environment with a connected client.
// Failures are logged and returned joined; cached payloads for failed
// environments are left untouched.
func (p *Pipeline) Update(ctx context.Context, path string) error {
	if !Handles(path) {
		return nil
	}
	var errs []error
	for _, env := range p.opts.Environments {
		if p.opts.Clients != nil && p.opts.Clients.Count(env) == 0 {
			p.opts.Logger.Debug("no clients, skipping", "platform", env, "file", path)
			continue
		}
		if _, err := p.Transform(ctx, env, path); err != nil {
			p.opts.Logger.Error("hot update failed", "platform", env, "file", path, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Transform builds and caches the payload for path in env.
func (p *Pipeline) Transform(ctx context.Context, env platform.Environment, path string) (*Entry, error) {
	cache, ok := p.cache(env)
	if !ok {
		return nil, &TransformError{Path: path, Environment: env, Err: fmt.Errorf("environment not served")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TransformError{Path: path, Environment: env, Err: err}
	}

	u := &transform.Unit{
		ID:          transform.ModuleID(p.opts.Root, path),
		Path:        path,
		Environment: env,
		Dev:         true,
		Code:        string(data),
	}
	pipeline := &transform.Pipeline{Stages: p.stages(), Instrument: p.opts.Instrument}
	if err := pipeline.Run(ctx, u); err != nil {
		return nil, &TransformError{Path: path, Environment: env, Err: err}
	}

	entry := &Entry{
		ID:          u.ID,
		Environment: env,
		Code:        cjs.WrapHotUpdate(u.ID, u.ImportMap, u.Code),
		ImportMap:   u.ImportMap,
		Hash:        uuid.NewString(),
		Built:       time.Now(),
	}
	cache.Add(entry.ID, entry)
	p.opts.Logger.Info("hot update ready", "platform", env, "id", entry.ID)

	if p.opts.OnBuilt != nil {
		p.opts.OnBuilt(entry)
	}
	return entry, nil
}

// Get returns the cached payload for id in env.
func (p *Pipeline) Get(env platform.Environment, id string) (*Entry, bool) {
	cache, ok := p.cache(env)
	if !ok {
		return nil, false
	}
	return cache.Get(id)
}

// Len returns the number of cached payloads for env.
func (p *Pipeline) Len(env platform.Environment) int {
	cache, ok := p.cache(env)
	if !ok {
		return 0
	}
	return cache.Len()
}

// Environments lists the environments the pipeline serves.
func (p *Pipeline) Environments() []platform.Environment {
	return slices.Clone(p.opts.Environments)
}

// Reset drops resolver state so the next transform sees new files.
func (p *Pipeline) Reset() {
	p.opts.Resolver.Reset()
}

func (p *Pipeline) cache(env platform.Environment) (*lru.Cache[string, *Entry], bool) {
	cache, ok := p.caches[env]
	return cache, ok
}

func (p *Pipeline) stages() []transform.Stage {
	return []transform.Stage{
		transform.PluginStage{Chain: p.plugins},
		transform.StripStage{},
		transform.ResolveStage{
			Resolver:     p.opts.Resolver,
			Root:         p.opts.Root,
			Bare:         p.opts.Bare,
			Alias:        p.opts.Alias,
			PreferNative: true,
		},
		transform.RewriteStage{},
		transform.CommonJSStage{StripHotAPIs: true, ForceExport: true},
	}
}
