// Package devserver serves native bundles, hot updates and assets to
// devices during development.
//
// A Server owns all mutable dev state: the bundle cache, the hot-update
// caches and the connected-client counters. Several servers can run in one
// process.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/vxrn/vxrn/internal/assets"
	"github.com/vxrn/vxrn/internal/bundler"
	"github.com/vxrn/vxrn/internal/hmr"
	"github.com/vxrn/vxrn/internal/hot"
	"github.com/vxrn/vxrn/internal/patch"
	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
	"github.com/vxrn/vxrn/internal/transform"
	"github.com/vxrn/vxrn/internal/watch"
	"github.com/vxrn/vxrn/internal/worker"
)

// Options configures a Server.
type Options struct {
	Root  string
	Entry string
	Host  string
	Port  int
	// CoreLibrary and Prebuilt are passed to the bundle builder.
	CoreLibrary  string
	Prebuilt     []string
	Plugins      transform.Chain
	HotCacheSize int
	// Patches runs before the first build. Nil skips patching.
	Patches *patch.Engine
	// UseWorker builds bundles on the worker goroutine.
	UseWorker   bool
	WatchIgnore []string
	Logger      *log.Logger
	// Device receives forwarded client logs.
	Device *log.Logger
}

// Server is one dev server instance.
type Server struct {
	opts    Options
	logger  *log.Logger
	assets  *assets.Registry
	builder *bundler.Builder
	hot     *hot.Pipeline
	hub     *hmr.Hub
	worker  *worker.Worker
	router  chi.Router

	patched     chan struct{}
	patchOnce   sync.Once
	patchReport *patch.Report
}

// New wires a Server. Nothing runs until Run or ApplyPatches is called.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Prebuilt == nil {
		opts.Prebuilt = bundler.DefaultPrebuilt
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		assets:  assets.NewRegistry(opts.Root),
		patched: make(chan struct{}),
	}
	resolver := resolve.New()
	clients := hmr.NewCounter()

	s.builder = bundler.New(bundler.Options{
		Root:           opts.Root,
		Entry:          opts.Entry,
		Dev:            true,
		CoreLibrary:    opts.CoreLibrary,
		Prebuilt:       opts.Prebuilt,
		Plugins:        opts.Plugins,
		Resolver:       resolver,
		Assets:         s.assets,
		Logger:         opts.Logger.WithPrefix("bundle"),
		PatchesApplied: s.patched,
	})

	s.hub = hmr.NewHub(hmr.Options{
		Clients: clients,
		Logger:  opts.Logger.WithPrefix("hmr"),
		Device:  opts.Device,
	})

	pipeline, err := hot.New(hot.Options{
		Root:      opts.Root,
		Plugins:   opts.Plugins,
		Resolver:  resolver,
		Bare:      s.builder.IsBare,
		Alias:     s.builder.SharedID,
		Clients:   clients,
		CacheSize: opts.HotCacheSize,
		Logger:    opts.Logger.WithPrefix("hot"),
		OnBuilt: func(e *hot.Entry) {
			s.hub.Built(e.Environment, e.ID, e.Hash)
		},
	})
	if err != nil {
		return nil, err
	}
	s.hot = pipeline

	if opts.UseWorker {
		s.worker = worker.New(map[string]worker.Handler{
			worker.Build: s.buildHandler,
		}, opts.Logger.WithPrefix("worker"))
	}

	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Builder returns the server's bundle builder.
func (s *Server) Builder() *bundler.Builder {
	return s.builder
}

// Hub returns the server's HMR hub.
func (s *Server) Hub() *hmr.Hub {
	return s.hub
}

// Addr is the address Run listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// ApplyPatches runs the patch engine once and then lets builds start.
// Patch failures are logged; builds proceed either way.
func (s *Server) ApplyPatches(ctx context.Context) *patch.Report {
	s.patchOnce.Do(func() {
		defer close(s.patched)
		if s.opts.Patches == nil {
			return
		}
		report, err := s.opts.Patches.Apply(ctx, s.opts.Root)
		if err != nil {
			s.logger.Error("patching dependencies", "error", err)
			return
		}
		for _, e := range report.Errors {
			s.logger.Warn("patch failed", "module", e.Module, "file", e.File, "error", e.Err)
		}
		s.logger.Info("dependencies patched", "patched", len(report.Patched), "skipped", report.Skipped)
		s.patchReport = report
	})
	return s.patchReport
}

// HandleChanges drops cached bundles and resolutions, then rebuilds hot
// updates for the changed files. It is the watcher's callback.
func (s *Server) HandleChanges(ctx context.Context, changed []string) error {
	s.builder.Invalidate()
	s.hot.Reset()

	for _, env := range s.hot.Environments() {
		if s.hub.Clients().Count(env) > 0 {
			s.hub.Building(env)
		}
	}
	var errs []error
	for _, path := range changed {
		if err := s.hot.Update(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run patches dependencies, then serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	w, err := watch.New(watch.Config{
		Root:     s.opts.Root,
		Ignore:   s.opts.WatchIgnore,
		OnChange: s.HandleChanges,
		Logger:   s.logger.WithPrefix("watch"),
	})
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.ApplyPatches(gctx)
		return nil
	})
	if s.worker != nil {
		g.Go(func() error {
			s.worker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		s.logger.Info("dev server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/status", s.handleStatus)
	r.Get("/file", s.handleFile)
	r.Get("/index.bundle", s.handleBundle)
	r.Get("/.expo/.virtual-metro-entry.bundle", s.handleBundle)
	r.Get(assets.URLPrefix+"*", s.handleAsset)
	r.Get("/symbolicate", s.handleSymbolicate)
	r.Post("/symbolicate", s.handleSymbolicate)
	s.hub.Routes(r)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "elapsed", time.Since(start))
	})
}

func (s *Server) buildHandler(ctx context.Context, arg string) (any, error) {
	env, err := platform.Parse(arg)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, env)
}

// bundle builds env directly or through the worker.
func (s *Server) bundle(ctx context.Context, env platform.Environment) (*bundler.Bundle, error) {
	if s.worker == nil {
		return s.builder.Build(ctx, env)
	}
	res, err := s.worker.Call(ctx, worker.Build, string(env))
	if err != nil {
		return nil, err
	}
	return res.(*bundler.Bundle), nil
}
