package bundler

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/singleflight"

	"github.com/vxrn/vxrn/internal/platform"
	"github.com/vxrn/vxrn/internal/resolve"
	"github.com/vxrn/vxrn/internal/transform"
)

// DefaultPrebuilt are the runtime libraries bundled ahead of time and
// served under their bare names.
var DefaultPrebuilt = []string{"react-native", "react", "react/jsx-runtime"}

// PrebuiltDir holds prebuilt libraries, relative to the project root.
const PrebuiltDir = "node_modules/.vxrn/prebuilt"

// Prebuilder bundles runtime libraries once per environment and mode and
// keeps the result on disk.
type Prebuilder struct {
	Root     string
	Packages []string
	// Shared modules stay external: a prebuilt package requires them by id
	// rather than inlining them.
	Shared   []string
	Resolver *resolve.Resolver
	Logger   *log.Logger

	group singleflight.Group
}

// Path is where pkg is stored for env in the given mode.
func (p *Prebuilder) Path(pkg string, env platform.Environment, dev bool) string {
	mode := "prod"
	if dev {
		mode = "dev"
	}
	name := strings.ReplaceAll(pkg, "/", "__")
	return filepath.Join(p.Root, filepath.FromSlash(PrebuiltDir), fmt.Sprintf("%s.%s.%s.js", name, env, mode))
}

// Ensure returns the prebuilt CommonJS source of pkg, building it if the
// file is missing.
func (p *Prebuilder) Ensure(ctx context.Context, pkg string, env platform.Environment, dev bool) (string, error) {
	path := p.Path(pkg, env, dev)
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}

	v, err, _ := p.group.Do(path, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, err := p.build(pkg, env, dev)
		if err != nil {
			return nil, err
		}
		if err := writePrebuilt(path, code); err != nil {
			return nil, fmt.Errorf("writing prebuilt %s: %w", pkg, err)
		}
		if p.Logger != nil {
			p.Logger.Info("prebuilt", "package", pkg, "platform", env, "bytes", len(code))
		}
		return code, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// writePrebuilt replaces dst through a unique temporary file, so other
// processes sharing the project never read a partial file.
func writePrebuilt(dst, code string) error {
	dir := filepath.Dir(dst)
	if err := ensureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// sharedPlugin marks imports of shared module files as external under the
// shared module's id.
func sharedPlugin(resolver *resolve.Resolver, env platform.Environment, shared map[string]string) api.Plugin {
	byPath := make(map[string]string, len(shared))
	var names []string
	for id, abs := range shared {
		byPath[canonical(abs)] = id
		base := path.Base(id)
		names = append(names, regexp.QuoteMeta(strings.TrimSuffix(base, path.Ext(base))))
	}
	filter := `(^|/)(` + strings.Join(names, "|") + `)(\.[A-Za-z]+)*$`

	return api.Plugin{
		Name: "vxrn:shared-modules",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Importer == "" {
					return api.OnResolveResult{}, nil
				}
				abs, err := resolver.Resolve(args.Path, args.Importer, env)
				if err != nil {
					return api.OnResolveResult{}, nil
				}
				if env.IsNative() {
					abs = transform.NativeSibling(abs)
				}
				if id, ok := byPath[canonical(abs)]; ok {
					return api.OnResolveResult{Path: id, External: true}, nil
				}
				return api.OnResolveResult{}, nil
			})
		},
	}
}

func canonical(p string) string {
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	return p
}

func (p *Prebuilder) build(pkg string, env platform.Environment, dev bool) (string, error) {
	resolver := p.Resolver
	if resolver == nil {
		resolver = resolve.New()
	}
	entry, err := resolver.Resolve(pkg, filepath.Join(p.Root, "package.json"), env)
	if err != nil {
		return "", fmt.Errorf("prebuilding %s: %w", pkg, err)
	}

	var external []string
	for _, other := range p.Packages {
		if other != pkg {
			external = append(external, other)
		}
	}
	var plugins []api.Plugin
	if shared := sharedPaths(resolver, p.Root, p.Packages, p.Shared, env); len(shared) > 0 {
		plugins = append(plugins, sharedPlugin(resolver, env, shared))
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{entry},
		AbsWorkingDir:     p.Root,
		Bundle:            true,
		Write:             false,
		Outfile:           p.Path(pkg, env, dev),
		Format:            api.FormatCommonJS,
		Platform:          api.PlatformNeutral,
		Target:            api.ES2020,
		MainFields:        env.MainFields(),
		Conditions:        env.Conditions(),
		ResolveExtensions: env.Extensions(),
		External:          external,
		Define:            platform.Defines(dev),
		JSX:               api.JSXAutomatic,
		Loader: map[string]api.Loader{
			".js":  api.LoaderJSX,
			".png": api.LoaderEmpty,
			".jpg": api.LoaderEmpty,
		},
		Plugins:      plugins,
		MinifySyntax: !dev,
		LogLevel:     api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Text
		if loc := result.Errors[0].Location; loc != nil {
			msg = fmt.Sprintf("%s:%d: %s", loc.File, loc.Line, msg)
		}
		return "", fmt.Errorf("prebuilding %s: %s", pkg, msg)
	}
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".js") {
			return string(f.Contents), nil
		}
	}
	return "", fmt.Errorf("prebuilding %s: no output", pkg)
}
