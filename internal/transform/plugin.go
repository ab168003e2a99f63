package transform

import (
	"context"
	"fmt"

	"github.com/vxrn/vxrn/internal/platform"
)

// Source is the input handed to each plugin.
type Source struct {
	Path        string
	Code        string
	Environment platform.Environment
	Dev         bool
}

// Plugin is one user-supplied source transform. Returning the input code
// unchanged is a no-op.
type Plugin interface {
	Name() string
	Transform(ctx context.Context, src Source) (string, error)
}

// PluginFunc adapts a function into a Plugin.
type PluginFunc struct {
	PluginName string
	Fn         func(ctx context.Context, src Source) (string, error)
}

func (p PluginFunc) Name() string { return p.PluginName }

func (p PluginFunc) Transform(ctx context.Context, src Source) (string, error) {
	return p.Fn(ctx, src)
}

// HotUpdateDenylist names plugins that only make sense inside a full graph
// build and are skipped for single-file hot updates.
var HotUpdateDenylist = []string{
	"vxrn:import-graph",
	"vxrn:prebundle",
	"vxrn:asset-manifest",
}

// Chain runs plugins in order.
type Chain []Plugin

// Without returns the chain minus plugins whose names are in deny.
func (c Chain) Without(deny []string) Chain {
	skip := make(map[string]bool, len(deny))
	for _, name := range deny {
		skip[name] = true
	}
	out := make(Chain, 0, len(c))
	for _, p := range c {
		if !skip[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}

// Names lists plugin names in execution order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return names
}

// Run threads the source through every plugin.
func (c Chain) Run(ctx context.Context, src Source) (string, error) {
	for _, p := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := p.Transform(ctx, src)
		if err != nil {
			return "", fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		src.Code = code
	}
	return src.Code, nil
}
