// Package patch rewrites files inside node_modules so the native bundler
// can load them. Every patch is reversible: the first write of a file saves
// its pristine content next to it, and later runs always start from that
// copy.
package patch

import (
	"strings"

	"github.com/vxrn/vxrn/internal/transform"
)

// Result is what a strategy produced for one file.
type Result struct {
	Changed bool
	Content string
}

// Unchanged is the result of a strategy that had nothing to do.
func Unchanged() Result { return Result{} }

// Changed wraps new file content.
func Changed(content string) Result { return Result{Changed: true, Content: content} }

// Strategy computes the patched content of one file from its original
// content.
type Strategy interface {
	Apply(path, content string) (Result, error)
}

// Literal replaces every occurrence of Old with New.
type Literal struct {
	Old string
	New string
}

func (l Literal) Apply(_ string, content string) (Result, error) {
	if l.Old == "" || !strings.Contains(content, l.Old) {
		return Unchanged(), nil
	}
	return Changed(strings.ReplaceAll(content, l.Old, l.New)), nil
}

// Step is one named source transform.
type Step struct {
	Name string
	Fn   func(code, path string) (string, error)
}

// Named transform steps.
var (
	StripFlow = Step{Name: "flow", Fn: transform.StripFlow}
	StripJSX  = Step{Name: "jsx", Fn: transform.StripJSX}
	ToCJS     = Step{Name: "commonjs", Fn: transform.ToCommonJS}
)

// Transforms runs steps in order over the file.
type Transforms []Step

func (t Transforms) Apply(path, content string) (Result, error) {
	code := content
	for _, step := range t {
		out, err := step.Fn(code, path)
		if err != nil {
			return Result{}, err
		}
		code = out
	}
	if code == content {
		return Unchanged(), nil
	}
	return Changed(code), nil
}

// Func is a custom strategy.
type Func func(path, content string) (Result, error)

func (f Func) Apply(path, content string) (Result, error) {
	return f(path, content)
}

// File selects files in a package by doublestar glob, relative to the
// package directory, and the strategy to apply to them.
type File struct {
	Glob     string
	Strategy Strategy
}

// Rule patches one package.
type Rule struct {
	// Module is the package name, e.g. "react-native" or "@scope/pkg".
	Module string
	// Version is an optional semver constraint the installed version must
	// satisfy, e.g. ">=0.72 <0.75".
	Version string
	Files   []File
}
