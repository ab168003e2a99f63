// Package assets recognizes binary assets (images, media, fonts, documents)
// and turns them into modules that register with the native asset registry.
package assets

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RegistryModule is the module every asset module registers itself with.
const RegistryModule = "react-native/Libraries/Image/AssetRegistry"

// URLPrefix is the dev-server route that serves raw asset bytes.
const URLPrefix = "/assets/"

// parentSegment stands in for ".." in asset URLs so hoisted monorepo
// packages outside the project root stay addressable.
const parentSegment = "__parent__"

var extensions = map[string]bool{
	// images
	".bmp": true, ".gif": true, ".jpg": true, ".jpeg": true, ".png": true, ".psd": true,
	".svg": true, ".webp": true, ".avif": true, ".heic": true,
	// video
	".m4v": true, ".mov": true, ".mp4": true, ".mpeg": true, ".mpg": true, ".webm": true,
	// audio
	".aac": true, ".aiff": true, ".caf": true, ".m4a": true, ".mp3": true, ".wav": true,
	// documents
	".html": true, ".pdf": true, ".yaml": true, ".yml": true, ".xml": true, ".zip": true,
	// fonts
	".otf": true, ".ttf": true, ".woff": true, ".woff2": true,
}

var scaledName = regexp.MustCompile(`^(.+?)@(\d+(?:\.\d+)?)x$`)

// IsAssetExtension reports whether ext (with dot) is on the asset allowlist.
func IsAssetExtension(ext string) bool {
	return extensions[strings.ToLower(ext)]
}

// IsAsset reports whether path names an asset by its extension.
func IsAsset(path string) bool {
	return IsAssetExtension(filepath.Ext(path))
}

// Asset is the metadata registered with the native runtime for one logical
// asset (all of its scale variants).
type Asset struct {
	HTTPServerLocation string    `json:"httpServerLocation"`
	Width              *float64  `json:"width,omitempty"`
	Height             *float64  `json:"height,omitempty"`
	Scales             []float64 `json:"scales"`
	Hash               string    `json:"hash"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	FileSystemLocation string    `json:"fileSystemLocation"`

	// RelativeDir is the directory of the asset relative to the project
	// root, slash separated.
	RelativeDir string `json:"-"`
	// Files holds the absolute path of each scale variant, index-aligned
	// with Scales.
	Files []string `json:"-"`
}

// Registry describes, serves and copies assets for one project root.
type Registry struct {
	root string
}

// NewRegistry creates a Registry rooted at projectRoot.
func NewRegistry(projectRoot string) *Registry {
	return &Registry{root: projectRoot}
}

// Root returns the project root the registry was created with.
func (r *Registry) Root() string {
	return r.root
}

// FindScaled returns the first existing file for a logical asset path:
// the path itself, then its @1x, @2x and @3x variants.
func FindScaled(path string) (string, bool) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for _, scale := range []string{"@1x", "@2x", "@3x"} {
		candidate := base + scale + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Describe collects registry metadata for the asset at path. path may name
// the logical file ("logo.png") or any scale variant ("logo@2x.png").
func (r *Registry) Describe(path string) (*Asset, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)
	if m := scaledName.FindStringSubmatch(name); m != nil {
		name = m[1]
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading asset directory %s: %w", dir, err)
	}

	type variant struct {
		scale float64
		path  string
	}
	var variants []variant
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		scale := 1.0
		if m := scaledName.FindStringSubmatch(stem); m != nil {
			stem = m[1]
			scale, _ = strconv.ParseFloat(m[2], 64)
		}
		if stem == name {
			variants = append(variants, variant{scale: scale, path: filepath.Join(dir, entry.Name())})
		}
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("asset %s not found", path)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].scale < variants[j].scale })

	rel, err := filepath.Rel(r.root, dir)
	if err != nil {
		return nil, fmt.Errorf("computing asset location: %w", err)
	}
	relDir := filepath.ToSlash(rel)
	if relDir == "." {
		relDir = ""
	}

	asset := &Asset{
		HTTPServerLocation: strings.TrimSuffix(URLPrefix+encodeRelDir(relDir), "/"),
		Name:               name,
		Type:               strings.TrimPrefix(strings.ToLower(ext), "."),
		FileSystemLocation: dir,
		RelativeDir:        relDir,
	}

	h := md5.New()
	for _, v := range variants {
		asset.Scales = append(asset.Scales, v.scale)
		asset.Files = append(asset.Files, v.path)
		if err := hashFile(h, v.path); err != nil {
			return nil, err
		}
	}
	asset.Hash = hex.EncodeToString(h.Sum(nil))

	if w, hgt, ok := dimensions(variants[0].path); ok {
		w /= variants[0].scale
		hgt /= variants[0].scale
		asset.Width, asset.Height = &w, &hgt
	}

	return asset, nil
}

// ModuleSource returns a CommonJS module that registers the asset with the
// native registry and exports the returned reference.
func (a *Asset) ModuleSource() (string, error) {
	payload := struct {
		PackagerAsset bool `json:"__packager_asset"`
		*Asset
	}{PackagerAsset: true, Asset: a}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding asset %s: %w", a.Name, err)
	}
	return fmt.Sprintf("module.exports = require(%q).registerAsset(%s);\n", RegistryModule, data), nil
}

// CopyTo copies every scale variant into outDir/assets, preserving the
// asset's location relative to the project root. It returns the written paths.
func (a *Asset) CopyTo(outDir string) ([]string, error) {
	dest := filepath.Join(outDir, "assets", filepath.FromSlash(encodeRelDir(a.RelativeDir)))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dest, err)
	}

	var written []string
	for _, src := range a.Files {
		target := filepath.Join(dest, filepath.Base(src))
		if err := copyFile(src, target); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

// Lookup maps a dev-server asset URL path (without the /assets/ prefix) to
// the file on disk. A missing scale variant falls back to the logical file.
// Only files inside the project or inside an ancestor's node_modules are
// served.
func (r *Registry) Lookup(urlPath string) (string, error) {
	raw := strings.TrimPrefix(urlPath, "/")
	if slices.Contains(strings.Split(raw, "/"), "..") || strings.Contains(raw, `\`) {
		return "", fmt.Errorf("asset %s: %w", urlPath, os.ErrPermission)
	}
	rel := decodeRelDir(raw)
	if !IsAsset(rel) {
		return "", fmt.Errorf("%s is not an asset", urlPath)
	}
	path := filepath.Join(r.root, filepath.FromSlash(rel))
	if !r.servable(path) {
		return "", fmt.Errorf("asset %s is outside the project: %w", urlPath, os.ErrPermission)
	}
	if p, ok := FindScaled(path); ok {
		return p, nil
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if m := scaledName.FindStringSubmatch(filepath.Base(stem)); m != nil {
		if p, ok := FindScaled(filepath.Join(filepath.Dir(path), m[1]+ext)); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("asset %s: %w", urlPath, os.ErrNotExist)
}

// servable reports whether path lies inside the project root or inside the
// node_modules directory of one of the root's ancestors, where hoisted
// packages live.
func (r *Registry) servable(path string) bool {
	root, err := filepath.Abs(r.root)
	if err != nil {
		return false
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return false
	}
	if within(root, path) {
		return true
	}
	for dir := filepath.Dir(root); ; dir = filepath.Dir(dir) {
		if within(filepath.Join(dir, "node_modules"), path) {
			return true
		}
		if filepath.Dir(dir) == dir {
			return false
		}
	}
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ContentType returns the MIME type served for an asset file.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".caf":
		return "audio/x-caf"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func encodeRelDir(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		if p == ".." {
			parts[i] = parentSegment
		}
	}
	return strings.Join(parts, "/")
}

func decodeRelDir(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		if p == parentSegment {
			parts[i] = ".."
		}
	}
	return strings.Join(parts, "/")
}

func dimensions(path string) (float64, float64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}
	return float64(cfg.Width), float64(cfg.Height), true
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening asset %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("hashing asset %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
