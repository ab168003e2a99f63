package assets

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsAsset(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"logo.png", true},
		{"font/Inter.TTF", true},
		{"clip.mp4", true},
		{"doc.pdf", true},
		{"index.js", false},
		{"styles.css", false},
		{"data.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAsset(tt.path))
		})
	}
}

func TestDescribe(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "src", "img", "logo.png"), 20, 10)
	writePNG(t, filepath.Join(root, "src", "img", "logo@2x.png"), 40, 20)
	writePNG(t, filepath.Join(root, "src", "img", "other.png"), 1, 1)

	reg := NewRegistry(root)
	asset, err := reg.Describe(filepath.Join(root, "src", "img", "logo@2x.png"))
	require.NoError(t, err)

	assert.Equal(t, "logo", asset.Name)
	assert.Equal(t, "png", asset.Type)
	assert.Equal(t, "/assets/src/img", asset.HTTPServerLocation)
	assert.Equal(t, "src/img", asset.RelativeDir)
	assert.Equal(t, []float64{1, 2}, asset.Scales)
	require.NotNil(t, asset.Width)
	assert.Equal(t, 20.0, *asset.Width)
	assert.Equal(t, 10.0, *asset.Height)
	assert.Len(t, asset.Hash, 32)
	assert.Len(t, asset.Files, 2)
}

func TestDescribeScaledOnly(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "icon@3x.png"), 30, 30)

	asset, err := NewRegistry(root).Describe(filepath.Join(root, "icon.png"))
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, asset.Scales)
	assert.Equal(t, "/assets", asset.HTTPServerLocation)
	assert.Equal(t, 10.0, *asset.Width)
}

func TestModuleSource(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 2, 2)

	asset, err := NewRegistry(root).Describe(filepath.Join(root, "a.png"))
	require.NoError(t, err)

	src, err := asset.ModuleSource()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, `module.exports = require("react-native/Libraries/Image/AssetRegistry").registerAsset({"__packager_asset":true,`))
	assert.Contains(t, src, `"name":"a"`)
	assert.Contains(t, src, `"type":"png"`)
}

func TestCopyTo(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writePNG(t, filepath.Join(root, "src", "logo.png"), 2, 2)
	writePNG(t, filepath.Join(root, "src", "logo@2x.png"), 4, 4)

	asset, err := NewRegistry(root).Describe(filepath.Join(root, "src", "logo.png"))
	require.NoError(t, err)

	written, err := asset.CopyTo(out)
	require.NoError(t, err)
	assert.Len(t, written, 2)
	assert.FileExists(t, filepath.Join(out, "assets", "src", "logo.png"))
	assert.FileExists(t, filepath.Join(out, "assets", "src", "logo@2x.png"))
}

func TestLookup(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "src", "logo.png"), 2, 2)
	reg := NewRegistry(root)

	p, err := reg.Lookup("src/logo.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "logo.png"), p)

	p, err = reg.Lookup("/src/logo@3x.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "logo.png"), p)

	_, err = reg.Lookup("src/missing.png")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = reg.Lookup("src/index.js")
	assert.Error(t, err)
}

func TestLookupStaysInsideProject(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "apps", "mobile")
	writeFile(t, filepath.Join(base, "apps", "secrets.yaml"), "token: x")
	writeFile(t, filepath.Join(base, "secrets.yaml"), "token: x")
	writePNG(t, filepath.Join(base, "node_modules", "icons", "star.png"), 1, 1)
	writePNG(t, filepath.Join(root, "assets", "logo.png"), 1, 1)
	reg := NewRegistry(root)

	for _, urlPath := range []string{
		"__parent__/secrets.yaml",
		"../secrets.yaml",
		"__parent__/__parent__/secrets.yaml",
		"assets/__parent__/__parent__/secrets.yaml",
		"assets/../../secrets.yaml",
		"__parent__/__parent__/node_modules/../secrets.yaml",
	} {
		t.Run(urlPath, func(t *testing.T) {
			_, err := reg.Lookup(urlPath)
			assert.ErrorIs(t, err, os.ErrPermission)
		})
	}

	p, err := reg.Lookup("__parent__/__parent__/node_modules/icons/star.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "node_modules", "icons", "star.png"), p)

	p, err = reg.Lookup("assets/__parent__/assets/logo.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "assets", "logo.png"), p)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("a.png"))
	assert.Equal(t, "font/ttf", ContentType("a.ttf"))
	assert.Equal(t, "image/svg+xml", ContentType("a.svg"))
}
