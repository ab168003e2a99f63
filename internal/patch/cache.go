package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// CacheFile is the fingerprint cache location inside each node_modules
// directory.
const CacheFile = ".vxrn/patch-cache.json"

// Fingerprint is the size and modification time of a file right after it
// was last processed.
type Fingerprint struct {
	Size    int64   `json:"size"`
	MtimeMs float64 `json:"mtimeMs"`
}

func fingerprintOf(info fs.FileInfo) Fingerprint {
	return Fingerprint{
		Size:    info.Size(),
		MtimeMs: float64(info.ModTime().UnixNano()) / 1e6,
	}
}

// cache holds the fingerprints of one node_modules directory.
type cache struct {
	path    string
	mu      sync.Mutex
	entries map[string]Fingerprint
	dirty   bool
}

func loadCache(nodeModules string) (*cache, error) {
	c := &cache{
		path:    filepath.Join(nodeModules, filepath.FromSlash(CacheFile)),
		entries: make(map[string]Fingerprint),
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading patch cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache only costs a full re-check.
		c.entries = make(map[string]Fingerprint)
		c.dirty = true
	}
	return c, nil
}

func (c *cache) matches(path string, fp Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.entries[path]
	return ok && prev == fp
}

func (c *cache) set(path string, fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[path]; ok && prev == fp {
		return
	}
	c.entries[path] = fp
	c.dirty = true
}

func (c *cache) save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding patch cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := writeAtomic(c.path, append(data, '\n')); err != nil {
		return fmt.Errorf("writing patch cache: %w", err)
	}
	c.dirty = false
	return nil
}

// Len is the number of recorded fingerprints.
func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
