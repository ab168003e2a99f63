package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ShadowSuffix marks the pristine copy saved beside a patched file.
const ShadowSuffix = ".vxrn.original"

func shadowPath(path string) string {
	return path + ShadowSuffix
}

// writeAtomic replaces path through a temp file in the same directory so
// readers never see a partial write.
func writeAtomic(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".vxrn-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// FindNodeModules lists every node_modules directory under root: those in
// the project tree (workspaces included) and those nested inside installed
// packages. Dot directories are skipped.
func FindNodeModules(root string) ([]string, error) {
	var roots []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if name == "node_modules" {
			roots = append(roots, nestedNodeModules(path)...)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s for node_modules: %w", root, err)
	}
	return roots, nil
}

func nestedNodeModules(nm string) []string {
	out := []string{nm}
	for _, pkg := range listPackages(nm) {
		nested := filepath.Join(pkg, "node_modules")
		if info, err := os.Stat(nested); err == nil && info.IsDir() {
			out = append(out, nestedNodeModules(nested)...)
		}
	}
	return out
}

// listPackages returns package directories in a node_modules directory,
// expanding @scope folders.
func listPackages(nm string) []string {
	entries, err := os.ReadDir(nm)
	if err != nil {
		return nil
	}
	var pkgs []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !isDirEntry(nm, entry) {
			continue
		}
		if strings.HasPrefix(name, "@") {
			scoped, _ := os.ReadDir(filepath.Join(nm, name))
			for _, s := range scoped {
				if isDirEntry(filepath.Join(nm, name), s) {
					pkgs = append(pkgs, filepath.Join(nm, name, s.Name()))
				}
			}
			continue
		}
		pkgs = append(pkgs, filepath.Join(nm, name))
	}
	return pkgs
}

// isDirEntry follows symlinks, which workspace installs use for packages.
func isDirEntry(dir string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.IsDir()
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
