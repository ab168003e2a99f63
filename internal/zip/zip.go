// Package zip archives a production export directory.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Directory archives srcDir into a sibling "<srcDir>.zip" and returns its
// path. Entry names are slash-separated and relative to srcDir.
func Directory(srcDir string) (string, error) {
	absDir, err := filepath.Abs(srcDir)
	if err != nil {
		return "", fmt.Errorf("resolving directory path: %w", err)
	}
	zipPath := absDir + ".zip"
	if err := DirectoryTo(absDir, zipPath); err != nil {
		return "", err
	}
	return zipPath, nil
}

// DirectoryTo archives srcDir into zipPath, which must lie outside srcDir.
func DirectoryTo(srcDir, zipPath string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("source directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", srcDir)
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("creating zip file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing zip file: %w", cerr)
		}
		if err != nil {
			os.Remove(zipPath)
		}
	}()

	w := zip.NewWriter(f)
	if err := fs.WalkDir(os.DirFS(srcDir), ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || name == "." {
			return err
		}
		return addEntry(w, srcDir, name, d)
	}); err != nil {
		w.Close()
		return fmt.Errorf("adding files to zip: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing zip: %w", err)
	}
	return nil
}

func addEntry(w *zip.Writer, root, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", name, err)
	}
	header.Name = name
	if d.IsDir() {
		header.Name += "/"
		_, err := w.CreateHeader(header)
		return err
	}
	header.Method = zip.Deflate

	dst, err := w.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("creating zip entry %s: %w", name, err)
	}
	src, err := os.Open(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return fmt.Errorf("opening file %s: %w", name, err)
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
