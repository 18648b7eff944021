package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Traejpg/mission-control-sub000/internal/checksum"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

const ext = ".md"

// DefaultPattern matches Markdown files at the top level of the vault.
const DefaultPattern = "*.md"

// FS implements Provider backed by the local file system.
type FS struct {
	root    string // absolute path to vault directory
	pattern glob.Glob
}

// NewFS creates a new FS provider rooted at the given directory. Only files
// whose slash-separated relative path matches pattern are listed; "*" does
// not cross directory boundaries. The directory must already exist.
func NewFS(root, pattern string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("storage: compile pattern %q: %w", pattern, err)
	}
	return &FS{root: abs, pattern: g}, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// KeyFor maps an absolute or root-relative file path to a document key.
// It reports false for paths that are outside the vault or not matched by
// the vault pattern.
func (f *FS) KeyFor(path string) (string, bool) {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(f.root, path)
		if err != nil || strings.HasPrefix(r, "..") {
			return "", false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, ext) || !f.pattern.Match(rel) {
		return "", false
	}
	return strings.TrimSuffix(rel, ext), true
}

// safePath resolves a key against the vault root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	cleaned := filepath.Clean(filepath.FromSlash(key) + ext)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", key)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes vault root: %s", key)
	}
	return abs, nil
}

// List walks the vault and returns an entry for every matching document.
// A document that exists but cannot be read is still listed, with Err set,
// so one broken file does not hide the rest of the vault. A file that
// disappears while the vault is being walked is left out.
func (f *FS) List() ([]models.SourceEntry, error) {
	var out []models.SourceEntry
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == f.root {
				return walkErr
			}
			if d == nil || d.IsDir() {
				return nil
			}
		}
		if d.IsDir() {
			if p != f.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		key, ok := f.KeyFor(p)
		if !ok {
			return nil
		}
		if walkErr != nil {
			out = append(out, models.SourceEntry{Key: key, Err: walkErr})
			return nil
		}
		info, err := os.Stat(p)
		if err == nil {
			var data []byte
			if data, err = os.ReadFile(p); err == nil {
				out = append(out, models.SourceEntry{
					Key:      key,
					Checksum: checksum.Sum(data),
					ModTime:  info.ModTime().UnixMilli(),
				})
				return nil
			}
		}
		// Gone since the directory was read.
		if _, lerr := os.Lstat(p); errors.Is(lerr, fs.ErrNotExist) {
			return nil
		}
		out = append(out, models.SourceEntry{Key: key, Err: fmt.Errorf("storage: read %s: %w", key, err)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a vault document.
func (f *FS) Read(key string) ([]byte, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(key string, content []byte) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".memsync-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a document from the vault.
func (f *FS) Delete(key string) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}
