package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileInfo describes a path in a Store.
type FileInfo struct {
	Exists bool
	IsDir  bool
	Mode   fs.FileMode
}

// Store is the backing file tree a Changeset reads from and commits to.
// Paths handed to Stat, ReadFile, WriteFile and Remove are keys returned by
// Resolve.
type Store interface {
	Resolve(path string) (string, error)
	Stat(key string) (FileInfo, error)
	ReadFile(key string) ([]byte, error)
	WriteFile(key string, data []byte, perm fs.FileMode) error
	Remove(key string) error
}

// FilesystemStore reads and writes files below Root. Paths that are absolute
// or escape Root are rejected.
type FilesystemStore struct {
	Root string
}

// NewFilesystemStore returns a store rooted at root, defaulting to the current
// working directory.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return &FilesystemStore{Root: abs}, nil
}

// Resolve returns the slash-separated path relative to Root.
func (s *FilesystemStore) Resolve(p string) (string, error) {
	rel := strings.TrimSpace(p)
	if rel == "" {
		return "", failf(CodeParse, "invalid patch path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", failf(CodeOutsideRoot, "Path must be relative to the project root: %s", p)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", failf(CodeOutsideRoot, "Path escapes the project root: %s", p)
	}
	return filepath.ToSlash(cleaned), nil
}

func (s *FilesystemStore) abs(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

func (s *FilesystemStore) Stat(key string) (FileInfo, error) {
	info, err := os.Stat(s.abs(key))
	switch {
	case err == nil:
		return FileInfo{Exists: true, IsDir: info.IsDir(), Mode: info.Mode()}, nil
	case errors.Is(err, fs.ErrNotExist):
		return FileInfo{}, nil
	default:
		return FileInfo{}, failf(CodeIO, "failed to stat %s: %v", key, err)
	}
}

func (s *FilesystemStore) ReadFile(key string) ([]byte, error) {
	data, err := os.ReadFile(s.abs(key))
	if err != nil {
		return nil, failf(CodeIO, "failed to read %s: %v", key, err)
	}
	return data, nil
}

func (s *FilesystemStore) WriteFile(key string, data []byte, perm fs.FileMode) error {
	target := s.abs(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failf(CodeIO, "failed to create directory for %s: %v", key, err)
	}
	if perm&fs.ModePerm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(target, data, perm&fs.ModePerm); err != nil {
		return failf(CodeIO, "Could not write file %s: %v", key, err)
	}
	return nil
}

func (s *FilesystemStore) Remove(key string) error {
	if err := os.Remove(s.abs(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return failf(CodeIO, "Failed to delete file %s: %v", key, err)
	}
	return nil
}

// MemoryStore keeps documents in a map keyed by cleaned relative path.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemoryStore copies files into a new store.
func NewMemoryStore(files map[string]string) *MemoryStore {
	snapshot := make(map[string]string, len(files))
	for k, v := range files {
		snapshot[path.Clean(k)] = v
	}
	return &MemoryStore{files: snapshot}
}

// Files returns a snapshot of the store contents.
func (s *MemoryStore) Files() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}

// Paths lists the stored paths in lexical order.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for k := range s.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) Resolve(p string) (string, error) {
	rel := path.Clean(strings.TrimSpace(p))
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", failf(CodeOutsideRoot, "invalid patch path: %s", p)
	}
	return rel, nil
}

func (s *MemoryStore) Stat(key string) (FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.files[key]; ok {
		return FileInfo{Exists: true, Mode: 0o644}, nil
	}
	prefix := key + "/"
	for k := range s.files {
		if strings.HasPrefix(k, prefix) {
			return FileInfo{Exists: true, IsDir: true}, nil
		}
	}
	return FileInfo{}, nil
}

func (s *MemoryStore) ReadFile(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[key]
	if !ok {
		return nil, failf(CodeFileNotFound, "File not found: %s", key)
	}
	return []byte(content), nil
}

func (s *MemoryStore) WriteFile(key string, data []byte, _ fs.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = string(data)
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}
