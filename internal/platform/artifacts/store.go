// Package artifacts persists issued certificate documents as write-once files.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

var (
	// ErrNotFound indicates no artifact exists under the requested name.
	ErrNotFound = errors.New("artifacts: not found")
	// ErrExists indicates an artifact with the same name was already written.
	ErrExists = errors.New("artifacts: already exists")
	// ErrInvalidName indicates the name is not a plain file name.
	ErrInvalidName = errors.New("artifacts: invalid name")
	// ErrNotWritable indicates the store directory cannot accept writes.
	ErrNotWritable = errors.New("artifacts: directory not writable")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".html": "text/html; charset=utf-8",
}

// Object describes a stored artifact.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Store keeps artifacts in a flat directory of a billy filesystem.
type Store struct {
	fs billy.Filesystem
}

// NewStore wraps an existing filesystem.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// NewOSStore creates dir when missing and returns a store rooted there.
func NewOSStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("artifacts: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", dir, err)
	}
	return NewStore(osfs.New(dir)), nil
}

// ContentType returns the MIME type for an artifact name based on its extension.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// EnsureWritable probes the directory with a throwaway file.
func (s *Store) EnsureWritable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := s.fs.TempFile(".", ".probe-")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	name := f.Name()
	_, writeErr := f.Write([]byte("ok"))
	closeErr := f.Close()
	removeErr := s.fs.Remove(name)
	if err := errors.Join(writeErr, closeErr, removeErr); err != nil {
		return fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	return nil
}

// Save writes data under name. The file becomes visible only once fully written and an
// existing artifact is never replaced.
func (s *Store) Save(ctx context.Context, name string, data []byte) (Object, error) {
	if err := checkName(name); err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if _, err := s.fs.Stat(name); err == nil {
		return Object{}, fmt.Errorf("%w: %s", ErrExists, name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Object{}, fmt.Errorf("artifacts: stat %s: %w", name, err)
	}

	tmp, err := s.fs.TempFile(".", ".tmp-"+name+"-")
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return Object{}, fmt.Errorf("artifacts: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return Object{}, fmt.Errorf("artifacts: close %s: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return Object{}, fmt.Errorf("artifacts: publish %s: %w", name, err)
	}
	return s.Stat(ctx, name)
}

// Stat returns metadata for name.
func (s *Store) Stat(ctx context.Context, name string) (Object, error) {
	if err := checkName(name); err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	info, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Object{}, fmt.Errorf("artifacts: stat %s: %w", name, err)
	}
	if info.IsDir() {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Object{
		Name:        name,
		ContentType: ContentType(name),
		Size:        info.Size(),
		ModTime:     info.ModTime().UTC(),
	}, nil
}

// Open returns a reader for name. Callers must close it.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, Object, error) {
	obj, err := s.Stat(ctx, name)
	if err != nil {
		return nil, Object{}, err
	}
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, Object{}, fmt.Errorf("artifacts: open %s: %w", name, err)
	}
	return f, obj, nil
}

// Remove deletes name. Removing a missing artifact is not an error.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("artifacts: remove %s: %w", name, err)
	}
	return nil
}

// Find returns the first existing artifact named base+ext for the given extensions.
func (s *Store) Find(ctx context.Context, base string, exts ...string) (Object, error) {
	for _, ext := range exts {
		obj, err := s.Stat(ctx, base+ext)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Object{}, err
		}
	}
	return Object{}, fmt.Errorf("%w: %s", ErrNotFound, base)
}

func checkName(name string) error {
	if !validName.MatchString(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
