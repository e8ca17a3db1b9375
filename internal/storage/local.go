package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalFilesystem stores files in directories on disk
type LocalFilesystem struct {
	roots map[Directory]string
}

// NewLocalFilesystem creates a local filesystem. Each directory maps to a root path;
// roots are made absolute and created if they don't exist.
func NewLocalFilesystem(roots map[Directory]string) (*LocalFilesystem, error) {
	abs := make(map[Directory]string, len(roots))
	for dir, root := range roots {
		p, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s root: %w", dir, err)
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s root: %w", dir, err)
		}
		abs[dir] = p
	}

	return &LocalFilesystem{roots: abs}, nil
}

// Root returns the absolute root of a directory
func (l *LocalFilesystem) Root(dir Directory) (string, bool) {
	root, ok := l.roots[dir]
	return root, ok
}

// WriteFile implements Filesystem
func (l *LocalFilesystem) WriteFile(ctx context.Context, opts WriteFileOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full, err := l.resolve(opts.Path, opts.Directory)
	if err != nil {
		return "", err
	}

	data, err := DecodeData(opts.Data)
	if err != nil {
		return "", err
	}

	parent := filepath.Dir(full)
	if opts.Recursive {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	} else if _, err := os.Stat(parent); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrParentMissing
		}
		return "", fmt.Errorf("failed to stat directory: %w", err)
	}

	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return fileURI(full), nil
}

// ReadFile implements Filesystem
func (l *LocalFilesystem) ReadFile(ctx context.Context, path string, dir Directory) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full, err := l.resolve(path, dir)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return EncodeData(data), nil
}

// DeleteFile implements Filesystem
func (l *LocalFilesystem) DeleteFile(ctx context.Context, path string, dir Directory) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := l.resolve(path, dir)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// resolve maps a path inside a directory to an absolute path on disk.
// With DirectoryNone the path must be absolute (or a file:// URI) and lie inside
// one of the configured roots. Named directories only take relative paths.
func (l *LocalFilesystem) resolve(path string, dir Directory) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}

	if dir == DirectoryNone {
		if strings.HasPrefix(path, "file://") {
			u, err := url.Parse(path)
			if err != nil {
				return "", ErrInvalidPath
			}
			path = filepath.FromSlash(u.Path)
		}
		if !filepath.IsAbs(path) {
			return "", ErrInvalidPath
		}
		full := filepath.Clean(path)
		for _, root := range l.roots {
			if within(root, full) {
				return full, nil
			}
		}
		return "", ErrInvalidPath
	}

	root, ok := l.roots[dir]
	if !ok {
		return "", ErrNoDirectory
	}

	if strings.HasPrefix(path, "file://") || filepath.IsAbs(path) {
		return "", ErrInvalidPath
	}

	full := filepath.Join(root, path)
	if !within(root, full) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// within reports whether full is strictly below root
func within(root, full string) bool {
	rel, err := filepath.Rel(root, full)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
