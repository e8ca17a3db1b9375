package storage

import (
	"context"
	"path"
	"strings"
)

// Scoped confines a Filesystem to one sub-directory per scope, such as a device ID.
// Paths are relative to the scope; absolute paths and DirectoryNone are refused.
type Scoped struct {
	Filesystem
	Scope string
}

// WriteFile implements Filesystem
func (s Scoped) WriteFile(ctx context.Context, opts WriteFileOptions) (string, error) {
	p, err := s.scopedPath(opts.Path, opts.Directory)
	if err != nil {
		return "", err
	}
	opts.Path = p
	return s.Filesystem.WriteFile(ctx, opts)
}

// ReadFile implements Filesystem
func (s Scoped) ReadFile(ctx context.Context, p string, dir Directory) (string, error) {
	scoped, err := s.scopedPath(p, dir)
	if err != nil {
		return "", err
	}
	return s.Filesystem.ReadFile(ctx, scoped, dir)
}

// DeleteFile implements Filesystem
func (s Scoped) DeleteFile(ctx context.Context, p string, dir Directory) error {
	scoped, err := s.scopedPath(p, dir)
	if err != nil {
		return err
	}
	return s.Filesystem.DeleteFile(ctx, scoped, dir)
}

func (s Scoped) scopedPath(p string, dir Directory) (string, error) {
	if dir == DirectoryNone || s.Scope == "" || strings.ContainsAny(s.Scope, `/\`) {
		return "", ErrInvalidPath
	}
	if p == "" || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || strings.Contains(p, "://") {
		return "", ErrInvalidPath
	}

	joined := path.Join(s.Scope, p)
	if !strings.HasPrefix(joined, s.Scope+"/") {
		return "", ErrInvalidPath
	}
	return joined, nil
}
