// Package storage provides the filesystem capability photos are persisted through.
//
// Data crosses the interface as base64 text and is stored decoded. Two drivers
// exist: "local" (directories on disk) and "s3" (S3-compatible object storage).
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// Directory names a storage area. The empty Directory means the path is used as is.
type Directory string

const (
	DirectoryNone     Directory = ""
	DirectoryExternal Directory = "EXTERNAL"
	DirectoryData     Directory = "DATA"
	DirectoryCache    Directory = "CACHE"
)

var (
	ErrNotFound      = errors.New("file does not exist")
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidData   = errors.New("the provided data is not valid base64 content")
	ErrParentMissing = errors.New("parent directory must exist when recursive is false")
	ErrNoDirectory   = errors.New("unknown directory")
)

// WriteFileOptions describes a single file write
type WriteFileOptions struct {
	Path      string
	Data      string
	Directory Directory
	Recursive bool
}

// Filesystem is the file storage capability
type Filesystem interface {
	// WriteFile stores base64 data and returns the URI of the written file.
	WriteFile(ctx context.Context, opts WriteFileOptions) (string, error)

	// ReadFile returns the file contents as base64.
	ReadFile(ctx context.Context, path string, dir Directory) (string, error)

	// DeleteFile removes a file. A missing file is an error.
	DeleteFile(ctx context.Context, path string, dir Directory) error
}

// DecodeData decodes base64 file data, accepting the data URL form produced by
// browser blob readers ("data:image/jpeg;base64,...").
func DecodeData(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			data = data[i+1:]
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidData
	}
	return decoded, nil
}

// EncodeData encodes raw file bytes as base64
func EncodeData(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
