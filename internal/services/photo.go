package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"laser-vision-backend/internal/models"
	"laser-vision-backend/internal/platform"
	"laser-vision-backend/internal/storage"

	"github.com/google/uuid"
)

const photoExt = ".jpeg"

// PhotoService saves, fetches and deletes photos in external storage.
// Each call is independent; the service keeps no state between calls.
type PhotoService struct {
	fs          storage.Filesystem
	platform    platform.Platform
	converter   *platform.FileSrcConverter
	fetcher     *Fetcher
	now         func() time.Time
	uniqueNames bool
}

// PhotoOption configures a PhotoService
type PhotoOption func(*PhotoService)

// WithClock replaces the clock used for generated filenames
func WithClock(now func() time.Time) PhotoOption {
	return func(s *PhotoService) { s.now = now }
}

// WithUniqueNames appends a random suffix to generated filenames so that saves
// within the same millisecond don't overwrite each other
func WithUniqueNames(enabled bool) PhotoOption {
	return func(s *PhotoService) { s.uniqueNames = enabled }
}

// NewPhotoService creates a new photo service
func NewPhotoService(
	fs storage.Filesystem,
	plat platform.Platform,
	converter *platform.FileSrcConverter,
	fetcher *Fetcher,
	opts ...PhotoOption,
) *PhotoService {
	s := &PhotoService{
		fs:        fs,
		platform:  plat,
		converter: converter,
		fetcher:   fetcher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForDevice returns a view of the service confined to one device's storage area
func (s *PhotoService) ForDevice(deviceID string) *PhotoService {
	scoped := *s
	scoped.fs = storage.Scoped{Filesystem: s.fs, Scope: deviceID}
	return &scoped
}

// CapturePicture stores base64 image data in the capture area and returns the
// handle SavePicture takes in a native context
func (s *PhotoService) CapturePicture(ctx context.Context, base64Data string) (*models.CapturedPhoto, error) {
	fileName := s.newFileName()
	_, err := s.fs.WriteFile(ctx, storage.WriteFileOptions{
		Path:      fileName,
		Data:      base64Data,
		Directory: CaptureDirectory,
		Recursive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write capture %s: %w", fileName, err)
	}

	return &models.CapturedPhoto{
		Path:   fileName,
		Format: strings.TrimPrefix(photoExt, "."),
	}, nil
}

// SavePicture stores a captured photo under a generated filename
func (s *PhotoService) SavePicture(ctx context.Context, photo models.CapturedPhoto) (*models.UserPhoto, error) {
	source, err := s.SourceFor(photo, s.platform.IsNative(ctx))
	if err != nil {
		return nil, err
	}

	data, err := source.ReadBase64(ctx)
	if err != nil {
		return nil, err
	}

	fileName := s.newFileName()
	uri, err := s.write(ctx, fileName, data)
	if err != nil {
		return nil, err
	}

	return &models.UserPhoto{
		Filepath:    fileName,
		WebviewPath: source.DisplayPath(uri),
	}, nil
}

// SavePictureFromBase64 stores base64 image data. An empty fileName is replaced
// by a generated one; a given fileName is used as is and overwrites any existing file.
func (s *PhotoService) SavePictureFromBase64(ctx context.Context, base64Data, fileName string) (*models.UserPhoto, error) {
	if fileName == "" {
		fileName = s.newFileName()
	}

	uri, err := s.write(ctx, fileName, base64Data)
	if err != nil {
		return nil, err
	}

	webviewPath := dataURI(base64Data)
	if s.platform.IsNative(ctx) {
		webviewPath = s.converter.ConvertFileSrc(uri)
	}

	return &models.UserPhoto{
		Filepath:    fileName,
		WebviewPath: webviewPath,
	}, nil
}

// FetchPicture reads a saved photo back as a data URI, whatever the platform
func (s *PhotoService) FetchPicture(ctx context.Context, filename string) (*models.UserPhoto, error) {
	data, err := s.fs.ReadFile(ctx, filename, storage.DirectoryExternal)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo %s: %w", filename, err)
	}

	return &models.UserPhoto{
		Filepath:    filename,
		WebviewPath: dataURI(data),
	}, nil
}

// DeletePicture removes a saved photo. Deleting a missing photo fails.
func (s *PhotoService) DeletePicture(ctx context.Context, filename string) error {
	if err := s.fs.DeleteFile(ctx, filename, storage.DirectoryExternal); err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", filename, err)
	}
	return nil
}

// ReadAsBase64 returns the content of a captured photo as base64
func (s *PhotoService) ReadAsBase64(ctx context.Context, photo models.CapturedPhoto) (string, error) {
	source, err := s.SourceFor(photo, s.platform.IsNative(ctx))
	if err != nil {
		return "", err
	}
	return source.ReadBase64(ctx)
}

func (s *PhotoService) write(ctx context.Context, fileName, data string) (string, error) {
	uri, err := s.fs.WriteFile(ctx, storage.WriteFileOptions{
		Path:      fileName,
		Data:      data,
		Directory: storage.DirectoryExternal,
		Recursive: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to write photo %s: %w", fileName, err)
	}
	return uri, nil
}

func (s *PhotoService) newFileName() string {
	name := strconv.FormatInt(s.now().UnixMilli(), 10)
	if s.uniqueNames {
		name += "-" + uuid.New().String()[:8]
	}
	return name + photoExt
}

func dataURI(base64Data string) string {
	return "data:image/jpeg;base64," + base64Data
}
