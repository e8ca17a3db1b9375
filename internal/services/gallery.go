package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"laser-vision-backend/internal/models"
	"laser-vision-backend/internal/repository"
	"laser-vision-backend/internal/storage"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PhotoStorageKey is the key-value key holding the saved filenames
const PhotoStorageKey = "photos"

const loadConcurrency = 4

// GalleryService tracks saved photos in the key-value store, newest first
type GalleryService struct {
	mu     *sync.Mutex
	store  repository.Store
	photos *PhotoService
}

// NewGalleryService creates a new gallery service
func NewGalleryService(store repository.Store, photos *PhotoService) *GalleryService {
	return &GalleryService{
		mu:     &sync.Mutex{},
		store:  store,
		photos: photos,
	}
}

// ForDevice returns the gallery of one device: its own photo list and storage area
func (g *GalleryService) ForDevice(deviceID string) *GalleryService {
	return &GalleryService{
		mu:     g.mu,
		store:  repository.Namespaced{Store: g.store, Prefix: deviceID + "/"},
		photos: g.photos.ForDevice(deviceID),
	}
}

// Photos returns the photo service the gallery reads from
func (g *GalleryService) Photos() *PhotoService {
	return g.photos
}

// List returns the saved filenames
func (g *GalleryService) List(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load(ctx)
}

// Add records a filename at the front of the list. Re-adding moves it to the front.
func (g *GalleryService) Add(ctx context.Context, filename string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	names, err := g.load(ctx)
	if err != nil {
		return err
	}

	updated := make([]string, 0, len(names)+1)
	updated = append(updated, filename)
	for _, n := range names {
		if n != filename {
			updated = append(updated, n)
		}
	}

	return g.save(ctx, updated)
}

// Remove drops a filename from the list. Missing names are ignored.
func (g *GalleryService) Remove(ctx context.Context, filename string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	names, err := g.load(ctx)
	if err != nil {
		return err
	}

	updated := names[:0]
	for _, n := range names {
		if n != filename {
			updated = append(updated, n)
		}
	}

	return g.save(ctx, updated)
}

// LoadAll fetches every listed photo, preserving list order. Entries whose file
// is gone are skipped and pruned from the list.
func (g *GalleryService) LoadAll(ctx context.Context) ([]*models.UserPhoto, error) {
	names, err := g.List(ctx)
	if err != nil {
		return nil, err
	}

	loaded := make([]*models.UserPhoto, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(loadConcurrency)

	for i, name := range names {
		i, name := i, name
		eg.Go(func() error {
			photo, err := g.photos.FetchPicture(egCtx, name)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			loaded[i] = photo
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	photos := make([]*models.UserPhoto, 0, len(loaded))
	var missing []string
	for i, photo := range loaded {
		if photo == nil {
			missing = append(missing, names[i])
			continue
		}
		photos = append(photos, photo)
	}

	if len(missing) > 0 {
		if err := g.prune(ctx, missing); err != nil {
			log.Warn().Err(err).Strs("filenames", missing).Msg("Failed to prune missing photos")
		}
	}

	return photos, nil
}

func (g *GalleryService) prune(ctx context.Context, missing []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	names, err := g.load(ctx)
	if err != nil {
		return err
	}

	gone := make(map[string]bool, len(missing))
	for _, name := range missing {
		gone[name] = true
	}

	kept := names[:0]
	for _, n := range names {
		if !gone[n] {
			kept = append(kept, n)
		}
	}
	return g.save(ctx, kept)
}

func (g *GalleryService) load(ctx context.Context) ([]string, error) {
	raw, ok, err := g.store.Get(ctx, PhotoStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}
	if !ok {
		return []string{}, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("failed to decode gallery: %w", err)
	}
	return names, nil
}

func (g *GalleryService) save(ctx context.Context, names []string) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode gallery: %w", err)
	}
	if err := g.store.Set(ctx, PhotoStorageKey, string(raw)); err != nil {
		return fmt.Errorf("failed to save gallery: %w", err)
	}
	return nil
}
