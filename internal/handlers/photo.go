package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"laser-vision-backend/internal/middleware"
	"laser-vision-backend/internal/models"
	"laser-vision-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PhotoHandler handles photo-related HTTP requests.
// Every request works on the calling device's own gallery and storage area.
type PhotoHandler struct {
	gallery *services.GalleryService
	hub     *services.WSHub
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(gallery *services.GalleryService, hub *services.WSHub) *PhotoHandler {
	return &PhotoHandler{
		gallery: gallery,
		hub:     hub,
	}
}

// SaveBase64Request represents the body of POST /api/v1/photos/base64
type SaveBase64Request struct {
	Data     string `json:"data"`
	Filename string `json:"filename,omitempty"`
}

// CaptureRequest represents the body of POST /api/v1/captures
type CaptureRequest struct {
	Data string `json:"data"`
}

// CapturePicture handles POST /api/v1/captures
func (h *PhotoHandler) CapturePicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Data == "" {
		respondError(w, "data is required", http.StatusBadRequest)
		return
	}

	captured, err := h.gallery.ForDevice(deviceID).Photos().CapturePicture(ctx, req.Data)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to store capture")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, captured, http.StatusCreated)
}

// SavePicture handles POST /api/v1/photos
func (h *PhotoHandler) SavePicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	var req models.CapturedPhoto
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	gallery := h.gallery.ForDevice(deviceID)
	photo, err := gallery.Photos().SavePicture(ctx, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("device_id", deviceID).
			Str("path", req.Path).
			Str("web_path", req.WebPath).
			Msg("Failed to save photo")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	h.saved(r, gallery, deviceID, photo)
	respondJSON(w, photo, http.StatusOK)
}

// SavePictureFromBase64 handles POST /api/v1/photos/base64
func (h *PhotoHandler) SavePictureFromBase64(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	var req SaveBase64Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Data == "" {
		respondError(w, "data is required", http.StatusBadRequest)
		return
	}

	gallery := h.gallery.ForDevice(deviceID)
	photo, err := gallery.Photos().SavePictureFromBase64(ctx, req.Data, req.Filename)
	if err != nil {
		log.Error().
			Err(err).
			Str("device_id", deviceID).
			Str("filename", req.Filename).
			Msg("Failed to save photo from base64")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	h.saved(r, gallery, deviceID, photo)
	respondJSON(w, photo, http.StatusOK)
}

// ListPhotos handles GET /api/v1/photos
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gallery := h.gallery.ForDevice(middleware.GetDeviceID(ctx))

	if r.URL.Query().Get("expand") == "true" {
		photos, err := gallery.LoadAll(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load photos")
			respondError(w, err.Error(), statusFor(err))
			return
		}
		respondJSON(w, map[string]interface{}{
			"photos": photos,
			"total":  len(photos),
		}, http.StatusOK)
		return
	}

	names, err := gallery.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list photos")
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"photos": names,
		"total":  len(names),
	}, http.StatusOK)
}

// FetchPicture handles GET /api/v1/photos/*
func (h *PhotoHandler) FetchPicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filename, ok := photoFilename(w, r)
	if !ok {
		return
	}

	photo, err := h.gallery.ForDevice(middleware.GetDeviceID(ctx)).Photos().FetchPicture(ctx, filename)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to fetch photo")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, photo, http.StatusOK)
}

// DeletePicture handles DELETE /api/v1/photos/*
func (h *PhotoHandler) DeletePicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)
	filename, ok := photoFilename(w, r)
	if !ok {
		return
	}

	gallery := h.gallery.ForDevice(deviceID)
	if err := gallery.Photos().DeletePicture(ctx, filename); err != nil {
		log.Error().
			Err(err).
			Str("device_id", deviceID).
			Str("filename", filename).
			Msg("Failed to delete photo")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	// The file is gone; a stale gallery entry is only logged
	if err := gallery.Remove(ctx, filename); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to remove photo from gallery")
	}

	log.Info().
		Str("device_id", deviceID).
		Str("filename", filename).
		Msg("Photo deleted")

	h.hub.NotifyPhotoDeleted(deviceID, filename)

	w.WriteHeader(http.StatusNoContent)
}

// photoFilename reads the filename from the route wildcard. Filenames may
// contain slashes when they were saved into sub-directories.
func photoFilename(w http.ResponseWriter, r *http.Request) (string, bool) {
	filename := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(filename)
		if err != nil {
			respondError(w, "Invalid filename", http.StatusBadRequest)
			return "", false
		}
		filename = unescaped
	}

	if filename == "" {
		respondError(w, "filename is required", http.StatusBadRequest)
		return "", false
	}
	return filename, true
}

// saved records a stored photo in the device's gallery and notifies the device
func (h *PhotoHandler) saved(r *http.Request, gallery *services.GalleryService, deviceID string, photo *models.UserPhoto) {
	// The photo is already stored, so gallery failures don't fail the request
	if err := gallery.Add(r.Context(), photo.Filepath); err != nil {
		log.Error().Err(err).Str("filename", photo.Filepath).Msg("Failed to add photo to gallery")
	}

	log.Info().
		Str("device_id", deviceID).
		Str("filename", photo.Filepath).
		Msg("Photo saved")

	h.hub.NotifyPhotoSaved(deviceID, photo)
}
