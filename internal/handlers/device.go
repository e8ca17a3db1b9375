package handlers

import (
	"net/http"

	"laser-vision-backend/internal/config"
	"laser-vision-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// DeviceHandler handles device registration
type DeviceHandler struct {
	deviceService *services.DeviceService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

// RegisterDevice handles POST /api/v1/devices
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceService.RegisterDevice()
	if err != nil {
		log.Error().Err(err).Msg("Failed to register device")
		respondError(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	log.Info().Str("device_id", device.ID).Msg("Device registered")

	respondJSON(w, device, http.StatusOK)
}

// AppInfo handles GET /api/v1/app
func AppInfo(app config.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, app, http.StatusOK)
	}
}
