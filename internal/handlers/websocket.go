package handlers

import (
	"encoding/json"
	"net/http"

	"laser-vision-backend/internal/models"
	"laser-vision-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the app webview origin varies with the configured hostname
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub           *services.WSHub
	deviceService *services.DeviceService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, deviceService *services.DeviceService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		deviceService: deviceService,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get token from query parameter
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	deviceID, err := h.deviceService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(deviceID, conn)
	defer h.hub.Unregister(deviceID, conn)

	log.Info().Str("device_id", deviceID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("device_id", deviceID).Msg("WebSocket error")
			}
			break
		}

		var msg models.Event
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to parse WebSocket message")
			h.reply(deviceID, models.Event{Type: models.EventError, Message: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case models.EventPing:
			h.reply(deviceID, models.Event{Type: models.EventPong, Timestamp: msg.Timestamp})
		default:
			h.reply(deviceID, models.Event{Type: models.EventError, Message: "Unknown message type"})
		}
	}
}

func (h *WebSocketHandler) reply(deviceID string, event models.Event) {
	if err := h.hub.SendToDevice(deviceID, event); err != nil {
		log.Error().
			Err(err).
			Str("device_id", deviceID).
			Str("type", event.Type).
			Msg("Failed to send WebSocket reply")
	}
}
