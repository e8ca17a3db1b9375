package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"laser-vision-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is the part of a WebSocket connection the hub writes to
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// client serializes writes; a connection supports one concurrent writer
type client struct {
	mu   sync.Mutex
	conn Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per device
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*client
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*client),
	}
}

// Register registers a new WebSocket connection for a device
func (h *WSHub) Register(deviceID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[deviceID]; exists {
		existing.conn.Close()
	}

	h.connections[deviceID] = &client{conn: conn}

	log.Info().Str("device_id", deviceID).Msg("WebSocket connection registered")
}

// Unregister removes the connection for a device, if it is still the given one
func (h *WSHub) Unregister(deviceID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.connections[deviceID]; exists && current.conn == conn {
		current.conn.Close()
		delete(h.connections, deviceID)
		log.Info().Str("device_id", deviceID).Msg("WebSocket connection unregistered")
	}
}

// IsOnline checks if a device is connected
func (h *WSHub) IsOnline(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[deviceID]
	return exists
}

// SendToDevice sends an event to a specific device
func (h *WSHub) SendToDevice(deviceID string, event models.Event) error {
	h.mu.RLock()
	c, exists := h.connections[deviceID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("device %s is not connected", deviceID)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.write(data); err != nil {
		h.Unregister(deviceID, c.conn)
		return fmt.Errorf("failed to send event: %w", err)
	}

	return nil
}

// Broadcast sends an event to every connected device
func (h *WSHub) Broadcast(event models.Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		if err := h.SendToDevice(id, event); err != nil {
			log.Error().
				Err(err).
				Str("device_id", id).
				Str("type", event.Type).
				Msg("Failed to broadcast event")
		}
	}
}

// NotifyPhotoSaved tells the owning device about a new photo
func (h *WSHub) NotifyPhotoSaved(deviceID string, photo *models.UserPhoto) {
	h.notify(deviceID, models.Event{
		Type:        models.EventPhotoSaved,
		DeviceID:    deviceID,
		Filepath:    photo.Filepath,
		WebviewPath: photo.WebviewPath,
	})
}

// NotifyPhotoDeleted tells the owning device a photo is gone
func (h *WSHub) NotifyPhotoDeleted(deviceID, filename string) {
	h.notify(deviceID, models.Event{
		Type:     models.EventPhotoDeleted,
		DeviceID: deviceID,
		Filepath: filename,
	})
}

// notify delivers a photo event to its device only; photos are private to it
func (h *WSHub) notify(deviceID string, event models.Event) {
	if !h.IsOnline(deviceID) {
		return
	}
	event.Timestamp = time.Now().UnixMilli()

	if err := h.SendToDevice(deviceID, event); err != nil {
		log.Error().
			Err(err).
			Str("device_id", deviceID).
			Str("type", event.Type).
			Msg("Failed to notify device")
	}
}
