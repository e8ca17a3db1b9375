package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"laser-vision-backend/internal/platform"
)

type contextKey string

const deviceIDKey contextKey = "device_id"

// PlatformHeader carries the caller's execution context in auto platform mode
const PlatformHeader = "X-Platform"

// TokenValidator validates a bearer token and returns the device ID
type TokenValidator interface {
	ValidateJWT(token string) (string, error)
}

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			deviceID, err := validator.ValidateJWT(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PlatformMiddleware records whether the request comes from the native shell
func PlatformMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		native := platform.ParseHeader(r.Header.Get(PlatformHeader))
		next.ServeHTTP(w, r.WithContext(platform.WithNative(r.Context(), native)))
	})
}

// GetDeviceID extracts device ID from context
func GetDeviceID(ctx context.Context) string {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	if !ok {
		return ""
	}
	return deviceID
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
