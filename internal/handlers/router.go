package handlers

import (
	"net/http"
	"os"

	"laser-vision-backend/internal/config"
	"laser-vision-backend/internal/middleware"
	"laser-vision-backend/internal/platform"
	"laser-vision-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps holds everything the router wires together
type RouterDeps struct {
	App           config.AppConfig
	Gallery       *services.GalleryService
	DeviceService *services.DeviceService
	Hub           *services.WSHub
	// FileRoot is the local directory served behind translated file URIs.
	// Empty root or nil signer disables the route.
	FileRoot   string
	FileSigner *platform.FileSigner
}

// NewRouter builds the HTTP router
func NewRouter(deps RouterDeps) http.Handler {
	deviceHandler := NewDeviceHandler(deps.DeviceService)
	photoHandler := NewPhotoHandler(deps.Gallery, deps.Hub)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.DeviceService)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/devices", deviceHandler.RegisterDevice)
		r.Get("/app", AppInfo(deps.App))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.DeviceService))
			r.Use(middleware.PlatformMiddleware)
			r.Get("/photos", photoHandler.ListPhotos)
			r.Post("/photos", photoHandler.SavePicture)
			r.Post("/photos/base64", photoHandler.SavePictureFromBase64)
			r.Get("/photos/*", photoHandler.FetchPicture)
			r.Delete("/photos/*", photoHandler.DeletePicture)
			r.Post("/captures", photoHandler.CapturePicture)
		})
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	if deps.FileRoot != "" && deps.FileSigner != nil {
		r.Get(platform.FilePathPrefix+"/*", NewFileHandler(deps.FileRoot, deps.FileSigner).ServeFile)
	}

	// Web assets, for apps loading their content from this host
	if info, err := os.Stat(deps.App.WebDir); err == nil && info.IsDir() {
		r.Handle("/*", http.FileServer(http.Dir(deps.App.WebDir)))
	}

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+middleware.PlatformHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
