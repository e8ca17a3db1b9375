package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"laser-vision-backend/internal/platform"
)

// FileHandler serves files behind translated file URIs (/_capacitor_file_/<abs path>).
// Only files under root are served, and only with a token signed for that path.
type FileHandler struct {
	root   string
	signer *platform.FileSigner
}

// NewFileHandler creates a handler serving files under root
func NewFileHandler(root string, signer *platform.FileSigner) *FileHandler {
	return &FileHandler{root: root, signer: signer}
}

// ServeFile handles GET /_capacitor_file_/*
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, platform.FilePathPrefix)

	if err := h.signer.Verify(r.URL.Query().Get("token"), filePath); err != nil {
		respondError(w, "Invalid or expired file token", http.StatusForbidden)
		return
	}

	full := filepath.Clean(filepath.FromSlash(filePath))
	rel, err := filepath.Rel(h.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		respondError(w, "file not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, full)
}
