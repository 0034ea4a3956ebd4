package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"practice-ledger/internal/logger"
	"practice-ledger/internal/storage"
)

// ReceiptHandler serves self-issued receipt documents from the document store
type ReceiptHandler struct {
	store storage.DocumentStore
}

// NewReceiptHandler creates a new download handler
func NewReceiptHandler(store storage.DocumentStore) *ReceiptHandler {
	return &ReceiptHandler{store: store}
}

// Download handles GET requests for links emailed with receipts
func (h *ReceiptHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		http.Error(w, "Missing key", http.StatusBadRequest)
		return
	}

	file, err := h.store.Open(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			http.Error(w, "Invalid key", http.StatusBadRequest)
		case errors.Is(err, fs.ErrNotExist):
			http.Error(w, "Receipt not found", http.StatusNotFound)
		default:
			logger.ErrorContext(r.Context(), "Failed to open receipt", "key", key, "error", err)
			http.Error(w, "Failed to read receipt", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	// Determine content type from file extension
	contentType := "application/octet-stream"
	switch filepath.Ext(key) {
	case ".html":
		contentType = "text/html; charset=utf-8"
	case ".pdf":
		contentType = "application/pdf"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, file); err != nil {
		logger.WarnContext(r.Context(), "Receipt download interrupted", "key", key, "error", err)
	}
}
