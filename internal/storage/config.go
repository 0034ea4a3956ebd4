package storage

import "fmt"

// Config holds storage configuration
type Config struct {
	Type    string // "local"
	Dir     string // Root directory for local storage
	BaseURL string // Server base URL for generating download links
}

// New builds the document store selected by cfg.Type
func New(cfg Config) (DocumentStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.BaseURL, cfg.Dir)
	default:
		return nil, fmt.Errorf("storage type %q not supported", cfg.Type)
	}
}
