package storage

import (
	"context"
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid storage key")

// DocumentStore keeps rendered receipt documents and hands out links to them.
type DocumentStore interface {
	// Save writes the document under key, replacing any previous content
	Save(ctx context.Context, key, contentType string, r io.Reader) error

	// Open returns the document for streaming to a client
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a document exists and returns its size
	Exists(ctx context.Context, key string) (bool, int64, error)

	// Delete removes a document; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// DownloadURL is the public link recorded as the receipt URL
	DownloadURL(key string) string
}
