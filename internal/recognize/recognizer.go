// Package recognize turns a captured frame image into the lines of text it
// contains.
package recognize

import (
	"context"
	"errors"
)

// ErrNoText is returned when a backend answered but produced no usable text.
var ErrNoText = errors.New("no text recognized")

// Recognizer defines the interface for optical text recognition backends
type Recognizer interface {
	// Recognize returns the text lines found in the image, top to bottom
	Recognize(ctx context.Context, imageData []byte, contentType string) ([]string, error)
	// Close releases resources held by the backend
	Close() error
}
