// Package capture delivers frames to a scan session.
package capture

import (
	"context"
	"path/filepath"
	"strings"
)

// Frame is one captured image and its sequence number within the source.
type Frame struct {
	Seq         int
	Data        []byte
	ContentType string
}

// Source defines the interface for frame producers. Next returns io.EOF once
// the source is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// contentTypeFor guesses a frame's content type from its file extension
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
