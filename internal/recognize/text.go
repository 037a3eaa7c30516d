package recognize

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Text treats each frame as already-recognized UTF-8 text, one line per
// line. It replays recorded OCR output through the engine.
type Text struct{}

// NewText creates a Text recognizer
func NewText() *Text {
	return &Text{}
}

// Recognize splits the frame's bytes into lines
func (Text) Recognize(ctx context.Context, data []byte, contentType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("frame is not UTF-8 text (content type %q)", contentType)
	}
	return splitLines(string(data)), nil
}

// Close is a no-op
func (Text) Close() error {
	return nil
}
