package recognize

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// cardCharset is what can appear on the front of a card that matters to us.
const cardCharset = "0123456789/ ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Tesseract implements the Recognizer interface with a local tesseract
// install. The underlying client is not safe for concurrent use.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a tesseract client for the given language
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract page segmentation: %w", err)
	}
	if err := client.SetWhitelist(cardCharset); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract whitelist: %w", err)
	}
	return &Tesseract{client: client}, nil
}

// Recognize runs tesseract on a frame
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) ([]string, error) {
	finalImageData, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, errors.New("tesseract client closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := t.client.SetImageFromBytes(finalImageData); err != nil {
		return nil, fmt.Errorf("loading image into tesseract: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("running tesseract: %w", err)
	}
	return splitLines(text), nil
}

// Close releases the tesseract client
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
