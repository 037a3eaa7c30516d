package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"

	"github.com/gen2brain/go-fitz"
)

// PDFSource implements the Source interface over the pages of a PDF, one
// frame per page. Useful for scanned card batches exported by document
// scanners.
type PDFSource struct {
	doc  *fitz.Document
	next int
}

// NewPDFSource opens the PDF at path
func NewPDFSource(path string) (*PDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	return &PDFSource{doc: doc}, nil
}

// Next renders the next page as a PNG frame
func (p *PDFSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if p.next >= p.doc.NumPage() {
		return Frame{}, io.EOF
	}
	page := p.next
	p.next++

	img, err := p.doc.Image(page)
	if err != nil {
		return Frame{}, fmt.Errorf("rendering PDF page %d: %w", page, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Frame{}, fmt.Errorf("encoding PNG: %w", err)
	}
	return Frame{Seq: p.next, Data: buf.Bytes(), ContentType: "image/png"}, nil
}

// Close closes the PDF document
func (p *PDFSource) Close() error {
	return p.doc.Close()
}
