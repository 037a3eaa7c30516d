package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// DirSource implements the Source interface over the files of a directory,
// delivered in lexical order
type DirSource struct {
	basePath string
	names    []string
	next     int
}

// NewDirSource lists the frame files under basePath
func NewDirSource(basePath string) (*DirSource, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return &DirSource{
		basePath: basePath,
		names:    names,
	}, nil
}

// Len returns the number of frames in the directory
func (d *DirSource) Len() int {
	return len(d.names)
}

// Next reads the next frame file
func (d *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if d.next >= len(d.names) {
		return Frame{}, io.EOF
	}
	name := d.names[d.next]
	d.next++

	data, err := os.ReadFile(filepath.Join(d.basePath, name))
	if err != nil {
		return Frame{}, fmt.Errorf("reading frame %s: %w", name, err)
	}
	return Frame{
		Seq:         d.next,
		Data:        data,
		ContentType: contentTypeFor(name),
	}, nil
}

// Close is a no-op for directory sources
func (d *DirSource) Close() error {
	return nil
}
