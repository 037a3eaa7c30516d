package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zombor/cardscan/internal/recognize"
	"github.com/zombor/cardscan/internal/scan"
)

// ErrEmptyFrame is returned by a live source that produced no image this
// time; the pump skips it.
var ErrEmptyFrame = errors.New("empty frame")

// PumpOptions configures Pump
type PumpOptions struct {
	// DropWhenBusy drops a frame instead of waiting when the session is
	// still processing another one.
	DropWhenBusy bool
}

// Stats counts what happened to the frames a pump pulled
type Stats struct {
	Frames    int
	Processed int
	Failed    int
	Dropped   int
}

// Pump feeds frames from src through rec into session, one at a time, until
// the source is exhausted, ctx is done or the session stops accepting frames.
// Recognition failures are logged and the frame is skipped.
func Pump(ctx context.Context, src Source, rec recognize.Recognizer, session *scan.Session, opts PumpOptions) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if errors.Is(err, ErrEmptyFrame) {
			continue
		}
		if err != nil {
			return stats, err
		}
		stats.Frames++

		lines, err := rec.Recognize(ctx, frame.Data, frame.ContentType)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			slog.Warn("Failed to recognize frame", "frame", frame.Seq, "content_type", frame.ContentType, "error", err)
			continue
		}

		var st scan.Status
		if opts.DropWhenBusy {
			var ok bool
			st, ok = session.TryProcessFrame(lines)
			if !ok {
				stats.Dropped++
				continue
			}
		} else {
			st = session.ProcessFrame(lines)
		}
		stats.Processed++

		if st.Complete || st.Closed {
			return stats, nil
		}
	}
}
