package scan

import (
	"context"
	"errors"
)

// ErrDelivered is returned by Await when another caller already received the
// session's result.
var ErrDelivered = errors.New("scan result already delivered")

// Await blocks until the session completes, is closed, or ctx is done. On
// completion it calls stop, so the caller can halt frame delivery, and then
// handler with the result. The result is handed out once per session: only
// one Await call ever invokes handler.
func Await(ctx context.Context, s *Session, stop func(), handler func(Result)) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r, ok := <-s.Done():
		if !ok {
			if s.Status().Complete {
				return Result{}, ErrDelivered
			}
			return Result{}, ErrClosed
		}
		if stop != nil {
			stop()
		}
		if handler != nil {
			handler(r)
		}
		return r, nil
	}
}
