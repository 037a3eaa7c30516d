package capture

import (
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/cardscan/internal/extract"
	"github.com/zombor/cardscan/internal/recognize"
	"github.com/zombor/cardscan/internal/scan"
)

// sliceSource is a Source over in-memory text frames
type sliceSource struct {
	frames []string
	next   int
	errAt  int
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if s.err != nil && s.next == s.errAt {
		s.next++
		return Frame{}, s.err
	}
	if s.next >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := Frame{Seq: s.next + 1, Data: []byte(s.frames[s.next]), ContentType: "text/plain"}
	s.next++
	return f, nil
}

func (s *sliceSource) Close() error {
	return nil
}

// failingRecognizer fails on the frames it is told to
type failingRecognizer struct {
	inner recognize.Recognizer
	fail  map[string]bool
}

func (f *failingRecognizer) Recognize(ctx context.Context, data []byte, contentType string) ([]string, error) {
	if f.fail[string(data)] {
		return nil, errors.New("blurry frame")
	}
	return f.inner.Recognize(ctx, data, contentType)
}

func (f *failingRecognizer) Close() error {
	return nil
}

var _ = Describe("Pump", func() {
	var (
		session *scan.Session
		rec     recognize.Recognizer
		src     *sliceSource
		opts    PumpOptions
	)

	BeforeEach(func() {
		ex, err := extract.New(extract.Options{})
		Expect(err).NotTo(HaveOccurred())
		session = scan.NewSession(ex, scan.DefaultConfig())
		rec = recognize.NewText()
		opts = PumpOptions{}
	})

	When("the frames confirm both fields", func() {
		BeforeEach(func() {
			frames := make([]string, 0, 10)
			for i := 0; i < 10; i++ {
				frames = append(frames, "4111 1111 1111 1111\nVALID THRU 12/25")
			}
			src = &sliceSource{frames: frames}
		})

		It("should stop as soon as the session completes", func() {
			stats, err := Pump(context.Background(), src, rec, session, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Processed).To(Equal(4))
			Expect(src.next).To(Equal(4))

			var r scan.Result
			Expect(session.Done()).To(Receive(&r))
			Expect(r.Expiry.String()).To(Equal("12/25"))
		})
	})

	When("the source runs out first", func() {
		BeforeEach(func() {
			src = &sliceSource{frames: []string{"4111111111111111", "", "12/25"}}
		})

		It("should return without error and without a result", func() {
			stats, err := Pump(context.Background(), src, rec, session, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Frames).To(Equal(3))
			Expect(session.Status().Complete).To(BeFalse())
		})
	})

	When("recognition fails on some frames", func() {
		BeforeEach(func() {
			src = &sliceSource{frames: []string{"bad", "4111111111111111 12/25", "bad",
				"4111111111111111 12/25", "4111111111111111 12/25", "4111111111111111 12/25"}}
			rec = &failingRecognizer{inner: rec, fail: map[string]bool{"bad": true}}
		})

		It("should skip them and keep going", func() {
			stats, err := Pump(context.Background(), src, rec, session, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Failed).To(Equal(2))
			Expect(stats.Processed).To(Equal(4))
			Expect(session.Status().Complete).To(BeTrue())
		})
	})

	When("the source fails", func() {
		BeforeEach(func() {
			src = &sliceSource{frames: []string{"a", "b"}, errAt: 1, err: errors.New("device unplugged")}
		})

		It("should return the source error", func() {
			_, err := Pump(context.Background(), src, rec, session, opts)
			Expect(err).To(MatchError("device unplugged"))
		})
	})

	When("a live source yields an empty frame", func() {
		BeforeEach(func() {
			src = &sliceSource{frames: []string{"a"}, errAt: 0, err: ErrEmptyFrame}
		})

		It("should skip it", func() {
			stats, err := Pump(context.Background(), src, rec, session, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Frames).To(Equal(0))
		})
	})

	When("the session was closed externally", func() {
		BeforeEach(func() {
			src = &sliceSource{frames: []string{"a", "b", "c"}}
			session.Close()
			opts.DropWhenBusy = true
		})

		It("should stop after the first frame", func() {
			stats, err := Pump(context.Background(), src, rec, session, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Processed).To(Equal(1))
		})
	})

	When("the context is cancelled", func() {
		BeforeEach(func() {
			src = &sliceSource{frames: []string{"a"}}
		})

		It("should return the context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := Pump(ctx, src, rec, session, opts)
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
