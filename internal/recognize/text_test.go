package recognize

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Text", func() {
	var rec *Text

	BeforeEach(func() {
		rec = NewText()
	})

	It("should return one entry per non-empty line", func() {
		lines, err := rec.Recognize(context.Background(), []byte("4111 1111 1111 1111\n\nEXP 12/25\n"), "text/plain")
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(Equal([]string{"4111 1111 1111 1111", "EXP 12/25"}))
	})

	It("should reject binary data", func() {
		_, err := rec.Recognize(context.Background(), []byte{0xff, 0xfe, 0xfd}, "image/png")
		Expect(err).To(HaveOccurred())
	})

	It("should honour a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := rec.Recognize(ctx, []byte("12/25"), "text/plain")
		Expect(err).To(MatchError(context.Canceled))
	})

	It("should close without error", func() {
		Expect(rec.Close()).To(Succeed())
	})
})
