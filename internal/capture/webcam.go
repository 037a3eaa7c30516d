package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"
)

// Webcam implements the Source interface over a camera device. Each frame is
// cropped to the region of interest, if one is set, and PNG encoded.
type Webcam struct {
	device *gocv.VideoCapture
	mat    gocv.Mat
	roi    image.Rectangle
	skip   int
	seq    int
}

// WebcamOptions configures a Webcam source
type WebcamOptions struct {
	// ROI is the card-shaped crop rectangle in frame pixels. Empty means
	// the whole frame.
	ROI image.Rectangle
	// Skip is how many buffered frames to discard before each read, so a
	// slow recognizer always sees a recent frame.
	Skip int
}

// OpenWebcam opens a capture device by index or URL
func OpenWebcam(device string, opts WebcamOptions) (*Webcam, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opening capture device %s: %w", device, err)
	}
	return &Webcam{
		device: vc,
		mat:    gocv.NewMat(),
		roi:    opts.ROI,
		skip:   opts.Skip,
	}, nil
}

// Next grabs, crops and encodes the latest frame
func (w *Webcam) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if w.skip > 0 {
		w.device.Grab(w.skip)
	}
	if ok := w.device.Read(&w.mat); !ok {
		return Frame{}, errors.New("capture device closed")
	}
	if w.mat.Empty() {
		slog.Debug("Empty frame from capture device")
		return Frame{}, ErrEmptyFrame
	}
	w.seq++

	img := w.mat
	if !w.roi.Empty() {
		bounds := image.Rect(0, 0, w.mat.Cols(), w.mat.Rows())
		roi := w.roi.Intersect(bounds)
		if roi.Empty() {
			return Frame{}, fmt.Errorf("region of interest %v outside frame %v", w.roi, bounds)
		}
		img = w.mat.Region(roi)
		defer img.Close()
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return Frame{Seq: w.seq, Data: data, ContentType: "image/png"}, nil
}

// Close releases the capture device
func (w *Webcam) Close() error {
	w.mat.Close()
	return w.device.Close()
}
