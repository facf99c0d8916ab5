package worker

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/PaulBabatuyi/FileVault/internal/storage"
)

// ErrSourceMissing marks a permanent pipeline failure: the source file,
// its bytes, or a decodable image no longer exist. Jobs failing this way
// are never retried.
var ErrSourceMissing = errors.New("derivative source missing")

// DefaultWidths are the derivative sizes produced for every image.
var DefaultWidths = []int{500, 250, 100}

// ImageProcessor resizes an original into one derivative per configured
// width. Writing over an existing derivative produces identical content,
// so reprocessing a job is safe.
type ImageProcessor struct {
	store  storage.ByteStore
	widths []int
}

func NewImageProcessor(store storage.ByteStore, widths []int) *ImageProcessor {
	if len(widths) == 0 {
		widths = DefaultWidths
	}
	return &ImageProcessor{store: store, widths: widths}
}

func (ip *ImageProcessor) Widths() []int { return ip.widths }

// Generate decodes data and writes the resized copies under the
// derivative refs of ref. The output format follows the file name's
// extension, falling back to JPEG.
func (ip *ImageProcessor) Generate(name, ref string, data []byte) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %v: %w", err, ErrSourceMissing)
	}

	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		format = imaging.JPEG
	}

	for _, width := range ip.widths {
		resized := imaging.Resize(img, width, 0, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, format); err != nil {
			return fmt.Errorf("encode derivative %d: %w", width, err)
		}
		if err := ip.store.Write(storage.DerivativeRef(ref, width), buf.Bytes()); err != nil {
			return fmt.Errorf("save derivative %d: %w", width, err)
		}
	}
	return nil
}
