package transcode

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
)

// Transcoder normalizes generated thumbnail bytes before upload. Implementations
// are selected once at startup; the pipeline treats transcoding as best-effort
// and falls back to the original bytes when it fails.
type Transcoder interface {
	Transcode(data []byte) ([]byte, string, error)
}

// Passthrough ships bytes unmodified with a sniffed content type. It is the
// default when no codec is configured.
type Passthrough struct{}

func (Passthrough) Transcode(data []byte) ([]byte, string, error) {
	return data, http.DetectContentType(data), nil
}

// JPEG re-encodes thumbnails as JPEG and caps the longest edge at MaxDim.
type JPEG struct {
	MaxDim  int
	Quality int
}

func (t JPEG) Transcode(data []byte) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("transcode: decode: %w", err)
	}

	maxDim := t.MaxDim
	if maxDim <= 0 {
		maxDim = 512
	}
	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	quality := t.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, "", fmt.Errorf("transcode: encode: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// ForName maps the configured codec name to an implementation. Unknown names
// fall back to passthrough so a misconfigured codec never breaks the pipeline.
func ForName(name string, maxDim int) Transcoder {
	switch name {
	case "jpeg":
		return JPEG{MaxDim: maxDim}
	default:
		return Passthrough{}
	}
}
