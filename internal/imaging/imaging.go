// Package imaging validates uploads and shrinks them to a size the chat
// backends accept.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/vbonduro/imgassist/internal/chat"
)

// DefaultMaxDim is the bounding box edge, in pixels, uploads are scaled into.
const DefaultMaxDim = 1024

// MaxPixels caps width*height of an accepted upload. Decoding holds the full
// bitmap in memory, so the header is checked first.
const MaxPixels = 50_000_000

var (
	ErrUnsupportedType = errors.New("unsupported image type: upload a JPG or PNG")
	ErrEmpty           = errors.New("empty upload")
	ErrTooLarge        = errors.New("image dimensions too large")
)

// allowedImageTypes is the set of MIME types accepted for uploads.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// DetectMIME returns the sniffed MIME type and true if data is JPEG or PNG.
func DetectMIME(data []byte) (string, bool) {
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// declaredOK reports whether the browser-declared type is compatible. Browsers
// send an empty or generic type for some files; the sniffed type decides then.
func declaredOK(declared string) bool {
	switch declared {
	case "", "application/octet-stream", "image/jpg":
		return true
	default:
		return allowedImageTypes[declared]
	}
}

// Prepare validates an upload and returns it ready for a chat backend. Images
// larger than maxDim on either edge are scaled down preserving aspect ratio;
// smaller ones pass through unchanged.
func Prepare(name, declaredMIME string, data []byte, maxDim int) (*chat.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if !declaredOK(declaredMIME) {
		return nil, ErrUnsupportedType
	}
	mime, ok := DetectMIME(data)
	if !ok {
		return nil, ErrUnsupportedType
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return &chat.Image{Name: name, MIMEType: mime, Data: data}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	w, h := Fit(cfg.Width, cfg.Height, maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch mime {
	case "image/png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return &chat.Image{Name: name, MIMEType: mime, Data: buf.Bytes()}, nil
}

// Fit returns the largest size with the same aspect ratio as w x h that fits
// inside a maxDim square. Edges never drop below one pixel.
func Fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		return maxDim, max(nh, 1)
	}
	nw := w * maxDim / h
	return max(nw, 1), maxDim
}
