package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels caps width*height of an image before it is decoded.
const DefaultMaxPixels = 40_000_000

// ErrTooManyPixels is wrapped in a *DecodeError when an image declares more
// pixels than the decode budget allows.
var ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")

// Decoded is an image ready for face detection.
type Decoded struct {
	Image  image.Image
	Format string // jpeg, png, gif, bmp or webp
	// Original dimensions before downscaling.
	OriginalWidth  int
	OriginalHeight int
}

// Width returns the working width.
func (d *Decoded) Width() int { return d.Image.Bounds().Dx() }

// Height returns the working height.
func (d *Decoded) Height() int { return d.Image.Bounds().Dy() }

// Decode decodes image bytes within DefaultMaxPixels. Failures are returned
// as *DecodeError.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited decodes image bytes, rejecting images whose header declares
// more than maxPixels pixels before any pixel buffer is allocated. A
// non-positive maxPixels selects DefaultMaxPixels.
func DecodeLimited(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: errors.New("no image data")}
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", &DecodeError{Err: fmt.Errorf("%w: %dx%d, limit %d", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", &DecodeError{Err: errors.New("image has no pixels")}
	}
	return img, format, nil
}

// Downscale resizes img to fit within maxSize on its longer side, keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

// DecodeAndDownscale decodes data within maxPixels and caps it at maxSize.
func DecodeAndDownscale(data []byte, maxSize, maxPixels int) (*Decoded, error) {
	img, format, err := DecodeLimited(data, maxPixels)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	return &Decoded{
		Image:          Downscale(img, maxSize),
		Format:         format,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
	}, nil
}

// EncodeJPEG encodes img as a JPEG at quality 90.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// DetectMIMEType detects the MIME type from image magic bytes.
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

// ExtensionFor returns a file extension (with dot) for a MIME type.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
