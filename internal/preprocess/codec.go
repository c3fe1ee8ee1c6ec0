package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"mime"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// JPEG quality factors used by the capture flow
const (
	ArchiveQuality    = 0.92
	ExtractionQuality = 0.8
)

var (
	// ErrUnsupportedFormat is returned for non-image media types and for
	// images no registered codec understands.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDecodeFailure is returned when a known codec cannot read the stream.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrInvalidQuality is returned by Encode for a quality outside (0,1].
	ErrInvalidQuality = errors.New("invalid quality")
)

// Decode turns encoded image bytes into a PixelBuffer.
// contentType is the declared media type; when it is empty or generic the
// bytes are sniffed instead.
func Decode(data []byte, contentType string) (*PixelBuffer, error) {
	mediaType := resolveMediaType(data, contentType)
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: media type %q is not an image", ErrUnsupportedFormat, mediaType)
	}

	var img image.Image
	var err error
	if isHEICFormat(data) || isHEICMimeType(mediaType) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrDecodeFailure, err)
		}
	} else {
		// AutoOrientation applies the EXIF rotation phones write into JPEGs
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, mediaType, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrDecodeFailure, mediaType, err)
		}
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecodeFailure)
	}
	return FromImage(img), nil
}

// Encode serializes the buffer as JPEG. quality is a factor in (0,1].
func Encode(buf *PixelBuffer, quality float64) ([]byte, error) {
	if !(quality > 0 && quality <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuality, quality)
	}

	var out bytes.Buffer
	q := int(math.Round(quality * 100))
	if err := imaging.Encode(&out, buf.Image(), imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return out.Bytes(), nil
}

// resolveMediaType normalizes the declared type, sniffing when it is missing
func resolveMediaType(data []byte, contentType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}

	if isHEICFormat(data) {
		return "image/heic"
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}

// isHEICFormat checks if the image data is in HEIC/HEIF format.
// HEIC files carry an ftyp box at offset 4 with a HEIF-family brand.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
