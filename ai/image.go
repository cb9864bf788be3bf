package ai

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
)

// ParseDataURL splits a data URL into its mime type and decoded raw bytes.
// Expects the format data:<mime>;base64,<payload>.
func ParseDataURL(dataURL string) (mimeType string, raw []byte, err error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", nil, fmt.Errorf("not a data URL: missing 'data:' prefix")
	}

	rest := dataURL[len("data:"):]
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return "", nil, fmt.Errorf("invalid data URL: missing comma separator")
	}

	meta := rest[:commaIdx]
	payload := rest[commaIdx+1:]

	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("invalid data URL: missing ';base64' encoding marker")
	}

	mimeType = meta[:len(meta)-len(";base64")]
	if mimeType == "" {
		return "", nil, fmt.Errorf("invalid data URL: empty mime type")
	}

	raw, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URL: base64 decode error: %w", err)
	}

	return mimeType, raw, nil
}

// BuildDataURL constructs a data URL from a mime type and raw bytes.
func BuildDataURL(mimeType string, raw []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func decodeImage(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

func resizeImage(img image.Image, maxLongEdgePx int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	if longEdge <= maxLongEdgePx {
		return img
	}

	scale := float64(maxLongEdgePx) / float64(longEdge)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func encodeAsJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image as JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// PrepareImageForLimits decodes, resizes and (if necessary) recompresses an
// image's raw bytes to satisfy a provider's upload limits: maxBytes caps the
// payload size, maxLongEdgePx caps the longest image dimension. Providers
// (Anthropic: 30MB/1568px; others vary) call this before base64-encoding an
// image content block or tool_result image block.
func PrepareImageForLimits(mime string, raw []byte, maxBytes int, maxLongEdgePx int) (outMime string, outData []byte, err error) {
	if len(raw) <= maxBytes && maxLongEdgePx <= 0 {
		return mime, raw, nil
	}

	img, _, decodeErr := decodeImage(raw)
	if decodeErr != nil {
		if len(raw) <= maxBytes {
			return mime, raw, nil
		}
		return "", nil, fmt.Errorf("image exceeds %d bytes and cannot be decoded for resizing: %w", maxBytes, decodeErr)
	}

	bounds := img.Bounds()
	longEdge := bounds.Dx()
	if bounds.Dy() > longEdge {
		longEdge = bounds.Dy()
	}

	needsResize := maxLongEdgePx > 0 && longEdge > maxLongEdgePx
	needsRecompress := len(raw) > maxBytes

	if !needsResize && !needsRecompress {
		return mime, raw, nil
	}
	if needsResize {
		img = resizeImage(img, maxLongEdgePx)
	}

	qualities := []int{95, 85, 75, 60, 40, 20, 10}
	for _, q := range qualities {
		encoded, encErr := encodeAsJPEG(img, q)
		if encErr != nil {
			return "", nil, encErr
		}
		if len(encoded) <= maxBytes {
			return "image/jpeg", encoded, nil
		}
	}

	return "", nil, fmt.Errorf("image cannot be reduced below %d bytes even at minimum quality", maxBytes)
}
