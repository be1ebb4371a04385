// Package frame converts captured screen images into transmittable
// bytes: lossy JPEG encoding, lossless zlib compression, optional
// downscaling, and a sparse byte diff for bandwidth-sensitive paths.
package frame

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
)

const (
	// MinQuality and MaxQuality bound the JPEG quality setting.
	MinQuality = 1
	MaxQuality = 100
)

// ClampQuality forces q into the valid JPEG quality range.
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// Compress applies zlib to data. Round-trip exact with Decompress.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compress failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress failed: %w", err)
	}
	return out, nil
}

// EncodeImage produces JPEG bytes at the given quality (clamped 1-100).
func EncodeImage(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: ClampQuality(quality)}
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage parses JPEG bytes back into an image.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode failed: %w", err)
	}
	return img, nil
}

// Scale downscales src by the given factor (0..1].
func Scale(src image.Image, factor float64) image.Image {
	srcBounds := src.Bounds()
	newW := int(float64(srcBounds.Dx()) * factor)
	newH := int(float64(srcBounds.Dy()) * factor)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, srcBounds, draw.Over, nil)
	return dst
}
