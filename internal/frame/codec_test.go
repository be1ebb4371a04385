package frame

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 100000),
		{0x00, 0xFF, 0x7F, 0x80, 0x01},
	}
	for _, data := range cases {
		compressed, err := Compress(data)
		if err != nil {
			t.Fatalf("compress failed: %v", err)
		}
		out, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("decompress failed: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("round trip mismatch for %d input bytes", len(data))
		}
	}
}

func TestCompressShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte("screen"), 10000)
	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("expected compression gain, got %d -> %d bytes", len(data), len(compressed))
	}
}

func TestDecompressGarbage(t *testing.T) {
	if _, err := Decompress([]byte("definitely not zlib")); err == nil {
		t.Error("expected error for non-zlib input")
	}
}

func TestClampQuality(t *testing.T) {
	cases := []struct{ in, want int }{
		{-10, 1}, {0, 1}, {1, 1}, {50, 50}, {100, 100}, {101, 100}, {1000, 100},
	}
	for _, tc := range cases {
		if got := ClampQuality(tc.in); got != tc.want {
			t.Errorf("ClampQuality(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeDecodeImage(t *testing.T) {
	img := testImage(64, 48)

	data, err := EncodeImage(img, 75)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("unexpected decoded bounds: %v", decoded.Bounds())
	}
}

func TestEncodeImageQualityOutOfRange(t *testing.T) {
	img := testImage(16, 16)
	// Out-of-range quality is clamped, not an error.
	if _, err := EncodeImage(img, 0); err != nil {
		t.Errorf("quality 0 should clamp, got error: %v", err)
	}
	if _, err := EncodeImage(img, 500); err != nil {
		t.Errorf("quality 500 should clamp, got error: %v", err)
	}
}

func TestEncodeQualityAffectsSize(t *testing.T) {
	img := testImage(128, 128)
	low, err := EncodeImage(img, 10)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	high, err := EncodeImage(img, 95)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("expected low quality to be smaller: q10=%d q95=%d", len(low), len(high))
	}
}

func TestScale(t *testing.T) {
	img := testImage(100, 80)
	scaled := Scale(img, 0.5)
	if scaled.Bounds().Dx() != 50 || scaled.Bounds().Dy() != 40 {
		t.Errorf("unexpected scaled bounds: %v", scaled.Bounds())
	}

	// A tiny factor must never produce a zero-sized image.
	tiny := Scale(img, 0.001)
	if tiny.Bounds().Dx() < 1 || tiny.Bounds().Dy() < 1 {
		t.Errorf("scaled image collapsed to %v", tiny.Bounds())
	}
}
