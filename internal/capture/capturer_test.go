package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/remotedesk/remotedesk/internal/frame"
)

// fakeSource returns a sequence of canned images or errors.
type fakeSource struct {
	images     []image.Image
	err        error
	calls      int
	lastRegion *image.Rectangle
}

func (s *fakeSource) Capture(region *image.Rectangle) (image.Image, error) {
	s.calls++
	s.lastRegion = region
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.images) {
		idx = len(s.images) - 1
	}
	return s.images[idx], nil
}

func solidImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// newTestCapturer returns a capturer with a controllable clock.
func newTestCapturer(src Source) (*Capturer, *time.Time) {
	c := New(src)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestTickProducesCompressedFrame(t *testing.T) {
	src := &fakeSource{images: []image.Image{solidImage(color.RGBA{255, 0, 0, 255})}}
	c, _ := newTestCapturer(src)

	data, ok := c.Tick()
	if !ok {
		t.Fatal("expected a frame on first tick")
	}
	encoded, err := frame.Decompress(data)
	if err != nil {
		t.Fatalf("frame is not valid zlib: %v", err)
	}
	if _, err := frame.DecodeImage(encoded); err != nil {
		t.Fatalf("frame is not valid JPEG after decompression: %v", err)
	}
}

func TestTickRateLimited(t *testing.T) {
	src := &fakeSource{images: []image.Image{
		solidImage(color.RGBA{255, 0, 0, 255}),
		solidImage(color.RGBA{0, 255, 0, 255}),
	}}
	c, now := newTestCapturer(src)
	c.SetFPS(10) // 100ms interval

	if _, ok := c.Tick(); !ok {
		t.Fatal("expected a frame on first tick")
	}

	// Second tick inside the interval: no frame, no capture attempt.
	*now = now.Add(50 * time.Millisecond)
	if _, ok := c.Tick(); ok {
		t.Error("expected no frame within 1/fps of the last capture")
	}
	if src.calls != 1 {
		t.Errorf("expected 1 capture call, got %d", src.calls)
	}

	// After the interval elapses a frame flows again.
	*now = now.Add(60 * time.Millisecond)
	if _, ok := c.Tick(); !ok {
		t.Error("expected a frame after the interval elapsed")
	}
}

func TestTickSkipsIdenticalFrames(t *testing.T) {
	same := solidImage(color.RGBA{10, 20, 30, 255})
	src := &fakeSource{images: []image.Image{same, same, solidImage(color.RGBA{200, 20, 30, 255})}}
	c, now := newTestCapturer(src)
	c.SetFPS(60)

	if _, ok := c.Tick(); !ok {
		t.Fatal("expected a frame on first tick")
	}

	*now = now.Add(time.Second)
	if _, ok := c.Tick(); ok {
		t.Error("expected no frame for pixel-identical capture")
	}

	// A changed screen produces a frame again.
	*now = now.Add(time.Second)
	if _, ok := c.Tick(); !ok {
		t.Error("expected a frame after the screen changed")
	}
}

func TestTickChangeDetectionDisabled(t *testing.T) {
	same := solidImage(color.RGBA{10, 20, 30, 255})
	src := &fakeSource{images: []image.Image{same}}
	c, now := newTestCapturer(src)
	c.DetectChanges(false)

	if _, ok := c.Tick(); !ok {
		t.Fatal("expected a frame on first tick")
	}
	*now = now.Add(time.Second)
	if _, ok := c.Tick(); !ok {
		t.Error("expected identical frame to be sent with change detection off")
	}
}

func TestTickCaptureErrorIsNotFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("access denied")}
	c, now := newTestCapturer(src)

	if _, ok := c.Tick(); ok {
		t.Error("expected no frame when capture fails")
	}

	// Pipeline recovers once the source does.
	src.err = nil
	src.images = []image.Image{solidImage(color.RGBA{1, 2, 3, 255})}
	*now = now.Add(time.Second)
	if _, ok := c.Tick(); !ok {
		t.Error("expected a frame after the source recovered")
	}
}

func TestSetFPSClamped(t *testing.T) {
	c := New(&fakeSource{})
	c.SetFPS(0)
	if c.FPS() != MinFPS {
		t.Errorf("expected fps clamped to %d, got %d", MinFPS, c.FPS())
	}
	c.SetFPS(500)
	if c.FPS() != MaxFPS {
		t.Errorf("expected fps clamped to %d, got %d", MaxFPS, c.FPS())
	}
	c.SetFPS(24)
	if want := time.Second / 24; c.Interval() != want {
		t.Errorf("expected interval %v, got %v", want, c.Interval())
	}
}

func TestSetRegionReachesSource(t *testing.T) {
	src := &fakeSource{images: []image.Image{solidImage(color.RGBA{0, 0, 0, 255})}}
	c, _ := newTestCapturer(src)

	region := image.Rect(10, 10, 110, 90)
	c.SetRegion(&region)
	c.Tick()

	if src.lastRegion == nil || *src.lastRegion != region {
		t.Errorf("expected region %v passed to source, got %v", region, src.lastRegion)
	}
}
