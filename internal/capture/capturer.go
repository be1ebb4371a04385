package capture

import (
	"bytes"
	"image"
	"log"
	"sync"
	"time"

	"github.com/remotedesk/remotedesk/internal/frame"
)

const (
	// DefaultQuality is the JPEG quality used when none is configured.
	DefaultQuality = 70
	// DefaultFPS is the capture rate used when none is configured.
	DefaultFPS = 30
	// MinFPS and MaxFPS bound SetFPS.
	MinFPS = 1
	MaxFPS = 60
)

// Capturer turns a Source into a paced sequence of compressed frames.
// Tick is single-caller (the broadcast loop); the setters are safe to
// call from any goroutine and take effect on the next tick.
type Capturer struct {
	src Source

	mu            sync.Mutex
	quality       int
	fps           int
	interval      time.Duration
	region        *image.Rectangle
	detectChanges bool

	lastCapture time.Time
	previous    []byte // last encoded (pre-compression) frame

	now func() time.Time // test hook
}

// New creates a Capturer with default quality, fps and change detection.
func New(src Source) *Capturer {
	return &Capturer{
		src:           src,
		quality:       DefaultQuality,
		fps:           DefaultFPS,
		interval:      time.Second / DefaultFPS,
		detectChanges: true,
		now:           time.Now,
	}
}

// SetRegion restricts capture to a display region; nil restores full
// display capture.
func (c *Capturer) SetRegion(region *image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region = region
}

// SetQuality sets the JPEG quality, clamped to [1,100].
func (c *Capturer) SetQuality(quality int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quality = frame.ClampQuality(quality)
}

// SetFPS sets the capture rate, clamped to [1,60], and recomputes the
// frame interval.
func (c *Capturer) SetFPS(fps int) {
	if fps < MinFPS {
		fps = MinFPS
	}
	if fps > MaxFPS {
		fps = MaxFPS
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
	c.interval = time.Second / time.Duration(fps)
}

// FPS returns the current capture rate.
func (c *Capturer) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// Interval returns the current frame interval.
func (c *Capturer) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// DetectChanges toggles the identical-frame skip.
func (c *Capturer) DetectChanges(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detectChanges = enabled
}

// Tick attempts one capture. It returns (frame, true) with a zlib
// compressed JPEG, or (nil, false) when no frame is due: the interval
// has not elapsed, the screen is unchanged, or the capture failed.
// Failures are logged per tick and never fatal to the pipeline.
func (c *Capturer) Tick() ([]byte, bool) {
	c.mu.Lock()
	interval := c.interval
	quality := c.quality
	region := c.region
	detect := c.detectChanges
	c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastCapture) < interval {
		return nil, false
	}
	c.lastCapture = now

	img, err := c.src.Capture(region)
	if err != nil {
		log.Printf("[WARN] capture: %v", err)
		return nil, false
	}

	encoded, err := frame.EncodeImage(img, quality)
	if err != nil {
		log.Printf("[WARN] capture: encode: %v", err)
		return nil, false
	}

	// Skip transmission when the screen has not changed. The previous
	// slot is left alone, it already holds these exact bytes.
	if detect && c.previous != nil && len(encoded) == len(c.previous) && bytes.Equal(encoded, c.previous) {
		return nil, false
	}
	c.previous = encoded

	compressed, err := frame.Compress(encoded)
	if err != nil {
		log.Printf("[WARN] capture: compress: %v", err)
		return nil, false
	}
	return compressed, true
}
