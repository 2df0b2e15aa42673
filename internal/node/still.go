package node

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/andrc91/camerafleet/internal/sensor"
	"github.com/andrc91/camerafleet/internal/settings"
	"github.com/andrc91/camerafleet/internal/transform"
)

// maxUploadRetries bounds the still upload's connect/timeout retries,
// with a small backoff between attempts.
const maxUploadRetries = 3

// stillUploadBackoff is the delay between upload retries.
const stillUploadBackoff = 200 * time.Millisecond

// stillHandler captures one full-resolution still, transforms it, and
// uploads it to the controller's still port. It is invoked only by the
// arbiter's CaptureStill transition; capture below performs the
// configure/capture/release itself, inside that transition.
type stillHandler struct {
	settings  *settings.Cache
	stillAddr string // controller:STILL_INGRESS_PORT, TCP
}

func newStillHandler(store *settings.Cache, stillAddr string) *stillHandler {
	return &stillHandler{settings: store, stillAddr: stillAddr}
}

// capture implements arbiter.StillCapturer: configure sensor for full
// native resolution, capture one frame, transform, encode, upload, and
// release the sensor. Stopping preview first is the arbiter's job before
// this is called.
func (h *stillHandler) capture(sens sensor.Sensor) error {
	s := h.settings.Current()

	if err := sens.Configure(sensor.ModeStill, controlsFrom(s)); err != nil {
		return fmt.Errorf("still: configure: %w", err)
	}
	if err := sens.Start(); err != nil {
		return fmt.Errorf("still: start: %w", err)
	}
	defer sens.Stop()

	frame, err := sens.CaptureFrame()
	if err != nil {
		return fmt.Errorf("still: capture: %w", err)
	}

	out := transform.TransformForStill(&transform.Frame{Width: frame.Width, Height: frame.Height, Order: transform.RGB, Pix: frame.RGB}, s)
	data, err := encodeJPEG(out, max95(s.JPEGQuality))
	if err != nil {
		return fmt.Errorf("still: encode: %w", err)
	}

	if err := h.upload(data); err != nil {
		// An upload failure is logged and non-fatal: preview resumes anyway.
		// It is not a sensor fault, so we swallow it here rather than
		// returning an error that would keep the arbiter from resuming
		// preview.
		log.Printf("still: upload failed after retries: %v", err)
	}
	return nil
}

// max95 enforces the still encoder's minimum quality floor (high quality,
// >=95), independent of the preview encoder's configured jpeg_quality.
func max95(configured int) int {
	if configured < 95 {
		return 95
	}
	return configured
}

func (h *stillHandler) upload(data []byte) error {
	var lastErr error
	for attempt := 0; attempt < maxUploadRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(stillUploadBackoff * time.Duration(attempt))
		}
		conn, err := net.DialTimeout("tcp", h.stillAddr, 3*time.Second)
		if err != nil {
			lastErr = err
			continue
		}
		_, writeErr := conn.Write(data)
		closeErr := conn.Close()
		if writeErr != nil {
			lastErr = writeErr
			continue
		}
		if closeErr != nil {
			lastErr = closeErr
			continue
		}
		return nil
	}
	return fmt.Errorf("still upload to %s: %w", h.stillAddr, lastErr)
}
