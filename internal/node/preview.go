package node

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/andrc91/camerafleet/internal/sensor"
	"github.com/andrc91/camerafleet/internal/settings"
	"github.com/andrc91/camerafleet/internal/transform"
)

// maxDatagramBytes is the practical UDP payload cap a JPEG frame must fit
// under to be delivered reliably in one datagram.
const maxDatagramBytes = 60 * 1024

// maxConsecutiveSendErrors is how many consecutive failures (sensor capture
// or UDP send) the preview loop tolerates before aborting.
const maxConsecutiveSendErrors = 10

// previewLoop runs the node's preview loop: capture -> transform -> JPEG
// encode -> UDP send -> sleep to target fps, until stopped.
// It is started by the arbiter and never called directly by the command
// listener.
type previewLoop struct {
	sens     sensor.Sensor
	settings *settings.Cache
	conn     net.Conn // connected UDP socket to controller:video port
	quality  *atomic.Int32

	stopCh chan struct{}
	doneCh chan struct{}
}

// newPreviewLoop configures the sensor for video mode and returns a loop
// ready to Run in its own goroutine.
func newPreviewLoop(sens sensor.Sensor, store *settings.Cache, conn net.Conn, quality *atomic.Int32) (*previewLoop, error) {
	s := store.Current()
	if err := sens.Configure(sensor.ModeVideo, controlsFrom(s)); err != nil {
		return nil, err
	}
	if err := sens.Start(); err != nil {
		return nil, err
	}
	return &previewLoop{
		sens:     sens,
		settings: store,
		conn:     conn,
		quality:  quality,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// run is the goroutine body. It returns (and closes doneCh) when stopped
// cooperatively or after too many consecutive errors, at which point the
// sensor has already been released.
func (p *previewLoop) run() {
	defer close(p.doneCh)
	defer p.sens.Stop()

	consecutiveErrs := 0
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		s := p.settings.Current()
		start := time.Now()

		frame, err := p.sens.CaptureFrame()
		if err != nil {
			log.Println("node: preview capture error:", err)
			consecutiveErrs++
			if consecutiveErrs >= maxConsecutiveSendErrors {
				log.Println("node: preview loop aborting after repeated capture errors")
				return
			}
			continue
		}

		out := transform.Transform(&transform.Frame{Width: frame.Width, Height: frame.Height, Order: transform.RGB, Pix: frame.RGB}, s)

		quality := int(p.quality.Load())
		data, encErr := encodeJPEG(out, quality)
		if encErr == nil && len(data) > maxDatagramBytes {
			// Re-encode once at a lower quality to fit the datagram cap.
			data, encErr = encodeJPEG(out, 50)
		}
		if encErr != nil {
			log.Println("node: preview encode error:", encErr)
			continue
		}

		if _, sendErr := p.conn.Write(data); sendErr != nil {
			consecutiveErrs++
			log.Println("node: preview send error:", sendErr)
			if consecutiveErrs >= maxConsecutiveSendErrors {
				log.Println("node: preview loop aborting after repeated send errors")
				return
			}
		} else {
			consecutiveErrs = 0
		}

		targetInterval := time.Second / time.Duration(max(1, s.FPS))
		if elapsed := time.Since(start); elapsed < targetInterval {
			select {
			case <-p.stopCh:
				return
			case <-time.After(targetInterval - elapsed):
			}
		}
	}
}

// stop signals the loop to exit and waits up to waitFor for it to finish;
// returns false on timeout.
func (p *previewLoop) stop(waitFor time.Duration) bool {
	close(p.stopCh)
	select {
	case <-p.doneCh:
		return true
	case <-time.After(waitFor):
		return false
	}
}

func encodeJPEG(f *transform.Frame, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			r, g, b := f.Pix[i], f.Pix[i+1], f.Pix[i+2]
			if f.Order == transform.BGR {
				r, b = b, r
			}
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func controlsFrom(s settings.Settings) sensor.Controls {
	return sensor.Controls{
		Brightness:   s.Brightness,
		Contrast:     s.Contrast,
		Saturation:   s.Saturation,
		ISO:          s.ISO,
		WhiteBalance: s.WhiteBalance,
		FPS:          s.FPS,
		Resolution:   s.Resolution,
	}
}
