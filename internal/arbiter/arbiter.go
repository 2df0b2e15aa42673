// Package arbiter implements the node's camera arbiter: the single
// writer-owner of the sensor, serializing preview and still capture so
// they never overlap. The arbiter is the only code path permitted to call
// sensor.Start/Stop; state transitions are serialized by a mutex, while
// long-running capture work runs outside the lock — the same shape as a
// manager holding a mutex-guarded map of state plus per-resource
// goroutines doing the real work unlocked.
package arbiter

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/andrc91/camerafleet/internal/sensor"
)

// State is one of the three reachable arbiter states.
type State int

const (
	Idle State = iota
	Previewing
	Capturing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Previewing:
		return "PREVIEWING"
	case Capturing:
		return "CAPTURING"
	default:
		return "UNKNOWN"
	}
}

// ErrBusy is returned when capture_still arrives during CAPTURING; it is
// rejected rather than queued.
var ErrBusy = errors.New("arbiter: busy capturing")

// ErrSensorFault wraps a sensor error that forced a transition to IDLE.
type ErrSensorFault struct{ Err error }

func (e *ErrSensorFault) Error() string { return fmt.Sprintf("arbiter: sensor fault: %v", e.Err) }
func (e *ErrSensorFault) Unwrap() error { return e.Err }

// PreviewRunner starts a preview loop and returns a function to stop it.
// Supplied by internal/node so the arbiter doesn't import the preview
// loop's concrete type (avoids an import cycle: node depends on arbiter).
type PreviewRunner func(sensor.Sensor) (stop func(waitFor time.Duration) bool)

// StillCapturer performs one still-capture-and-upload cycle: it configures,
// starts and stops the sensor itself; the arbiter has already stopped the
// preview loop by the time this is called. Returns an error only on a
// sensor fault; upload failures are handled internally (logged, preview
// resumes anyway).
type StillCapturer func(sensor.Sensor) error

// Arbiter is the per-node camera owner.
type Arbiter struct {
	mu    sync.Mutex
	state State
	sens  sensor.Sensor

	runPreview   PreviewRunner
	captureStill StillCapturer

	stopPreview   func(waitFor time.Duration) bool
	wasPreviewing bool

	settleTimeout time.Duration
	joinTimeout   time.Duration
}

// Config bundles the collaborators the arbiter needs.
type Config struct {
	Sensor        sensor.Sensor
	RunPreview    PreviewRunner
	CaptureStill  StillCapturer
	SettleTimeout time.Duration // bounds waiting for sensor release before re-acquire
	JoinTimeout   time.Duration // bounds stop_preview join
}

// New constructs an Arbiter in the IDLE state.
func New(cfg Config) *Arbiter {
	settle := cfg.SettleTimeout
	if settle == 0 {
		settle = 4 * time.Second
	}
	join := cfg.JoinTimeout
	if join == 0 {
		join = 3 * time.Second
	}
	return &Arbiter{
		state:         Idle,
		sens:          cfg.Sensor,
		runPreview:    cfg.RunPreview,
		captureStill:  cfg.CaptureStill,
		settleTimeout: settle,
		joinTimeout:   join,
	}
}

// State returns the current state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// StartPreview acquires the sensor and spawns the preview loop. A
// redundant call while already PREVIEWING is a no-op.
func (a *Arbiter) StartPreview() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case Previewing:
		return nil
	case Capturing:
		return ErrBusy
	}

	stop := a.runPreview(a.sens)
	a.stopPreview = stop
	a.state = Previewing
	return nil
}

// StopPreview signals the preview loop to exit, joins (bounded by
// joinTimeout — after which the arbiter logs a fault but still releases
// the sensor), and enters IDLE.
func (a *Arbiter) StopPreview() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopPreviewLocked()
}

func (a *Arbiter) stopPreviewLocked() error {
	if a.state != Previewing {
		return nil
	}
	stop := a.stopPreview
	a.stopPreview = nil
	a.state = Idle
	if stop == nil {
		return nil
	}
	if !stop(a.joinTimeout) {
		log.Println("arbiter: preview join timed out, releasing sensor anyway")
		if a.sens != nil {
			a.sens.Stop()
		}
	}
	return nil
}

// CaptureStill executes the full capture_still transition: stop preview
// if running, wait for sensor release, acquire at still resolution,
// capture, transform, upload, then resume preview if it had been
// running. Rejects with ErrBusy if already CAPTURING.
func (a *Arbiter) CaptureStill() error {
	a.mu.Lock()
	if a.state == Capturing {
		a.mu.Unlock()
		return ErrBusy
	}

	wasPreviewing := a.state == Previewing
	if wasPreviewing {
		if err := a.stopPreviewLocked(); err != nil {
			a.mu.Unlock()
			return err
		}
		// settle: give the just-stopped preview loop's final capture a
		// moment to release the sensor object before we reconfigure it.
		a.mu.Unlock()
		time.Sleep(a.settleTimeout / 10)
		a.mu.Lock()
	}

	a.wasPreviewing = wasPreviewing
	a.state = Capturing
	sens := a.sens
	capture := a.captureStill
	a.mu.Unlock()

	// The capture itself runs outside the lock; subsequent transitions
	// block on the mutex until we re-acquire below.
	err := capture(sens)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.state = Idle
		return &ErrSensorFault{Err: err}
	}

	if a.wasPreviewing {
		stop := a.runPreview(a.sens)
		a.stopPreview = stop
		a.state = Previewing
	} else {
		a.state = Idle
	}
	return nil
}
