package arbiter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andrc91/camerafleet/internal/sensor"
)

// fakeCollaborators wires a no-op preview runner and a configurable still
// capturer so arbiter tests don't depend on internal/node.
type fakeCollaborators struct {
	mu            sync.Mutex
	previewActive bool
	captureErr    error
	captureCalls  int
}

func (f *fakeCollaborators) runPreview(sensor.Sensor) func(time.Duration) bool {
	f.mu.Lock()
	f.previewActive = true
	f.mu.Unlock()
	return func(time.Duration) bool {
		f.mu.Lock()
		f.previewActive = false
		f.mu.Unlock()
		return true
	}
}

func (f *fakeCollaborators) captureStill(sensor.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureCalls++
	return f.captureErr
}

func newTestArbiter(f *fakeCollaborators) *Arbiter {
	return New(Config{
		Sensor:        sensor.NewSimulated(),
		RunPreview:    f.runPreview,
		CaptureStill:  f.captureStill,
		SettleTimeout: 10 * time.Millisecond,
		JoinTimeout:   10 * time.Millisecond,
	})
}

func TestStartPreviewFromIdle(t *testing.T) {
	f := &fakeCollaborators{}
	a := newTestArbiter(f)
	if err := a.StartPreview(); err != nil {
		t.Fatal(err)
	}
	if a.State() != Previewing {
		t.Errorf("state = %v, want PREVIEWING", a.State())
	}
}

func TestStartPreviewRedundantIsNoop(t *testing.T) {
	f := &fakeCollaborators{}
	a := newTestArbiter(f)
	a.StartPreview()
	if err := a.StartPreview(); err != nil {
		t.Errorf("redundant StartPreview returned error: %v", err)
	}
	if a.State() != Previewing {
		t.Errorf("state = %v, want PREVIEWING", a.State())
	}
}

func TestStopPreview(t *testing.T) {
	f := &fakeCollaborators{}
	a := newTestArbiter(f)
	a.StartPreview()
	if err := a.StopPreview(); err != nil {
		t.Fatal(err)
	}
	if a.State() != Idle {
		t.Errorf("state = %v, want IDLE", a.State())
	}
}

func TestCaptureStillFromPreviewingResumesOnSuccess(t *testing.T) {
	f := &fakeCollaborators{}
	a := newTestArbiter(f)
	a.StartPreview()

	if err := a.CaptureStill(); err != nil {
		t.Fatal(err)
	}
	if a.State() != Previewing {
		t.Errorf("state after successful capture = %v, want PREVIEWING (resume)", a.State())
	}
	if f.captureCalls != 1 {
		t.Errorf("captureCalls = %d, want 1", f.captureCalls)
	}
}

func TestCaptureStillFromIdleDoesNotResume(t *testing.T) {
	f := &fakeCollaborators{}
	a := newTestArbiter(f)

	if err := a.CaptureStill(); err != nil {
		t.Fatal(err)
	}
	if a.State() != Idle {
		t.Errorf("state after capture from idle = %v, want IDLE", a.State())
	}
}

func TestCaptureStillFailureDoesNotResume(t *testing.T) {
	f := &fakeCollaborators{captureErr: errors.New("boom")}
	a := newTestArbiter(f)
	a.StartPreview()

	err := a.CaptureStill()
	if err == nil {
		t.Fatal("expected error")
	}
	var sf *ErrSensorFault
	if !errors.As(err, &sf) {
		t.Errorf("expected ErrSensorFault, got %T: %v", err, err)
	}
	if a.State() != Idle {
		t.Errorf("state after failed capture = %v, want IDLE (no resume)", a.State())
	}
}

func TestCaptureStillDuringCaptureIsRejectedBusy(t *testing.T) {
	block := make(chan struct{})
	f := &fakeCollaborators{}
	a := New(Config{
		Sensor:     sensor.NewSimulated(),
		RunPreview: f.runPreview,
		CaptureStill: func(sensor.Sensor) error {
			<-block
			return nil
		},
		SettleTimeout: time.Millisecond,
		JoinTimeout:   time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		a.CaptureStill()
		close(done)
	}()

	// Wait until the arbiter has actually entered CAPTURING.
	for a.State() != Capturing {
		time.Sleep(time.Millisecond)
	}

	if err := a.CaptureStill(); err != ErrBusy {
		t.Errorf("CaptureStill during CAPTURING = %v, want ErrBusy", err)
	}

	close(block)
	<-done
}

func TestNeverBothPreviewingAndCapturingSensorOwnership(t *testing.T) {
	// The only two owners of the sensor are the preview loop (while
	// PREVIEWING) and the still capturer (while CAPTURING); they are
	// mutually exclusive by construction since CaptureStill always stops
	// preview before transitioning to CAPTURING.
	f := &fakeCollaborators{}
	a := newTestArbiter(f)
	a.StartPreview()

	var captureSawPreviewActive bool
	a2 := New(Config{
		Sensor:     sensor.NewSimulated(),
		RunPreview: f.runPreview,
		CaptureStill: func(sensor.Sensor) error {
			f.mu.Lock()
			captureSawPreviewActive = f.previewActive
			f.mu.Unlock()
			return nil
		},
		SettleTimeout: time.Millisecond,
		JoinTimeout:   time.Millisecond,
	})
	a2.StartPreview()
	a2.CaptureStill()

	if captureSawPreviewActive {
		t.Error("still capture observed preview loop still active — sensor ownership overlap")
	}
	_ = a
}
