package node

import (
	"encoding/json"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/andrc91/camerafleet/internal/arbiter"
	"github.com/andrc91/camerafleet/internal/settings"
	"github.com/andrc91/camerafleet/internal/wire"
)

// commandListener is the node's UDP server on the control port. It
// parses each datagram with wire.ParseCommand and dispatches with a
// single switch.
type commandListener struct {
	conn       *net.UDPConn
	arb        *arbiter.Arbiter
	settings   *settings.Cache
	quality    *atomic.Int32
	onTime     func(string)      // SET_TIME_* handler, best-effort
	onShutdown func(reboot bool) // OS shutdown/reboot invocation; the concrete syscall is out of scope
}

func newCommandListener(conn *net.UDPConn, arb *arbiter.Arbiter, store *settings.Cache, quality *atomic.Int32, onTime func(string), onShutdown func(reboot bool)) *commandListener {
	return &commandListener{conn: conn, arb: arb, settings: store, quality: quality, onTime: onTime, onShutdown: onShutdown}
}

// serve blocks, reading datagrams until the socket is closed.
func (cl *commandListener) serve() {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := cl.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed: normal shutdown path
		}
		cmd := wire.ParseCommand(string(buf[:n]))
		cl.dispatch(cmd)
	}
}

func (cl *commandListener) dispatch(cmd wire.Command) {
	switch cmd.Kind {
	case wire.CmdStartStream:
		if err := cl.arb.StartPreview(); err != nil {
			log.Println("node: START_STREAM:", err)
		}

	case wire.CmdStopStream:
		if err := cl.arb.StopPreview(); err != nil {
			log.Println("node: STOP_STREAM:", err)
		}

	case wire.CmdCaptureStill:
		go func() {
			if err := cl.arb.CaptureStill(); err != nil {
				log.Println("node: CAPTURE_STILL:", err)
			}
		}()

	case wire.CmdRestartStreamWithSettings:
		cl.arb.StopPreview()
		if err := cl.arb.StartPreview(); err != nil {
			log.Println("node: RESTART_STREAM_WITH_SETTINGS:", err)
		}

	case wire.CmdSetQuality:
		cl.quality.Store(int32(cmd.Quality))

	case wire.CmdSetCameraFlip:
		cl.settings.Update(func(s *settings.Settings) {
			if cmd.Axis == "HORIZONTAL" {
				s.FlipHorizontal = cmd.Bool
			} else {
				s.FlipVertical = cmd.Bool
			}
		})
		// Pure transform: the preview loop picks this up on its next
		// iteration. Sensor is never reconfigured.

	case wire.CmdSetCameraGrayscale:
		cl.settings.Update(func(s *settings.Settings) { s.Grayscale = cmd.Bool })

	case wire.CmdSetCameraRotation:
		cl.settings.Update(func(s *settings.Settings) { s.Rotation = cmd.Angle })

	case wire.CmdSetCameraCrop:
		cl.settings.Update(func(s *settings.Settings) { applyCropField(s, cmd) })

	case wire.CmdSetCameraField:
		cl.applySensorField(cmd)

	case wire.CmdSetAllSettings:
		if !cl.applyAllSettings(cmd.JSON) {
			return // bad JSON already logged; nothing changed, so no restart
		}

	case wire.CmdResetDefaults:
		cl.settings.Replace(settings.Default())

	case wire.CmdSetTime:
		if cl.onTime != nil {
			cl.onTime(cmd.Value)
		}

	case wire.CmdShutdown, wire.CmdReboot:
		cl.arb.StopPreview()
		if cl.onShutdown != nil {
			cl.onShutdown(cmd.Kind == wire.CmdReboot)
		}

	default:
		log.Println("node: unrecognised command:", cmd.Raw)
	}

	// restartIfPreviewing is driven by cmd.AffectsSensorControl so this
	// stays the single source of truth for the sensor-vs-transform split.
	if cmd.AffectsSensorControl() {
		cl.restartIfPreviewing()
	}
}

func applyCropField(s *settings.Settings, cmd wire.Command) {
	switch cmd.CropField {
	case wire.CropEnabled:
		if b, err := strconv.ParseBool(cmd.CropValue); err == nil {
			s.CropEnabled = b
		}
	case wire.CropX:
		if v, err := strconv.Atoi(cmd.CropValue); err == nil {
			s.CropX = v
		}
	case wire.CropY:
		if v, err := strconv.Atoi(cmd.CropValue); err == nil {
			s.CropY = v
		}
	case wire.CropWidth:
		if v, err := strconv.Atoi(cmd.CropValue); err == nil {
			s.CropWidth = v
		}
	case wire.CropHeight:
		if v, err := strconv.Atoi(cmd.CropValue); err == nil {
			s.CropHeight = v
		}
	}
}

// applySensorField mutates a single sensor-control field
// (SET_CAMERA_<field>_<v>). dispatch then restarts preview, since all such
// fields affect sensor controls.
func (cl *commandListener) applySensorField(cmd wire.Command) {
	cl.settings.Update(func(s *settings.Settings) {
		switch cmd.Field {
		case "brightness":
			if v, err := strconv.Atoi(cmd.Value); err == nil {
				s.Brightness = v
			}
		case "contrast":
			if v, err := strconv.Atoi(cmd.Value); err == nil {
				s.Contrast = v
			}
		case "saturation":
			if v, err := strconv.Atoi(cmd.Value); err == nil {
				s.Saturation = v
			}
		case "iso":
			if v, err := strconv.Atoi(cmd.Value); err == nil {
				s.ISO = v
			}
		case "white_balance":
			s.WhiteBalance = cmd.Value
		case "fps":
			if v, err := strconv.Atoi(cmd.Value); err == nil {
				s.FPS = v
			}
		case "resolution":
			s.Resolution = cmd.Value
		default:
			log.Println("node: unknown sensor field:", cmd.Field)
		}
	})
}

func (cl *commandListener) applyAllSettings(body string) bool {
	next := cl.settings.Current()
	if err := json.Unmarshal([]byte(body), &next); err != nil {
		log.Println("node: SET_ALL_SETTINGS: bad JSON:", err)
		return false
	}
	cl.settings.Replace(next)
	return true
}

// restartIfPreviewing restarts the stream when it's currently running,
// used by commands that mutate sensor-level controls — the stream is
// restarted only on sensor-control changes, never on pure transform
// changes.
func (cl *commandListener) restartIfPreviewing() {
	if cl.arb.State() == arbiter.Previewing {
		cl.arb.StopPreview()
		if err := cl.arb.StartPreview(); err != nil {
			log.Println("node: restart after settings change:", err)
		}
	}
}
