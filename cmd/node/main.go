// Command node runs one camera node process: it listens for commands on
// its control port, streams preview frames to the controller, captures
// stills on demand, and emits heartbeats.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrc91/camerafleet/internal/config"
	"github.com/andrc91/camerafleet/internal/node"
	"github.com/andrc91/camerafleet/internal/sensor"
)

func main() {
	env := config.Load()
	if env.DeviceName == "" {
		log.Fatal("node: DEVICE_NAME is required")
	}

	reg := loadRegistry(env)
	entry, err := reg.Find(env.DeviceName)
	if err != nil {
		log.Fatal("node: ", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n, err := node.New(node.Config{
		DeviceName:   env.DeviceName,
		SettingsDir:  env.SettingsDir,
		Sensor:       sensor.NewSimulated(),
		Profile:      entry.Profile(),
		ControllerIP: env.ControllerIP,
		OnShutdown:   runShutdown,
		OnSetTime:    runSetTime,
	})
	if err != nil {
		log.Fatal("node: ", err)
	}

	log.Printf("node: %s starting (local=%v, controller=%s)", env.DeviceName, entry.Local, env.ControllerIP)
	n.Run(ctx)
}

// loadRegistry resolves the static node registry, falling back to the
// authoritative default roster when no registry file is configured.
func loadRegistry(env *config.Env) *config.Registry {
	if env.RegistryPath == "" {
		return config.DefaultRegistry()
	}
	if _, err := os.Stat(env.RegistryPath); err != nil {
		return config.DefaultRegistry()
	}
	return config.LoadRegistry(env.RegistryPath)
}

// runShutdown invokes the OS shutdown/reboot action. The concrete OS call
// is out of scope; logging stands in for the actual syscall so the
// process is observable in development.
func runShutdown(reboot bool) {
	if reboot {
		log.Println("node: REBOOT requested (OS action out of scope)")
		return
	}
	log.Println("node: SHUTDOWN requested (OS action out of scope)")
}

// runSetTime logs the requested wall-clock time; setting the OS clock is
// out of scope.
func runSetTime(timestamp string) {
	log.Println("node: SET_TIME requested:", timestamp)
}
