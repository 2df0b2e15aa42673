// Package config loads process-level environment configuration (this
// file) and the static node registry (registry.go): envconfig+godotenv
// for process config, yaml for static domain data.
package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env is shared environment-driven configuration for both cmd/node and
// cmd/controller. Not every field applies to every process; each main()
// reads the subset it needs.
type Env struct {
	// Node process
	DeviceName   string `envconfig:"DEVICE_NAME"`
	Local        bool   `envconfig:"LOCAL" default:"false"`
	ControllerIP string `envconfig:"CONTROLLER_IP" default:"192.168.0.200"`
	SettingsDir  string `envconfig:"SETTINGS_DIR" default:"."`

	// Controller process
	RegistryPath         string        `envconfig:"REGISTRY_PATH" default:"config.registry.yaml"`
	CapturedBaseDir      string        `envconfig:"CAPTURED_BASE_DIR" default:"captured_images"`
	CapturedFallback     string        `envconfig:"CAPTURED_FALLBACK_DIR" default:"captured_images_local"`
	UIAddr               string        `envconfig:"UI_ADDR" default:"0.0.0.0:8080"`
	GridInterval         time.Duration `envconfig:"GRID_RENDER_INTERVAL" default:"250ms"`
	ExclusiveInterval    time.Duration `envconfig:"EXCLUSIVE_RENDER_INTERVAL" default:"67ms"`
	GalleryBatchInterval time.Duration `envconfig:"GALLERY_BATCH_INTERVAL" default:"250ms"`
	GalleryBatchMax      int           `envconfig:"GALLERY_BATCH_MAX" default:"3"`
}

// Load reads a .env file (if present, non-fatal if missing) then
// populates Env from the process environment, exiting on malformed
// values.
func Load() *Env {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment and defaults")
	}
	cfg := &Env{}
	if err := envconfig.Process("", cfg); err != nil {
		log.Fatal("config: ", err)
	}
	return cfg
}
