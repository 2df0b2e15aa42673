package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andrc91/camerafleet/internal/wire"
)

// NodeEntry is one row of the static node registry: logical name, address,
// and which port profile it uses.
type NodeEntry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Local   bool   `yaml:"local"`
}

// Registry is the full static fleet roster.
type Registry struct {
	Nodes []NodeEntry `yaml:"nodes"`
}

// Profile returns the port profile for a registry entry.
func (e NodeEntry) Profile() wire.PortProfile {
	if e.Local {
		return wire.LocalProfile
	}
	return wire.RemoteProfile
}

// LoadRegistry reads the YAML file at path: read, unmarshal, log.Fatal on
// unreadable or malformed input. The registry is not hot-reloadable, so
// there is no override-layering step here.
func LoadRegistry(path string) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("config: registry read error: ", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		log.Fatal("config: registry parse error: ", err)
	}
	return &reg
}

// Find returns the entry for name, or an error if it isn't registered.
func (r *Registry) Find(name string) (NodeEntry, error) {
	for _, e := range r.Nodes {
		if e.Name == name {
			return e, nil
		}
	}
	return NodeEntry{}, fmt.Errorf("config: node %q not in registry", name)
}

// DefaultRegistry is the authoritative fleet roster, used to seed
// config.registry.yaml and as a fallback when no registry file is
// supplied.
func DefaultRegistry() *Registry {
	reg := &Registry{}
	for i := 1; i <= 7; i++ {
		reg.Nodes = append(reg.Nodes, NodeEntry{
			Name:    fmt.Sprintf("rep%d", i),
			Address: fmt.Sprintf("192.168.0.%d", 200+i),
			Local:   false,
		})
	}
	reg.Nodes = append(reg.Nodes, NodeEntry{Name: "rep8", Address: "127.0.0.1", Local: true})
	return reg
}
