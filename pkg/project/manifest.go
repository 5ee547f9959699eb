package project

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Manifest is the subset of Scarb.toml the verifier needs: package
// identity, license, and enough of the dependency table to detect a
// Dojo project.
type Manifest struct {
	Package struct {
		Name         string `toml:"name"`
		Version      string `toml:"version"`
		Edition      string `toml:"edition"`
		License      string `toml:"license"`
		CairoVersion string `toml:"cairo-version"`
	} `toml:"package"`
	Dependencies    map[string]any `toml:"dependencies"`
	DevDependencies map[string]any `toml:"dev-dependencies"`
}

// ParseManifest reads and decodes a Scarb.toml.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// DojoVersion reports whether the package depends on dojo and, if so,
// the declared version. Dependency entries may be plain version
// strings or tables with version/tag keys.
func (m *Manifest) DojoVersion() (string, bool) {
	dep, ok := m.Dependencies["dojo"]
	if !ok {
		return "", false
	}
	switch v := dep.(type) {
	case string:
		return v, true
	case map[string]any:
		for _, key := range []string{"version", "tag", "rev"} {
			if raw, ok := v[key]; ok {
				if s, ok := raw.(string); ok && s != "" {
					return s, true
				}
			}
		}
		return "", true
	default:
		return "", true
	}
}

// IsDojo reports whether this is a Dojo project.
func (m *Manifest) IsDojo() bool {
	_, ok := m.DojoVersion()
	return ok
}
