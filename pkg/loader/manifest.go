package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the optional sidecar describing a module file. For "skills/render.wasm"
// the loader looks for "skills/render.yaml".
type Manifest struct {
	// Name overrides the skill name derived from the file name.
	Name string `yaml:"name"`

	// Version is reported in skill results.
	Version string `yaml:"version"`

	// Description is a short human-readable description.
	Description string `yaml:"description"`

	// RequiredInputs are checked before every execution.
	RequiredInputs []string `yaml:"required_inputs"`

	// Checksum is the expected sha256 of the module file, hex encoded.
	Checksum string `yaml:"checksum"`
}

// manifestPath returns the sidecar path for a module file.
func manifestPath(modulePath string) string {
	return strings.TrimSuffix(modulePath, extOf(modulePath)) + ".yaml"
}

// loadManifest reads the sidecar manifest of modulePath. A missing sidecar is not an error.
func loadManifest(modulePath string) (*Manifest, bool, error) {
	data, err := os.ReadFile(manifestPath(modulePath))
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	return &m, true, nil
}

// verifyChecksum compares the module bytes against the manifest checksum, if one is set.
func (m *Manifest) verifyChecksum(module []byte) error {
	if m.Checksum == "" {
		return nil
	}
	sum := sha256.Sum256(module)
	actual := hex.EncodeToString(sum[:])
	expected := strings.ToLower(strings.TrimPrefix(m.Checksum, "sha256:"))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
