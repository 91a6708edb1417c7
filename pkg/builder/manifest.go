package builder

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// ManifestFileName is the job manifest looked up by the CLI.
const ManifestFileName = "modelpack.yaml"

// Manifest is the on-disk form of a Job.
type Manifest struct {
	Job         `yaml:",inline"`
	ServiceMode string `yaml:"service_mode,omitempty"`
	BaseImage   string `yaml:"base_image,omitempty"`
	Port        int    `yaml:"port,omitempty"`
}

// LoadManifest reads a job manifest. Keys other than the manifest fields are
// ignored because the same file also carries CLI settings.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.ModelPath == "" {
		return Manifest{}, fmt.Errorf("manifest %s: model_path is required", path)
	}
	return m, nil
}

// WriteManifest stores m at path, refusing to replace an existing file.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}
