package builder_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vyvo/modelpack/pkg/builder"
)

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), builder.ManifestFileName)
	want := builder.Manifest{
		Job:         builder.Job{ModelPath: "model.pkl", ImageName: "demo"},
		ServiceMode: "debug",
		Port:        8080,
	}
	if err := builder.WriteManifest(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := builder.LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}

	if err := builder.WriteManifest(path, want); err == nil {
		t.Fatalf("expected existing manifest to be kept")
	}
}

func TestLoadManifestIgnoresSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), builder.ManifestFileName)
	content := "model_path: model.pkl\nimage_name: demo\ndiscovery_policy: off\nremote:\n  host: build.example.com\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := builder.LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.ModelPath != "model.pkl" || m.ImageName != "demo" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestLoadManifestRequiresModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), builder.ManifestFileName)
	if err := os.WriteFile(path, []byte("image_name: demo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := builder.LoadManifest(path); err == nil {
		t.Fatalf("expected missing model_path error")
	}
}
