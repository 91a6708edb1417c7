package builder

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// ServiceMode selects the listener the generated service starts.
type ServiceMode string

const (
	// ServiceModeProduction serves the app with waitress.
	ServiceModeProduction ServiceMode = "production"
	// ServiceModeDebug runs the Flask development server with debug enabled.
	ServiceModeDebug ServiceMode = "debug"
)

// ParseServiceMode accepts "production", "debug", or an empty string.
func ParseServiceMode(raw string) (ServiceMode, error) {
	switch ServiceMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ServiceModeProduction:
		return ServiceModeProduction, nil
	case ServiceModeDebug:
		return ServiceModeDebug, nil
	default:
		return "", fmt.Errorf("unknown service mode %q", raw)
	}
}

var pythonIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EntryModule returns the Python module name the service imports for an
// entry file such as "src/predict.py".
func EntryModule(entryFile string) (string, error) {
	base := filepath.Base(entryFile)
	module, ok := strings.CutSuffix(base, ".py")
	if !ok || !pythonIdentifier.MatchString(module) {
		return "", fmt.Errorf("%w: %q is not an importable .py module", ErrInvalidEntryFile, entryFile)
	}
	if base == ServiceFileName {
		return "", fmt.Errorf("%w: %q collides with the generated %s", ErrInvalidEntryFile, entryFile, ServiceFileName)
	}
	return module, nil
}

// RenderService returns the service file for mode, importing the scoring
// callable from module.
func RenderService(mode ServiceMode, module string) ([]byte, error) {
	name := "app_production.py.tmpl"
	if mode == ServiceModeDebug {
		name = "app_debug.py.tmpl"
	}
	if !pythonIdentifier.MatchString(module) {
		return nil, fmt.Errorf("%w: module %q", ErrInvalidEntryFile, module)
	}
	var buf bytes.Buffer
	data := map[string]any{"Port": DefaultPort, "Module": module}
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render service: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageSpec holds the values substituted into the image definition.
type ImageSpec struct {
	BaseImage     string
	Requirements  string
	EntryFile     string
	ModelFile     string
	ServiceFile   string
	ExtraPackages []string
}

// RenderImageDefinition returns the Dockerfile for img.
func RenderImageDefinition(img ImageSpec) ([]byte, error) {
	if img.BaseImage == "" {
		img.BaseImage = DefaultBaseImage
	}
	if img.ServiceFile == "" {
		img.ServiceFile = ServiceFileName
	}
	img.Requirements = filepath.ToSlash(img.Requirements)
	img.EntryFile = filepath.ToSlash(img.EntryFile)
	img.ModelFile = filepath.ToSlash(img.ModelFile)

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "Dockerfile.tmpl", img); err != nil {
		return nil, fmt.Errorf("render image definition: %w", err)
	}
	return buf.Bytes(), nil
}

func servicePackages(mode ServiceMode) []string {
	if mode == ServiceModeDebug {
		return nil
	}
	return []string{"waitress"}
}
