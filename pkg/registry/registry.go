package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vyvo/modelpack/pkg/auth"
	"github.com/vyvo/modelpack/pkg/builder"
)

// ImageRecord is the payload announcing a freshly built scoring image.
type ImageRecord struct {
	Image     string `json:"image"`
	BuildID   string `json:"build_id"`
	ModelPath string `json:"model_path"`
	Status    string `json:"status"`
}

// Notifier tells a model registry about images produced by successful builds.
type Notifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNotifier returns nil when baseURL is empty; a nil Notifier does nothing.
func NewNotifier(baseURL, apiKey string) *Notifier {
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil
	}
	return &Notifier{
		baseURL:    base,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ImageBuilt posts the build's image to <registry>/api/images.
func (n *Notifier) ImageBuilt(ctx context.Context, build builder.Build) error {
	if n == nil {
		return nil
	}
	body, err := json.Marshal(ImageRecord{
		Image:     build.Job().Tag(),
		BuildID:   build.ID,
		ModelPath: build.ModelPath,
		Status:    "READY",
	})
	if err != nil {
		return fmt.Errorf("marshal image record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/images", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create registry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth.SetKey(req, n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry call for build %s: %w", build.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("registry returned status %d for build %s: %s", resp.StatusCode, build.ID, strings.TrimSpace(string(payload)))
	}
	return nil
}
