package buildclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyvo/modelpack/pkg/auth"
	"github.com/vyvo/modelpack/pkg/builder"
)

// StreamClosed is the final log event sent by the builder service.
const StreamClosed = "[stream closed]"

// ErrNotFound is returned when the builder service reports a missing build.
var ErrNotFound = errors.New("build not found")

// Client talks to the builder service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	streamHTTP *http.Client
}

// NewClient creates a client for the service at baseURL. apiKey may be empty.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		streamHTTP: &http.Client{},
	}
}

type buildEnvelope struct {
	Build builder.Build `json:"build"`
}

type listEnvelope struct {
	Builds []builder.Build `json:"builds"`
}

// SubmitBuild requests a new build and returns the accepted record.
func (c *Client) SubmitBuild(ctx context.Context, req builder.CreateRequest) (builder.Build, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return builder.Build{}, fmt.Errorf("marshal build request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/builds", bytes.NewReader(body))
	if err != nil {
		return builder.Build{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out buildEnvelope
	if err := c.do(c.httpClient, httpReq, http.StatusAccepted, &out); err != nil {
		return builder.Build{}, fmt.Errorf("submit build: %w", err)
	}
	return out.Build, nil
}

// GetBuild fetches the current state of a build.
func (c *Client) GetBuild(ctx context.Context, id string) (builder.Build, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/api/builds/"+url.PathEscape(id), nil)
	if err != nil {
		return builder.Build{}, err
	}
	var out buildEnvelope
	if err := c.do(c.httpClient, httpReq, http.StatusOK, &out); err != nil {
		return builder.Build{}, fmt.Errorf("get build: %w", err)
	}
	return out.Build, nil
}

// ListBuilds returns every build the service knows, newest first.
func (c *Client) ListBuilds(ctx context.Context) ([]builder.Build, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/api/builds", nil)
	if err != nil {
		return nil, err
	}
	var out listEnvelope
	if err := c.do(c.httpClient, httpReq, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return out.Builds, nil
}

// StreamLogs follows the build log, calling lineFn for each line until the
// service closes the stream or ctx ends.
func (c *Client) StreamLogs(ctx context.Context, id string, lineFn func(string) error) error {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/api/builds/"+url.PathEscape(id)+"/logs", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stream logs: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return fmt.Errorf("stream logs: %w", err)
	}

	return ReadEvents(resp.Body, func(data string) error {
		if data == StreamClosed {
			return errStreamDone
		}
		return lineFn(data)
	})
}

var errStreamDone = errors.New("stream done")

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	auth.SetKey(req, c.apiKey)
	return req, nil
}

func (c *Client) do(hc *http.Client, req *http.Request, want int, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, want); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
}

// ParseSSEEvent joins the data lines of one event.
func ParseSSEEvent(lines []string) (string, bool) {
	var data []string
	for _, line := range lines {
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " "))
		}
	}
	if len(data) == 0 {
		return "", false
	}
	return strings.Join(data, "\n"), true
}

// ReadEvents reads SSE events from body, invoking eventFn for each one.
func ReadEvents(body io.Reader, eventFn func(string) error) error {
	reader := bufio.NewReader(body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
		if trimmed == "" || errors.Is(err, io.EOF) {
			if dispatchErr := dispatchEvent(lines, eventFn); dispatchErr != nil {
				if errors.Is(dispatchErr, errStreamDone) {
					return nil
				}
				return dispatchErr
			}
			lines = lines[:0]
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func dispatchEvent(lines []string, eventFn func(string) error) error {
	data, ok := ParseSSEEvent(lines)
	if !ok {
		return nil
	}
	return eventFn(data)
}
