package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/stream"
)

// ErrServerOffline is returned when the inference server cannot be reached
// or answers with a non-2xx status
var ErrServerOffline = errors.New("inference server offline")

// Request timeouts
const (
	HealthTimeout   = 3 * time.Second
	GenerateTimeout = 30 * time.Second
	GPUInfoTimeout  = 5 * time.Second
)

// Client handles inference server operations
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new inference server client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// BaseURL returns the server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthResponse is the payload of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Engine string `json:"engine,omitempty"`
}

// GenerateRequest is the payload of POST /generate
type GenerateRequest = prompt.Request

// GenerateResponse is the payload returned by POST /generate
type GenerateResponse struct {
	Text      string       `json:"text"`
	Latency   float64      `json:"latency"` // seconds, 2 decimals
	Tokens    stream.Usage `json:"tokens"`
	RawOutput string       `json:"raw_output"`
}

// ChatRequest is the payload of POST /chat
type ChatRequest struct {
	Messages []prompt.Message `json:"messages"`
}

// ChatResponse is the payload returned by POST /chat
type ChatResponse struct {
	GenerateResponse
	HTML string `json:"html"`
}

// Health checks GET /health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, HealthTimeout, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("%w: status %q", ErrServerOffline, resp.Status)
	}
	return &resp, nil
}

// Generate runs one editing request on the server
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, GenerateTimeout, http.MethodPost, "/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat sends the conversation so far and returns the assistant reply
func (c *Client) Chat(ctx context.Context, messages []prompt.Message) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, GenerateTimeout, http.MethodPost, "/chat", ChatRequest{Messages: messages}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GPUInfo fetches the server's host report
func (c *Client) GPUInfo(ctx context.Context) (*probe.HostReport, error) {
	var resp probe.HostReport
	if err := c.do(ctx, GPUInfoTimeout, http.MethodGet, "/api/gpu-info", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: sending request: %v", ErrServerOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: request failed with status %d: %s", ErrServerOffline, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
