package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/mscrnt/pwmbench/pkg/sysinfo"
)

// Client represents an agent client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new agent client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	transport := &http.Transport{}
	scheme := "http"
	if config.TLSEnabled() {
		tlsConfig, err := config.LoadClientTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		scheme = "https"
	}

	return &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, config.Host, config.Port),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Minute,
		},
	}, nil
}

// NewClientWith uses an existing HTTP client against baseURL
func NewClientWith(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	return data, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	data, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Get fetches an endpoint and returns the raw body
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// CheckHealth checks if the agent is healthy
func (c *Client) CheckHealth(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, "health", nil)
	if err != nil {
		return err
	}

	if string(body) != "OK\n" {
		return fmt.Errorf("unexpected health response: %s", string(body))
	}

	return nil
}

// SysInfo describes the agent host
func (c *Client) SysInfo(ctx context.Context) (sysinfo.Info, error) {
	var info sysinfo.Info
	err := c.getJSON(ctx, "sysinfo", &info)
	return info, err
}

// Scenarios lists the scenarios the agent can run
func (c *Client) Scenarios(ctx context.Context) ([]scenario.Info, error) {
	var infos []scenario.Info
	err := c.getJSON(ctx, "scenarios", &infos)
	return infos, err
}

// Run executes a scenario on the agent
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	data, err := c.do(ctx, http.MethodPost, "run", req)
	if err != nil {
		return nil, err
	}
	var resp RunResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// Runs lists recent runs the agent recorded
func (c *Client) Runs(ctx context.Context, limit int) ([]*db.Run, error) {
	var runs []*db.Run
	err := c.getJSON(ctx, fmt.Sprintf("runs?limit=%d", limit), &runs)
	return runs, err
}
