package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/sourcemeter/internal/httputil"
	"github.com/banshee-data/sourcemeter/internal/panel"
	"github.com/banshee-data/sourcemeter/internal/sweep"
)

// Client talks to a running server.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the server at base, e.g.
// "http://localhost:8024". A nil client uses http.DefaultClient.
func NewClient(base string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

func (c *Client) post(path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.http.Post(c.base+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return httputil.DecodeJSON(resp, out)
}

// Status fetches /api/status.
func (c *Client) Status() (panel.Status, error) {
	var st panel.Status
	resp, err := c.http.Get(c.base + "/api/status")
	if err != nil {
		return st, fmt.Errorf("GET /api/status: %w", err)
	}
	return st, httputil.DecodeJSON(resp, &st)
}

// Start starts a run on the server.
func (c *Client) Start() error {
	return c.post("/api/sweep/start", nil, nil)
}

// Abort aborts the server's run and returns its summary.
func (c *Client) Abort() (sweep.RunSummary, error) {
	var s sweep.RunSummary
	return s, c.post("/api/sweep/abort", nil, &s)
}

// Save asks the server to save its traces under name and returns the path.
func (c *Client) Save(name string) (string, error) {
	var resp saveResponse
	if err := c.post("/api/traces/save", saveRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}
