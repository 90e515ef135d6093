// Package client is a small HTTP client for a running devlane control
// plane. It speaks the {success, data|error} envelope of the REST API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultBaseURL is where a locally served plane listens by default.
const DefaultBaseURL = "http://127.0.0.1:7070"

// Client provides HTTP access to the devlane daemon.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client. An empty baseURL targets the local daemon.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// LaunchRequest mirrors the /action endpoints' body.
type LaunchRequest struct {
	Root   string         `json:"root,omitempty"`
	Host   string         `json:"host,omitempty"`
	Port   int            `json:"port,omitempty"`
	OutDir string         `json:"out_dir,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Project mirrors the plane's project table entries.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Framework string    `json:"framework"`
	Status    string    `json:"status"`
	Port      int       `json:"port,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
}

// Workload mirrors one live supervised process.
type Workload struct {
	ProjectID string    `json:"project_id"`
	Action    string    `json:"action"`
	PID       int       `json:"pid"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// IsReachable reports whether the daemon answers at all.
func (c *Client) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/workspace/running")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Dev launches a dev server and returns its address.
func (c *Client) Dev(req LaunchRequest) (string, error) {
	var data struct {
		Addr string `json:"addr"`
	}
	err := c.post("/action/dev", req, &data)
	return data.Addr, err
}

// Build runs a one-shot build, blocking until the daemon reports done.
func (c *Client) Build(req LaunchRequest) error {
	return c.post("/action/build", req, nil)
}

// Preview serves the last build and returns its address.
func (c *Client) Preview(req LaunchRequest) (string, error) {
	var data struct {
		Addr string `json:"addr"`
	}
	err := c.post("/action/preview", req, &data)
	return data.Addr, err
}

// Stop terminates a workload. An empty action stops every lane of the
// project; an empty project stops every workload on the plane.
func (c *Client) Stop(project, action string) error {
	body := map[string]string{"project": project, "action": action}
	return c.post("/action/stop", body, nil)
}

// Running lists live workloads.
func (c *Client) Running() ([]Workload, error) {
	var out []Workload
	err := c.get("/workspace/running", &out)
	return out, err
}

// Projects lists the discovered project table.
func (c *Client) Projects() ([]Project, error) {
	var out []Project
	err := c.get("/workspace/projects", &out)
	return out, err
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

func (c *Client) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

func (c *Client) decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("API error: %s", env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
