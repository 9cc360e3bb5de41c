package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// Client talks to a control API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for addr, either host:port or a URL.
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.ControlError("failed to encode request", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return errors.ControlError("invalid request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.ControlError("control API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return errors.ControlError(fmt.Sprintf("%s %s: %s", method, path, e.Error), nil)
		}
		return errors.ControlError(fmt.Sprintf("%s %s: %s", method, path, resp.Status), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.ControlError("failed to decode response", err)
	}
	return nil
}

// Status returns the sandbox status.
func (c *Client) Status(ctx context.Context) (*sandbox.Status, error) {
	var st sandbox.Status
	if err := c.do(ctx, http.MethodGet, "/v1/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Events returns the event log, optionally filtered by type and limited to
// the last n entries when n > 0.
func (c *Client) Events(ctx context.Context, eventType audit.EventType, n int) ([]audit.Event, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", string(eventType))
	}
	if n > 0 {
		q.Set("limit", strconv.Itoa(n))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var events []audit.Event
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Exec runs a command in the sandbox.
func (c *Client) Exec(ctx context.Context, req ExecRequest) (*sandbox.ExecResult, error) {
	var res sandbox.ExecResult
	if err := c.do(ctx, http.MethodPost, "/v1/exec", req, &res); err != nil {
		return nil, err
	}
	res.Duration = time.Duration(res.DurationMs) * time.Millisecond
	return &res, nil
}

// Recover asks a degraded sandbox to recover and returns the new state.
func (c *Client) Recover(ctx context.Context) (sandbox.State, error) {
	var res stateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/recover", nil, &res); err != nil {
		return "", err
	}
	return res.State, nil
}

// Stop stops the sandbox.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/stop", nil, nil)
}

// Browser returns the CDP endpoint of the browser companion.
func (c *Client) Browser(ctx context.Context) (string, error) {
	var res browserResponse
	if err := c.do(ctx, http.MethodGet, "/v1/browser", nil, &res); err != nil {
		return "", err
	}
	return res.Endpoint, nil
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return errors.ControlError("invalid request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.ControlError("control API unreachable", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.ControlError("control API unhealthy: "+resp.Status, nil)
	}
	return nil
}
