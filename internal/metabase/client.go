// Package metabase is the transport to the BI tool's REST API. It owns the
// process-wide session token and is the only place in the service where a
// request is retried.
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/metrics"
)

// Doer executes HTTP requests. *http.Client satisfies it; tests substitute
// fakes to inject faults.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the BI tool API.
type Client struct {
	baseURL  string
	username string
	password string
	http     Doer
	session  *SessionManager
	cache    MetadataCache
}

// NewClient creates a Client with its own SessionManager. If doer is nil an
// http.Client with the configured timeout is used.
func NewClient(cfg config.MetabaseConfig, doer Doer) *Client {
	if doer == nil {
		timeout := cfg.Timeout()
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:  normalizeBaseURL(cfg.BaseURL),
		username: cfg.Username,
		password: cfg.Password,
		http:     doer,
	}
	c.session = NewSessionManager(cfg.SessionTTL(), c.login)
	return c
}

// WithSession replaces the session manager, e.g. to share one across clients.
func (c *Client) WithSession(s *SessionManager) *Client {
	c.session = s
	return c
}

// WithCache enables metadata caching.
func (c *Client) WithCache(cache MetadataCache) *Client {
	c.cache = cache
	return c
}

// Session exposes the session manager for health checks.
func (c *Client) Session() *SessionManager {
	return c.session
}

// Configured reports whether URL and credentials are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.username != "" && c.password != ""
}

// normalizeBaseURL accepts both "https://bi.example.com" and
// "https://bi.example.com/api/".
func normalizeBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/api") {
		u += "/api"
	}
	return u
}

// Request sends one API call and decodes the JSON response into out (which
// may be nil). A 401 invalidates the session and the call is retried exactly
// once with a fresh token.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("metabase: encode %s body: %w", path, err)
		}
	}

	status, data, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.session.Invalidate()
		metrics.SessionRefreshed()
		status, data, err = c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s %s: %s", ErrUnauthorized, method, path, string(data))
		}
	}
	if status < 200 || status >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: status, Body: string(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("metabase: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	token, err := c.session.Get(ctx)
	if err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("metabase: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Metabase-Session", token)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream(endpointLabel(path), "error")
		return 0, nil, fmt.Errorf("metabase %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("metabase %s %s: read body: %w", method, path, err)
	}
	metrics.ObserveUpstream(endpointLabel(path), strconv.Itoa(resp.StatusCode))
	return resp.StatusCode, data, nil
}

// login posts the configured credentials to /session.
func (c *Client) login(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	payload, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("metabase: build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("session", "error")
		return "", fmt.Errorf("metabase: authenticate: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	metrics.ObserveUpstream("session", strconv.Itoa(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("metabase: authenticate: %w",
			&APIError{Method: http.MethodPost, Path: "/session", StatusCode: resp.StatusCode, Body: string(data)})
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return "", fmt.Errorf("metabase: decode session: %w", err)
	}
	if session.ID == "" {
		return "", fmt.Errorf("metabase: session response carried no token")
	}
	return session.ID, nil
}

// endpointLabel trims ids from the path for metric labels:
// "/table/12/query_metadata" -> "table/query_metadata".
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	kept := parts[:0]
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err == nil {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}
