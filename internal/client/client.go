// Package client provides an API client for a remote ruledit server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/ruledit/internal/brand"
	"grimm.is/ruledit/internal/ruleset"
	"grimm.is/ruledit/internal/versions"
)

// Health mirrors the /healthz response.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// Session mirrors the API session view.
// Defined locally to avoid importing the internal/api package.
type Session struct {
	ID           string              `json:"session_id"`
	RuleSet      *ruleset.RuleSet    `json:"ruleset"`
	EditingChain string              `json:"editing_chain,omitempty"`
	EditingIndex int                 `json:"editing_index"`
	Rendered     string              `json:"rendered"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Issues       []ruleset.LineIssue `json:"issues,omitempty"`
}

// Diff mirrors the API version comparison.
type Diff struct {
	From    *versions.Record `json:"from"`
	To      *versions.Record `json:"to"`
	Lines   []string         `json:"lines"`
	Added   int              `json:"added"`
	Removed int              `json:"removed"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// HTTPClient talks to the ruledit HTTP API.
type HTTPClient struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient *http.Client
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithLanguage sets the Accept-Language sent with every request, which
// selects the language of server error messages.
func WithLanguage(lang string) ClientOption {
	return func(c *HTTPClient) {
		c.language = lang
	}
}

// NewHTTPClient creates a new HTTPClient for the given base URL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  brand.UserAgent(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}
	return req, nil
}

// do sends req and returns the body of a 2xx response.
func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(respBody, &er) == nil && er.Error != "" {
			apiErr.Message, apiErr.Details = er.Error, er.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, apiErr
	}
	return respBody, nil
}

// doRequest performs a JSON request and decodes the JSON response.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// getText performs a GET and returns the body as text.
func (c *HTTPClient) getText(ctx context.Context, path string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	return string(body), err
}

// Health checks the server.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Upload sends rule text as a multipart upload and returns the new session.
// An empty firewallType leaves the choice to the server's default.
func (c *HTTPClient) Upload(ctx context.Context, filename string, data io.Reader, firewallType, deviceName string) (*Session, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("config_file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("failed to copy rules: %w", err)
	}
	if firewallType != "" {
		if err := writer.WriteField("firewall_type", firewallType); err != nil {
			return nil, fmt.Errorf("failed to write firewall_type field: %w", err)
		}
	}
	if deviceName != "" {
		if err := writer.WriteField("device_name", deviceName); err != nil {
			return nil, fmt.Errorf("failed to write device_name field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/rulesets/upload", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(respBody, &s); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &s, nil
}

// GetSession fetches a session's current state.
func (c *HTTPClient) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := c.doRequest(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CloseSession discards a session.
func (c *HTTPClient) CloseSession(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// AddRule appends r to its chain.
func (c *HTTPClient) AddRule(ctx context.Context, id string, r ruleset.Rule) (*Session, error) {
	var s Session
	if err := c.doRequest(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/rules", r, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateRule replaces the rule at index in chain.
func (c *HTTPClient) UpdateRule(ctx context.Context, id, chain string, index int, r ruleset.Rule) (*Session, error) {
	var s Session
	if err := c.doRequest(ctx, http.MethodPut, rulePath(id, chain, index), r, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteRule removes the rule at index in chain.
func (c *HTTPClient) DeleteRule(ctx context.Context, id, chain string, index int) (*Session, error) {
	var s Session
	if err := c.doRequest(ctx, http.MethodDelete, rulePath(id, chain, index), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func rulePath(id, chain string, index int) string {
	return "/api/sessions/" + url.PathEscape(id) + "/rules/" + url.PathEscape(chain) + "/" + strconv.Itoa(index)
}

// Render returns the session's canonical rule text.
func (c *HTTPClient) Render(ctx context.Context, id string) (string, error) {
	return c.getText(ctx, "/api/sessions/"+url.PathEscape(id)+"/render")
}

// SaveSession stores the session's rendering as a new version.
func (c *HTTPClient) SaveSession(ctx context.Context, id, description string) (*versions.Record, error) {
	var rec versions.Record
	body := map[string]string{"description": description}
	if err := c.doRequest(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/save", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveVersion stores rendered text directly as a new version of a device.
func (c *HTTPClient) SaveVersion(ctx context.Context, deviceName, configType, configData, description string) (*versions.Record, error) {
	var rec versions.Record
	body := map[string]string{
		"device_name": deviceName,
		"config_type": configType,
		"config_data": configData,
		"description": description,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/versions", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListVersions lists stored versions, newest first. An empty device lists
// every device.
func (c *HTTPClient) ListVersions(ctx context.Context, device string) ([]versions.Record, error) {
	path := "/api/versions"
	if device != "" {
		path += "?" + url.Values{"device": {device}}.Encode()
	}
	var list []versions.Record
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetVersion fetches one version including its text.
func (c *HTTPClient) GetVersion(ctx context.Context, id int64) (*versions.Record, error) {
	var rec versions.Record
	if err := c.doRequest(ctx, http.MethodGet, "/api/versions/"+strconv.FormatInt(id, 10), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadVersion opens a new editing session on a stored version.
func (c *HTTPClient) LoadVersion(ctx context.Context, id int64) (*Session, error) {
	var s Session
	if err := c.doRequest(ctx, http.MethodPost, "/api/versions/"+strconv.FormatInt(id, 10)+"/load", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func diffQuery(from, to int64) url.Values {
	return url.Values{
		"from": {strconv.FormatInt(from, 10)},
		"to":   {strconv.FormatInt(to, 10)},
	}
}

// Diff compares two versions.
func (c *HTTPClient) Diff(ctx context.Context, from, to int64) (*Diff, error) {
	var d Diff
	if err := c.doRequest(ctx, http.MethodGet, "/api/versions/diff?"+diffQuery(from, to).Encode(), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DiffUnified compares two versions as a unified diff.
func (c *HTTPClient) DiffUnified(ctx context.Context, from, to int64) (string, error) {
	q := diffQuery(from, to)
	q.Set("format", "unified")
	return c.getText(ctx, "/api/versions/diff?"+q.Encode())
}

// Devices lists the devices with stored versions.
func (c *HTTPClient) Devices(ctx context.Context) ([]string, error) {
	var devices []string
	if err := c.doRequest(ctx, http.MethodGet, "/api/devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Update is one rule set pushed to a watcher.
type Update struct {
	Rendered string           `json:"rendered"`
	RuleSet  *ruleset.RuleSet `json:"ruleset"`
}

// Watch streams a session's rule set: once on connect and after every change.
// It blocks until the session is closed on the server, which returns nil, or
// until ctx is done or the connection fails.
func (c *HTTPClient) Watch(ctx context.Context, id string, onUpdate func(Update)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/sessions/" + url.PathEscape(id) + "/watch"

	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		dialer.TLSClientConfig = transport.TLSClientConfig
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &APIError{Status: resp.StatusCode, Message: "session not found"}
		}
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		var msg struct {
			Topic string          `json:"topic"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Skip malformed
		}

		switch msg.Topic {
		case "ruleset":
			var u Update
			if err := json.Unmarshal(msg.Data, &u); err != nil {
				continue
			}
			onUpdate(u)
		case "closed":
			return nil
		}
	}
}
