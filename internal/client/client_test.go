package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruledit/internal/api"
	"grimm.is/ruledit/internal/brand"
	"grimm.is/ruledit/internal/logging"
	"grimm.is/ruledit/internal/metrics"
	"grimm.is/ruledit/internal/ruleset"
	"grimm.is/ruledit/internal/versions"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := api.NewServer(api.ServerOptions{
		Store:   versions.NewMemoryStore(nil),
		Logger:  logging.New(logging.Config{Output: io.Discard}),
		Metrics: metrics.NewIsolated(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPClient_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	c := NewHTTPClient(ts.URL + "/")
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	s, err := c.Upload(ctx, "rules.sh", strings.NewReader("iptables -A INPUT -p tcp --dport 22 -j ACCEPT\nnoise\n"), "iptables", "edge-1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	require.Len(t, s.Issues, 1)
	assert.Equal(t, 2, s.Issues[0].Line)

	s, err = c.AddRule(ctx, s.ID, ruleset.Rule{Chain: "INPUT", Target: "DROP"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.RuleSet.RuleCount("INPUT"))

	s, err = c.UpdateRule(ctx, s.ID, "INPUT", 0, ruleset.Rule{Target: "ACCEPT", Protocol: "tcp", DPort: "2222"})
	require.NoError(t, err)
	assert.Equal(t, "2222", s.RuleSet.Chain("INPUT").Rules[0].DPort)

	_, err = c.DeleteRule(ctx, s.ID, "INPUT", 5)
	assert.True(t, IsNotFound(err))

	s, err = c.DeleteRule(ctx, s.ID, "INPUT", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.RuleSet.RuleCount("INPUT"))

	text, err := c.Render(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "iptables -F\niptables -P INPUT ACCEPT\n\n# INPUT chain rules\niptables -A INPUT -p tcp --dport 2222 -j ACCEPT\n\n", text)

	got, err := c.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, text, got.Rendered)

	require.NoError(t, c.CloseSession(ctx, s.ID))
	_, err = c.GetSession(ctx, s.ID)
	assert.True(t, IsNotFound(err))
}

func TestHTTPClient_Versions(t *testing.T) {
	ts := newTestServer(t)
	c := NewHTTPClient(ts.URL)
	ctx := context.Background()

	s, err := c.Upload(ctx, "rules", strings.NewReader("-A INPUT -j ACCEPT\n"), "", "edge-1")
	require.NoError(t, err)
	v1, err := c.SaveSession(ctx, s.ID, "baseline")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := c.SaveVersion(ctx, "edge-1", "iptables", "iptables -F\n\n# INPUT chain rules\niptables -A INPUT -j DROP\n\n", "lockdown")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	list, err := c.ListVersions(ctx, "edge-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, v2.ID, list[0].ID)

	rec, err := c.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Contains(t, rec.ConfigData, "-j ACCEPT")

	d, err := c.Diff(ctx, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Added)
	assert.Contains(t, d.Lines, "+iptables -A INPUT -j DROP")

	u, err := c.DiffUnified(ctx, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Contains(t, u, "+++ edge-1 v2")

	devices, err := c.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"edge-1"}, devices)

	loaded, err := c.LoadVersion(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, "DROP", loaded.RuleSet.Chain("INPUT").Rules[0].Target)

	_, err = c.GetVersion(ctx, 404)
	assert.True(t, IsNotFound(err))
}

func TestHTTPClient_Watch(t *testing.T) {
	ts := newTestServer(t)
	c := NewHTTPClient(ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := c.Upload(ctx, "rules", strings.NewReader("-A INPUT -j ACCEPT\n"), "", "")
	require.NoError(t, err)

	updates := make(chan Update, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, s.ID, func(u Update) { updates <- u }) }()

	first := <-updates
	assert.Contains(t, first.Rendered, "-j ACCEPT")

	_, err = c.AddRule(ctx, s.ID, ruleset.Rule{Chain: "INPUT", Target: "LOG"})
	require.NoError(t, err)
	second := <-updates
	assert.Equal(t, 2, second.RuleSet.RuleCount("INPUT"))

	require.NoError(t, c.CloseSession(ctx, s.ID))
	assert.NoError(t, <-done)
}

func TestHTTPClient_WatchUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	err := NewHTTPClient(ts.URL).Watch(context.Background(), "missing", func(Update) {})
	assert.True(t, IsNotFound(err))
}

func TestHTTPClient_ErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lang := r.Header.Get("Accept-Language"); lang != "de" {
			t.Errorf("expected Accept-Language 'de', got '%s'", lang)
		}
		if ua := r.Header.Get("User-Agent"); ua != brand.UserAgent() {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "Regeln konnten nicht gelesen werden", "details": "line 1"}`))
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, WithLanguage("de"), WithTimeout(time.Second))
	_, err := c.Devices(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "line 1", apiErr.Details)
	assert.False(t, IsNotFound(err))
}

func TestHTTPClient_PlainTextError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewHTTPClient(server.URL).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "404 page not found", apiErr.Message)
}
