package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruledit/internal/ruleset"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes)
	assert.Equal(t, ruleset.IPTables, cfg.FirewallType())
	assert.Empty(t, cfg.Validate())
}

func TestLoadBytes(t *testing.T) {
	src := `
listen                = "127.0.0.1:9000"
database              = "/tmp/v.db"
log_level             = "debug"
log_json              = true
default_firewall_type = "ip6tables"
max_upload_bytes      = 4096
strict_parse          = true
sessions_per_minute   = 5
session_ttl           = "15m"
request_timeout       = "5s"
`
	cfg, err := LoadBytes("ruledit.hcl", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "/tmp/v.db", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, ruleset.IP6Tables, cfg.FirewallType())
	assert.Equal(t, int64(4096), cfg.MaxUploadBytes)
	assert.True(t, cfg.StrictParse)
	assert.Equal(t, 5, cfg.SessionsPerMinute)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadBytes_EnvInterpolation(t *testing.T) {
	t.Setenv("RULEDIT_TEST_DIR", "/srv/ruledit")

	cfg, err := LoadBytes("ruledit.hcl", []byte(`database = "${env.RULEDIT_TEST_DIR}/versions.db"`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/ruledit/versions.db", cfg.Database)
}

func TestLoadBytes_EnvOverride(t *testing.T) {
	t.Setenv("RULEDIT_LISTEN", ":7070")

	cfg, err := LoadBytes("ruledit.hcl", []byte(`listen = ":9000"`))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
}

func TestLoadBytes_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"bad listen", `listen = "nope"`, "listen"},
		{"bad level", `log_level = "chatty"`, "log_level"},
		{"bad type", `default_firewall_type = "pf"`, "default_firewall_type"},
		{"bad duration", `session_ttl = "soon"`, "session_ttl"},
		{"negative timeout", `request_timeout = "-1s"`, "request_timeout"},
		{"negative rate", `sessions_per_minute = -1`, "sessions_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes("ruledit.hcl", []byte(tt.src))
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}

	_, err := LoadBytes("ruledit.hcl", []byte(`unknown_field = 1`))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ruledit.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`listen = ":8181"`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8181", cfg.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Listen = "0.0.0.0:9999"
	cfg.SessionTTL = 10 * time.Minute

	out := cfg.Encode()
	assert.True(t, strings.Contains(string(out), `session_ttl`))

	back, err := LoadBytes("ruledit.hcl", out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, back.Listen)
	assert.Equal(t, cfg.SessionTTL, back.SessionTTL)
	assert.Equal(t, cfg.Database, back.Database)
}
