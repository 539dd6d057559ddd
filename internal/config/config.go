// Package config loads the ruledit server configuration from HCL.
//
// Example:
//
//	listen   = ":8080"
//	database = "${env.STATE_DIRECTORY}/versions.db"
//	log_level = "debug"
//
//	session_ttl     = "30m"
//	request_timeout = "15s"
//
// Strings may reference environment variables as env.NAME. RULEDIT_LISTEN
// and RULEDIT_DATABASE override the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/ruledit/internal/brand"
)

const (
	DefaultListen         = ":8080"
	DefaultMaxUploadBytes = 1 << 20
	DefaultSessionTTL     = time.Hour
	DefaultRequestTimeout = 30 * time.Second
)

// Config is the decoded configuration file.
type Config struct {
	Listen              string `hcl:"listen,optional" json:"listen"`
	Database            string `hcl:"database,optional" json:"database"`
	LogLevel            string `hcl:"log_level,optional" json:"log_level"`
	LogJSON             bool   `hcl:"log_json,optional" json:"log_json"`
	DefaultFirewallType string `hcl:"default_firewall_type,optional" json:"default_firewall_type"`
	MaxUploadBytes      int64  `hcl:"max_upload_bytes,optional" json:"max_upload_bytes"`
	StrictParse         bool   `hcl:"strict_parse,optional" json:"strict_parse"`

	// SessionsPerMinute caps new sessions per client address. Zero disables
	// the limit.
	SessionsPerMinute int `hcl:"sessions_per_minute,optional" json:"sessions_per_minute"`

	// Durations are Go duration strings, e.g. "90s".
	SessionTTLRaw     string `hcl:"session_ttl,optional" json:"session_ttl"`
	RequestTimeoutRaw string `hcl:"request_timeout,optional" json:"request_timeout"`

	SessionTTL     time.Duration `json:"-"`
	RequestTimeout time.Duration `json:"-"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes decodes HCL source. filename is used in diagnostics and must end
// in .hcl (or .json for the JSON syntax).
func LoadBytes(filename string, data []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, evalContext(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errs
	}
	return &cfg, nil
}

// evalContext exposes the process environment as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func (c *Config) applyEnv() {
	if v := brand.Env("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := brand.Env("DATABASE"); v != "" {
		c.Database = v
	}
}

func (c *Config) applyDefaults() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Database == "" {
		c.Database = brand.DefaultDatabasePath()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultFirewallType == "" {
		c.DefaultFirewallType = "iptables"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}

	var err error
	if c.SessionTTL, err = duration("session_ttl", c.SessionTTLRaw, DefaultSessionTTL); err != nil {
		return err
	}
	if c.RequestTimeout, err = duration("request_timeout", c.RequestTimeoutRaw, DefaultRequestTimeout); err != nil {
		return err
	}
	return nil
}

func duration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ValidationErrors{{Field: field, Message: err.Error()}}
	}
	return d, nil
}
