package config

import (
	"fmt"
	"net"
	"strings"

	"grimm.is/ruledit/internal/logging"
	"grimm.is/ruledit/internal/ruleset"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks field values after defaults are applied.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		add("listen", "invalid address %q: %v", c.Listen, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "%v", err)
	}
	if _, err := ruleset.ParseFirewallType(c.DefaultFirewallType); err != nil {
		add("default_firewall_type", "%v", err)
	}
	if c.MaxUploadBytes < 0 {
		add("max_upload_bytes", "must not be negative")
	}
	if c.SessionsPerMinute < 0 {
		add("sessions_per_minute", "must not be negative")
	}
	if c.SessionTTL <= 0 {
		add("session_ttl", "must be positive")
	}
	if c.RequestTimeout <= 0 {
		add("request_timeout", "must be positive")
	}
	return errs
}

// FirewallType returns the parsed default firewall type.
func (c *Config) FirewallType() ruleset.FirewallType {
	t, err := ruleset.ParseFirewallType(c.DefaultFirewallType)
	if err != nil {
		return ruleset.IPTables
	}
	return t
}
