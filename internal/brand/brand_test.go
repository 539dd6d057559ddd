package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if ConfigEnvPrefix != "RULEDIT" {
		t.Errorf("ConfigEnvPrefix = %q", ConfigEnvPrefix)
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); ua != Name+"/"+Version {
		t.Errorf("UserAgent = %q", ua)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/ruledit")
	if GetStateDir() != "/tmp/ruledit/state" {
		t.Errorf("Expected prefix state dir, got %s", GetStateDir())
	}
	if got, want := DefaultDatabasePath(), filepath.Join("/tmp/ruledit/state", DatabaseFileName); got != want {
		t.Errorf("DefaultDatabasePath = %s, want %s", got, want)
	}

	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/custom/config")
	if GetConfigDir() != "/custom/config" {
		t.Errorf("Expected custom config dir, got %s", GetConfigDir())
	}
	if got := DefaultConfigPath(); got != filepath.Join("/custom/config", ConfigFileName) {
		t.Errorf("DefaultConfigPath = %s", got)
	}
}
