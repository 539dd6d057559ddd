// Package brand provides the product name and default locations.
//
// The identity is loaded from brand.json at compile time via go:embed so
// scripts and docs can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	DatabaseFileName string `json:"databaseFileName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	DatabaseFileName = b.DatabaseFileName
}

var (
	Name             string
	LowerName        string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	BinaryName       string
	ConfigFileName   string
	DatabaseFileName string

	// Version is set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
)

// Get returns the full Brand struct.
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}

// Env returns the value of the branded environment variable, e.g.
// Env("LISTEN") reads RULEDIT_LISTEN.
func Env(name string) string {
	return os.Getenv(ConfigEnvPrefix + "_" + name)
}

// GetStateDir returns the state directory.
// Priority: RULEDIT_STATE_DIR > RULEDIT_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := Env("STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := Env("PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetConfigDir returns the config directory.
// Priority: RULEDIT_CONFIG_DIR > RULEDIT_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := Env("CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := Env("PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultConfigPath is where serve looks for its configuration file.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// DefaultDatabasePath is where the version store lives unless configured.
func DefaultDatabasePath() string {
	return filepath.Join(GetStateDir(), DatabaseFileName)
}
