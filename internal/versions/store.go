// Package versions persists rendered rule sets as immutable, numbered
// versions per device.
package versions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a version id does not exist.
var ErrNotFound = errors.New("version not found")

// Record is one saved version of a device's rendered rules.
type Record struct {
	ID          int64     `json:"id"`
	Version     int       `json:"version"`
	DeviceName  string    `json:"device_name"`
	ConfigType  string    `json:"config_type"`
	ConfigData  string    `json:"config_data,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistence collaborator for versions. Implementations are
// safe for concurrent use.
type Store interface {
	// Save assigns ID, Version and CreatedAt (when zero) and stores rec.
	// Version is one more than the highest stored version of the device.
	Save(ctx context.Context, rec *Record) error
	// List returns records newest first without ConfigData. An empty
	// device lists all devices.
	List(ctx context.Context, device string) ([]Record, error)
	// Get returns the full record or ErrNotFound.
	Get(ctx context.Context, id int64) (*Record, error)
	// Devices returns the names of devices with stored versions, sorted.
	Devices(ctx context.Context) ([]string, error)
	Close() error
}
