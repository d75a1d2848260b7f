package backend

import (
	"context"

	"fintrack/internal/remote"
)

// HealthFunc reports whether the remote store is reachable.
type HealthFunc func(ctx context.Context) error

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the remote client and the hooks that go with it.
type BackendResult struct {
	Client remote.Client
	// Health backs the connectivity probe.
	Health  HealthFunc
	Cleanup CleanupFunc
}

// Factory creates remote clients based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// HTTP specific
	RemoteURL string

	// SQLite specific, an embedded store on this machine
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// BackendType represents the type of backend
type BackendType string

const (
	HTTPBackend   BackendType = "http"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case HTTPBackend, SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
