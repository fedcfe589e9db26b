package backend

import (
	"context"
	"time"

	"eaccountant/internal/source"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the report source, the optional publish
// destination and an optional cleanup function.
type BackendResult struct {
	Reader source.Reader
	// Publisher is nil when no destination is configured.
	Publisher source.Publisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// REST specific
	BaseURL string
	Token   string
	Timeout time.Duration

	Fields source.FieldMap

	// Google Sheets, as source or as publish destination
	GoogleSpreadsheetID string
	GoogleSalesSheet    string
	GoogleProfitsSheet  string
	GoogleProductsSheet string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	RESTBackend   BackendType = "rest"
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
	case RESTBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
