package backend

import (
	"context"
	"time"

	"feedesk/internal/feeapi"
	"feedesk/internal/services"
)

// Backend is the fee API as seen by the screens, plus a readiness probe.
type Backend interface {
	feeapi.Backend
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend, the optional event publisher, and the
// cleanup releasing both.
type BackendResult struct {
	Backend   Backend
	Publisher services.EventPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Fee API
	APIBaseURL string
	APITimeout time.Duration

	// Standalone backends
	SQLiteDBPath  string
	DataDirectory string
	SchoolID      string

	// Optional event publishing. The web service only publishes, so no queue is declared.
	AMQPURL      string
	AMQPExchange string
}

// BackendType represents the type of backend
type BackendType string

const (
	APIBackend    BackendType = "api"
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case APIBackend, MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}

// Standalone reports whether the backend implements the fee API in-process.
func (bt BackendType) Standalone() bool {
	return bt == MemoryBackend || bt == SQLiteBackend
}
