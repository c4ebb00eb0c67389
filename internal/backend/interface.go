package backend

import (
	"context"

	"finwise/internal/amqp"
	"finwise/internal/kv"
	"finwise/internal/store"
)

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// BackendResult contains the storage, the optional change publisher and a
// cleanup function. Notifier and AMQP are nil when publishing is disabled.
type BackendResult struct {
	Storage  kv.Storage
	Notifier store.Notifier
	AMQP     *amqp.Client
	Cleanup  CleanupFunc
}

// Close runs Cleanup if set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP change events, only published by the sqlite backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
