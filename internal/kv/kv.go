// Package kv defines the persistent key-value port the data store writes
// through. Values are opaque strings; callers choose the encoding.
package kv

import "context"

type (
	// Storage is a flat, string-keyed namespace. A missing key is reported
	// through ok=false, never as an error.
	Storage interface {
		Get(ctx context.Context, key string) (value string, ok bool, err error)
		Set(ctx context.Context, key, value string) error
		Delete(ctx context.Context, key string) error
	}

	// Pinger is implemented by backends that can report readiness.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
