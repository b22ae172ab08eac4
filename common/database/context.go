// Package database provides shared timeout policy for storage operations.
package database

import (
	"context"
	"time"
)

// Timeout tiers for storage operations.
const (
	// QueryTimeout bounds read queries.
	QueryTimeout = 5 * time.Second

	// WriteTimeout bounds single-event writes.
	WriteTimeout = 10 * time.Second

	// BulkTimeout bounds batch indexing and migrations.
	BulkTimeout = 30 * time.Second
)

// QueryContext derives a context for read queries.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, QueryTimeout)
}

// WriteContext derives a context for writes.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, WriteTimeout)
}

// BulkContext derives a context for bulk operations.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, BulkTimeout)
}
