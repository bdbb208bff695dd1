package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds store calls made on behalf of an API request
	DefaultTimeout = 10 * time.Second

	// LongTimeout covers object storage uploads
	LongTimeout = 60 * time.Second

	// ShortTimeout is for redis round trips in the request path
	ShortTimeout = 2 * time.Second
)

func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithDetachedTimeout keeps the parent's values but not its cancellation.
// Writes that record an already-made external call must outlive the caller.
func WithDetachedTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), DefaultTimeout)
}
