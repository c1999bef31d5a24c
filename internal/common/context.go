package common

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyJobID   contextKey = "job_id"
	ContextKeyOwnerID contextKey = "owner_id"
)

// WithJobID adds a job ID to the context
func WithJobID(ctx context.Context, jobID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// JobIDFromContext extracts the job ID from context
func JobIDFromContext(ctx context.Context) uuid.UUID {
	if jobID, ok := ctx.Value(ContextKeyJobID).(uuid.UUID); ok {
		return jobID
	}
	return uuid.Nil
}

// WithOwnerID adds the owning user's ID to the context
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}

// OwnerIDFromContext extracts the owning user's ID from context
func OwnerIDFromContext(ctx context.Context) uuid.UUID {
	if ownerID, ok := ctx.Value(ContextKeyOwnerID).(uuid.UUID); ok {
		return ownerID
	}
	return uuid.Nil
}

// WithTimeout creates a context with the specified timeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}
