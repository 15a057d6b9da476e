package cache

import (
	"context"

	"github.com/mediconsult/pkg/models"
)

// Cache is the fast, non-authoritative message log. Implementations must
// tolerate being unavailable; callers treat every error as best-effort.
type Cache interface {
	// Append adds a message to the conversation's log.
	Append(ctx context.Context, conversationID string, msg *models.Message) error
	// List returns the cached log in append order.
	List(ctx context.Context, conversationID string) ([]*models.Message, error)
	// Delete drops the conversation's log.
	Delete(ctx context.Context, conversationID string) error
	// Available reports whether the backend is currently reachable.
	Available() bool
}
