package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mediconsult/internal/cache"
	"github.com/mediconsult/internal/store"
	"github.com/mediconsult/pkg/models"
)

var (
	// ErrNotAuthorized is returned when a user addresses a conversation
	// owned by someone else.
	ErrNotAuthorized = errors.New("not authorized for this conversation")
	// ErrConversationNotFound re-exports the store sentinel.
	ErrConversationNotFound = store.ErrConversationNotFound
	// ErrConversationClosed rejects resolving a CLOSED conversation for
	// new messages.
	ErrConversationClosed = errors.New("conversation is closed")
)

// ConversationStore is the subset of the store the registry needs.
type ConversationStore interface {
	CreateConversation(ctx context.Context, convType models.ConversationType, userID string, consultationID *string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	SetConversationStatus(ctx context.Context, id string, status models.ConversationStatus) (bool, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Appender seeds new conversations with an initial system message.
type Appender interface {
	Append(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata json.RawMessage) (*models.Message, error)
}

// Registry owns conversation lifecycle: create-or-resolve, close, delete.
type Registry struct {
	store    ConversationStore
	appender Appender
	cache    cache.Cache
	logger   zerolog.Logger
}

// New creates a Registry.
func New(s ConversationStore, a Appender, c cache.Cache, logger zerolog.Logger) *Registry {
	return &Registry{
		store:    s,
		appender: a,
		cache:    c,
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// CreateOrGet resolves an existing ACTIVE conversation by id, or creates a
// new one of convType when conversationID is empty. A non-empty
// initialMessage is appended as a system message on creation only.
func (r *Registry) CreateOrGet(ctx context.Context, convType models.ConversationType, userID, conversationID, initialMessage string) (*models.Conversation, error) {
	if conversationID != "" {
		conv, err := r.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != userID {
			return nil, ErrNotAuthorized
		}
		if conv.Status == models.StatusClosed {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrConversationClosed)
		}
		return conv, nil
	}

	if !models.ValidConversationType(convType) {
		return nil, fmt.Errorf("invalid conversation type %q", convType)
	}

	conv, err := r.store.CreateConversation(ctx, convType, userID, nil)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("type", string(conv.Type)).
		Str("user_id", userID).
		Msg("conversation created")

	if initialMessage != "" {
		if _, err := r.appender.Append(ctx, conv.ID, models.RoleSystem, initialMessage, nil); err != nil {
			return nil, fmt.Errorf("failed to seed conversation: %w", err)
		}
	}

	return conv, nil
}

// Get returns the conversation after an ownership check.
func (r *Registry) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return conv, nil
}

// List returns all conversations owned by userID.
func (r *Registry) List(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return r.store.ListConversations(ctx, userID)
}

// Close marks the conversation CLOSED. Returns false when it was already
// closed; closing twice is not an error.
func (r *Registry) Close(ctx context.Context, userID, conversationID string) (bool, error) {
	if _, err := r.Get(ctx, userID, conversationID); err != nil {
		return false, err
	}

	changed, err := r.store.SetConversationStatus(ctx, conversationID, models.StatusClosed)
	if err != nil {
		return false, err
	}
	if changed {
		r.logger.Debug().Str("conversation_id", conversationID).Msg("conversation closed")
	}
	return changed, nil
}

// Delete removes the conversation, its messages and its cache entry.
func (r *Registry) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := r.Get(ctx, userID, conversationID); err != nil {
		return err
	}

	if err := r.store.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, conversationID); err != nil {
		r.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("cache delete failed")
	}
	return nil
}
