package pipeline

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
	// ErrConversationClosed rejects appends to a CLOSED conversation.
	ErrConversationClosed = errors.New("conversation is closed")
	// ErrConversationNotFound mirrors the store sentinel for callers that
	// only import this package.
	ErrConversationNotFound = store.ErrConversationNotFound
)

// MessageStore is the durable side of the pipeline.
type MessageStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	InsertMessagePair(ctx context.Context, userMsg, assistantMsg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	TouchConversation(ctx context.Context, id string) error
}

// Pipeline routes messages through the durable store and the fast cache.
// Store failures are fatal to the write; cache failures are logged and
// swallowed.
type Pipeline struct {
	store  MessageStore
	cache  cache.Cache
	logger zerolog.Logger
}

// New creates a Pipeline.
func New(s MessageStore, c cache.Cache, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:  s,
		cache:  c,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

func (p *Pipeline) guard(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.StatusClosed {
		return nil, ErrConversationClosed
	}
	return conv, nil
}

func (p *Pipeline) cacheAppend(ctx context.Context, msg *models.Message) {
	if err := p.cache.Append(ctx, msg.ConversationID, msg); err != nil {
		p.logger.Warn().Err(err).
			Str("conversation_id", msg.ConversationID).
			Str("message_id", msg.ID).
			Msg("cache append failed, continuing")
	}
}

// Append persists one message to an ACTIVE conversation and mirrors it into
// the cache best-effort. Returns the stored message with id, seq and
// timestamp filled in.
func (p *Pipeline) Append(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata json.RawMessage) (*models.Message, error) {
	if !models.ValidMessageRole(role) {
		return nil, fmt.Errorf("invalid message role %q", role)
	}

	if _, err := p.guard(ctx, conversationID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
	}
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if err := p.store.TouchConversation(ctx, conversationID); err != nil {
		p.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("touch failed after insert")
	}

	p.cacheAppend(ctx, msg)
	return msg, nil
}

// AppendPair persists a user message and its assistant reply atomically.
// Cache mirroring happens after the transaction commits.
func (p *Pipeline) AppendPair(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	if userMsg.ConversationID == "" || userMsg.ConversationID != assistantMsg.ConversationID {
		return errors.New("message pair must share one conversation")
	}

	if _, err := p.guard(ctx, userMsg.ConversationID); err != nil {
		return err
	}

	userMsg.Role = models.RoleUser
	assistantMsg.Role = models.RoleAssistant
	if err := p.store.InsertMessagePair(ctx, userMsg, assistantMsg); err != nil {
		return fmt.Errorf("failed to persist message pair: %w", err)
	}

	p.cacheAppend(ctx, userMsg)
	p.cacheAppend(ctx, assistantMsg)
	return nil
}

// List returns the durable conversation history in ascending order. The
// cache is intentionally not consulted here; reads that need the hot path
// use the cache directly and fall back to this.
func (p *Pipeline) List(ctx context.Context, conversationID string) ([]*models.Message, error) {
	return p.store.ListMessages(ctx, conversationID)
}

// History prefers the cache when it is available and has entries, falling
// back to the durable store.
func (p *Pipeline) History(ctx context.Context, conversationID string) ([]*models.Message, error) {
	if p.cache.Available() {
		cached, err := p.cache.List(ctx, conversationID)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil {
			p.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("cache read failed, using store")
		}
	}
	return p.store.ListMessages(ctx, conversationID)
}
