package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediconsult/internal/assembler"
	"github.com/mediconsult/internal/genai"
	"github.com/mediconsult/internal/hub"
	"github.com/mediconsult/internal/pipeline"
	"github.com/mediconsult/internal/registry"
	"github.com/mediconsult/pkg/models"
)

// Conn is a client connection as the orchestrator sees it.
type Conn interface {
	hub.Sink
	UserID() string
}

// Resolver resolves or creates the target conversation.
type Resolver interface {
	CreateOrGet(ctx context.Context, convType models.ConversationType, userID, conversationID, initialMessage string) (*models.Conversation, error)
}

// Pipeline is the message persistence surface the orchestrator drives.
type Pipeline interface {
	Append(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata json.RawMessage) (*models.Message, error)
	AppendPair(ctx context.Context, userMsg, assistantMsg *models.Message) error
	History(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// Assembler builds the per-type generation context.
type Assembler interface {
	Assemble(ctx context.Context, conv *models.Conversation, msg *models.Message) assembler.Bundle
}

// Generator produces the assistant reply. It never fails; failures surface
// as fallback text in the result.
type Generator interface {
	Generate(ctx context.Context, history []genai.Turn, bundle assembler.Bundle, onChunk func(string)) genai.Result
}

// RoomHub is the broadcast surface: membership plus fan-out.
type RoomHub interface {
	Join(conn hub.Sink, room string)
	Emit(room, event string, payload any)
}

// Orchestrator runs one inbound message through validation, persistence,
// context assembly, generation and broadcast. Every accepted message ends in
// exactly one terminal event on the conversation room.
type Orchestrator struct {
	resolver  Resolver
	pipeline  Pipeline
	assembler Assembler
	generator Generator
	hub       RoomHub
	logger    zerolog.Logger
}

// New creates an Orchestrator.
func New(r Resolver, p Pipeline, a Assembler, g Generator, h RoomHub, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:  r,
		pipeline:  p,
		assembler: a,
		generator: g,
		hub:       h,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

func (o *Orchestrator) sendError(conn Conn, message string) {
	if err := conn.Send(models.EventError, &models.ErrorEvent{Message: message}); err != nil {
		o.logger.Warn().Err(err).Str("conn_id", conn.ID()).Msg("failed to deliver error event")
	}
}

// HandleMessage processes one inbound user message to completion. The
// context should outlive the client connection: closing the socket must not
// abort an in-flight exchange.
func (o *Orchestrator) HandleMessage(ctx context.Context, conn Conn, req *models.NewMessageRequest) {
	// Received: validate before touching any state.
	if req.Content == "" {
		o.sendError(conn, "message content is required")
		return
	}
	if req.ConversationID == "" && !models.ValidConversationType(req.ConversationType) {
		o.sendError(conn, "a valid conversationType is required to start a conversation")
		return
	}

	conv, err := o.resolver.CreateOrGet(ctx, req.ConversationType, conn.UserID(), req.ConversationID, "")
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrConversationNotFound):
			o.sendError(conn, "conversation not found")
		case errors.Is(err, registry.ErrNotAuthorized):
			o.sendError(conn, "not authorized for this conversation")
		case errors.Is(err, registry.ErrConversationClosed):
			o.sendError(conn, "conversation is closed")
		default:
			o.sendError(conn, "could not resolve conversation")
		}
		return
	}

	// Persisted(user): fatal on failure, the exchange never reaches
	// generation.
	userMsg, err := o.pipeline.Append(ctx, conv.ID, models.RoleUser, req.Content, req.Metadata)
	if err != nil {
		o.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("inbound persist failed")
		switch {
		case errors.Is(err, pipeline.ErrConversationClosed):
			o.sendError(conn, "conversation is closed")
		case errors.Is(err, pipeline.ErrConversationNotFound):
			o.sendError(conn, "conversation not found")
		default:
			o.sendError(conn, "failed to save your message, please retry")
		}
		return
	}

	// Sending into a conversation subscribes the sender to its room, so
	// the ack and all exchange events below reach them.
	room := hub.ConversationRoom(conv.ID)
	o.hub.Join(conn, room)

	// Broadcast(user): failures are logged inside the hub, never fatal.
	o.hub.Emit(room, models.EventMessageReceived, &models.MessageReceived{
		Message:      userMsg,
		Conversation: conv,
	})

	// ContextReady.
	history := o.loadHistory(ctx, conv.ID, userMsg)
	bundle := o.assembler.Assemble(ctx, conv, userMsg)

	// Generating: chunks are re-broadcast as they arrive, tagged with the
	// exchange id so clients can keep overlapping generations apart.
	exchangeID := uuid.NewString()
	result := o.generator.Generate(ctx, history, bundle, func(chunk string) {
		o.hub.Emit(room, models.EventAIResponseChunk, &models.AIResponseChunk{
			Chunk:      chunk,
			Type:       conv.Type,
			ExchangeID: exchangeID,
		})
	})

	// Persisted(pair): on failure fall back to persisting just the reply;
	// the terminal event fires either way.
	assistantMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        result.Text,
	}
	saved := true
	if err := o.pipeline.AppendPair(ctx, userMsg, assistantMsg); err != nil {
		saved = false
		o.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("pair persist failed, trying single persist")

		if single, serr := o.pipeline.Append(ctx, conv.ID, models.RoleAssistant, result.Text, nil); serr != nil {
			o.logger.Error().Err(serr).Str("conversation_id", conv.ID).Msg("fallback persist failed, reply not saved")
		} else {
			assistantMsg = single
		}
	}

	// Broadcast(complete): the one terminal event per accepted message.
	o.hub.Emit(room, models.EventAIResponseComplete, &models.AIResponseComplete{
		Conversation:     conv,
		ConversationType: conv.Type,
		Message:          assistantMsg,
		ExchangeID:       exchangeID,
		Saved:            saved,
	})

	o.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("exchange_id", exchangeID).
		Bool("saved", saved).
		Bool("fallback", result.Fallback).
		Msg("exchange complete")
}

// loadHistory returns the conversation history for generation, degrading to
// just the current message when the read fails.
func (o *Orchestrator) loadHistory(ctx context.Context, conversationID string, userMsg *models.Message) []genai.Turn {
	messages, err := o.pipeline.History(ctx, conversationID)
	if err != nil || len(messages) == 0 {
		if err != nil {
			o.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("history read failed, using current message only")
		}
		return []genai.Turn{{Role: userMsg.Role, Content: userMsg.Content}}
	}

	turns := make([]genai.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, genai.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
