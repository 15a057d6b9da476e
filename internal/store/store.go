package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediconsult/pkg/models"
)

var (
	// ErrConversationNotFound is returned when the conversation id does not exist.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store persists conversations and messages in Postgres. It is the
// authoritative record; the cache layer is derived from it.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateConversation inserts a new ACTIVE conversation and returns it.
func (s *Store) CreateConversation(ctx context.Context, convType models.ConversationType, userID string, consultationID *string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:             uuid.NewString(),
		Type:           convType,
		UserID:         userID,
		ConsultationID: consultationID,
		Status:         models.StatusActive,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, type, user_id, consultation_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		conv.ID, conv.Type, conv.UserID, conv.ConsultationID, conv.Status,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, user_id, consultation_id, status, created_at, updated_at
		FROM conversations
		WHERE id = $1`,
		id,
	).Scan(&conv.ID, &conv.Type, &conv.UserID, &conv.ConsultationID,
		&conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// ListConversations returns all conversations owned by userID, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, user_id, consultation_id, status, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*models.Conversation{}
	for rows.Next() {
		conv := &models.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.Type, &conv.UserID, &conv.ConsultationID,
			&conv.Status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

// SetConversationStatus updates the status and reports whether a row changed.
// Setting an already-set status returns false with no error.
func (s *Store) SetConversationStatus(ctx context.Context, id string, status models.ConversationStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status <> $2`,
		id, status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set conversation status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// TouchConversation bumps updated_at to now.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ListExpiredClosed returns ids of CLOSED conversations whose updated_at is
// older than cutoff. Used by the retention sweep.
func (s *Store) ListExpiredClosed(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM conversations
		WHERE status = $1 AND updated_at < $2`,
		models.StatusClosed, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired conversations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ids: %w", err)
	}
	return ids, nil
}

// InsertMessage appends one message to a conversation. Seq is assigned from
// the current maximum within the conversation.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if len(msg.Metadata) == 0 {
		msg.Metadata = json.RawMessage(`{}`)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, seq)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = $2))
		RETURNING seq, created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, []byte(msg.Metadata),
	).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// InsertMessagePair stores a user message and its assistant reply in a single
// transaction, also bumping the conversation's updated_at. Readers never see
// the reply without its user message. A member that was already persisted
// (non-zero Seq) is re-asserted idempotently rather than duplicated, so the
// orchestrator can durably ack the inbound message before generation and
// still close the exchange with one pair call.
func (s *Store) InsertMessagePair(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	if userMsg.ConversationID != assistantMsg.ConversationID {
		return errors.New("message pair spans two conversations")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pair insert: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range []*models.Message{userMsg, assistantMsg} {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if len(msg.Metadata) == 0 {
			msg.Metadata = json.RawMessage(`{}`)
		}

		if msg.Seq != 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (id, conversation_id, role, content, metadata, seq)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO NOTHING`,
				msg.ID, msg.ConversationID, msg.Role, msg.Content, []byte(msg.Metadata), msg.Seq,
			); err != nil {
				return fmt.Errorf("failed to re-assert message: %w", err)
			}
			continue
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, metadata, seq)
			VALUES ($1, $2, $3, $4, $5,
				(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = $2))
			RETURNING seq, created_at`,
			msg.ID, msg.ConversationID, msg.Role, msg.Content, []byte(msg.Metadata),
		).Scan(&msg.Seq, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message pair: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`,
		userMsg.ConversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pair insert: %w", err)
	}
	return nil
}

// ListMessages returns the conversation history ordered by (created_at, seq)
// ascending.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, seq, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg := &models.Message{}
		var metadata []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&metadata, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Metadata = json.RawMessage(metadata)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
