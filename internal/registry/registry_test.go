package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediconsult/internal/cache"
	"github.com/mediconsult/internal/store"
	"github.com/mediconsult/pkg/models"
)

type fakeConvStore struct {
	conversations map[string]*models.Conversation
	nextID        int
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{conversations: make(map[string]*models.Conversation)}
}

func (f *fakeConvStore) CreateConversation(_ context.Context, convType models.ConversationType, userID string, consultationID *string) (*models.Conversation, error) {
	f.nextID++
	conv := &models.Conversation{
		ID:             string(rune('a' + f.nextID)),
		Type:           convType,
		UserID:         userID,
		ConsultationID: consultationID,
		Status:         models.StatusActive,
	}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeConvStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeConvStore) ListConversations(_ context.Context, userID string) ([]*models.Conversation, error) {
	out := []*models.Conversation{}
	for _, conv := range f.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeConvStore) SetConversationStatus(_ context.Context, id string, status models.ConversationStatus) (bool, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return false, store.ErrConversationNotFound
	}
	if conv.Status == status {
		return false, nil
	}
	conv.Status = status
	return true, nil
}

func (f *fakeConvStore) DeleteConversation(_ context.Context, id string) error {
	if _, ok := f.conversations[id]; !ok {
		return store.ErrConversationNotFound
	}
	delete(f.conversations, id)
	return nil
}

type recordingAppender struct {
	appended []string
}

func (r *recordingAppender) Append(_ context.Context, conversationID string, role models.MessageRole, content string, _ json.RawMessage) (*models.Message, error) {
	r.appended = append(r.appended, content)
	return &models.Message{ConversationID: conversationID, Role: role, Content: content}, nil
}

func newRegistry(fs *fakeConvStore, app *recordingAppender) *Registry {
	return New(fs, app, cache.NewMemory(), zerolog.Nop())
}

func TestCreateOrGet(t *testing.T) {
	fs := newFakeConvStore()
	app := &recordingAppender{}
	r := newRegistry(fs, app)
	ctx := context.Background()

	t.Run("CreatesWithSeed", func(t *testing.T) {
		conv, err := r.CreateOrGet(ctx, models.ConversationTriage, "user-1", "", "您好，请描述您的症状。")
		require.NoError(t, err)
		assert.Equal(t, models.ConversationTriage, conv.Type)
		assert.Equal(t, models.StatusActive, conv.Status)
		require.Len(t, app.appended, 1)
	})

	t.Run("ResolvesExisting", func(t *testing.T) {
		created, err := r.CreateOrGet(ctx, models.ConversationPreDiagnosis, "user-1", "", "")
		require.NoError(t, err)

		got, err := r.CreateOrGet(ctx, "", "user-1", created.ID, "")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		// Type on the request is ignored when resolving by id.
		assert.Equal(t, models.ConversationPreDiagnosis, got.Type)
	})

	t.Run("RejectsForeignOwner", func(t *testing.T) {
		created, err := r.CreateOrGet(ctx, models.ConversationTriage, "user-1", "", "")
		require.NoError(t, err)

		_, err = r.CreateOrGet(ctx, "", "user-2", created.ID, "")
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("RejectsUnknownType", func(t *testing.T) {
		_, err := r.CreateOrGet(ctx, "CHITCHAT", "user-1", "", "")
		assert.Error(t, err)
	})

	t.Run("RejectsClosed", func(t *testing.T) {
		created, err := r.CreateOrGet(ctx, models.ConversationTriage, "user-1", "", "")
		require.NoError(t, err)
		_, err = r.Close(ctx, "user-1", created.ID)
		require.NoError(t, err)

		_, err = r.CreateOrGet(ctx, "", "user-1", created.ID, "")
		assert.ErrorIs(t, err, ErrConversationClosed)
	})
}

func TestCloseIdempotent(t *testing.T) {
	fs := newFakeConvStore()
	r := newRegistry(fs, &recordingAppender{})
	ctx := context.Background()

	conv, err := r.CreateOrGet(ctx, models.ConversationTriage, "user-1", "", "")
	require.NoError(t, err)

	changed, err := r.Close(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.Close(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = r.Close(ctx, "user-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestDelete(t *testing.T) {
	fs := newFakeConvStore()
	r := newRegistry(fs, &recordingAppender{})
	ctx := context.Background()

	conv, err := r.CreateOrGet(ctx, models.ConversationTriage, "user-1", "", "")
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "user-1", conv.ID))
	_, err = r.Get(ctx, "user-1", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	err = r.Delete(ctx, "user-1", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
