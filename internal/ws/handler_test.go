package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediconsult/internal/api/auth"
	"github.com/mediconsult/internal/assembler"
	"github.com/mediconsult/internal/genai"
	"github.com/mediconsult/internal/hub"
	"github.com/mediconsult/internal/orchestrator"
	"github.com/mediconsult/pkg/models"
)

const testSecret = "ws-test-secret"

type stubResolver struct{}

func (stubResolver) CreateOrGet(_ context.Context, convType models.ConversationType, userID, conversationID, _ string) (*models.Conversation, error) {
	id := conversationID
	if id == "" {
		id = "conv-1"
	}
	if convType == "" {
		convType = models.ConversationTriage
	}
	return &models.Conversation{ID: id, Type: convType, UserID: userID, Status: models.StatusActive}, nil
}

type stubPipe struct {
	messages []*models.Message
}

func (s *stubPipe) Append(_ context.Context, conversationID string, role models.MessageRole, content string, metadata json.RawMessage) (*models.Message, error) {
	msg := &models.Message{
		ID:             "m1",
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		Seq:            int64(len(s.messages) + 1),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *stubPipe) AppendPair(_ context.Context, _, assistantMsg *models.Message) error {
	assistantMsg.ID = "m2"
	assistantMsg.Seq = int64(len(s.messages) + 1)
	s.messages = append(s.messages, assistantMsg)
	return nil
}

func (s *stubPipe) History(_ context.Context, _ string) ([]*models.Message, error) {
	return s.messages, nil
}

type stubAssembler struct{}

func (stubAssembler) Assemble(_ context.Context, _ *models.Conversation, _ *models.Message) assembler.Bundle {
	return assembler.EmptyBundle{}
}

type stubGen struct {
	fragments []string
}

func (s *stubGen) Generate(_ context.Context, _ []genai.Turn, _ assembler.Bundle, onChunk func(string)) genai.Result {
	for _, fragment := range s.fragments {
		if onChunk != nil {
			onChunk(fragment)
		}
	}
	return genai.Result{Text: strings.Join(s.fragments, "")}
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	h := hub.New(zerolog.Nop())
	orch := orchestrator.New(stubResolver{}, &stubPipe{}, stubAssembler{}, &stubGen{fragments: []string{"你好", "！"}}, h, zerolog.Nop())
	handler := NewHandler(h, orch, testSecret, zerolog.Nop())

	e := echo.New()
	e.GET("/ws/chat", handler.Serve)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := &auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Envelope{Event: event, Data: data}))
}

func read(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var envelope models.Envelope
	require.NoError(t, conn.ReadJSON(&envelope))
	return envelope
}

func TestRejectsMissingToken(t *testing.T) {
	srv := startServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinAndLeave(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv, signToken(t, "U1"))

	send(t, conn, models.EventJoinConversation, models.JoinRequest{ConversationID: "conv-9"})
	envelope := read(t, conn)
	assert.Equal(t, models.EventJoinedConversation, envelope.Event)

	send(t, conn, models.EventLeaveConversation, models.JoinRequest{ConversationID: "conv-9"})
	envelope = read(t, conn)
	assert.Equal(t, models.EventLeftConversation, envelope.Event)
}

func TestNewMessageExchange(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv, signToken(t, "U1"))

	send(t, conn, models.EventNewMessage, models.NewMessageRequest{
		Content:          "我头疼",
		ConversationType: models.ConversationTriage,
	})

	envelope := read(t, conn)
	require.Equal(t, models.EventMessageReceived, envelope.Event)
	var received models.MessageReceived
	require.NoError(t, json.Unmarshal(envelope.Data, &received))
	assert.Equal(t, "我头疼", received.Message.Content)

	var chunks []string
	var complete models.AIResponseComplete
	for {
		envelope = read(t, conn)
		if envelope.Event == models.EventAIResponseChunk {
			var chunk models.AIResponseChunk
			require.NoError(t, json.Unmarshal(envelope.Data, &chunk))
			chunks = append(chunks, chunk.Chunk)
			continue
		}
		require.Equal(t, models.EventAIResponseComplete, envelope.Event)
		require.NoError(t, json.Unmarshal(envelope.Data, &complete))
		break
	}

	assert.Equal(t, []string{"你好", "！"}, chunks)
	assert.Equal(t, "你好！", complete.Message.Content)
	assert.True(t, complete.Saved)
}

func TestUnknownEvent(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv, signToken(t, "U1"))

	send(t, conn, "mystery_event", struct{}{})
	envelope := read(t, conn)
	assert.Equal(t, models.EventError, envelope.Event)
}

func TestMalformedNewMessage(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv, signToken(t, "U1"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"new_message","data":"not an object"}`)))
	envelope := read(t, conn)
	assert.Equal(t, models.EventError, envelope.Event)
}
