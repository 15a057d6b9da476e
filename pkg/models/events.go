package models

import "encoding/json"

// Websocket event names, client to server.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventNewMessage        = "new_message"
)

// Websocket event names, server to client.
const (
	EventJoinedConversation = "joined_conversation"
	EventLeftConversation   = "left_conversation"
	EventMessageReceived    = "message_received"
	EventAIResponseChunk    = "ai_response_chunk"
	EventAIResponseComplete = "ai_response_complete"
	EventError              = "error"
)

// Envelope is the wire frame for every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest asks to subscribe the connection to a conversation room.
type JoinRequest struct {
	ConversationID string `json:"conversationId"`
}

// NewMessageRequest carries an inbound user message. ConversationID is
// optional; when empty a new conversation of ConversationType is created.
type NewMessageRequest struct {
	ConversationID   string           `json:"conversationId,omitempty"`
	Content          string           `json:"content"`
	Metadata         json.RawMessage  `json:"metadata,omitempty"`
	ConversationType ConversationType `json:"conversationType,omitempty"`
}

// MessageReceived acknowledges that the user message was persisted.
type MessageReceived struct {
	Message      *Message      `json:"message"`
	Conversation *Conversation `json:"conversation"`
}

// AIResponseChunk is one streamed fragment of the assistant reply.
// ExchangeID disambiguates chunks when a client has several conversations
// generating at once.
type AIResponseChunk struct {
	Chunk      string           `json:"chunk"`
	Type       ConversationType `json:"type"`
	ExchangeID string           `json:"exchangeId"`
}

// AIResponseComplete is the terminal event of a message exchange. Saved is
// false when the reply could not be durably persisted alongside the user
// message.
type AIResponseComplete struct {
	Conversation     *Conversation    `json:"conversation"`
	ConversationType ConversationType `json:"conversationType"`
	Message          *Message         `json:"message"`
	ExchangeID       string           `json:"exchangeId"`
	Saved            bool             `json:"saved"`
}

// ErrorEvent reports a rejected or failed request back to the client.
type ErrorEvent struct {
	Message string `json:"message"`
}
