package models

import (
	"encoding/json"
	"time"
)

// ConversationType determines which consultation flow a conversation runs.
type ConversationType string

const (
	ConversationTriage       ConversationType = "TRIAGE"
	ConversationReportInterp ConversationType = "REPORT_INTERPRETATION"
	ConversationPreDiagnosis ConversationType = "PRE_DIAGNOSIS"
)

// ValidConversationType reports whether t is one of the known types.
func ValidConversationType(t ConversationType) bool {
	switch t {
	case ConversationTriage, ConversationReportInterp, ConversationPreDiagnosis:
		return true
	}
	return false
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive ConversationStatus = "ACTIVE"
	StatusClosed ConversationStatus = "CLOSED"
)

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ValidMessageRole reports whether r is one of the known roles.
func ValidMessageRole(r MessageRole) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Conversation is a consultation session. Type is immutable after creation;
// a CLOSED conversation accepts no further messages.
type Conversation struct {
	ID             string             `json:"id" db:"id"`
	Type           ConversationType   `json:"type" db:"type"`
	UserID         string             `json:"userId" db:"user_id"`
	ConsultationID *string            `json:"consultationId,omitempty" db:"consultation_id"`
	Status         ConversationStatus `json:"status" db:"status"`
	CreatedAt      time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time          `json:"updatedAt" db:"updated_at"`
}

// Message is a single turn in a conversation. Messages are immutable once
// written; Seq is assigned by the store and is monotone per conversation.
type Message struct {
	ID             string          `json:"id" db:"id"`
	ConversationID string          `json:"conversationId" db:"conversation_id"`
	Role           MessageRole     `json:"role" db:"role"`
	Content        string          `json:"content" db:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Seq            int64           `json:"seq" db:"seq"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// Department is a hospital department entry from the catalog service.
type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Doctor is a practitioner entry from the catalog service.
type Doctor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"departmentId"`
	Title        string `json:"title,omitempty"`
}
