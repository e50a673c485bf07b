package types

// Inbound payloads. Validation tags are enforced by the pipeline
// before any storage call.

type MessageSendPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
	TempID         string `json:"temp_id,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type MessageReadPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	MessageID      string `json:"message_id,omitempty"`
}

// Outbound payloads.

// MessageSentPayload acknowledges a persisted message to its sender.
// TempID echoes the client correlation token for optimistic UI reconciliation.
type MessageSentPayload struct {
	TempID    string        `json:"temp_id,omitempty"`
	MessageID string        `json:"message_id"`
	Status    MessageStatus `json:"status"`
}

type MessageNewPayload struct {
	Message ChatMessage `json:"message"`
	Sender  *UserPublic `json:"sender,omitempty"`
}

type MessageStatusPayload struct {
	MessageID string        `json:"message_id"`
	Status    MessageStatus `json:"status"`
	ReadBy    string        `json:"read_by,omitempty"`
}

type TypingEventPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type GroupPayload struct {
	Group Conversation `json:"group"`
}

type MembershipPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
