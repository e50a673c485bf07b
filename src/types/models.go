package types

import "time"

// MessageStatus is the delivery state of a chat message.
// Transitions are monotonic: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusOrder = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Before reports whether s precedes other in the delivery lifecycle.
// Unknown statuses never precede anything, so they can never overwrite
// a real status.
func (s MessageStatus) Before(other MessageStatus) bool {
	a, ok := statusOrder[s]
	if !ok {
		return false
	}
	b, ok := statusOrder[other]
	if !ok {
		return false
	}
	return a < b
}

// ChatMessage is a persisted chat message. The ID is assigned by the
// store; client correlation tokens (temp ids) are never persisted.
type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	ReadBy         []string      `json:"read_by"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ConversationType distinguishes private pairs from groups.
type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// Conversation is a private or group chat. Private conversations have
// exactly two members and are unique per unordered member pair. Groups
// keep one admin who must always remain a member.
type Conversation struct {
	ID        string           `json:"id"`
	Type      ConversationType `json:"type"`
	Members   []string         `json:"members"`
	GroupName string           `json:"group_name,omitempty"`
	GroupIcon string           `json:"group_icon,omitempty"`
	Admin     string           `json:"admin,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsMember reports whether the user id is in the member set.
func (c *Conversation) IsMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// User is a chat account as seen by the hub. Credentials and auth
// provider details live with the external auth service.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Contacts  []string  `json:"contacts"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPublic is the client-safe projection of a user.
type UserPublic struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"is_online"`
}

// Public converts a user to its client-safe projection.
func (u *User) Public(isOnline bool) UserPublic {
	return UserPublic{
		ID:       u.ID,
		Name:     u.Name,
		Avatar:   u.Avatar,
		IsOnline: isOnline,
	}
}
