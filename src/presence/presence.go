package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/types"
)

// ContactStore resolves a user's contact list.
type ContactStore interface {
	GetContacts(ctx context.Context, userID string) ([]types.User, error)
}

// LastSeenStore records when a user was last reachable.
type LastSeenStore interface {
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
	LastSeen(ctx context.Context, userID string) (time.Time, error)
}

// Notifier derives online/offline transitions from registry changes and
// tells the affected user's contacts. It runs off the hub's register/
// unregister path and never blocks it.
type Notifier struct {
	hub      *hub.Hub
	contacts ContactStore
	lastSeen LastSeenStore
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewNotifier(h *hub.Hub, contacts ContactStore, lastSeen LastSeenStore, timeout time.Duration, logger zerolog.Logger) *Notifier {
	return &Notifier{
		hub:      h,
		contacts: contacts,
		lastSeen: lastSeen,
		timeout:  timeout,
		logger:   logger.With().Str("component", "presence").Logger(),
	}
}

// Register subscribes the notifier to the hub's presence transitions.
func (n *Notifier) Register() {
	n.hub.OnOnline(n.handleOnline)
	n.hub.OnOffline(n.handleOffline)
}

func (n *Notifier) handleOnline(userID string) {
	n.notifyContacts(userID, types.EventUserOnline)
}

func (n *Notifier) handleOffline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.lastSeen.UpdateLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		n.logger.Warn().Err(err).Str("user_id", userID).Msg("last seen update failed")
	}
	n.notifyContacts(userID, types.EventUserOffline)
}

func (n *Notifier) notifyContacts(userID, eventType string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	contacts, err := n.contacts.GetContacts(ctx, userID)
	if err != nil {
		n.logger.Warn().Err(err).Str("user_id", userID).Msg("contact lookup failed")
		return
	}

	frame, err := types.NewFrame(eventType, types.PresencePayload{UserID: userID})
	if err != nil {
		return
	}
	for _, contact := range contacts {
		n.hub.SendToUser(contact.ID, frame)
	}
}
