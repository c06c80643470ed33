package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventItemCheckedOut      = "item_checked_out"
	EventItemReturned        = "item_returned"
	EventReservationCreated  = "reservation_created"
	EventReservationCanceled = "reservation_canceled"
	EventReservationExpired  = "reservation_expired"
	EventWaitlistJoined      = "waitlist_joined"
	EventWaitlistNotified    = "waitlist_notified"
	EventWaitlistExpired     = "waitlist_expired"
	EventBlacklistApplied    = "blacklist_applied"
	EventBlacklistRemoved    = "blacklist_removed"
	EventApprovalDecided     = "approval_decided"
	EventUserNotified        = "user_notified"
)

// LendingEventPayload describes a lending snapshot for event consumers.
type LendingEventPayload struct {
	LendingID int64      `json:"lending_id"`
	OrgID     int64      `json:"org_id"`
	UserID    int64      `json:"user_id"`
	ItemID    int64      `json:"item_id"`
	Quantity  int64      `json:"quantity"`
	DueDate   time.Time  `json:"due_date"`
	Returned  *time.Time `json:"returned_at,omitempty"`
	DaysLate  int64      `json:"days_late,omitempty"`
	Penalty   float64    `json:"penalty,omitempty"`
}

// ReservationEventPayload describes a reservation snapshot.
type ReservationEventPayload struct {
	ReservationID int64     `json:"reservation_id"`
	OrgID         int64     `json:"org_id"`
	UserID        int64     `json:"user_id"`
	ItemID        int64     `json:"item_id"`
	Quantity      int64     `json:"quantity"`
	ReservedFor   time.Time `json:"reserved_for"`
	ExpiresAt     time.Time `json:"expires_at"`
	Status        string    `json:"status"`
}

// WaitlistEventPayload describes a waitlist entry snapshot.
type WaitlistEventPayload struct {
	EntryID       int64      `json:"entry_id"`
	OrgID         int64      `json:"org_id"`
	UserID        int64      `json:"user_id"`
	ItemID        int64      `json:"item_id"`
	QueuePosition int64      `json:"queue_position"`
	Status        string     `json:"status"`
	NotifyBy      *time.Time `json:"notify_by,omitempty"`
}

// BlacklistEventPayload describes a blacklist change.
type BlacklistEventPayload struct {
	BlacklistID  int64     `json:"blacklist_id"`
	OrgID        int64     `json:"org_id"`
	UserID       int64     `json:"user_id"`
	Reason       string    `json:"reason,omitempty"`
	BlockedUntil time.Time `json:"blocked_until"`
	RemovedBy    int64     `json:"removed_by,omitempty"`
}

// ApprovalEventPayload describes an approval decision.
type ApprovalEventPayload struct {
	Reference  string `json:"reference"`
	OrgID      int64  `json:"org_id"`
	UserID     int64  `json:"user_id"`
	Status     string `json:"status"`
	ApproverID int64  `json:"approver_id,omitempty"`
}

// NotificationPayload describes a message delivered to a user.
type NotificationPayload struct {
	OrgID   int64  `json:"org_id"`
	UserID  int64  `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
