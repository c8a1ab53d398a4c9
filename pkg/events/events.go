package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/storehouse/accounts/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	AccountRegistered      = "account.registered"
	AccountLoggedIn        = "account.logged_in"
	AccountLocked          = "account.locked"
	AccountPasswordChanged = "account.password_changed"
	AccountDeactivated     = "account.deactivated"
	AccountEmailVerified   = "account.email_verified"
)

// Event payloads
type AccountRegisteredEvent struct {
	AccountID    int64     `json:"account_id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

type AccountLoggedInEvent struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	LoginAt   time.Time `json:"login_at"`
}

type AccountLockedEvent struct {
	AccountID      int64     `json:"account_id"`
	Email          string    `json:"email"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
}

type AccountPasswordChangedEvent struct {
	AccountID int64     `json:"account_id"`
	ChangedAt time.Time `json:"changed_at"`
}

type AccountDeactivatedEvent struct {
	AccountID     int64     `json:"account_id"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}

type AccountEmailVerifiedEvent struct {
	AccountID  int64     `json:"account_id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}
