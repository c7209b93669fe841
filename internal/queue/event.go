// Package queue carries notification requests over RabbitMQ.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/training-management/internal/notify"
)

// NotificationQueue is the durable queue notification events are routed to.
const NotificationQueue = "notification.requested"

// NotificationRequested asks the consumer to render and deliver an email.
// The payload is self-contained so the consumer never reads the database.
type NotificationRequested struct {
	EventID     string            `json:"event_id"`
	To          string            `json:"to"`
	Template    string            `json:"template"`
	Vars        map[string]string `json:"vars"`
	RequestedAt string            `json:"requested_at"`
}

func newEvent(msg notify.Message, now time.Time) NotificationRequested {
	return NotificationRequested{
		EventID:     uuid.NewString(),
		To:          msg.To,
		Template:    msg.Template,
		Vars:        msg.Vars,
		RequestedAt: now.UTC().Format(time.RFC3339),
	}
}

// Message converts the event back into a notify.Message.
func (e NotificationRequested) Message() notify.Message {
	return notify.Message{To: e.To, Template: e.Template, Vars: e.Vars}
}

// decodeEvent parses a delivery body.  A payload without recipient or
// template can never be delivered and is reported as such.
func decodeEvent(body []byte) (NotificationRequested, error) {
	var ev NotificationRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.To == "" || ev.Template == "" {
		return ev, errors.New("event has no recipient or template")
	}
	return ev, nil
}
