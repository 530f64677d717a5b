package model

import (
	"strings"
	"time"
)

type MessageStatus string

const (
	// Outbound lifecycle: pending is recorded before the network call.
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"

	// Inbound messages start directly at received.
	MessageStatusReceived MessageStatus = "received"

	// Terminal states. A message never leaves delivered or failed.
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// Message is embedded in a conversation's JSONB message array.
type Message struct {
	ID                int64         `json:"id"`
	From              string        `json:"from"`
	To                string        `json:"to"`
	Body              string        `json:"body"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	Error             string        `json:"error,omitempty"`
	Read              bool          `json:"read"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Terminal reports whether the status can never change again.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed
}

// Known reports whether the status is part of the state machine, as opposed
// to an unrecognized gateway value carried through verbatim.
func (s MessageStatus) Known() bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusReceived, MessageStatusDelivered, MessageStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a message may move from its current status
// to next. The machine is:
//
//	pending  -> sent | failed
//	sent     -> delivered | failed
//	received -> delivered (explicit read)
func CanTransition(from, to MessageStatus) bool {
	switch from {
	case MessageStatusPending:
		return to == MessageStatusSent || to == MessageStatusFailed
	case MessageStatusSent:
		return to == MessageStatusDelivered || to == MessageStatusFailed
	case MessageStatusReceived:
		return to == MessageStatusDelivered
	default:
		return false
	}
}

// MapGatewayStatus translates the gateway's status vocabulary into the
// message state machine. The second return is false when the value is not
// recognized, in which case the message status passes through unchanged.
func MapGatewayStatus(raw string) (MessageStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delivered", "read", "received":
		return MessageStatusDelivered, true
	case "failed", "undelivered":
		return MessageStatusFailed, true
	case "sent", "accepted", "queued", "sending":
		return MessageStatusSent, true
	default:
		return "", false
	}
}
