// Package gateway wraps the external SMS transport. Senders and the
// reconciler depend on the Client interface so tests can substitute a fake.
package gateway

import (
	"context"
	"time"
)

// Direction of a message relative to the gateway.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ProviderMessage is one message as the gateway reports it.
type ProviderMessage struct {
	SID       string
	From      string
	To        string
	Body      string
	Status    string
	Direction Direction
	SentAt    time.Time
}

// Client is the transport contract: send one message, list a window of
// messages for backfill reconciliation.
type Client interface {
	// Send submits one outbound message and returns the gateway's view of
	// it, including the assigned SID.
	Send(ctx context.Context, from, to, body string) (*ProviderMessage, error)

	// List returns up to limit messages sent or received since the given
	// time, oldest first.
	List(ctx context.Context, since time.Time, limit int) ([]ProviderMessage, error)
}
