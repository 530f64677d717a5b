package model

import (
	"time"

	"roadcall.app/dispatch/common/phone"
)

type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// Mechanic is a read-only directory record used for identity classification.
type Mechanic struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Ticket is the slice of the external service-job entity this subsystem
// reads: the driver phone halves for identity resolution and destination
// lookup, plus the unread flag the notifier flips.
type Ticket struct {
	ID                 int64        `json:"id"`
	CountryCode        string       `json:"country_code"`
	LocalNumber        string       `json:"local_number"`
	AssignedMechanicID *int64       `json:"assigned_mechanic_id,omitempty"`
	Status             TicketStatus `json:"status"`
	MessagesUnread     bool         `json:"messages_unread"`
	CreatedAt          time.Time    `json:"created_at"`
}

// ComposedPhone is the ticket's driver phone as a single normalized string.
func (t *Ticket) ComposedPhone() string {
	return phone.Compose(t.CountryCode, t.LocalNumber)
}
