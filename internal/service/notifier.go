package service

import (
	"context"

	"roadcall.app/dispatch/internal/store"
)

// TicketNotifier marks domain tickets related to a phone as read or unread.
// Invoked as a best-effort side effect: callers log and continue on failure.
type TicketNotifier interface {
	// MarkUnreadForPhone flags tickets related to the phone as having unread
	// messages.
	MarkUnreadForPhone(ctx context.Context, phone string) error

	// MarkReadForPhones clears the unread flag on tickets related to any of
	// the phones.
	MarkReadForPhones(ctx context.Context, phones map[string]bool) error
}

type ticketNotifier struct {
	tickets store.TicketStore
}

func NewTicketNotifier(tickets store.TicketStore) TicketNotifier {
	return &ticketNotifier{tickets: tickets}
}

func (n *ticketNotifier) MarkUnreadForPhone(ctx context.Context, phone string) error {
	_, err := n.tickets.SetMessagesUnreadByPhones(ctx, []string{phone}, true)
	return err
}

func (n *ticketNotifier) MarkReadForPhones(ctx context.Context, phones map[string]bool) error {
	if len(phones) == 0 {
		return nil
	}
	list := make([]string, 0, len(phones))
	for p := range phones {
		list = append(list, p)
	}
	_, err := n.tickets.SetMessagesUnreadByPhones(ctx, list, false)
	return err
}
