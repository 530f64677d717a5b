package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall.app/dispatch/internal/model"
)

type ticketStore struct {
	pool *pgxpool.Pool
}

func newTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

const ticketColumns = "id, country_code, local_number, assigned_mechanic_id, status, messages_unread, created_at"

// composedPhoneExpr normalizes the stored country_code + local_number the
// same way phone.Normalize does: strip everything but digits, keep no plus.
// Comparisons run on the digit form of both sides.
const composedPhoneExpr = "regexp_replace(country_code || local_number, '[^0-9]', '', 'g')"

func (s *ticketStore) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE id = $1", id)
	return scanTicket(row)
}

func (s *ticketStore) FindActiveByComposedPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status <> 'closed' AND `+composedPhoneExpr+` = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, digits(phone))
	return scanTicket(row)
}

func (s *ticketStore) SetMessagesUnreadByPhones(ctx context.Context, phones []string, unread bool) (int64, error) {
	if len(phones) == 0 {
		return 0, nil
	}

	digitPhones := make([]string, 0, len(phones))
	for _, p := range phones {
		if d := digits(p); d != "" {
			digitPhones = append(digitPhones, d)
		}
	}
	if len(digitPhones) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets t
		SET messages_unread = $1
		WHERE t.status <> 'closed'
		  AND (`+composedPhoneExpr+` = ANY($2)
		       OR EXISTS (
		           SELECT 1 FROM mechanics m
		           WHERE m.id = t.assigned_mechanic_id
		             AND regexp_replace(m.phone, '[^0-9]', '', 'g') = ANY($2)
		       ))
	`, unread, digitPhones)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var (
		t      model.Ticket
		status string
	)
	err := row.Scan(&t.ID, &t.CountryCode, &t.LocalNumber, &t.AssignedMechanicID, &status, &t.MessagesUnread, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = model.TicketStatus(status)
	return &t, nil
}

func digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
