package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall.app/dispatch/internal/model"
)

type unassignedMessageStore struct {
	pool *pgxpool.Pool
}

func newUnassignedMessageStore(pool *pgxpool.Pool) UnassignedMessageStore {
	return &unassignedMessageStore{pool: pool}
}

func (s *unassignedMessageStore) Create(ctx context.Context, msg *model.UnassignedMessage) error {
	if msg.ObservedAt.IsZero() {
		msg.ObservedAt = time.Now().UTC()
	}

	var sid *string
	if msg.ProviderMessageID != "" {
		sid = &msg.ProviderMessageID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO unassigned_messages (id, provider_message_id, from_phone, to_phone, body, reason, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, sid, msg.From, msg.To, msg.Body, string(msg.Reason), msg.ObservedAt)
	return err
}

func (s *unassignedMessageStore) ListRecent(ctx context.Context, limit int32) ([]model.UnassignedMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, provider_message_id, from_phone, to_phone, body, reason, observed_at
		FROM unassigned_messages
		ORDER BY observed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.UnassignedMessage
	for rows.Next() {
		var (
			msg    model.UnassignedMessage
			sid    *string
			reason string
		)
		if err := rows.Scan(&msg.ID, &sid, &msg.From, &msg.To, &msg.Body, &reason, &msg.ObservedAt); err != nil {
			return nil, err
		}
		if sid != nil {
			msg.ProviderMessageID = *sid
		}
		msg.Reason = model.QuarantineReason(reason)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
