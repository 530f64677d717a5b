package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall.app/dispatch/internal/model"
)

type conversationStore struct {
	pool *pgxpool.Pool
}

func newConversationStore(pool *pgxpool.Pool) ConversationStore {
	return &conversationStore{pool: pool}
}

const conversationColumns = "id, status, participants, messages, version, last_updated_at, created_at"

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1", id)
	return scanConversation(row)
}

func (s *conversationStore) FindByParticipants(ctx context.Context, phoneA, phoneB string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participants @> $1::jsonb AND participants @> $2::jsonb
		ORDER BY last_updated_at DESC
		LIMIT 1
	`, phoneContains(phoneA), phoneContains(phoneB))
	return scanConversation(row)
}

func (s *conversationStore) FindAllByParticipants(ctx context.Context, phoneA, phoneB string) ([]model.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participants @> $1::jsonb AND participants @> $2::jsonb
		ORDER BY last_updated_at DESC
	`, phoneContains(phoneA), phoneContains(phoneB))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func (s *conversationStore) FindLatestByParticipant(ctx context.Context, phone string, role model.Role) (*model.Conversation, error) {
	contains, err := json.Marshal([]model.Participant{{Phone: phone, Role: role}})
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participants @> $1::jsonb
		ORDER BY last_updated_at DESC
		LIMIT 1
	`, string(contains))
	return scanConversation(row)
}

func (s *conversationStore) FindLatestContaining(ctx context.Context, phone string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participants @> $1::jsonb
		ORDER BY last_updated_at DESC
		LIMIT 1
	`, phoneContains(phone))
	return scanConversation(row)
}

func (s *conversationStore) FindByProviderMessageID(ctx context.Context, sid string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE messages @> $1::jsonb
		LIMIT 1
	`, sidContains(sid))
	return scanConversation(row)
}

func (s *conversationStore) ContainsProviderMessageID(ctx context.Context, sid string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM conversations WHERE messages @> $1::jsonb)",
		sidContains(sid),
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	participants, messages, err := marshalDocument(conv)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastUpdatedAt.IsZero() {
		conv.LastUpdatedAt = now
	}
	conv.Version = 1

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, status, participants, messages, version, last_updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, conv.ID, string(conv.Status), participants, messages, conv.Version, conv.LastUpdatedAt, conv.CreatedAt)
	return err
}

func (s *conversationStore) Replace(ctx context.Context, conv *model.Conversation) error {
	participants, messages, err := marshalDocument(conv)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET status = $2, participants = $3, messages = $4,
		    version = version + 1, last_updated_at = $5
		WHERE id = $1 AND version = $6
	`, conv.ID, string(conv.Status), participants, messages, conv.LastUpdatedAt, conv.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	conv.Version++
	return nil
}

func marshalDocument(conv *model.Conversation) (participants, messages string, err error) {
	p, err := json.Marshal(conv.Participants)
	if err != nil {
		return "", "", fmt.Errorf("marshal participants: %w", err)
	}
	m, err := json.Marshal(conv.Messages)
	if err != nil {
		return "", "", fmt.Errorf("marshal messages: %w", err)
	}
	return string(p), string(m), nil
}

// phoneContains builds a JSONB containment needle matching any participant
// entry with the given phone, regardless of role.
func phoneContains(phone string) string {
	needle, _ := json.Marshal([]map[string]string{{"phone": phone}})
	return string(needle)
}

func sidContains(sid string) string {
	needle, _ := json.Marshal([]map[string]string{{"provider_message_id": sid}})
	return string(needle)
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		conv          model.Conversation
		status        string
		participants  []byte
		messages      []byte
		lastUpdatedAt time.Time
		createdAt     time.Time
	)
	if err := row.Scan(&conv.ID, &status, &participants, &messages, &conv.Version, &lastUpdatedAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	conv.Status = model.ConversationStatus(status)
	conv.LastUpdatedAt = lastUpdatedAt
	conv.CreatedAt = createdAt
	if err := json.Unmarshal(participants, &conv.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &conv, nil
}
