package store

import (
	"context"
	"errors"

	"roadcall.app/dispatch/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by Replace when the conversation row changed
// since it was loaded. Callers reload and recompute.
var ErrVersionConflict = errors.New("version conflict")

// ConversationStore defines the contract for conversation document access.
// Mutation is whole-document: load, mutate in memory, Replace.
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)

	// FindByParticipants returns the most recently updated conversation
	// whose participant set contains both phones.
	FindByParticipants(ctx context.Context, phoneA, phoneB string) (*model.Conversation, error)

	// FindAllByParticipants returns every conversation containing both
	// phones, most recently updated first.
	FindAllByParticipants(ctx context.Context, phoneA, phoneB string) ([]model.Conversation, error)

	// FindLatestByParticipant returns the most recently updated conversation
	// containing the phone with the given participant role.
	FindLatestByParticipant(ctx context.Context, phone string, role model.Role) (*model.Conversation, error)

	// FindLatestContaining returns the most recently updated conversation
	// containing the phone under any role.
	FindLatestContaining(ctx context.Context, phone string) (*model.Conversation, error)

	// FindByProviderMessageID locates the conversation holding the message
	// with the given provider id.
	FindByProviderMessageID(ctx context.Context, sid string) (*model.Conversation, error)

	// ContainsProviderMessageID reports whether any conversation holds a
	// message with the given provider id. This is the dedup check.
	ContainsProviderMessageID(ctx context.Context, sid string) (bool, error)

	Create(ctx context.Context, conv *model.Conversation) error

	// Replace writes the whole document back in one atomic UPDATE guarded by
	// the version column. Returns ErrVersionConflict on a lost race.
	Replace(ctx context.Context, conv *model.Conversation) error
}

// UnassignedMessageStore persists quarantine records. Insert-only.
type UnassignedMessageStore interface {
	Create(ctx context.Context, msg *model.UnassignedMessage) error
	ListRecent(ctx context.Context, limit int32) ([]model.UnassignedMessage, error)
}

// MechanicStore is the read-only mechanic directory lookup used by identity
// resolution. Directory phones are stored normalized.
type MechanicStore interface {
	GetByID(ctx context.Context, id int64) (*model.Mechanic, error)
	GetByPhone(ctx context.Context, phone string) (*model.Mechanic, error)
}

// TicketStore reads the active-job registry and flips the unread flag the
// ticket notifier maintains.
type TicketStore interface {
	GetByID(ctx context.Context, id int64) (*model.Ticket, error)

	// FindActiveByComposedPhone matches a non-closed ticket whose composed
	// driver phone (country code + local number, normalized) equals the
	// input.
	FindActiveByComposedPhone(ctx context.Context, phone string) (*model.Ticket, error)

	// SetMessagesUnreadByPhones updates the unread flag on every non-closed
	// ticket whose composed phone or assigned mechanic phone matches one of
	// the given phones. Returns the number of tickets updated.
	SetMessagesUnreadByPhones(ctx context.Context, phones []string, unread bool) (int64, error)
}
