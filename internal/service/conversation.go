package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roadcall.app/dispatch/common/id"
	"roadcall.app/dispatch/common/phone"
	"roadcall.app/dispatch/core/config"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/store"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTicketNotFound       = errors.New("ticket not found")
)

// mutateRetries bounds how often a read-modify-write cycle retries after
// losing an optimistic-concurrency race.
const mutateRetries = 3

// ticketMessageLimit is how many messages the by-ticket read endpoint
// returns.
const ticketMessageLimit = 200

type MarkReadParams struct {
	ConversationID *int64
	TicketID       *int64

	// AgentPhone, when set, restricts the read sweep to messages addressed
	// to that phone instead of the conversation's agent/user participants.
	AgentPhone string

	// RoleFilter, when set, selects recipient phones by that participant
	// role.
	RoleFilter *model.Role
}

type MarkReadResult struct {
	ConversationID int64
	Status         model.ConversationStatus
	Updated        int
}

// ConversationService owns conversation resolution and the read-modify-write
// cycle every mutation goes through.
type ConversationService interface {
	// FindOrCreate resolves the conversation for an agent/counterparty phone
	// pair, creating it on first contact and self-healing the participant
	// set. Conversation identity is sticky: this never merges conversations.
	FindOrCreate(ctx context.Context, agentPhone string, agentRole model.Role, otherPhone string, otherRole model.Role) (*model.Conversation, error)

	// Mutate reloads the conversation, applies fn, and replaces the document
	// atomically, retrying on version conflicts. fn runs against the latest
	// copy on every attempt.
	Mutate(ctx context.Context, conversationID int64, fn func(conv *model.Conversation) error) (*model.Conversation, error)

	// MessagesForTicket returns the ticket's conversation and its most
	// recent messages in chronological order.
	MessagesForTicket(ctx context.Context, ticketID int64) (*model.Conversation, []model.Message, error)

	// MarkRead applies the bulk read transition to the resolved
	// conversation.
	MarkRead(ctx context.Context, params MarkReadParams) (*MarkReadResult, error)

	// MaxMessages is the configured soft cap on conversation length.
	MaxMessages() int
}

type conversationService struct {
	conversations store.ConversationStore
	tickets       store.TicketStore
	mechanics     store.MechanicStore
	cfg           config.ConversationConfig
	logger        *slog.Logger
}

func NewConversationService(
	conversations store.ConversationStore,
	tickets store.TicketStore,
	mechanics store.MechanicStore,
	cfg config.ConversationConfig,
	logger *slog.Logger,
) ConversationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &conversationService{
		conversations: conversations,
		tickets:       tickets,
		mechanics:     mechanics,
		cfg:           cfg,
		logger:        logger,
	}
}

func (s *conversationService) MaxMessages() int {
	return s.cfg.MaxMessages
}

func (s *conversationService) FindOrCreate(ctx context.Context, agentPhone string, agentRole model.Role, otherPhone string, otherRole model.Role) (*model.Conversation, error) {
	agentPhone = phone.Normalize(agentPhone)
	otherPhone = phone.Normalize(otherPhone)
	if agentPhone == "" || otherPhone == "" {
		return nil, fmt.Errorf("both phones are required")
	}

	// Exact match on both phones wins.
	conv, err := s.conversations.FindByParticipants(ctx, agentPhone, otherPhone)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("finding conversation by participants: %w", err)
	}

	if conv == nil {
		// Fall back to the latest conversation with the counterparty under
		// the same role. Covers an agent number that changed or was never
		// recorded.
		conv, err = s.conversations.FindLatestByParticipant(ctx, otherPhone, otherRole)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("finding conversation by counterparty: %w", err)
		}
	}

	if conv == nil {
		conv = &model.Conversation{
			ID:     id.New(),
			Status: model.ConversationStatusOpen,
			Participants: []model.Participant{
				{Phone: agentPhone, Role: agentRole},
				{Phone: otherPhone, Role: otherRole},
			},
		}
		if err := s.conversations.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		s.logger.InfoContext(ctx, "conversation created",
			"conversation_id", conv.ID,
			"agent_phone", agentPhone,
			"counterparty_phone", otherPhone,
			"counterparty_role", otherRole)
		return conv, nil
	}

	// Self-heal the participant set: add whichever endpoint is missing.
	// Participants are never removed.
	if conv.HasParticipant(agentPhone) && conv.HasParticipant(otherPhone) {
		return conv, nil
	}

	return s.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
		added := c.EnsureParticipant(agentPhone, agentRole)
		if c.EnsureParticipant(otherPhone, otherRole) {
			added = true
		}
		if added {
			c.LastUpdatedAt = time.Now().UTC()
		}
		return nil
	})
}

func (s *conversationService) Mutate(ctx context.Context, conversationID int64, fn func(conv *model.Conversation) error) (*model.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		conv, err := s.conversations.GetByID(ctx, conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, fmt.Errorf("loading conversation: %w", err)
		}

		if err := fn(conv); err != nil {
			return nil, err
		}

		if err := s.conversations.Replace(ctx, conv); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("replacing conversation: %w", err)
		}
		return conv, nil
	}
	return nil, fmt.Errorf("conversation %d kept changing under mutation: %w", conversationID, lastErr)
}

func (s *conversationService) MessagesForTicket(ctx context.Context, ticketID int64) (*model.Conversation, []model.Message, error) {
	conv, err := s.resolveByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, nil
	}
	return conv, conv.RecentMessages(ticketMessageLimit, time.Time{}), nil
}

func (s *conversationService) MarkRead(ctx context.Context, params MarkReadParams) (*MarkReadResult, error) {
	var (
		conv *model.Conversation
		err  error
	)

	switch {
	case params.ConversationID != nil:
		conv, err = s.conversations.GetByID(ctx, *params.ConversationID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
	case params.TicketID != nil:
		conv, err = s.resolveByTicket(ctx, *params.TicketID)
	default:
		return nil, fmt.Errorf("conversation id or ticket id is required")
	}
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	updated := 0
	conv, err = s.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
		updated = c.MarkReadTo(s.readTargets(c, params))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &MarkReadResult{
		ConversationID: conv.ID,
		Status:         conv.Status,
		Updated:        updated,
	}, nil
}

// readTargets computes the recipient phone set qualifying for the bulk read
// transition: an explicit agent phone if given, otherwise participants with
// the filtered role, otherwise the agent/user-role participants.
func (s *conversationService) readTargets(conv *model.Conversation, params MarkReadParams) map[string]bool {
	if params.AgentPhone != "" {
		return map[string]bool{phone.Normalize(params.AgentPhone): true}
	}
	if params.RoleFilter != nil {
		return conv.PhonesByRole(*params.RoleFilter)
	}
	return conv.PhonesByRole(model.RoleAgent, model.RoleUser)
}

// resolveByTicket finds the most recently updated conversation involving the
// ticket's driver phone, or failing that its assigned mechanic's phone.
// Returns (nil, nil) when the ticket exists but no conversation does.
func (s *conversationService) resolveByTicket(ctx context.Context, ticketID int64) (*model.Conversation, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("loading ticket: %w", err)
	}

	for _, p := range s.ticketPhones(ctx, ticket) {
		conv, err := s.conversations.FindLatestContaining(ctx, p)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("finding conversation for ticket phone: %w", err)
		}
	}
	return nil, nil
}

func (s *conversationService) ticketPhones(ctx context.Context, ticket *model.Ticket) []string {
	var phones []string
	if p := ticket.ComposedPhone(); p != "" {
		phones = append(phones, p)
	}
	if ticket.AssignedMechanicID != nil {
		mech, err := s.mechanics.GetByID(ctx, *ticket.AssignedMechanicID)
		if err == nil && mech.Phone != "" {
			phones = append(phones, phone.Normalize(mech.Phone))
		}
	}
	return phones
}
