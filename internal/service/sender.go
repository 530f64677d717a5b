package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roadcall.app/dispatch/common/id"
	"roadcall.app/dispatch/common/logger"
	"roadcall.app/dispatch/common/phone"
	"roadcall.app/dispatch/internal/gateway"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/store"
)

var (
	// ErrNoDestination means no phone could be resolved for the send.
	ErrNoDestination = errors.New("no destination phone could be resolved")

	// ErrSendFailed wraps a terminal transport failure. The failure is
	// already recorded on the message by the time this is returned.
	ErrSendFailed = errors.New("gateway send failed")
)

type SendParams struct {
	// To is the destination phone. When empty, TicketID is used to resolve
	// one.
	To string

	// TicketID resolves the destination via the ticket's composed driver
	// phone or, failing that, its assigned mechanic's registered number.
	TicketID *int64

	Body string

	// Role is the default counterparty role when the destination is not yet
	// a participant. The generic, mechanic, and driver send paths differ
	// only here.
	Role model.Role

	// FromOverride substitutes the gateway number as sender.
	FromOverride string
}

type SendResult struct {
	ProviderMessageID string
	ConversationID    int64
}

// SenderService records an outbound message as pending, performs the gateway
// call, and finalizes the message per the status state machine.
type SenderService interface {
	Send(ctx context.Context, params SendParams) (*SendResult, error)
}

type senderService struct {
	gateway       gateway.Client
	conversations ConversationService
	tickets       store.TicketStore
	mechanics     store.MechanicStore
	gatewayNumber string
	logger        *slog.Logger
}

func NewSenderService(
	gw gateway.Client,
	conversations ConversationService,
	tickets store.TicketStore,
	mechanics store.MechanicStore,
	gatewayNumber string,
	log *slog.Logger,
) SenderService {
	if log == nil {
		log = slog.Default()
	}
	return &senderService{
		gateway:       gw,
		conversations: conversations,
		tickets:       tickets,
		mechanics:     mechanics,
		gatewayNumber: phone.Normalize(gatewayNumber),
		logger:        log,
	}
}

func (s *senderService) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	if params.Body == "" {
		return nil, fmt.Errorf("body is required")
	}

	to, err := s.resolveDestination(ctx, params)
	if err != nil {
		return nil, err
	}

	from := s.gatewayNumber
	if params.FromOverride != "" {
		from = phone.Normalize(params.FromOverride)
	}

	role := params.Role
	if role == "" {
		role = model.RoleUser
	}

	conv, err := s.conversations.FindOrCreate(ctx, from, model.RoleAgent, to, role)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conv.ID),
		Component:      "dispatch.service.sender",
	})

	// The message is recorded pending before the network call so a crash
	// mid-send leaves an auditable row.
	pending := model.Message{
		ID:        id.New(),
		From:      from,
		To:        to,
		Body:      params.Body,
		Status:    model.MessageStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
		c.Append(pending, model.RoleAgent, role, s.conversations.MaxMessages())
		return nil
	}); err != nil {
		return nil, fmt.Errorf("recording pending message: %w", err)
	}

	sent, sendErr := s.gateway.Send(ctx, from, to, params.Body)
	if sendErr != nil {
		if _, err := s.conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
			c.ResolvePendingFailed(from, to, params.Body, sendErr.Error())
			return nil
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to record send failure", "error", err)
		}
		s.logger.WarnContext(ctx, "outbound send failed", "to", to, "error", sendErr)
		return nil, fmt.Errorf("%w: %s", ErrSendFailed, sendErr)
	}

	if _, err := s.conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
		c.ResolvePendingSent(from, to, params.Body, sent.SID)
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to finalize sent message", "provider_message_id", sent.SID, "error", err)
	}

	s.logger.InfoContext(ctx, "outbound message sent",
		"to", to,
		"provider_message_id", sent.SID,
		"body", logger.Truncate(params.Body, 120))

	return &SendResult{
		ProviderMessageID: sent.SID,
		ConversationID:    conv.ID,
	}, nil
}

// resolveDestination prefers an explicit destination, then the ticket's
// composed driver phone, then the assigned mechanic's registered number.
func (s *senderService) resolveDestination(ctx context.Context, params SendParams) (string, error) {
	if params.To != "" {
		return phone.Normalize(params.To), nil
	}
	if params.TicketID == nil {
		return "", ErrNoDestination
	}

	ticket, err := s.tickets.GetByID(ctx, *params.TicketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrTicketNotFound
		}
		return "", fmt.Errorf("loading ticket: %w", err)
	}

	if p := ticket.ComposedPhone(); p != "" {
		return p, nil
	}

	if ticket.AssignedMechanicID != nil {
		mech, err := s.mechanics.GetByID(ctx, *ticket.AssignedMechanicID)
		if err == nil && mech.Phone != "" {
			return phone.Normalize(mech.Phone), nil
		}
	}

	return "", ErrNoDestination
}
