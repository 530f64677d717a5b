package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"roadcall.app/dispatch/common/id"
	"roadcall.app/dispatch/common/logger"
	"roadcall.app/dispatch/common/phone"
	"roadcall.app/dispatch/core/config"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/queue"
	"roadcall.app/dispatch/internal/store"
)

// WebhookEventKind is the classification of an incoming gateway callback,
// computed once per event and acted on exactly once.
type WebhookEventKind string

const (
	EventDuplicate    WebhookEventKind = "duplicate"
	EventInbound      WebhookEventKind = "inbound"
	EventStatusUpdate WebhookEventKind = "status_update"
	EventMarkRead     WebhookEventKind = "mark_read"
	EventUnrecognized WebhookEventKind = "unrecognized"
)

// WebhookEvent is the decoded gateway callback. Which fields are set decides
// the classification.
type WebhookEvent struct {
	ProviderMessageID string
	From              string
	To                string
	Body              string
	Status            string

	// MarkRead events come from the agent console rather than the SMS
	// provider and carry a ticket or conversation reference instead of a
	// message. AgentPhone and Role optionally narrow the read sweep.
	MarkRead       bool
	TicketID       *int64
	ConversationID *int64
	AgentPhone     string
	Role           string
}

// WebhookResult is always produced, even on internal failure. The HTTP layer
// acknowledges every callback with 200 so the provider never retries into a
// poison loop; Error carries what went wrong for the response body and logs.
type WebhookResult struct {
	Kind           WebhookEventKind
	ConversationID int64
	Updated        int
	Recent         []model.Message
	Error          string
}

type WebhookService interface {
	Handle(ctx context.Context, event WebhookEvent) *WebhookResult
}

type webhookService struct {
	conversations ConversationService
	convStore     store.ConversationStore
	identity      IdentityService
	notifier      TicketNotifier
	producer      queue.Producer
	cfg           config.ConversationConfig
	reconcile     config.ReconcileConfig
	gatewayNumber string
	logger        *slog.Logger
}

func NewWebhookService(
	conversations ConversationService,
	convStore store.ConversationStore,
	identity IdentityService,
	notifier TicketNotifier,
	producer queue.Producer,
	cfg config.ConversationConfig,
	reconcile config.ReconcileConfig,
	gatewayNumber string,
	log *slog.Logger,
) WebhookService {
	if log == nil {
		log = slog.Default()
	}
	return &webhookService{
		conversations: conversations,
		convStore:     convStore,
		identity:      identity,
		notifier:      notifier,
		producer:      producer,
		cfg:           cfg,
		reconcile:     reconcile,
		gatewayNumber: phone.Normalize(gatewayNumber),
		logger:        log,
	}
}

func (s *webhookService) Handle(ctx context.Context, event WebhookEvent) *WebhookResult {
	kind := s.classify(ctx, event)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProviderMessageID: logger.Ptr(event.ProviderMessageID),
		EventKind:         logger.Ptr(string(kind)),
		Component:         "dispatch.service.webhook",
	})

	result := &WebhookResult{Kind: kind}
	var err error
	switch kind {
	case EventDuplicate:
		s.logger.InfoContext(ctx, "duplicate callback ignored")
	case EventInbound:
		err = s.handleInbound(ctx, event, result)
	case EventStatusUpdate:
		err = s.handleStatusUpdate(ctx, event, result)
	case EventMarkRead:
		err = s.handleMarkRead(ctx, event, result)
	default:
		s.logger.WarnContext(ctx, "unrecognized callback", "from", event.From, "to", event.To)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "webhook handling failed", "error", err)
		result.Error = err.Error()
	}
	return result
}

// classify decides once what an event is. Duplicate detection wins over
// everything else so replays are cheap no-ops.
func (s *webhookService) classify(ctx context.Context, event WebhookEvent) WebhookEventKind {
	if event.MarkRead {
		return EventMarkRead
	}
	if event.ProviderMessageID != "" && event.Body != "" && event.From != "" {
		known, err := s.convStore.ContainsProviderMessageID(ctx, event.ProviderMessageID)
		if err != nil {
			s.logger.WarnContext(ctx, "dedup lookup failed, treating as new", "error", err)
		} else if known {
			return EventDuplicate
		}
		return EventInbound
	}
	if event.ProviderMessageID != "" && event.Status != "" {
		return EventStatusUpdate
	}
	return EventUnrecognized
}

func (s *webhookService) handleInbound(ctx context.Context, event WebhookEvent, result *WebhookResult) error {
	from := phone.Normalize(event.From)
	to := phone.Normalize(event.To)

	counterparty := from
	if from == s.gatewayNumber {
		counterparty = to
	}
	role := s.identity.Classify(ctx, counterparty)

	conv, err := s.conversations.FindOrCreate(ctx, s.gatewayNumber, model.RoleAgent, counterparty, role)
	if err != nil {
		return err
	}
	result.ConversationID = conv.ID

	msg := model.Message{
		ID:                id.New(),
		From:              from,
		To:                to,
		Body:              event.Body,
		Status:            model.MessageStatusReceived,
		ProviderMessageID: event.ProviderMessageID,
		CreatedAt:         time.Now().UTC(),
	}

	fromRole, toRole := role, model.RoleAgent
	if from == s.gatewayNumber {
		fromRole, toRole = model.RoleAgent, role
	}

	updated, err := s.conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
		// fn may rerun after a version conflict, so per-attempt state resets
		// here. Re-check under the version guard; a concurrent delivery of
		// the same callback may have appended it between classify and now.
		result.Kind, result.Updated = EventInbound, 0
		if c.HasProviderMessageID(event.ProviderMessageID) {
			result.Kind = EventDuplicate
			return nil
		}
		c.Append(msg, fromRole, toRole, s.conversations.MaxMessages())
		result.Updated = 1
		return nil
	})
	if err != nil {
		return err
	}

	if result.Kind == EventInbound {
		if nerr := s.notifier.MarkUnreadForPhone(ctx, counterparty); nerr != nil {
			s.logger.WarnContext(ctx, "unread notify failed", "phone", counterparty, "error", nerr)
		}
		s.logger.InfoContext(ctx, "inbound message recorded",
			"conversation_id", conv.ID,
			"from", from,
			"body", logger.Truncate(event.Body, 120))
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RecentDays)
	result.Recent = updated.RecentMessages(s.cfg.RecentLimit, cutoff)
	return nil
}

func (s *webhookService) handleStatusUpdate(ctx context.Context, event WebhookEvent, result *WebhookResult) error {
	conv, err := s.convStore.FindByProviderMessageID(ctx, event.ProviderMessageID)
	if errors.Is(err, store.ErrNotFound) {
		// The status beat its own message here. A bounded backfill pass
		// will pick the message up from the provider; the update itself is
		// dropped and the next callback or reconcile settles the status.
		s.logger.InfoContext(ctx, "status for unknown message, scheduling backfill")
		task := queue.ReconcileTask{
			Since:             time.Now().UTC().Add(-s.reconcile.Window),
			Limit:             s.reconcile.Limit,
			ProviderMessageID: event.ProviderMessageID,
		}
		if qerr := s.producer.Enqueue(ctx, task); qerr != nil {
			s.logger.WarnContext(ctx, "backfill enqueue failed", "error", qerr)
		}
		return nil
	}
	if err != nil {
		return err
	}
	result.ConversationID = conv.ID

	status, ok := model.MapGatewayStatus(event.Status)
	if !ok {
		s.logger.WarnContext(ctx, "unknown gateway status preserved as-is", "status", event.Status)
		status = model.MessageStatus(event.Status)
	}

	updated, err := s.conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
		result.Updated = 0
		if c.ApplyStatus(event.ProviderMessageID, status) {
			result.Updated = 1
		}
		return nil
	})
	if err != nil {
		return err
	}

	if result.Updated > 0 {
		phones := updated.PhonesByRole(model.RoleMechanic, model.RoleDriver, model.RoleUser)
		if nerr := s.notifier.MarkReadForPhones(ctx, phones); nerr != nil {
			s.logger.WarnContext(ctx, "read notify failed", "error", nerr)
		}
	}

	s.logger.InfoContext(ctx, "status update applied",
		"conversation_id", conv.ID,
		"status", status,
		"updated", result.Updated)
	return nil
}

func (s *webhookService) handleMarkRead(ctx context.Context, event WebhookEvent, result *WebhookResult) error {
	params := MarkReadParams{
		ConversationID: event.ConversationID,
		TicketID:       event.TicketID,
		AgentPhone:     phone.Normalize(event.AgentPhone),
	}
	if event.Role != "" {
		role := model.Role(event.Role)
		params.RoleFilter = &role
	}

	res, err := s.conversations.MarkRead(ctx, params)
	if errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrTicketNotFound) {
		// Tolerated: read receipts for unknown threads are zero-update
		// successes, not failures.
		s.logger.InfoContext(ctx, "mark read for unknown thread ignored")
		return nil
	}
	if err != nil {
		return err
	}
	result.ConversationID = res.ConversationID
	result.Updated = res.Updated

	if res.Updated > 0 {
		if conv, gerr := s.convStore.GetByID(ctx, res.ConversationID); gerr == nil {
			phones := conv.PhonesByRole(model.RoleMechanic, model.RoleDriver, model.RoleUser)
			if nerr := s.notifier.MarkReadForPhones(ctx, phones); nerr != nil {
				s.logger.WarnContext(ctx, "read notify failed", "error", nerr)
			}
		}
	}
	return nil
}
