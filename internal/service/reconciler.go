package service

import (
	"context"
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

// ReconcileResult summarizes one backfill pass over the provider's message
// log.
type ReconcileResult struct {
	Examined    int
	Assigned    int
	Duplicates  int
	Quarantined map[model.QuarantineReason]int
}

func (r *ReconcileResult) quarantine(reason model.QuarantineReason) {
	if r.Quarantined == nil {
		r.Quarantined = make(map[model.QuarantineReason]int)
	}
	r.Quarantined[reason]++
}

// ReconcilerService pulls recent messages from the provider and threads any
// the webhook path missed into their conversations. Every message lands
// somewhere: a conversation, the duplicate count, or quarantine. The pass is
// idempotent, so overlapping or repeated runs are safe.
type ReconcilerService interface {
	Reconcile(ctx context.Context, since time.Time, limit int) (*ReconcileResult, error)
}

type reconcilerService struct {
	gateway       gateway.Client
	conversations ConversationService
	convStore     store.ConversationStore
	unassigned    store.UnassignedMessageStore
	identity      IdentityService
	notifier      TicketNotifier
	gatewayNumber string
	logger        *slog.Logger
}

func NewReconcilerService(
	gw gateway.Client,
	conversations ConversationService,
	convStore store.ConversationStore,
	unassigned store.UnassignedMessageStore,
	identity IdentityService,
	notifier TicketNotifier,
	gatewayNumber string,
	log *slog.Logger,
) ReconcilerService {
	if log == nil {
		log = slog.Default()
	}
	return &reconcilerService{
		gateway:       gw,
		conversations: conversations,
		convStore:     convStore,
		unassigned:    unassigned,
		identity:      identity,
		notifier:      notifier,
		gatewayNumber: phone.Normalize(gatewayNumber),
		logger:        log,
	}
}

func (s *reconcilerService) Reconcile(ctx context.Context, since time.Time, limit int) (*ReconcileResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "dispatch.service.reconciler"})

	messages, err := s.gateway.List(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing provider messages: %w", err)
	}

	result := &ReconcileResult{}
	for i := range messages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Examined++
		s.reconcileOne(ctx, messages[i], result)
	}

	s.logger.InfoContext(ctx, "reconcile pass complete",
		"examined", result.Examined,
		"assigned", result.Assigned,
		"duplicates", result.Duplicates,
		"quarantined", result.Quarantined)
	return result, nil
}

// reconcileOne places a single provider message. Failures quarantine the
// message and never abort the pass.
func (s *reconcilerService) reconcileOne(ctx context.Context, pm gateway.ProviderMessage, result *ReconcileResult) {
	if pm.SID == "" {
		s.quarantine(ctx, pm, model.QuarantineNoSID, "", result)
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{ProviderMessageID: logger.Ptr(pm.SID)})

	known, err := s.convStore.ContainsProviderMessageID(ctx, pm.SID)
	if err != nil {
		s.quarantine(ctx, pm, model.QuarantineProcessingError, err.Error(), result)
		return
	}
	if known {
		result.Duplicates++
		return
	}

	from := phone.Normalize(pm.From)
	to := phone.Normalize(pm.To)
	if from != s.gatewayNumber && to != s.gatewayNumber {
		s.quarantine(ctx, pm, model.QuarantineNotInvolvingGateway, "", result)
		return
	}

	counterparty := from
	if from == s.gatewayNumber {
		counterparty = to
	}

	candidates, err := s.convStore.FindAllByParticipants(ctx, s.gatewayNumber, counterparty)
	if err != nil {
		s.quarantine(ctx, pm, model.QuarantineProcessingError, err.Error(), result)
		return
	}
	if len(candidates) == 0 {
		s.quarantine(ctx, pm, model.QuarantineNoConversation, "", result)
		return
	}

	target, ok := pickCandidate(candidates, pm.SentAt)
	if !ok {
		s.quarantine(ctx, pm, model.QuarantineNoConfidentPick, "", result)
		return
	}

	status := model.MessageStatusSent
	fromRole, toRole := model.RoleAgent, s.identity.Classify(ctx, counterparty)
	if to == s.gatewayNumber {
		// Gateway is the recipient so this was an inbound message we never
		// saw on the webhook.
		status = model.MessageStatusReceived
		fromRole, toRole = toRole, model.RoleAgent
	}

	msg := model.Message{
		ID:                id.New(),
		From:              from,
		To:                to,
		Body:              pm.Body,
		Status:            status,
		ProviderMessageID: pm.SID,
		CreatedAt:         pm.SentAt,
	}

	duplicate := false
	if _, err := s.conversations.Mutate(ctx, target.ID, func(c *model.Conversation) error {
		// The webhook path may have raced us; re-check under the version
		// guard before appending. fn may rerun after a conflict.
		duplicate = false
		if c.HasProviderMessageID(pm.SID) {
			duplicate = true
			return nil
		}
		c.Append(msg, fromRole, toRole, s.conversations.MaxMessages())
		return nil
	}); err != nil {
		s.quarantine(ctx, pm, model.QuarantineProcessingError, err.Error(), result)
		return
	}
	if duplicate {
		result.Duplicates++
		return
	}
	result.Assigned++

	if status == model.MessageStatusReceived {
		if nerr := s.notifier.MarkUnreadForPhone(ctx, counterparty); nerr != nil {
			s.logger.WarnContext(ctx, "unread notify failed", "phone", counterparty, "error", nerr)
		}
	}

	s.logger.InfoContext(ctx, "backfilled message assigned",
		"conversation_id", target.ID,
		"status", status)
}

// pickCandidate selects the conversation a backfilled message belongs to.
// Open conversations are preferred over closed ones; within the preferred
// set the one whose last activity is nearest the message's timestamp wins.
// A tie means no confident choice.
func pickCandidate(candidates []model.Conversation, sentAt time.Time) (*model.Conversation, bool) {
	if len(candidates) == 1 {
		return &candidates[0], true
	}

	pool := make([]*model.Conversation, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Status == model.ConversationStatusOpen {
			pool = append(pool, &candidates[i])
		}
	}
	if len(pool) == 0 {
		for i := range candidates {
			pool = append(pool, &candidates[i])
		}
	}
	if len(pool) == 1 {
		return pool[0], true
	}

	var best *model.Conversation
	var bestDist time.Duration
	tied := false
	for _, c := range pool {
		dist := sentAt.Sub(c.LastUpdatedAt)
		if dist < 0 {
			dist = -dist
		}
		switch {
		case best == nil || dist < bestDist:
			best, bestDist, tied = c, dist, false
		case dist == bestDist:
			tied = true
		}
	}
	if tied {
		return nil, false
	}
	return best, true
}

func (s *reconcilerService) quarantine(ctx context.Context, pm gateway.ProviderMessage, reason model.QuarantineReason, detail string, result *ReconcileResult) {
	result.quarantine(reason)

	um := model.UnassignedMessage{
		ID:                id.New(),
		ProviderMessageID: pm.SID,
		From:              phone.Normalize(pm.From),
		To:                phone.Normalize(pm.To),
		Body:              pm.Body,
		Reason:            reason,
		ObservedAt:        time.Now().UTC(),
	}
	if err := s.unassigned.Create(ctx, &um); err != nil {
		s.logger.ErrorContext(ctx, "failed to quarantine message",
			"reason", reason,
			"error", err)
		return
	}
	s.logger.WarnContext(ctx, "message quarantined", "reason", reason, "detail", logger.Truncate(detail, 200))
}
