package service

import (
	"log/slog"

	"roadcall.app/dispatch/core/config"
	"roadcall.app/dispatch/internal/gateway"
	"roadcall.app/dispatch/internal/queue"
	"roadcall.app/dispatch/internal/store"
)

type Services struct {
	stores   *store.Stores
	gateway  gateway.Client
	producer queue.Producer
	cfg      *config.Config
	logger   *slog.Logger
}

func NewServices(stores *store.Stores, gw gateway.Client, producer queue.Producer, cfg *config.Config, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	return &Services{
		stores:   stores,
		gateway:  gw,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Services) Conversations() ConversationService {
	return NewConversationService(
		s.stores.Conversations(),
		s.stores.Tickets(),
		s.stores.Mechanics(),
		s.cfg.Conversations,
		s.logger,
	)
}

// UnassignedMessages exposes the quarantine store for read-only surfaces.
func (s *Services) UnassignedMessages() store.UnassignedMessageStore {
	return s.stores.UnassignedMessages()
}

func (s *Services) Identity() IdentityService {
	return NewIdentityService(s.stores.Mechanics(), s.stores.Tickets(), s.logger)
}

func (s *Services) Notifier() TicketNotifier {
	return NewTicketNotifier(s.stores.Tickets())
}

func (s *Services) Sender() SenderService {
	return NewSenderService(
		s.gateway,
		s.Conversations(),
		s.stores.Tickets(),
		s.stores.Mechanics(),
		s.cfg.Gateway.Number,
		s.logger,
	)
}

func (s *Services) Webhooks() WebhookService {
	return NewWebhookService(
		s.Conversations(),
		s.stores.Conversations(),
		s.Identity(),
		s.Notifier(),
		s.producer,
		s.cfg.Conversations,
		s.cfg.Reconcile,
		s.cfg.Gateway.Number,
		s.logger,
	)
}

func (s *Services) Reconciler() ReconcilerService {
	return NewReconcilerService(
		s.gateway,
		s.Conversations(),
		s.stores.Conversations(),
		s.stores.UnassignedMessages(),
		s.Identity(),
		s.Notifier(),
		s.cfg.Gateway.Number,
		s.logger,
	)
}
