package service

import (
	"context"
	"errors"
	"log/slog"

	"roadcall.app/dispatch/common/phone"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/store"
)

// IdentityService classifies a phone number as mechanic, driver, or user.
// Classification is advisory display/routing metadata; the phone itself is
// the identity key.
type IdentityService interface {
	Classify(ctx context.Context, rawPhone string) model.Role
}

type identityService struct {
	mechanics store.MechanicStore
	tickets   store.TicketStore
	logger    *slog.Logger
}

func NewIdentityService(mechanics store.MechanicStore, tickets store.TicketStore, logger *slog.Logger) IdentityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &identityService{
		mechanics: mechanics,
		tickets:   tickets,
		logger:    logger,
	}
}

// Classify checks the mechanic directory first, then the active-job registry
// for a ticket whose composed phone matches. Everything else, including
// lookup failures, degrades to user rather than raising.
func (s *identityService) Classify(ctx context.Context, rawPhone string) model.Role {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		return model.RoleUser
	}

	_, err := s.mechanics.GetByPhone(ctx, normalized)
	if err == nil {
		return model.RoleMechanic
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.DebugContext(ctx, "mechanic lookup failed, classifying as user", "error", err)
		return model.RoleUser
	}

	_, err = s.tickets.FindActiveByComposedPhone(ctx, normalized)
	if err == nil {
		return model.RoleDriver
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.DebugContext(ctx, "ticket lookup failed, classifying as user", "error", err)
	}

	return model.RoleUser
}
