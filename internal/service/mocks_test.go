package service_test

import (
	"context"
	"sync"
	"time"

	"roadcall.app/dispatch/internal/gateway"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/queue"
	"roadcall.app/dispatch/internal/store"
)

type mockConversationStore struct {
	getByIDFn                   func(ctx context.Context, id int64) (*model.Conversation, error)
	findByParticipantsFn        func(ctx context.Context, phoneA, phoneB string) (*model.Conversation, error)
	findAllByParticipantsFn     func(ctx context.Context, phoneA, phoneB string) ([]model.Conversation, error)
	findLatestByParticipantFn   func(ctx context.Context, phone string, role model.Role) (*model.Conversation, error)
	findLatestContainingFn      func(ctx context.Context, phone string) (*model.Conversation, error)
	findByProviderMessageIDFn   func(ctx context.Context, sid string) (*model.Conversation, error)
	containsProviderMessageIDFn func(ctx context.Context, sid string) (bool, error)
	createFn                    func(ctx context.Context, conv *model.Conversation) error
	replaceFn                   func(ctx context.Context, conv *model.Conversation) error
}

func (m *mockConversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) FindByParticipants(ctx context.Context, phoneA, phoneB string) (*model.Conversation, error) {
	if m.findByParticipantsFn != nil {
		return m.findByParticipantsFn(ctx, phoneA, phoneB)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) FindAllByParticipants(ctx context.Context, phoneA, phoneB string) ([]model.Conversation, error) {
	if m.findAllByParticipantsFn != nil {
		return m.findAllByParticipantsFn(ctx, phoneA, phoneB)
	}
	return nil, nil
}

func (m *mockConversationStore) FindLatestByParticipant(ctx context.Context, phone string, role model.Role) (*model.Conversation, error) {
	if m.findLatestByParticipantFn != nil {
		return m.findLatestByParticipantFn(ctx, phone, role)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) FindLatestContaining(ctx context.Context, phone string) (*model.Conversation, error) {
	if m.findLatestContainingFn != nil {
		return m.findLatestContainingFn(ctx, phone)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) FindByProviderMessageID(ctx context.Context, sid string) (*model.Conversation, error) {
	if m.findByProviderMessageIDFn != nil {
		return m.findByProviderMessageIDFn(ctx, sid)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) ContainsProviderMessageID(ctx context.Context, sid string) (bool, error) {
	if m.containsProviderMessageIDFn != nil {
		return m.containsProviderMessageIDFn(ctx, sid)
	}
	return false, nil
}

func (m *mockConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	if m.createFn != nil {
		return m.createFn(ctx, conv)
	}
	return nil
}

func (m *mockConversationStore) Replace(ctx context.Context, conv *model.Conversation) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, conv)
	}
	return nil
}

// memConversationStore is a map-backed ConversationStore with real version
// semantics, for tests exercising the read-modify-write cycle end to end.
type memConversationStore struct {
	mu    sync.Mutex
	convs map[int64]*model.Conversation
}

func newMemConversationStore(convs ...*model.Conversation) *memConversationStore {
	s := &memConversationStore{convs: make(map[int64]*model.Conversation)}
	for _, c := range convs {
		cp := cloneConversation(c)
		s.convs[cp.ID] = cp
	}
	return s
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Participants = append([]model.Participant(nil), c.Participants...)
	cp.Messages = append([]model.Message(nil), c.Messages...)
	return &cp
}

func (s *memConversationStore) get(id int64) (*model.Conversation, bool) {
	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(c), true
}

func (s *memConversationStore) GetByID(_ context.Context, id int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.get(id); ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (s *memConversationStore) FindByParticipants(_ context.Context, phoneA, phoneB string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(phoneA) && c.HasParticipant(phoneB) {
			if best == nil || c.LastUpdatedAt.After(best.LastUpdatedAt) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneConversation(best), nil
}

func (s *memConversationStore) FindAllByParticipants(_ context.Context, phoneA, phoneB string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(phoneA) && c.HasParticipant(phoneB) {
			out = append(out, *cloneConversation(c))
		}
	}
	return out, nil
}

func (s *memConversationStore) FindLatestByParticipant(_ context.Context, phone string, role model.Role) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Conversation
	for _, c := range s.convs {
		for _, p := range c.Participants {
			if p.Phone == phone && p.Role == role {
				if best == nil || c.LastUpdatedAt.After(best.LastUpdatedAt) {
					best = c
				}
			}
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneConversation(best), nil
}

func (s *memConversationStore) FindLatestContaining(_ context.Context, phone string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(phone) {
			if best == nil || c.LastUpdatedAt.After(best.LastUpdatedAt) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneConversation(best), nil
}

func (s *memConversationStore) FindByProviderMessageID(_ context.Context, sid string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.HasProviderMessageID(sid) {
			return cloneConversation(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memConversationStore) ContainsProviderMessageID(_ context.Context, sid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.HasProviderMessageID(sid) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memConversationStore) Create(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.LastUpdatedAt.IsZero() {
		conv.LastUpdatedAt = conv.CreatedAt
	}
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *memConversationStore) Replace(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.convs[conv.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != conv.Version {
		return store.ErrVersionConflict
	}
	conv.Version++
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

type mockUnassignedMessageStore struct {
	createFn     func(ctx context.Context, msg *model.UnassignedMessage) error
	listRecentFn func(ctx context.Context, limit int32) ([]model.UnassignedMessage, error)
}

func (m *mockUnassignedMessageStore) Create(ctx context.Context, msg *model.UnassignedMessage) error {
	if m.createFn != nil {
		return m.createFn(ctx, msg)
	}
	return nil
}

func (m *mockUnassignedMessageStore) ListRecent(ctx context.Context, limit int32) ([]model.UnassignedMessage, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit)
	}
	return nil, nil
}

type mockMechanicStore struct {
	getByIDFn    func(ctx context.Context, id int64) (*model.Mechanic, error)
	getByPhoneFn func(ctx context.Context, phone string) (*model.Mechanic, error)
}

func (m *mockMechanicStore) GetByID(ctx context.Context, id int64) (*model.Mechanic, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockMechanicStore) GetByPhone(ctx context.Context, phone string) (*model.Mechanic, error) {
	if m.getByPhoneFn != nil {
		return m.getByPhoneFn(ctx, phone)
	}
	return nil, store.ErrNotFound
}

type mockTicketStore struct {
	getByIDFn                   func(ctx context.Context, id int64) (*model.Ticket, error)
	findActiveByComposedPhoneFn func(ctx context.Context, phone string) (*model.Ticket, error)
	setMessagesUnreadFn         func(ctx context.Context, phones []string, unread bool) (int64, error)
}

func (m *mockTicketStore) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockTicketStore) FindActiveByComposedPhone(ctx context.Context, phone string) (*model.Ticket, error) {
	if m.findActiveByComposedPhoneFn != nil {
		return m.findActiveByComposedPhoneFn(ctx, phone)
	}
	return nil, store.ErrNotFound
}

func (m *mockTicketStore) SetMessagesUnreadByPhones(ctx context.Context, phones []string, unread bool) (int64, error) {
	if m.setMessagesUnreadFn != nil {
		return m.setMessagesUnreadFn(ctx, phones, unread)
	}
	return 0, nil
}

type mockGatewayClient struct {
	sendFn func(ctx context.Context, from, to, body string) (*gateway.ProviderMessage, error)
	listFn func(ctx context.Context, since time.Time, limit int) ([]gateway.ProviderMessage, error)
}

func (m *mockGatewayClient) Send(ctx context.Context, from, to, body string) (*gateway.ProviderMessage, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, from, to, body)
	}
	return &gateway.ProviderMessage{SID: "SM-mock"}, nil
}

func (m *mockGatewayClient) List(ctx context.Context, since time.Time, limit int) ([]gateway.ProviderMessage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, since, limit)
	}
	return nil, nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, task queue.ReconcileTask) error
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.ReconcileTask) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, task)
	}
	return nil
}

func (m *mockProducer) Close() error { return nil }

type mockNotifier struct {
	markUnreadFn func(ctx context.Context, phone string) error
	markReadFn   func(ctx context.Context, phones map[string]bool) error
}

func (m *mockNotifier) MarkUnreadForPhone(ctx context.Context, phone string) error {
	if m.markUnreadFn != nil {
		return m.markUnreadFn(ctx, phone)
	}
	return nil
}

func (m *mockNotifier) MarkReadForPhones(ctx context.Context, phones map[string]bool) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, phones)
	}
	return nil
}

type mockIdentity struct {
	classifyFn func(ctx context.Context, phone string) model.Role
}

func (m *mockIdentity) Classify(ctx context.Context, phone string) model.Role {
	if m.classifyFn != nil {
		return m.classifyFn(ctx, phone)
	}
	return model.RoleUser
}
