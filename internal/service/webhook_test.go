package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"roadcall.app/dispatch/common/id"
	"roadcall.app/dispatch/core/config"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/queue"
	"roadcall.app/dispatch/internal/service"
)

var _ = Describe("WebhookService", func() {
	var (
		ctx       context.Context
		convStore *memConversationStore
		tickets   *mockTicketStore
		mechanics *mockMechanicStore
		producer  *mockProducer
		notifier  *mockNotifier
		identity  *mockIdentity
		svc       service.WebhookService
	)

	newService := func() service.WebhookService {
		conversations := service.NewConversationService(convStore, tickets, mechanics, testConversationConfig(), nil)
		return service.NewWebhookService(
			conversations,
			convStore,
			identity,
			notifier,
			producer,
			testConversationConfig(),
			config.ReconcileConfig{Window: time.Hour, Limit: 200},
			gatewayNumber,
			nil,
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		Expect(id.Init(1)).To(Succeed())

		convStore = newMemConversationStore()
		tickets = &mockTicketStore{}
		mechanics = &mockMechanicStore{}
		producer = &mockProducer{}
		notifier = &mockNotifier{}
		identity = &mockIdentity{}
		svc = newService()
	})

	Describe("inbound messages", func() {
		It("creates a conversation, appends received, and flags tickets unread", func() {
			identity.classifyFn = func(_ context.Context, _ string) model.Role {
				return model.RoleDriver
			}
			var unreadPhone string
			notifier.markUnreadFn = func(_ context.Context, phone string) error {
				unreadPhone = phone
				return nil
			}

			res := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM1",
				From:              driverPhone,
				To:                gatewayNumber,
				Body:              "need a jump start",
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Kind).To(Equal(service.EventInbound))
			Expect(res.Updated).To(Equal(1))
			Expect(unreadPhone).To(Equal(driverPhone))

			conv, err := convStore.GetByID(ctx, res.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].Status).To(Equal(model.MessageStatusReceived))
			Expect(conv.Messages[0].ProviderMessageID).To(Equal("SM1"))
			Expect(conv.HasParticipant(driverPhone)).To(BeTrue())
			Expect(conv.HasParticipant(gatewayNumber)).To(BeTrue())
		})

		It("returns the recent message window", func() {
			res := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM2",
				From:              driverPhone,
				To:                gatewayNumber,
				Body:              "hello",
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Recent).To(HaveLen(1))
			Expect(res.Recent[0].Body).To(Equal("hello"))
		})

		It("threads repeated contact from the same phone into one conversation", func() {
			first := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM3", From: driverPhone, To: gatewayNumber, Body: "first",
			})
			second := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM4", From: driverPhone, To: gatewayNumber, Body: "second",
			})

			Expect(second.ConversationID).To(Equal(first.ConversationID))
			conv, err := convStore.GetByID(ctx, first.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(2))
		})

		It("ignores a replayed provider message id", func() {
			first := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM5", From: driverPhone, To: gatewayNumber, Body: "once",
			})
			Expect(first.Kind).To(Equal(service.EventInbound))

			replay := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM5", From: driverPhone, To: gatewayNumber, Body: "once",
			})
			Expect(replay.Kind).To(Equal(service.EventDuplicate))
			Expect(replay.Updated).To(BeZero())

			conv, err := convStore.GetByID(ctx, first.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
		})
	})

	Describe("status updates", func() {
		appendSent := func(sid string) int64 {
			conversations := service.NewConversationService(convStore, tickets, mechanics, testConversationConfig(), nil)
			conv, err := conversations.FindOrCreate(ctx, gatewayNumber, model.RoleAgent, driverPhone, model.RoleDriver)
			Expect(err).NotTo(HaveOccurred())
			_, err = conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
				c.Append(model.Message{
					ID: id.New(), From: gatewayNumber, To: driverPhone,
					Body: "dispatched", Status: model.MessageStatusSent, ProviderMessageID: sid,
				}, model.RoleAgent, model.RoleDriver, 1000)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			return conv.ID
		}

		It("applies a delivered callback and clears ticket unread flags", func() {
			convID := appendSent("SM10")
			var readPhones map[string]bool
			notifier.markReadFn = func(_ context.Context, phones map[string]bool) error {
				readPhones = phones
				return nil
			}

			res := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM10",
				Status:            "delivered",
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Kind).To(Equal(service.EventStatusUpdate))
			Expect(res.Updated).To(Equal(1))

			conv, err := convStore.GetByID(ctx, convID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].Status).To(Equal(model.MessageStatusDelivered))
			Expect(conv.Messages[0].Read).To(BeTrue())
			Expect(readPhones).To(HaveKey(driverPhone))
		})

		It("maps provider vocabulary onto the canonical statuses and notifies", func() {
			convID := appendSent("SM11")
			var notified bool
			notifier.markReadFn = func(_ context.Context, _ map[string]bool) error {
				notified = true
				return nil
			}

			res := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM11",
				Status:            "undelivered",
			})

			Expect(res.Updated).To(Equal(1))
			conv, err := convStore.GetByID(ctx, convID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].Status).To(Equal(model.MessageStatusFailed))
			Expect(notified).To(BeTrue())
		})

		It("leaves a backfilled inbound message untouched by a late queued callback", func() {
			conversations := service.NewConversationService(convStore, tickets, mechanics, testConversationConfig(), nil)
			conv, err := conversations.FindOrCreate(ctx, gatewayNumber, model.RoleAgent, driverPhone, model.RoleDriver)
			Expect(err).NotTo(HaveOccurred())
			_, err = conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
				c.Append(model.Message{
					ID: id.New(), From: driverPhone, To: gatewayNumber,
					Body: "help", Status: model.MessageStatusReceived, ProviderMessageID: "SM13",
				}, model.RoleDriver, model.RoleAgent, 1000)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			res := svc.Handle(ctx, service.WebhookEvent{ProviderMessageID: "SM13", Status: "queued"})

			Expect(res.Updated).To(BeZero())
			stored, err := convStore.GetByID(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Messages[0].Status).To(Equal(model.MessageStatusReceived))
		})

		It("never regresses a terminal status", func() {
			convID := appendSent("SM12")
			svc.Handle(ctx, service.WebhookEvent{ProviderMessageID: "SM12", Status: "delivered"})

			res := svc.Handle(ctx, service.WebhookEvent{ProviderMessageID: "SM12", Status: "sent"})
			Expect(res.Updated).To(BeZero())

			conv, err := convStore.GetByID(ctx, convID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].Status).To(Equal(model.MessageStatusDelivered))
		})

		It("schedules a backfill pass for an unknown provider message id", func() {
			var enqueued *queue.ReconcileTask
			producer.enqueueFn = func(_ context.Context, task queue.ReconcileTask) error {
				enqueued = &task
				return nil
			}

			res := svc.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM-unknown",
				Status:            "delivered",
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Kind).To(Equal(service.EventStatusUpdate))
			Expect(res.Updated).To(BeZero())
			Expect(enqueued).NotTo(BeNil())
			Expect(enqueued.ProviderMessageID).To(Equal("SM-unknown"))
			Expect(enqueued.Limit).To(Equal(200))
		})
	})

	Describe("mark read", func() {
		It("delegates to the conversation read sweep", func() {
			conversations := service.NewConversationService(convStore, tickets, mechanics, testConversationConfig(), nil)
			conv, err := conversations.FindOrCreate(ctx, gatewayNumber, model.RoleAgent, driverPhone, model.RoleDriver)
			Expect(err).NotTo(HaveOccurred())
			_, err = conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
				c.Append(model.Message{
					ID: id.New(), From: driverPhone, To: gatewayNumber,
					Body: "where are you", Status: model.MessageStatusSent,
				}, model.RoleDriver, model.RoleAgent, 1000)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			res := svc.Handle(ctx, service.WebhookEvent{
				MarkRead:       true,
				ConversationID: &conv.ID,
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Kind).To(Equal(service.EventMarkRead))
			Expect(res.Updated).To(Equal(1))
		})

		It("restricts the sweep to the filtered role", func() {
			conversations := service.NewConversationService(convStore, tickets, mechanics, testConversationConfig(), nil)
			conv, err := conversations.FindOrCreate(ctx, gatewayNumber, model.RoleAgent, mechanicPhone, model.RoleMechanic)
			Expect(err).NotTo(HaveOccurred())
			_, err = conversations.Mutate(ctx, conv.ID, func(c *model.Conversation) error {
				c.Append(model.Message{
					ID: id.New(), From: gatewayNumber, To: mechanicPhone,
					Body: "job details", Status: model.MessageStatusSent,
				}, model.RoleAgent, model.RoleMechanic, 1000)
				c.Append(model.Message{
					ID: id.New(), From: mechanicPhone, To: gatewayNumber,
					Body: "on it", Status: model.MessageStatusReceived,
				}, model.RoleMechanic, model.RoleAgent, 1000)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			res := svc.Handle(ctx, service.WebhookEvent{
				MarkRead:       true,
				ConversationID: &conv.ID,
				Role:           "mechanic",
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Updated).To(Equal(1))
			stored, err := convStore.GetByID(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Messages[0].Status).To(Equal(model.MessageStatusDelivered))
			Expect(stored.Messages[1].Status).To(Equal(model.MessageStatusReceived))
		})

		It("treats an unknown conversation as a zero-update success", func() {
			missing := int64(987654)
			res := svc.Handle(ctx, service.WebhookEvent{
				MarkRead:       true,
				ConversationID: &missing,
			})

			Expect(res.Error).To(BeEmpty())
			Expect(res.Updated).To(BeZero())
		})
	})

	Describe("classification", func() {
		It("flags a payload with neither body nor status as unrecognized", func() {
			res := svc.Handle(ctx, service.WebhookEvent{From: driverPhone, To: gatewayNumber})
			Expect(res.Kind).To(Equal(service.EventUnrecognized))
			Expect(res.Error).To(BeEmpty())
		})

		It("never returns a nil result on internal failure", func() {
			broken := &mockConversationStore{}
			conversations := service.NewConversationService(broken, tickets, mechanics, testConversationConfig(), nil)
			failing := service.NewWebhookService(
				conversations, broken, identity, notifier, producer,
				testConversationConfig(), config.ReconcileConfig{Window: time.Hour, Limit: 200},
				gatewayNumber, nil,
			)
			broken.createFn = func(_ context.Context, _ *model.Conversation) error {
				return context.DeadlineExceeded
			}

			res := failing.Handle(ctx, service.WebhookEvent{
				ProviderMessageID: "SM-err", From: driverPhone, To: gatewayNumber, Body: "x",
			})

			Expect(res).NotTo(BeNil())
			Expect(res.Error).NotTo(BeEmpty())
		})
	})
})
