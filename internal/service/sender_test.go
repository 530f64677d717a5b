package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"roadcall.app/dispatch/common/id"
	"roadcall.app/dispatch/internal/gateway"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/service"
	"roadcall.app/dispatch/internal/store"
)

var _ = Describe("SenderService", func() {
	var (
		ctx       context.Context
		convStore *memConversationStore
		tickets   *mockTicketStore
		mechanics *mockMechanicStore
		gw        *mockGatewayClient
		svc       service.SenderService
	)

	BeforeEach(func() {
		ctx = context.Background()
		Expect(id.Init(1)).To(Succeed())

		convStore = newMemConversationStore()
		tickets = &mockTicketStore{}
		mechanics = &mockMechanicStore{}
		gw = &mockGatewayClient{}

		conversations := service.NewConversationService(convStore, tickets, mechanics, testConversationConfig(), nil)
		svc = service.NewSenderService(gw, conversations, tickets, mechanics, gatewayNumber, nil)
	})

	Describe("Send", func() {
		It("records pending, sends, and finalizes to sent with the provider id", func() {
			gw.sendFn = func(_ context.Context, from, to, body string) (*gateway.ProviderMessage, error) {
				Expect(from).To(Equal(gatewayNumber))
				Expect(to).To(Equal(driverPhone))
				Expect(body).To(Equal("tow truck dispatched"))
				return &gateway.ProviderMessage{SID: "SM100"}, nil
			}

			res, err := svc.Send(ctx, service.SendParams{
				To:   driverPhone,
				Body: "tow truck dispatched",
				Role: model.RoleDriver,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.ProviderMessageID).To(Equal("SM100"))

			conv, err := convStore.GetByID(ctx, res.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].Status).To(Equal(model.MessageStatusSent))
			Expect(conv.Messages[0].ProviderMessageID).To(Equal("SM100"))
		})

		It("finalizes to failed with the transport error preserved", func() {
			gw.sendFn = func(_ context.Context, _, _, _ string) (*gateway.ProviderMessage, error) {
				return nil, errors.New("carrier rejected")
			}

			_, err := svc.Send(ctx, service.SendParams{
				To:   driverPhone,
				Body: "hello",
				Role: model.RoleDriver,
			})

			Expect(errors.Is(err, service.ErrSendFailed)).To(BeTrue())

			conv, ferr := convStore.FindByParticipants(ctx, gatewayNumber, driverPhone)
			Expect(ferr).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].Status).To(Equal(model.MessageStatusFailed))
			Expect(conv.Messages[0].Error).To(ContainSubstring("carrier rejected"))
		})

		It("resolves the destination from the ticket's composed phone", func() {
			tickets.getByIDFn = func(_ context.Context, _ int64) (*model.Ticket, error) {
				return &model.Ticket{ID: 5, CountryCode: "+1", LocalNumber: "555 777 2222"}, nil
			}
			var sentTo string
			gw.sendFn = func(_ context.Context, _, to, _ string) (*gateway.ProviderMessage, error) {
				sentTo = to
				return &gateway.ProviderMessage{SID: "SM101"}, nil
			}

			ticketID := int64(5)
			_, err := svc.Send(ctx, service.SendParams{
				TicketID: &ticketID,
				Body:     "eta 20 minutes",
				Role:     model.RoleDriver,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(sentTo).To(Equal(driverPhone))
		})

		It("falls back to the assigned mechanic's number when the ticket has no driver phone", func() {
			mechID := int64(12)
			tickets.getByIDFn = func(_ context.Context, _ int64) (*model.Ticket, error) {
				return &model.Ticket{ID: 6, AssignedMechanicID: &mechID}, nil
			}
			mechanics.getByIDFn = func(_ context.Context, _ int64) (*model.Mechanic, error) {
				return &model.Mechanic{ID: mechID, Phone: mechanicPhone}, nil
			}
			var sentTo string
			gw.sendFn = func(_ context.Context, _, to, _ string) (*gateway.ProviderMessage, error) {
				sentTo = to
				return &gateway.ProviderMessage{SID: "SM102"}, nil
			}

			ticketID := int64(6)
			_, err := svc.Send(ctx, service.SendParams{
				TicketID: &ticketID,
				Body:     "job details inside",
				Role:     model.RoleMechanic,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(sentTo).To(Equal(mechanicPhone))
		})

		It("fails fast with ErrNoDestination when nothing resolves", func() {
			ticketID := int64(7)
			tickets.getByIDFn = func(_ context.Context, _ int64) (*model.Ticket, error) {
				return &model.Ticket{ID: ticketID}, nil
			}
			var called bool
			gw.sendFn = func(_ context.Context, _, _, _ string) (*gateway.ProviderMessage, error) {
				called = true
				return nil, nil
			}

			_, err := svc.Send(ctx, service.SendParams{TicketID: &ticketID, Body: "hi"})
			Expect(errors.Is(err, service.ErrNoDestination)).To(BeTrue())
			Expect(called).To(BeFalse())
		})

		It("maps an unknown ticket to ErrTicketNotFound", func() {
			ticketID := int64(8)
			tickets.getByIDFn = func(_ context.Context, _ int64) (*model.Ticket, error) {
				return nil, store.ErrNotFound
			}

			_, err := svc.Send(ctx, service.SendParams{TicketID: &ticketID, Body: "hi"})
			Expect(errors.Is(err, service.ErrTicketNotFound)).To(BeTrue())
		})

		It("rejects an empty body", func() {
			_, err := svc.Send(ctx, service.SendParams{To: driverPhone})
			Expect(err).To(HaveOccurred())
		})
	})
})
