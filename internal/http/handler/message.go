package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roadcall.app/dispatch/internal/http/dto"
	"roadcall.app/dispatch/internal/model"
	"roadcall.app/dispatch/internal/service"
)

type MessageHandler struct {
	sender        service.SenderService
	conversations service.ConversationService
}

func NewMessageHandler(sender service.SenderService, conversations service.ConversationService) *MessageHandler {
	return &MessageHandler{sender: sender, conversations: conversations}
}

// Send dispatches an outbound message to an explicit phone or a ticket's
// resolved phone. The counterparty defaults to the generic user role and the
// caller gets a queued-style ack.
func (h *MessageHandler) Send(c *gin.Context) {
	res, ok := h.send(c, model.RoleUser)
	if !ok {
		return
	}
	c.JSON(http.StatusAccepted, dto.SendMessageResponse{
		Status:            "queued",
		ConversationID:    res.ConversationID,
		ProviderMessageID: res.ProviderMessageID,
	})
}

// SendMechanic dispatches to the ticket's assigned mechanic.
func (h *MessageHandler) SendMechanic(c *gin.Context) {
	h.sendWithRole(c, model.RoleMechanic)
}

// SendDriver dispatches to the ticket's driver phone.
func (h *MessageHandler) SendDriver(c *gin.Context) {
	h.sendWithRole(c, model.RoleDriver)
}

func (h *MessageHandler) sendWithRole(c *gin.Context, role model.Role) {
	res, ok := h.send(c, role)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.SendMessageResponse{
		Message:           "message sent",
		ConversationID:    res.ConversationID,
		ProviderMessageID: res.ProviderMessageID,
	})
}

func (h *MessageHandler) send(c *gin.Context, role model.Role) (*service.SendResult, bool) {
	ctx := c.Request.Context()

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "error": err.Error()})
		return nil, false
	}

	res, err := h.sender.Send(ctx, service.SendParams{
		To:           req.To,
		TicketID:     req.TicketID,
		Body:         req.Body,
		Role:         role,
		FromOverride: req.From,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoDestination):
			c.JSON(http.StatusBadRequest, gin.H{"message": "failed to send message", "error": "no destination phone could be resolved"})
		case errors.Is(err, service.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "failed to send message", "error": "ticket not found"})
		case errors.Is(err, service.ErrSendFailed):
			c.JSON(http.StatusBadGateway, gin.H{"message": "failed to send message", "error": "message could not be delivered to the gateway"})
		default:
			slog.ErrorContext(ctx, "send failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to send message", "error": "internal error"})
		}
		return nil, false
	}

	return res, true
}

// GetByTicket returns the ticket's conversation and its recent messages in
// chronological order. A ticket with no conversation yet yields an empty
// list, not an error.
func (h *MessageHandler) GetByTicket(c *gin.Context) {
	ctx := c.Request.Context()

	ticketID, err := strconv.ParseInt(c.Param("ticket_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket id"})
		return
	}

	conv, msgs, err := h.conversations.MessagesForTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, service.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load ticket messages", "ticket_id", ticketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, dto.TicketMessagesResponse{
		Conversation: dto.ToConversationResponse(conv),
		Messages:     dto.ToMessageResponses(msgs),
	})
}

// MarkRead applies the bulk read transition to a conversation resolved by id
// or by ticket. Unknown threads are zero-update successes.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ConversationID == nil && req.TicketID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id or ticket_id is required"})
		return
	}

	params := service.MarkReadParams{
		ConversationID: req.ConversationID,
		TicketID:       req.TicketID,
		AgentPhone:     req.AgentPhone,
	}
	if req.Role != "" {
		role := model.Role(req.Role)
		params.RoleFilter = &role
	}

	res, err := h.conversations.MarkRead(ctx, params)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) || errors.Is(err, service.ErrTicketNotFound) {
			c.JSON(http.StatusOK, dto.MarkReadResponse{Ok: false, Updated: 0})
			return
		}
		slog.ErrorContext(ctx, "mark read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	c.JSON(http.StatusOK, dto.MarkReadResponse{
		Ok:             true,
		ConversationID: res.ConversationID,
		Status:         string(res.Status),
		Updated:        res.Updated,
	})
}
