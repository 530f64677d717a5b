package webhook

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"roadcall.app/dispatch/internal/http/dto"
	"roadcall.app/dispatch/internal/service"
)

type SMSWebhookHandler struct {
	webhooks service.WebhookService
	token    string
}

// NewSMSWebhookHandler builds the gateway callback handler. An empty token
// disables header authentication.
func NewSMSWebhookHandler(webhooks service.WebhookService, token string) *SMSWebhookHandler {
	return &SMSWebhookHandler{webhooks: webhooks, token: token}
}

// HandleEvent ingests one gateway callback. Outside of authentication it
// always answers 200: a non-2xx would make the provider retry, and retries
// of a poison payload would loop forever. Failures are reported in the body
// and logged instead.
func (h *SMSWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	if h.token != "" {
		header := c.GetHeader("X-Gateway-Token")
		if subtle.ConstantTimeCompare([]byte(header), []byte(h.token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
	}

	var req dto.SMSWebhookRequest
	if err := c.ShouldBind(&req); err != nil {
		slog.WarnContext(ctx, "malformed webhook payload", "error", err)
		c.JSON(http.StatusOK, dto.SMSWebhookResponse{
			Ok:    false,
			Kind:  string(service.EventUnrecognized),
			Error: "malformed payload",
		})
		return
	}

	result := h.webhooks.Handle(ctx, service.WebhookEvent{
		ProviderMessageID: req.SID(),
		From:              req.From,
		To:                req.To,
		Body:              req.Body,
		Status:            req.Status(),
		MarkRead:          req.MarkRead,
		TicketID:          req.TicketID,
		ConversationID:    req.ConversationID,
		AgentPhone:        req.AgentPhone,
		Role:              req.Role,
	})

	c.JSON(http.StatusOK, dto.SMSWebhookResponse{
		Ok:             result.Error == "",
		Kind:           string(result.Kind),
		ConversationID: result.ConversationID,
		Updated:        result.Updated,
		Messages:       dto.ToMessageResponses(result.Recent),
		Error:          result.Error,
	})
}
