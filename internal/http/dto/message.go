package dto

import (
	"time"

	"roadcall.app/dispatch/internal/model"
)

type SendMessageRequest struct {
	// To is the destination phone. Optional when TicketID resolves one.
	To       string `json:"to" binding:"omitempty,max=32"`
	TicketID *int64 `json:"ticket_id,string,omitempty"`
	Body     string `json:"body" binding:"required,min=1,max=1600"`

	// From overrides the configured gateway number. Rarely needed.
	From string `json:"from" binding:"omitempty,max=32"`
}

type SendMessageResponse struct {
	// Status is set on the generic send path ("queued").
	Status string `json:"status,omitempty"`

	// Message is the human-readable outcome on the role-specific paths.
	Message string `json:"message,omitempty"`

	ConversationID    int64  `json:"conversation_id,string"`
	ProviderMessageID string `json:"provider_message_id"`
}

type MarkReadRequest struct {
	ConversationID *int64 `json:"conversation_id,string,omitempty"`
	TicketID       *int64 `json:"ticket_id,string,omitempty"`

	// AgentPhone restricts the sweep to messages addressed to this phone.
	AgentPhone string `json:"agent_phone" binding:"omitempty,max=32"`

	// Role restricts the sweep to recipients with this participant role.
	Role string `json:"role" binding:"omitempty,oneof=agent mechanic driver user"`
}

type MarkReadResponse struct {
	Ok             bool   `json:"ok"`
	ConversationID int64  `json:"conversation_id,string,omitempty"`
	Status         string `json:"status,omitempty"`
	Updated        int    `json:"updated"`
}

type MessageResponse struct {
	ID                int64     `json:"id,string"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Body              string    `json:"body"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	Read              bool      `json:"read"`
	CreatedAt         time.Time `json:"created_at"`
}

func ToMessageResponse(m model.Message) MessageResponse {
	return MessageResponse{
		ID:                m.ID,
		From:              m.From,
		To:                m.To,
		Body:              m.Body,
		Status:            string(m.Status),
		ProviderMessageID: m.ProviderMessageID,
		Error:             m.Error,
		Read:              m.Read,
		CreatedAt:         m.CreatedAt,
	}
}

func ToMessageResponses(msgs []model.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToMessageResponse(m))
	}
	return out
}

type ParticipantResponse struct {
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type ConversationResponse struct {
	ID            int64                 `json:"id,string"`
	Status        string                `json:"status"`
	Participants  []ParticipantResponse `json:"participants"`
	LastUpdatedAt time.Time             `json:"last_updated_at"`
}

func ToConversationResponse(c *model.Conversation) *ConversationResponse {
	if c == nil {
		return nil
	}
	participants := make([]ParticipantResponse, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, ParticipantResponse{Phone: p.Phone, Role: string(p.Role)})
	}
	return &ConversationResponse{
		ID:            c.ID,
		Status:        string(c.Status),
		Participants:  participants,
		LastUpdatedAt: c.LastUpdatedAt,
	}
}

type TicketMessagesResponse struct {
	Conversation *ConversationResponse `json:"conversation"`
	Messages     []MessageResponse     `json:"messages"`
}
