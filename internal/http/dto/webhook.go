package dto

// SMSWebhookRequest is the gateway callback payload. The provider posts
// form-encoded Twilio-style fields; the agent console posts the same shape as
// JSON with the mark_read extension fields.
type SMSWebhookRequest struct {
	MessageSid    string `form:"MessageSid" json:"MessageSid"`
	SmsSid        string `form:"SmsSid" json:"SmsSid"`
	From          string `form:"From" json:"From"`
	To            string `form:"To" json:"To"`
	Body          string `form:"Body" json:"Body"`
	MessageStatus string `form:"MessageStatus" json:"MessageStatus"`
	SmsStatus     string `form:"SmsStatus" json:"SmsStatus"`

	MarkRead       bool   `form:"mark_read" json:"mark_read"`
	TicketID       *int64 `form:"ticket_id" json:"ticket_id,string,omitempty"`
	ConversationID *int64 `form:"conversation_id" json:"conversation_id,string,omitempty"`
	AgentPhone     string `form:"agent_phone" json:"agent_phone"`
	Role           string `form:"role" json:"role" binding:"omitempty,oneof=agent mechanic driver user"`
}

// SID prefers MessageSid over the legacy SmsSid alias.
func (r SMSWebhookRequest) SID() string {
	if r.MessageSid != "" {
		return r.MessageSid
	}
	return r.SmsSid
}

// Status prefers MessageStatus over the legacy SmsStatus alias.
func (r SMSWebhookRequest) Status() string {
	if r.MessageStatus != "" {
		return r.MessageStatus
	}
	return r.SmsStatus
}

// SMSWebhookResponse is always returned with HTTP 200. Ok is false when
// handling failed internally; the gateway must never retry on our errors.
type SMSWebhookResponse struct {
	Ok             bool              `json:"ok"`
	Kind           string            `json:"kind"`
	ConversationID int64             `json:"conversation_id,string,omitempty"`
	Updated        int               `json:"updated"`
	Messages       []MessageResponse `json:"messages,omitempty"`
	Error          string            `json:"error,omitempty"`
}
