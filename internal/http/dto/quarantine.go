package dto

import (
	"time"

	"roadcall.app/dispatch/internal/model"
)

type QuarantinedMessageResponse struct {
	ID                int64     `json:"id,string"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Body              string    `json:"body"`
	Reason            string    `json:"reason"`
	ObservedAt        time.Time `json:"observed_at"`
}

type QuarantineListResponse struct {
	Messages []QuarantinedMessageResponse `json:"messages"`
}

func ToQuarantineListResponse(msgs []model.UnassignedMessage) QuarantineListResponse {
	out := make([]QuarantinedMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, QuarantinedMessageResponse{
			ID:                m.ID,
			ProviderMessageID: m.ProviderMessageID,
			From:              m.From,
			To:                m.To,
			Body:              m.Body,
			Reason:            string(m.Reason),
			ObservedAt:        m.ObservedAt,
		})
	}
	return QuarantineListResponse{Messages: out}
}
