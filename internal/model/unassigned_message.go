package model

import "time"

type QuarantineReason string

const (
	QuarantineNoSID               QuarantineReason = "no_sid"
	QuarantineNotInvolvingGateway QuarantineReason = "not_involving_gateway_number"
	QuarantineNoConversation      QuarantineReason = "no_conversation_with_both_phones"
	QuarantineNoConfidentPick     QuarantineReason = "no_confident_candidate"
	QuarantineProcessingError     QuarantineReason = "processing_error"
)

// UnassignedMessage is the quarantine record for a backfilled message that
// could not be confidently routed to a conversation. It is insert-only and
// never auto-resolved; it exists as a human-inspectable audit trail.
type UnassignedMessage struct {
	ID                int64            `json:"id"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
	From              string           `json:"from"`
	To                string           `json:"to"`
	Body              string           `json:"body"`
	Reason            QuarantineReason `json:"reason"`
	ObservedAt        time.Time        `json:"observed_at"`
}
