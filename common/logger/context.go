package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so business context
// (conversation_id, provider_message_id, ...) shows up on every log statement
// without threading it through call sites.
type LogFields struct {
	ConversationID    *int64  // Conversation row ID
	ProviderMessageID *string // Gateway-assigned message SID
	TicketID          *int64  // Ticket ID referenced by the request
	Phone             *string // Normalized counterparty phone
	EventKind         *string // Webhook event kind (inbound, status_update, mark_read, ...)
	Component         string  // Component name (e.g. "dispatch.service.reconciler")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.ProviderMessageID != nil {
		result.ProviderMessageID = next.ProviderMessageID
	}
	if next.TicketID != nil {
		result.TicketID = next.TicketID
	}
	if next.Phone != nil {
		result.Phone = next.Phone
	}
	if next.EventKind != nil {
		result.EventKind = next.EventKind
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TicketID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long message bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
