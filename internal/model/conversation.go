package model

import "time"

type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusClosed ConversationStatus = "closed"
)

type Role string

const (
	RoleAgent    Role = "agent"
	RoleMechanic Role = "mechanic"
	RoleDriver   Role = "driver"
	RoleUser     Role = "user"
)

// Participant attaches an advisory role to a normalized phone. Identity is
// the phone value; the role is display/routing metadata only.
type Participant struct {
	Phone string `json:"phone"`
	Role  Role   `json:"role"`
}

// Conversation is the durable thread of messages between the fixed gateway
// number and one external phone. It is persisted as a single document row;
// all mutation happens through the helpers below followed by one atomic
// store replace.
type Conversation struct {
	ID            int64              `json:"id"`
	Status        ConversationStatus `json:"status"`
	Participants  []Participant      `json:"participants"`
	Messages      []Message          `json:"messages"`
	Version       int64              `json:"version"`
	LastUpdatedAt time.Time          `json:"last_updated_at"`
	CreatedAt     time.Time          `json:"created_at"`
}

// HasParticipant reports whether the normalized phone is already a
// participant.
func (c *Conversation) HasParticipant(phone string) bool {
	for _, p := range c.Participants {
		if p.Phone == phone {
			return true
		}
	}
	return false
}

// EnsureParticipant adds the phone with the given role unless it is already
// present. Participants are never removed. Returns true if a participant was
// added.
func (c *Conversation) EnsureParticipant(phone string, role Role) bool {
	if phone == "" || c.HasParticipant(phone) {
		return false
	}
	c.Participants = append(c.Participants, Participant{Phone: phone, Role: role})
	return true
}

// HasProviderMessageID reports whether any message in this conversation
// carries the given provider id.
func (c *Conversation) HasProviderMessageID(sid string) bool {
	if sid == "" {
		return false
	}
	for i := range c.Messages {
		if c.Messages[i].ProviderMessageID == sid {
			return true
		}
	}
	return false
}

// Append adds a message at the end of the thread, self-heals the participant
// set with the message endpoints, enforces the soft length cap by evicting
// oldest-first, and bumps LastUpdatedAt. fromRole/toRole are used only when
// the endpoint is not yet a participant.
func (c *Conversation) Append(msg Message, fromRole, toRole Role, maxMessages int) {
	c.EnsureParticipant(msg.From, fromRole)
	c.EnsureParticipant(msg.To, toRole)

	c.Messages = append(c.Messages, msg)
	if maxMessages > 0 && len(c.Messages) > maxMessages {
		c.Messages = c.Messages[len(c.Messages)-maxMessages:]
	}
	c.LastUpdatedAt = time.Now().UTC()
}

// ResolvePendingSent finds the newest still-pending message matching
// (from, to, body) and marks it sent, tagging it with the provider id.
// Scanning newest-first lets concurrent identical sends each claim one
// distinct pending row. Returns false if no pending row matched.
func (c *Conversation) ResolvePendingSent(from, to, body, sid string) bool {
	msg := c.newestPending(from, to, body)
	if msg == nil {
		return false
	}
	msg.Status = MessageStatusSent
	msg.ProviderMessageID = sid
	c.LastUpdatedAt = time.Now().UTC()
	return true
}

// ResolvePendingFailed marks the newest still-pending (from, to, body) match
// failed and records the failure description.
func (c *Conversation) ResolvePendingFailed(from, to, body, errMsg string) bool {
	msg := c.newestPending(from, to, body)
	if msg == nil {
		return false
	}
	msg.Status = MessageStatusFailed
	msg.Error = errMsg
	c.LastUpdatedAt = time.Now().UTC()
	return true
}

func (c *Conversation) newestPending(from, to, body string) *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := &c.Messages[i]
		if m.Status == MessageStatusPending && m.From == from && m.To == to && m.Body == body && m.ProviderMessageID == "" {
			return m
		}
	}
	return nil
}

// ApplyStatus applies a mapped gateway status to the message with the given
// provider id. Terminal statuses never regress, and between known statuses
// only the machine's edges are walked, so a late "queued" callback cannot
// move a received message to sent. Unrecognized values pass through so they
// stay visible on the message. Delivered also sets read. Returns true if a
// message actually changed.
func (c *Conversation) ApplyStatus(sid string, status MessageStatus) bool {
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.ProviderMessageID != sid {
			continue
		}
		if m.Status.Terminal() || m.Status == status {
			return false
		}
		if m.Status.Known() && status.Known() && !CanTransition(m.Status, status) {
			return false
		}
		m.Status = status
		if status == MessageStatusDelivered {
			m.Read = true
		}
		c.LastUpdatedAt = time.Now().UTC()
		return true
	}
	return false
}

// MarkReadTo advances every message addressed to one of the given phones and
// currently pending, sent, or received to delivered with read set. Returns
// the number of messages updated.
func (c *Conversation) MarkReadTo(phones map[string]bool) int {
	updated := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if !phones[m.To] {
			continue
		}
		if m.Status != MessageStatusPending && m.Status != MessageStatusSent && m.Status != MessageStatusReceived {
			continue
		}
		m.Status = MessageStatusDelivered
		m.Read = true
		updated++
	}
	if updated > 0 {
		c.LastUpdatedAt = time.Now().UTC()
	}
	return updated
}

// PhonesByRole returns the participant phone set for the given roles.
func (c *Conversation) PhonesByRole(roles ...Role) map[string]bool {
	want := make(map[Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	phones := make(map[string]bool)
	for _, p := range c.Participants {
		if want[p.Role] {
			phones[p.Phone] = true
		}
	}
	return phones
}

// RecentMessages returns up to limit messages created at or after the cutoff,
// preserving chronological order. A zero cutoff disables the age filter.
func (c *Conversation) RecentMessages(limit int, cutoff time.Time) []Message {
	var recent []Message
	for _, m := range c.Messages {
		if !cutoff.IsZero() && m.CreatedAt.Before(cutoff) {
			continue
		}
		recent = append(recent, m)
	}
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return recent
}
