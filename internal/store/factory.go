package store

import "github.com/jackc/pgx/v5/pgxpool"

type Stores struct {
	pool *pgxpool.Pool
}

func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{pool: pool}
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.pool)
}

func (s *Stores) UnassignedMessages() UnassignedMessageStore {
	return newUnassignedMessageStore(s.pool)
}

func (s *Stores) Mechanics() MechanicStore {
	return newMechanicStore(s.pool)
}

func (s *Stores) Tickets() TicketStore {
	return newTicketStore(s.pool)
}
