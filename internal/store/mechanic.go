package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall.app/dispatch/internal/model"
)

type mechanicStore struct {
	pool *pgxpool.Pool
}

func newMechanicStore(pool *pgxpool.Pool) MechanicStore {
	return &mechanicStore{pool: pool}
}

func (s *mechanicStore) GetByID(ctx context.Context, id int64) (*model.Mechanic, error) {
	return s.get(ctx, "SELECT id, name, phone FROM mechanics WHERE id = $1", id)
}

func (s *mechanicStore) GetByPhone(ctx context.Context, phone string) (*model.Mechanic, error) {
	return s.get(ctx, "SELECT id, name, phone FROM mechanics WHERE phone = $1 LIMIT 1", phone)
}

func (s *mechanicStore) get(ctx context.Context, query string, arg any) (*model.Mechanic, error) {
	var m model.Mechanic
	err := s.pool.QueryRow(ctx, query, arg).Scan(&m.ID, &m.Name, &m.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
