package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

// ClientRepository is the PostgreSQL client lookup.
type ClientRepository struct {
	DB *sql.DB
}

// GetByPhone fetches a client by phone
func (r *ClientRepository) GetByPhone(ctx context.Context, phone string) (*model.Client, error) {
	query := `SELECT phone, opt_in FROM clients WHERE phone = $1`

	var c model.Client
	if err := r.DB.QueryRowContext(ctx, query, phone).Scan(&c.Phone, &c.OptIn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, appErrors.Store("get client", err)
	}
	return &c, nil
}

// ListOptedIn fetches every client that consented to campaign messages
func (r *ClientRepository) ListOptedIn(ctx context.Context) ([]model.Client, error) {
	query := `SELECT phone, opt_in FROM clients WHERE opt_in = TRUE ORDER BY phone`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, appErrors.Store("list clients", err)
	}
	defer rows.Close()

	clients := []model.Client{}
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.Phone, &c.OptIn); err != nil {
			return nil, appErrors.Store("list clients", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Store("list clients", err)
	}
	return clients, nil
}

func (r *ClientRepository) Upsert(ctx context.Context, c *model.Client) error {
	query := `INSERT INTO clients (phone, opt_in) VALUES ($1, $2)
        ON CONFLICT (phone) DO UPDATE SET opt_in = EXCLUDED.opt_in`
	if _, err := r.DB.ExecContext(ctx, query, c.Phone, c.OptIn); err != nil {
		return appErrors.Store("upsert client", err)
	}
	return nil
}

var _ ClientRepositoryInterface = (*ClientRepository)(nil)
