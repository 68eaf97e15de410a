package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the durable ledger. Reservations are rows, so a restart
// never loses a hold, and settlement is guarded by row locks.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS credit_balances (
			owner TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
		);`,
		`CREATE TABLE IF NOT EXISTS credit_reservations (
			token UUID PRIMARY KEY,
			owner TEXT NOT NULL,
			amount BIGINT NOT NULL,
			committed BIGINT NOT NULL DEFAULT 0,
			refunded BIGINT NOT NULL DEFAULT 0,
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}
	for _, q := range queries {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("ledger migration failed: %w", err)
		}
	}
	return nil
}

// Credit grants n credits to the owner.
func (p *Postgres) Credit(ctx context.Context, owner string, n int) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO credit_balances (owner, balance) VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET balance = credit_balances.balance + $2
	`, owner, n)
	return err
}

func (p *Postgres) Reserve(ctx context.Context, owner string, n int) (Token, error) {
	if n <= 0 {
		return "", fmt.Errorf("reserve amount must be positive, got %d", n)
	}

	token := Token(uuid.New().String())
	err := withRetry(ctx, func() error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		// Conditional debit is the atomicity point: zero rows means the
		// balance was too low.
		tag, err := tx.Exec(ctx, `
			UPDATE credit_balances SET balance = balance - $2
			WHERE owner = $1 AND balance >= $2
		`, owner, n)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("owner %s cannot hold %d credits: %w", owner, n, ErrInsufficientCredits)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO credit_reservations (token, owner, amount) VALUES ($1, $2, $3)
		`, string(token), owner, n); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (p *Postgres) Commit(ctx context.Context, token Token, nUsed int) error {
	return p.settle(ctx, token, func(amount int) (committed, refunded int, err error) {
		if nUsed < 0 || nUsed > amount {
			return 0, 0, fmt.Errorf("commit of %d outside reservation of %d", nUsed, amount)
		}
		return nUsed, amount - nUsed, nil
	})
}

func (p *Postgres) Refund(ctx context.Context, token Token, nUnused int) error {
	return p.settle(ctx, token, func(amount int) (committed, refunded int, err error) {
		if nUnused < 0 || nUnused > amount {
			return 0, 0, fmt.Errorf("refund of %d outside reservation of %d", nUnused, amount)
		}
		return amount - nUnused, nUnused, nil
	})
}

// settle finalizes a reservation exactly once under a row lock. A second
// call for the same token sees settled=TRUE and returns nil.
func (p *Postgres) settle(ctx context.Context, token Token, split func(amount int) (int, int, error)) error {
	return withRetry(ctx, func() error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var amount int
		var settled bool
		var owner string
		err = tx.QueryRow(ctx, `
			SELECT owner, amount, settled FROM credit_reservations
			WHERE token = $1 FOR UPDATE
		`, string(token)).Scan(&owner, &amount, &settled)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUnknownReservation
		}
		if err != nil {
			return err
		}
		if settled {
			return tx.Commit(ctx)
		}

		committed, refunded, err := split(amount)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE credit_reservations
			SET committed = $2, refunded = $3, settled = TRUE
			WHERE token = $1
		`, string(token), committed, refunded); err != nil {
			return err
		}
		if refunded > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE credit_balances SET balance = balance + $2 WHERE owner = $1
			`, owner, refunded); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
}
