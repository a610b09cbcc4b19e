package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter with a sliding failure window and lockout.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration

	now func() time.Time
}

var _ Limiter = (*PG)(nil)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a limiter: maxFails rejections inside window block the
// sender for blockFor.
func NewPG(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

const (
	selectBlockedSQL = `SELECT blocked_until FROM request_limiter WHERE sender = $1`
	resetSQL         = `INSERT INTO request_limiter (sender, fail_count, blocked_until, updated_at) VALUES ($1, 0, 'epoch', now()) ON CONFLICT (sender) DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`
	failSQL          = `INSERT INTO request_limiter (sender, fail_count, blocked_until, updated_at) VALUES ($1, 1, 'epoch', now()) ON CONFLICT (sender) DO UPDATE SET fail_count = CASE WHEN now() - request_limiter.updated_at > $2::interval THEN 1 ELSE request_limiter.fail_count + 1 END, updated_at = now() RETURNING fail_count`
	blockSQL         = `UPDATE request_limiter SET blocked_until = $2 WHERE sender = $1`
)

// Allow reports whether sender is currently unblocked.
func (l *PG) Allow(ctx context.Context, sender string) (bool, time.Duration, error) {
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, selectBlockedSQL, sender).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for sender.
func (l *PG) Success(ctx context.Context, sender string) error {
	_, err := l.pool.Exec(ctx, resetSQL, sender)
	return err
}

// Failure counts a rejection and blocks sender once the threshold is reached.
func (l *PG) Failure(ctx context.Context, sender string) (bool, time.Duration, error) {
	var fails int
	if err := l.pool.QueryRow(ctx, failSQL, sender, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	if _, err := l.pool.Exec(ctx, blockSQL, sender, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
