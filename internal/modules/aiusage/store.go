// README: Postgres persistence for monthly per-user AI token quotas.
package aiusage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store handles ai_usage persistence.
type Store struct {
	db        *pgxpool.Pool
	allowance int
	now       func() time.Time
}

// NewStore returns a Store backed by the given connection pool. A non-positive allowance means DefaultTokens.
func NewStore(db *pgxpool.Pool, allowance int) *Store {
	if allowance <= 0 {
		allowance = DefaultTokens
	}
	return &Store{db: db, allowance: allowance, now: time.Now}
}

func (s *Store) month() string { return s.now().Format("2006-01") }

// UseToken atomically checks the monthly quota and deducts one token.
// It resets the counter to the allowance when last_reset_month is behind the current month.
// Returns ErrInsufficientTokens when 0 rows are updated (quota exhausted or user absent).
func (s *Store) UseToken(ctx context.Context, uid string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE ai_usage SET
			tokens_remaining = CASE WHEN last_reset_month != $1 THEN $2 - 1 ELSE tokens_remaining - 1 END,
			last_reset_month = $1
		WHERE uid = $3 AND (last_reset_month < $1 OR tokens_remaining > 0)
	`, s.month(), s.allowance, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientTokens
	}
	return nil
}

// Refund returns one token consumed in the current month, never above the allowance.
func (s *Store) Refund(ctx context.Context, uid string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ai_usage SET tokens_remaining = tokens_remaining + 1
		WHERE uid = $1 AND last_reset_month = $2 AND tokens_remaining < $3
	`, uid, s.month(), s.allowance)
	return err
}

// EnsureUser inserts a new ai_usage row for uid with the default token allowance.
// If the row already exists the insert is silently skipped (ON CONFLICT DO NOTHING).
func (s *Store) EnsureUser(ctx context.Context, uid string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_usage (uid, tokens_remaining, last_reset_month)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO NOTHING
	`, uid, s.allowance, s.month())
	return err
}

// Get reports the quota as it stands this month. Unknown users and stale months read as a full allowance.
func (s *Store) Get(ctx context.Context, uid string) (Usage, error) {
	month := s.month()
	u := Usage{UID: uid, TokensRemaining: s.allowance, Month: month}

	var remaining int
	var last string
	err := s.db.QueryRow(ctx, `SELECT tokens_remaining, last_reset_month FROM ai_usage WHERE uid = $1`, uid).Scan(&remaining, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return Usage{}, err
	}
	if last == month {
		u.TokensRemaining = remaining
	}
	return u, nil
}
