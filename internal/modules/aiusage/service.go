// README: AI-usage service. Spends one quota token per flow invocation.
package aiusage

import (
	"context"
	"errors"
)

type store interface {
	UseToken(ctx context.Context, uid string) error
	EnsureUser(ctx context.Context, uid string) error
	Refund(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string) (Usage, error)
}

// Service orchestrates AI token-usage logic.
type Service struct {
	store store
}

// NewService creates a Service backed by the given Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// ValidUID accepts 1-64 characters of letters, digits, '-' and '_'. Every surface that takes a
// caller id checks it with this rule.
func ValidUID(uid string) bool {
	if uid == "" || len(uid) > 64 {
		return false
	}
	for _, c := range uid {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// UseToken deducts one token from the user's monthly allowance.
// If the user row does not exist yet it is initialised and the token is immediately consumed.
// Returns ErrInsufficientTokens when the quota for the current month is exhausted.
func (s *Service) UseToken(ctx context.Context, uid string) error {
	if !ValidUID(uid) {
		return ErrInvalidUser
	}
	err := s.store.UseToken(ctx, uid)
	if !errors.Is(err, ErrInsufficientTokens) {
		return err
	}

	// Row may be missing: try to create it, then retry the deduction once.
	if initErr := s.store.EnsureUser(ctx, uid); initErr != nil {
		return initErr
	}
	return s.store.UseToken(ctx, uid)
}

// Refund gives back a token for an invocation that failed before reaching the model.
func (s *Service) Refund(ctx context.Context, uid string) error {
	if !ValidUID(uid) {
		return ErrInvalidUser
	}
	return s.store.Refund(ctx, uid)
}

// Usage reports the user's remaining quota for this month.
func (s *Service) Usage(ctx context.Context, uid string) (Usage, error) {
	if !ValidUID(uid) {
		return Usage{}, ErrInvalidUser
	}
	return s.store.Get(ctx, uid)
}
