// README: AI-usage quota types and errors.
package aiusage

import "errors"

// ErrInsufficientTokens is returned when a user has no tokens remaining for the current month.
var ErrInsufficientTokens = errors.New("insufficient tokens")

// ErrInvalidUser is returned for a user id that fails ValidUID.
var ErrInvalidUser = errors.New("invalid user id")

// DefaultTokens is the number of flow invocations granted per month.
const DefaultTokens = 100

// Usage is a user's quota for the current month.
type Usage struct {
	UID             string `json:"uid"`
	TokensRemaining int    `json:"tokens_remaining"`
	Month           string `json:"month"`
}
