// Package domain contains call entities and wire values, without transport or media logic.
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxUserIDLen = 128

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID identifies a call participant, or the relay itself when it equals the configured server id.
type UserID string

// ParseUserID trims and validates an externally supplied participant id.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if len(s) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(s) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(s), nil
}

// NewAnonymousUserID is used by transports that let clients connect without an account.
func NewAnonymousUserID() UserID {
	return UserID(uuid.NewString())
}

// Pair is an unordered participant pair.
type Pair struct {
	A, B UserID
}

func NewPair(a, b UserID) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) Has(u UserID) bool { return p.A == u || p.B == u }
