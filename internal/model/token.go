package model

import "time"

// TokenStatus is the admission state of a queue token.
type TokenStatus string

const (
	TokenWaiting TokenStatus = "WAITING"
	TokenActive  TokenStatus = "ACTIVE"
	TokenExpired TokenStatus = "EXPIRED"
)

// Token is an admission ticket for the reservation APIs.
//
// Fields:
//
//	ID          – opaque unique identifier (uuid).
//	UserID      – owner of the token.
//	Status      – WAITING, ACTIVE or EXPIRED.
//	Position    – sequential place in line, assigned on issue.
//	IssuedAt    – creation time.
//	ActivatedAt – time of promotion to ACTIVE; zero while WAITING.
type Token struct {
	ID          string      `json:"id"`
	UserID      int64       `json:"user_id"`
	Status      TokenStatus `json:"status"`
	Position    int64       `json:"position"`
	IssuedAt    time.Time   `json:"issued_at"`
	ActivatedAt time.Time   `json:"activated_at,omitzero"`
}

// Live reports whether the token still occupies its owner's single slot.
func (t Token) Live() bool {
	return t.Status == TokenWaiting || t.Status == TokenActive
}

// ActiveUntil returns the instant an ACTIVE token lapses given its lifetime.
func (t Token) ActiveUntil(ttl time.Duration) time.Time {
	return t.ActivatedAt.Add(ttl)
}
