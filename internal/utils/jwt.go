package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidQueueToken = errors.New("invalid queue token")

// QueueClaims is the payload of a signed queue credential.  The token id is
// carried as jti and the owning user as sub.
type QueueClaims struct {
	jwt.RegisteredClaims
}

// SignQueueToken builds an HS256 JWT naming tokenID and its owner.  The
// credential only identifies the token; admission is still decided by the
// queue on every request.
func SignQueueToken(secret, tokenID string, userID int64, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := QueueClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseQueueToken verifies raw and returns the token id and owner it names.
func ParseQueueToken(secret, raw string) (string, int64, error) {
	var claims QueueClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidQueueToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", 0, ErrInvalidQueueToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.ID == "" {
		return "", 0, ErrInvalidQueueToken
	}
	return claims.ID, userID, nil
}
