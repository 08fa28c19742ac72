package service

import "errors"

// Admission failures.
var (
	ErrDuplicateActiveSession = errors.New("user already holds an active token")
	ErrTokenNotFound          = errors.New("token not found")
	ErrTokenOwnerMismatch     = errors.New("token belongs to another user")
	ErrTokenNotActive         = errors.New("token is not active")
	ErrTokenExpired           = errors.New("token expired")
)

// Reservation failures.
var (
	ErrTimeslotNotFound  = errors.New("timeslot not found")
	ErrSeatNotFound      = errors.New("seat not found")
	ErrSeatUnavailable   = errors.New("seat is not available")
	ErrSeatNotHeldByUser = errors.New("seat is not held by user")
	ErrHoldExpired       = errors.New("seat hold expired")
	ErrSeatAlreadySold   = errors.New("seat already sold")
	ErrInsufficientPoint = errors.New("insufficient point balance")
)

// Input validation failures.
var (
	ErrInvalidUserID = errors.New("user id must be positive")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// errContention is returned when a record kept changing under every retry.
var errContention = errors.New("record changed concurrently, retry later")
