// Package repository defines the storage contracts for tokens, seats and
// points together with their MySQL and Redis implementations.  The sentinel
// errors below are shared by every implementation so that services can tell
// storage outcomes apart without knowing the backend.
package repository

import "errors"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by compare-and-set writes when the stored
// record changed since it was read.  Callers re-read and re-evaluate.
var ErrVersionConflict = errors.New("version conflict")

// ErrLiveTokenExists is returned when a user already owns a WAITING or
// ACTIVE token.
var ErrLiveTokenExists = errors.New("live token exists")

// ErrInsufficientBalance is returned when a point debit would go negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrLockHeld is returned when another process owns the advance lock.
var ErrLockHeld = errors.New("lock held")
