package wager

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrRateLimited     = errors.New("rate limited")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")
	ErrPersistence     = errors.New("persistence error")
	ErrGradingConflict = errors.New("grading conflict")
	ErrIntegrity       = errors.New("integrity error")
	ErrNotFound        = errors.New("not found")
	ErrNotPending      = errors.New("wager is not pending")
)

// ValidationError: entrada com formato/intervalo inválido. Tratado localmente (re-prompt).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RateLimitedError: admissão negada, com tempo até a próxima tentativa
type RateLimitedError struct {
	Class      string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Class, e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// PersistenceError: store indisponível. Operação pode ser repetida.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persistence: " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// GradingConflictError: reavaliação com sinais inconsistentes. Exige reconciliação manual.
type GradingConflictError struct {
	WagerID   int64
	Current   Status
	Attempted Status
	Detail    string
}

func (e *GradingConflictError) Error() string {
	msg := fmt.Sprintf("wager %d already %s, attempted %s", e.WagerID, e.Current, e.Attempted)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *GradingConflictError) Is(target error) bool { return target == ErrGradingConflict }

// IntegrityError: entidade referenciada inexistente
type IntegrityError struct {
	Entity string
	Ref    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s %s does not exist", e.Entity, e.Ref)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
