package models

import "errors"

// Typed failure reasons returned by the round state machine and ledger.
// Callers match with errors.Is; handlers map them to HTTP status codes.
var (
	ErrInvalidParameters   = errors.New("invalid round parameters")
	ErrRoundNotFound       = errors.New("round not found")
	ErrRoundNotJoinable    = errors.New("round not joinable")
	ErrWrongFee            = errors.New("entry fee mismatch")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnauthorized        = errors.New("caller is not the operator")
	ErrNoPlayers           = errors.New("round has no players")
	ErrUnknownCorrelation  = errors.New("unknown correlation id")
	ErrAlreadyFulfilled    = errors.New("correlation id already fulfilled")
	ErrDuplicatePayout     = errors.New("payout already recorded for round")
	ErrTransferFailed      = errors.New("fund transfer failed")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrDrawInFlight        = errors.New("another draw is in flight")
)
