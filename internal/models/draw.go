package models

// DrawRequest correlates an in-flight randomness request to a round.
// At most one live DrawRequest exists per round, and at most one exists
// globally (draws are serialized).
type DrawRequest struct {
	CorrelationID string `json:"correlation_id" redis:"correlation_id"`
	RoundID       uint64 `json:"round_id" redis:"round_id"`
	IssuedAt      int64  `json:"issued_at" redis:"issued_at"`
}

// DrawResult pins the consumed fulfillment before settlement runs. If the
// fund transfer fails the round stays in DRAWING and the operator retries
// settlement from this record; the correlation id is already spent, so a
// duplicate callback cannot produce a second result.
type DrawResult struct {
	RoundID       uint64 `json:"round_id" redis:"round_id"`
	CorrelationID string `json:"correlation_id" redis:"correlation_id"`
	RandomValue   uint64 `json:"random_value" redis:"random_value"`
	Winner        string `json:"winner" redis:"winner"`
	FulfilledAt   int64  `json:"fulfilled_at" redis:"fulfilled_at"`
}

// PayoutRecord is the append-only audit entry written once per resolved
// round. It is the authoritative source for history queries.
type PayoutRecord struct {
	RoundID       uint64 `json:"round_id" redis:"round_id"`
	WinnerAddress string `json:"winner_address" redis:"winner_address"`
	WinnerPayout  int64  `json:"winner_payout" redis:"winner_payout"`
	TreasuryFee   int64  `json:"treasury_fee" redis:"treasury_fee"`
	TotalPot      int64  `json:"total_pot" redis:"total_pot"`
	ResolvedAt    int64  `json:"resolved_at" redis:"resolved_at"`
}

type CreateLotteryRequest struct {
	EntryFee  int64 `json:"entry_fee" binding:"required"`
	StartTime int64 `json:"start_time" binding:"required"`
	EndTime   int64 `json:"end_time" binding:"required"`
}

func (r *CreateLotteryRequest) Validate() error {
	if r.EntryFee <= 0 {
		return ErrInvalidParameters
	}
	if r.StartTime >= r.EndTime {
		return ErrInvalidParameters
	}
	return nil
}

type JoinLotteryRequest struct {
	// FeePaid mirrors the payable join: it must equal the round's entry fee
	// exactly, anything else is rejected with WrongFee. No binding tag so a
	// zero fee reaches the ledger and gets the typed rejection.
	FeePaid int64 `json:"fee_paid"`
}

type FulfillRequest struct {
	CorrelationID string `json:"correlation_id" binding:"required"`
	RandomValue   uint64 `json:"random_value"`
}

type SetTreasuryRequest struct {
	Address string `json:"address" binding:"required"`
}

type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}
