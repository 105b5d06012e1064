package models

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateCorrelationID issues the opaque token that links a randomness
// request to its eventual fulfillment.
func GenerateCorrelationID() string {
	return fmt.Sprintf("draw_%s", uuid.New().String())
}

// WinnerIndex picks the winning slot deterministically from the oracle's
// random value. Duplicate joins occupy multiple slots, increasing odds.
func WinnerIndex(randomValue uint64, playerCount int) int {
	return int(randomValue % uint64(playerCount))
}

// SplitPot divides a pot into the treasury fee (basis points, rounded down)
// and the winner's remainder. The two shares always sum to the pot.
func SplitPot(totalPot int64, treasuryFeeBps int64) (winnerPayout, treasuryFee int64) {
	treasuryFee = totalPot * treasuryFeeBps / 10000
	winnerPayout = totalPot - treasuryFee
	return winnerPayout, treasuryFee
}

func NewWallet(address string, startingBalance, now int64) *Wallet {
	return &Wallet{
		Address:   address,
		Balance:   startingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func FormatCurrency(units int64) string {
	return fmt.Sprintf("%d.%02d OMG", units/100, units%100)
}
