package models

type EventName string

const (
	EventRoundEntered  EventName = "RoundEntered"
	EventDrawRequested EventName = "DrawRequested"
	EventWinnerPaid    EventName = "WinnerPaid"
)

// Event is a fire-and-forget notification. Consumers treat the ledger as
// the source of truth and events as hints to re-query; the sequenced event
// log in Redis backs the paginated history scans.
type Event struct {
	Seq       uint64                 `json:"seq"`
	Name      EventName              `json:"name"`
	RoundID   uint64                 `json:"round_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}

func NewRoundEntered(roundID uint64, participant string, newPot int64) *Event {
	return &Event{
		Name:    EventRoundEntered,
		RoundID: roundID,
		Data: map[string]interface{}{
			"participant": participant,
			"new_pot":     newPot,
		},
	}
}

func NewDrawRequested(roundID uint64, correlationID string) *Event {
	return &Event{
		Name:    EventDrawRequested,
		RoundID: roundID,
		Data: map[string]interface{}{
			"correlation_id": correlationID,
		},
	}
}

func NewWinnerPaid(rec *PayoutRecord) *Event {
	return &Event{
		Name:    EventWinnerPaid,
		RoundID: rec.RoundID,
		Data: map[string]interface{}{
			"winner":        rec.WinnerAddress,
			"winner_payout": rec.WinnerPayout,
			"treasury_fee":  rec.TreasuryFee,
			"total_pot":     rec.TotalPot,
		},
	}
}
