package models

type RoundStatus string

const (
	RoundStatusNotStarted RoundStatus = "not_started"
	RoundStatusOpen       RoundStatus = "open"
	RoundStatusClosed     RoundStatus = "closed"
	RoundStatusDrawing    RoundStatus = "drawing"
	RoundStatusResolved   RoundStatus = "resolved"
)

// statusRank orders statuses so transitions can only move forward.
var statusRank = map[RoundStatus]int{
	RoundStatusNotStarted: 0,
	RoundStatusOpen:       1,
	RoundStatusClosed:     2,
	RoundStatusDrawing:    3,
	RoundStatusResolved:   4,
}

// Round is one lottery instance. Players live in a separate Redis list and
// are stitched in on reads, so the JSON document never carries them.
type Round struct {
	ID        uint64 `json:"id" redis:"id"`
	EntryFee  int64  `json:"entry_fee" redis:"entry_fee"`
	StartTime int64  `json:"start_time" redis:"start_time"`
	EndTime   int64  `json:"end_time" redis:"end_time"`
	TotalPot  int64  `json:"total_pot" redis:"total_pot"`

	Status        RoundStatus `json:"status" redis:"status"`
	Winner        string      `json:"winner,omitempty" redis:"winner"`
	RandomValue   string      `json:"random_value,omitempty" redis:"random_value"`
	CorrelationID string      `json:"correlation_id,omitempty" redis:"correlation_id"`

	Players []string `json:"players,omitempty" redis:"-"`

	CreatedAt int64 `json:"created_at" redis:"created_at"`
	UpdatedAt int64 `json:"updated_at" redis:"updated_at"`
}

// EffectiveStatus derives the time-implied status at the given instant.
// NOT_STARTED/OPEN/CLOSED boundaries are never cached; DRAWING and RESOLVED
// are explicit states and always win over the clock.
func (r *Round) EffectiveStatus(now int64) RoundStatus {
	switch r.Status {
	case RoundStatusDrawing, RoundStatusResolved:
		return r.Status
	}
	if now < r.StartTime {
		return RoundStatusNotStarted
	}
	if now < r.EndTime {
		return RoundStatusOpen
	}
	return RoundStatusClosed
}

// Joinable reports whether a join at the given instant is allowed.
func (r *Round) Joinable(now int64) bool {
	return r.EffectiveStatus(now) == RoundStatusOpen
}

// ValidTransition reports whether moving between two statuses is a legal
// step in the round lifecycle. cancelDraw is the one sanctioned rollback.
func ValidTransition(from, to RoundStatus) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == RoundStatusDrawing && to == RoundStatusClosed {
		return true
	}
	return tr == fr+1
}
