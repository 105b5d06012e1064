package services

const (
	KeyRoundCounter  = "lottery:id_counter"
	KeyRound         = "round:%d"
	KeyRoundPlayers  = "round:%d:players"
	KeyDrawRequest   = "drawreq:%s"
	KeyDrawFulfilled = "draws:fulfilled"
	KeyDrawInflight  = "draw:inflight"
	KeyDrawResult    = "drawresult:%d"
	KeyPayout        = "payout:%d"
	KeyPayoutIndex   = "payouts:index"
	KeyWallet        = "wallet:%s"
	KeyEventSeq      = "events:seq"
	KeyEventLog      = "events:%s"
	KeyTreasury      = "config:treasury"
	KeyRateLimit     = "ratelimit:%s:%s"

	DefaultRateLimitJoins = 30 // max 30 joins per minute per participant
	DefaultHistoryLimit   = 50
	MaxHistoryLimit       = 100
)
