package models

// Wallet holds a participant's custodial balance in the smallest unit.
// Joining a round debits the wallet by exactly the entry fee; settlement
// credits the winner and treasury wallets.
type Wallet struct {
	Address     string `json:"address" redis:"address"`
	Balance     int64  `json:"balance" redis:"balance"`
	TotalStaked int64  `json:"total_staked" redis:"total_staked"`
	TotalWon    int64  `json:"total_won" redis:"total_won"`
	CreatedAt   int64  `json:"created_at" redis:"created_at"`
	UpdatedAt   int64  `json:"updated_at" redis:"updated_at"`
}

type BalanceResponse struct {
	Address     string `json:"address"`
	Balance     int64  `json:"balance"`
	TotalStaked int64  `json:"total_staked"`
	TotalWon    int64  `json:"total_won"`
}
