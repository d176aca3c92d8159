package models

import "time"

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Bet statuses
const (
	BetPending = "pending"
	BetWon     = "won"
	BetLost    = "lost"
)

// User represents a registered user
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // "user" or "admin"
	Balance      float64   `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event represents a wagering market over a fixed set of outcomes
type Event struct {
	ID           int                `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Options      []string           `json:"options"`
	SeedPool     map[string]float64 `json:"seed_pool"`
	FeePercent   float64            `json:"fee_percent"`
	IsActive     bool               `json:"is_active"`
	ResultOption *string            `json:"result_option,omitempty"`
	ResultCoeff  *float64           `json:"result_coeff,omitempty"`
	ClosedAt     *time.Time         `json:"closed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Bet represents a single wager against an event
type Bet struct {
	ID                int       `json:"id"`
	UserID            int       `json:"user_id"`
	EventID           int       `json:"event_id"`
	Option            string    `json:"option"`
	Amount            float64   `json:"amount"`
	CoeffSnapshot     float64   `json:"coeff_snapshot"` // indicative odds at placement, not authoritative
	PayoutCoefficient *float64  `json:"payout_coefficient,omitempty"`
	WinAmount         *float64  `json:"win_amount,omitempty"`
	Status            string    `json:"status"` // "pending", "won", "lost"
	CreatedAt         time.Time `json:"created_at"`
}

// OddsView is a read-only snapshot of an event's pools and coefficients
type OddsView struct {
	EventID      int                `json:"event_id"`
	IsActive     bool               `json:"is_active"`
	Pools        map[string]float64 `json:"pools"`
	TotalPool    float64            `json:"total_pool"`
	Coefficients map[string]float64 `json:"coefficients"`
	FeePercent   float64            `json:"fee_percent"`
}

// BetResult is the terminal outcome of one bet after settlement
type BetResult struct {
	BetID     int     `json:"bet_id"`
	UserID    int     `json:"user_id"`
	Username  string  `json:"username"`
	Option    string  `json:"option"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	WinAmount float64 `json:"win_amount"`
}

// SettlementReport summarizes one settled event for the notification layer
type SettlementReport struct {
	EventID       int                `json:"event_id"`
	EventTitle    string             `json:"event_title"`
	WinningOption string             `json:"winning_option"`
	FinalCoeff    float64            `json:"final_coeff"`
	TotalPool     float64            `json:"total_pool"`
	Commission    float64            `json:"commission_amount"`
	Pools         map[string]float64 `json:"pools"`
	Results       []BetResult        `json:"results"`
}
