package broker

import "time"

// OutcomeMessage is the envelope published to the outcomes exchange for each
// processed trade.
type OutcomeMessage struct {
	RunID       string           `json:"run_id"`
	TradeID     int64            `json:"trade_id"`
	AccountID   int64            `json:"account_id"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	Quantity    int64            `json:"quantity"`
	Price       string           `json:"price"`
	Status      string           `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	Position    *PositionMessage `json:"position,omitempty"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// PositionMessage mirrors the ledger snapshot that resulted from the trade.
// Absent for trades that applied no mutation.
type PositionMessage struct {
	NetQuantity int64  `json:"net_quantity"`
	AverageCost string `json:"average_cost"`
	RealizedPnL string `json:"realized_pnl"`
}
