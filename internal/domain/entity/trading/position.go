package trading

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// avgCostScale is the rounding scale applied when recomputing the
// weighted-average cost after a buy.
const avgCostScale = 6

// PositionKey identifies a position by account and symbol.
type PositionKey struct {
	AccountID int64
	Symbol    string
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%d:%s", k.AccountID, k.Symbol)
}

// Snapshot is an immutable copy of a position's state, safe to hand to
// reporting and persistence while the position keeps mutating.
type Snapshot struct {
	AccountID   int64           `json:"account_id"`
	Symbol      string          `json:"symbol"`
	NetQuantity int64           `json:"net_quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	TotalBought int64           `json:"total_bought"`
	TotalSold   int64           `json:"total_sold"`
}

// Position is the aggregate holding for one (account, symbol) pair. All field
// access goes through its own mutex; the ledger serializes mutations per key
// by delegating to these methods while distinct keys proceed in parallel.
type Position struct {
	accountID int64
	symbol    string

	mu          sync.Mutex
	netQuantity int64
	averageCost decimal.Decimal
	realizedPnL decimal.Decimal
	totalBought int64
	totalSold   int64
}

func NewPosition(accountID int64, symbol string) *Position {
	return &Position{
		accountID:   accountID,
		symbol:      symbol,
		averageCost: decimal.Zero,
		realizedPnL: decimal.Zero,
	}
}

func (p *Position) Key() PositionKey {
	return PositionKey{AccountID: p.accountID, Symbol: p.symbol}
}

// ApplyBuy increases net quantity and recomputes the weighted-average cost as
// (oldAvg*oldQty + price*qty) / (oldQty + qty). It always succeeds for
// structurally valid input.
func (p *Position) ApplyBuy(qty int64, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	totalCost := p.averageCost.Mul(decimal.NewFromInt(p.netQuantity)).
		Add(price.Mul(decimal.NewFromInt(qty)))
	p.netQuantity += qty
	if p.netQuantity == 0 {
		p.averageCost = decimal.Zero
	} else {
		p.averageCost = totalCost.DivRound(decimal.NewFromInt(p.netQuantity), avgCostScale)
	}
	p.totalBought += qty
}

// ApplySell realizes PnL against the current average cost and decrements net
// quantity. The sufficiency check and the mutation run inside one critical
// section, so two concurrent sells can never both pass the check before
// either applies. Returns false with no state change when net quantity is
// insufficient. Which of several racing sells wins is whichever enters the
// critical section first, not submission order.
func (p *Position) ApplySell(qty int64, price decimal.Decimal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.netQuantity < qty {
		return false
	}
	pnl := price.Sub(p.averageCost).Mul(decimal.NewFromInt(qty))
	p.realizedPnL = p.realizedPnL.Add(pnl)
	p.netQuantity -= qty
	p.totalSold += qty
	return true
}

// NetQuantity returns the current holding size.
func (p *Position) NetQuantity() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.netQuantity
}

// Snapshot copies the position's state under its lock.
func (p *Position) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		AccountID:   p.accountID,
		Symbol:      p.symbol,
		NetQuantity: p.netQuantity,
		AverageCost: p.averageCost,
		RealizedPnL: p.realizedPnL,
		TotalBought: p.totalBought,
		TotalSold:   p.totalSold,
	}
}
