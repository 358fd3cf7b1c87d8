package trading

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a trade request.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status is the lifecycle state of a trade. A trade starts pending and moves
// exactly once to accepted or rejected; terminal states are final.
type Status int32

const (
	StatusPending Status = iota
	StatusAccepted
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "PENDING"
	}
}

// Trade models a single trade request from the batch input. The request
// fields are fixed at construction; only the status cell changes. Each trade
// is owned by exactly one worker during processing.
type Trade struct {
	ID        int64
	AccountID int64
	Symbol    string
	Quantity  int64
	Price     decimal.Decimal
	Side      Side
	Timestamp time.Time

	status atomic.Int32
	reason string
}

// Status returns the current lifecycle state.
func (t *Trade) Status() Status {
	return Status(t.status.Load())
}

// Reason returns the rejection reason, empty unless the trade is rejected.
func (t *Trade) Reason() string {
	if t.Status() != StatusRejected {
		return ""
	}
	return t.reason
}

// Accept marks the trade accepted. Returns false if the trade already reached
// a terminal state.
func (t *Trade) Accept() bool {
	return t.status.CompareAndSwap(int32(StatusPending), int32(StatusAccepted))
}

// Reject marks the trade rejected with a reason. Returns false if the trade
// already reached a terminal state, in which case the existing reason is
// preserved.
func (t *Trade) Reject(reason string) bool {
	if !t.status.CompareAndSwap(int32(StatusPending), int32(StatusRejected)) {
		return false
	}
	t.reason = reason
	return true
}

// Notional is the quantity-weighted value of the trade.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

func (t *Trade) String() string {
	return fmt.Sprintf("Trade{id=%d, acct=%d, %s %d %s @ %s [%s]}",
		t.ID, t.AccountID, t.Side, t.Quantity, t.Symbol, t.Price, t.Status())
}
