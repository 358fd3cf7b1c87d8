package validation

import (
	"fmt"
	"strings"

	trading "main/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
)

// Result carries the verdict of structural validation. A trade passes only
// when no violations were found.
type Result struct {
	Violations []string
}

func (r Result) OK() bool {
	return len(r.Violations) == 0
}

// Summary joins the violations for reporting.
func (r Result) Summary() string {
	return strings.Join(r.Violations, "; ")
}

// Validate checks a trade for structural well-formedness. Every rule is
// evaluated, not short-circuited, so a single verdict reports all problems at
// once. It consults no shared state and is safe from any number of workers.
func Validate(trade *trading.Trade) Result {
	var violations []string

	if trade.Quantity <= 0 {
		violations = append(violations,
			fmt.Sprintf("quantity must be positive (got %d)", trade.Quantity))
	}
	if trade.Price.LessThanOrEqual(decimal.Zero) {
		violations = append(violations,
			fmt.Sprintf("price must be positive (got %s)", trade.Price))
	}
	if strings.TrimSpace(trade.Symbol) == "" {
		violations = append(violations, "symbol must not be blank")
	}
	if trade.Side != trading.SideBuy && trade.Side != trading.SideSell {
		violations = append(violations, "side must be BUY or SELL")
	}
	if trade.AccountID <= 0 {
		violations = append(violations,
			fmt.Sprintf("account id must be positive (got %d)", trade.AccountID))
	}
	if trade.Timestamp.IsZero() {
		violations = append(violations, "timestamp must be set")
	}

	return Result{Violations: violations}
}
