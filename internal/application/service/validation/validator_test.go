package validation

import (
	"strings"
	"testing"
	"time"

	trading "main/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrade() *trading.Trade {
	return &trading.Trade{
		ID:        1,
		AccountID: 42,
		Symbol:    "AAPL",
		Quantity:  10,
		Price:     decimal.NewFromFloat(187.5),
		Side:      trading.SideBuy,
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestValidateAcceptsWellFormedTrade(t *testing.T) {
	res := Validate(validTrade())
	assert.True(t, res.OK())
	assert.Empty(t, res.Violations)
}

func TestValidateSingleRuleViolations(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*trading.Trade)
		message string
	}{
		{"zero quantity", func(tr *trading.Trade) { tr.Quantity = 0 }, "quantity must be positive"},
		{"negative quantity", func(tr *trading.Trade) { tr.Quantity = -3 }, "quantity must be positive"},
		{"zero price", func(tr *trading.Trade) { tr.Price = decimal.Zero }, "price must be positive"},
		{"negative price", func(tr *trading.Trade) { tr.Price = decimal.NewFromInt(-1) }, "price must be positive"},
		{"blank symbol", func(tr *trading.Trade) { tr.Symbol = "   " }, "symbol must not be blank"},
		{"unknown side", func(tr *trading.Trade) { tr.Side = "HOLD" }, "side must be BUY or SELL"},
		{"zero account", func(tr *trading.Trade) { tr.AccountID = 0 }, "account id must be positive"},
		{"missing timestamp", func(tr *trading.Trade) { tr.Timestamp = time.Time{} }, "timestamp must be set"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := validTrade()
			tc.mutate(trade)

			res := Validate(trade)
			require.False(t, res.OK())
			require.Len(t, res.Violations, 1)
			assert.Contains(t, res.Violations[0], tc.message)
		})
	}
}

func TestValidateReportsAllViolationsTogether(t *testing.T) {
	trade := &trading.Trade{}
	res := Validate(trade)

	require.False(t, res.OK())
	assert.Len(t, res.Violations, 6)
	assert.Equal(t, strings.Join(res.Violations, "; "), res.Summary())
}
