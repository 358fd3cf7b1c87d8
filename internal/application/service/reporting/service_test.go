package reporting

import (
	"bytes"
	"testing"
	"time"

	execution "main/internal/application/service/execution"
	portfolio "main/internal/application/service/portfolio"
	trading "main/internal/domain/entity/trading"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildScenario(t *testing.T) ([]*trading.Trade, *portfolio.Service) {
	t.Helper()
	ledger := portfolio.NewService()

	buy := &trading.Trade{
		ID: 1, AccountID: 100, Symbol: "AAPL", Quantity: 50,
		Price: decimal.NewFromFloat(185.50), Side: trading.SideBuy,
		Timestamp: time.Now(),
	}
	ledger.ApplyBuy(buy.AccountID, buy.Symbol, buy.Quantity, buy.Price)
	require.True(t, buy.Accept())

	sell := &trading.Trade{
		ID: 2, AccountID: 100, Symbol: "AAPL", Quantity: 20,
		Price: decimal.NewFromFloat(190.00), Side: trading.SideSell,
		Timestamp: time.Now(),
	}
	_, ok := ledger.ApplySell(sell.AccountID, sell.Symbol, sell.Quantity, sell.Price)
	require.True(t, ok)
	require.True(t, sell.Accept())

	oversell := &trading.Trade{
		ID: 3, AccountID: 200, Symbol: "MSFT", Quantity: 10,
		Price: decimal.NewFromFloat(300.00), Side: trading.SideSell,
		Timestamp: time.Now(),
	}
	require.True(t, oversell.Reject("insufficient position: account=200 symbol=MSFT requested=10 available=0"))

	return []*trading.Trade{buy, sell, oversell}, ledger
}

func TestWriteAllRendersEverySection(t *testing.T) {
	trades, ledger := buildScenario(t)
	result := execution.Result{
		RunID:       uuid.New(),
		TotalTrades: 3,
		Completed:   3,
		Accepted:    2,
		Rejected:    1,
		Elapsed:     120 * time.Millisecond,
	}

	var buf bytes.Buffer
	NewService(&buf).WriteAll(trades, ledger, result)
	out := buf.String()

	assert.Contains(t, out, "PROCESSING SUMMARY")
	assert.Contains(t, out, "TRADE STATUS REPORT")
	assert.Contains(t, out, "PORTFOLIO POSITIONS REPORT")
	assert.Contains(t, out, "SYMBOL ACTIVITY REPORT")
	assert.Contains(t, out, "TOP ACCOUNTS BY TOTAL NOTIONAL VALUE")
	assert.Contains(t, out, "REJECTED TRADES LOG  (1 rejected)")

	// Buy notional 50*185.50, sell notional 20*190.00.
	assert.Contains(t, out, "9275.00")
	assert.Contains(t, out, "3800.00")
	// Realized PnL (190 - 185.50) * 20.
	assert.Contains(t, out, "+90.00")
	assert.Contains(t, out, "insufficient position")
}

func TestWriteAllNoRejections(t *testing.T) {
	buy := &trading.Trade{
		ID: 1, AccountID: 1, Symbol: "AAPL", Quantity: 1,
		Price: decimal.NewFromInt(100), Side: trading.SideBuy,
		Timestamp: time.Now(),
	}
	ledger := portfolio.NewService()
	ledger.ApplyBuy(1, "AAPL", 1, decimal.NewFromInt(100))
	require.True(t, buy.Accept())

	var buf bytes.Buffer
	NewService(&buf).WriteAll([]*trading.Trade{buy}, ledger, execution.Result{
		RunID: uuid.New(), TotalTrades: 1, Completed: 1, Accepted: 1,
	})

	assert.Contains(t, buf.String(), "All trades were accepted successfully.")
}

func TestAcceptanceRateAndThroughput(t *testing.T) {
	var buf bytes.Buffer
	NewService(&buf).writeProcessingSummary(execution.Result{
		RunID:       uuid.New(),
		TotalTrades: 4,
		Completed:   4,
		Accepted:    3,
		Rejected:    1,
		Elapsed:     2 * time.Second,
	})
	out := buf.String()
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "2.00 trades/sec")
}
