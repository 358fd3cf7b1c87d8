package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	portfolio "main/internal/application/service/portfolio"
	trading "main/internal/domain/entity/trading"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu            sync.Mutex
	accounts      map[int64]string
	trades        []*trading.Trade
	positions     []trading.Snapshot
	failTrades    bool
	failPositions bool
	failAccounts  bool
	// enforceFK mimics the database foreign key: trade writes fail unless the
	// account row was upserted first.
	enforceFK bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{accounts: make(map[int64]string)}
}

func (g *stubGateway) UpsertAccount(_ context.Context, accountID int64, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAccounts {
		return errors.New("account upsert refused")
	}
	g.accounts[accountID] = name
	return nil
}

func (g *stubGateway) PersistTrade(_ context.Context, trade *trading.Trade) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failTrades {
		return errors.New("trade write refused")
	}
	if g.enforceFK {
		if _, ok := g.accounts[trade.AccountID]; !ok {
			return fmt.Errorf("account %d not registered", trade.AccountID)
		}
	}
	g.trades = append(g.trades, trade)
	return nil
}

func (g *stubGateway) UpsertPosition(_ context.Context, snapshot trading.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPositions {
		return errors.New("position write refused")
	}
	g.positions = append(g.positions, snapshot)
	return nil
}

func (g *stubGateway) Close() {}

type stubPublisher struct {
	mu       sync.Mutex
	outcomes []string
}

func (p *stubPublisher) PublishOutcome(_ context.Context, _ uuid.UUID, trade *trading.Trade, _ *trading.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, trade.Status().String())
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTrade(id, account int64, symbol string, qty int64, price int64, side trading.Side) *trading.Trade {
	return &trading.Trade{
		ID:        id,
		AccountID: account,
		Symbol:    symbol,
		Quantity:  qty,
		Price:     decimal.NewFromInt(price),
		Side:      side,
		Timestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestProcessAllAggregateAccounting(t *testing.T) {
	gateway := newStubGateway()
	ledger := portfolio.NewService()
	publisher := &stubPublisher{}
	engine := NewService(Config{Workers: 4}, ledger, gateway, publisher, quietLogger())
	defer engine.Shutdown()

	invalid := newTrade(1, 10, "AAPL", 0, 100, trading.SideBuy)
	oversell := newTrade(2, 10, "MSFT", 10, 300, trading.SideSell)
	buy := newTrade(3, 10, "GOOG", 5, 150, trading.SideBuy)

	result, err := engine.ProcessAll(context.Background(), []*trading.Trade{invalid, oversell, buy})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalTrades)
	assert.Equal(t, int64(3), result.Completed)
	assert.Equal(t, int64(1), result.Accepted)
	assert.Equal(t, int64(2), result.Rejected)
	assert.Equal(t, int64(0), result.Errors)

	assert.Equal(t, trading.StatusRejected, invalid.Status())
	assert.Contains(t, invalid.Reason(), "validation failed")
	assert.Equal(t, trading.StatusRejected, oversell.Status())
	assert.Contains(t, oversell.Reason(), "insufficient position")
	assert.Contains(t, oversell.Reason(), "requested=10")
	assert.Contains(t, oversell.Reason(), "available=0")
	assert.Equal(t, trading.StatusAccepted, buy.Status())

	// One account referenced by the batch, three trade records, one position
	// snapshot (only the accepted buy applied a mutation).
	assert.Equal(t, map[int64]string{10: "Account-10"}, gateway.accounts)
	assert.Len(t, gateway.trades, 3)
	assert.Len(t, gateway.positions, 1)
	assert.Len(t, publisher.outcomes, 3)

	snap, ok := ledger.Get(10, "GOOG")
	require.True(t, ok)
	assert.Equal(t, int64(5), snap.NetQuantity)
}

func TestPersistenceFailureCountsAsErrorWithoutRevertingLedger(t *testing.T) {
	gateway := newStubGateway()
	gateway.failTrades = true
	ledger := portfolio.NewService()
	engine := NewService(Config{Workers: 2}, ledger, gateway, nil, quietLogger())
	defer engine.Shutdown()

	buy := newTrade(1, 5, "AAPL", 10, 100, trading.SideBuy)
	result, err := engine.ProcessAll(context.Background(), []*trading.Trade{buy})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Completed)
	assert.Equal(t, int64(0), result.Accepted)
	assert.Equal(t, int64(0), result.Rejected)
	assert.Equal(t, int64(1), result.Errors)

	// The ledger stays authoritative and the status stands.
	assert.Equal(t, trading.StatusAccepted, buy.Status())
	snap, ok := ledger.Get(5, "AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(10), snap.NetQuantity)
}

func TestPositionUpsertFailureCountsAsError(t *testing.T) {
	gateway := newStubGateway()
	gateway.failPositions = true
	ledger := portfolio.NewService()
	engine := NewService(Config{Workers: 2}, ledger, gateway, nil, quietLogger())
	defer engine.Shutdown()

	buy := newTrade(1, 5, "AAPL", 10, 100, trading.SideBuy)
	result, err := engine.ProcessAll(context.Background(), []*trading.Trade{buy})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Errors)
	assert.Equal(t, trading.StatusAccepted, buy.Status())
	// The trade record itself still reached the sink.
	assert.Len(t, gateway.trades, 1)
}

func TestConcurrentSellsThroughEngine(t *testing.T) {
	gateway := newStubGateway()
	ledger := portfolio.NewService()
	engine := NewService(Config{Workers: 8}, ledger, gateway, nil, quietLogger())
	defer engine.Shutdown()

	seed := newTrade(1, 1, "TSLA", 10, 200, trading.SideBuy)
	_, err := engine.ProcessAll(context.Background(), []*trading.Trade{seed})
	require.NoError(t, err)

	sellA := newTrade(2, 1, "TSLA", 6, 210, trading.SideSell)
	sellB := newTrade(3, 1, "TSLA", 6, 210, trading.SideSell)
	result, err := engine.ProcessAll(context.Background(), []*trading.Trade{sellA, sellB})
	require.NoError(t, err)

	// Which sell wins is nondeterministic; exactly one must.
	assert.Equal(t, int64(1), result.Accepted)
	assert.Equal(t, int64(1), result.Rejected)
	snap, ok := ledger.Get(1, "TSLA")
	require.True(t, ok)
	assert.Equal(t, int64(4), snap.NetQuantity)
}

func TestProcessAllEmptyBatch(t *testing.T) {
	engine := NewService(Config{}, portfolio.NewService(), newStubGateway(), nil, quietLogger())
	defer engine.Shutdown()

	result, err := engine.ProcessAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalTrades)
	assert.Equal(t, int64(0), result.Completed)
}

func TestShutdownIsSafeWithoutWork(t *testing.T) {
	engine := NewService(Config{ShutdownGrace: 50 * time.Millisecond}, portfolio.NewService(), newStubGateway(), nil, quietLogger())

	engine.Shutdown()
	engine.Shutdown() // idempotent

	_, err := engine.ProcessAll(context.Background(), []*trading.Trade{newTrade(1, 1, "AAPL", 1, 1, trading.SideBuy)})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestRejectedTradeWithNonPositiveAccountStillPersists(t *testing.T) {
	gateway := newStubGateway()
	gateway.enforceFK = true
	ledger := portfolio.NewService()
	engine := NewService(Config{Workers: 2}, ledger, gateway, nil, quietLogger())
	defer engine.Shutdown()

	// Account id 0 fails validation, but its account row must still be
	// registered so the rejection record survives the foreign key.
	trade := newTrade(1, 0, "AAPL", 5, 100, trading.SideBuy)
	result, err := engine.ProcessAll(context.Background(), []*trading.Trade{trade})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Rejected)
	assert.Equal(t, int64(0), result.Errors)
	assert.Equal(t, "Account-0", gateway.accounts[0])
	require.Len(t, gateway.trades, 1)
	assert.Equal(t, trading.StatusRejected, gateway.trades[0].Status())
}

func TestShutdownWaitsForConcurrentSubmissions(t *testing.T) {
	engine := NewService(Config{Workers: 4}, portfolio.NewService(), newStubGateway(), nil, quietLogger())

	type outcome struct {
		result Result
		err    error
	}
	const submitters = 8
	outcomes := make(chan outcome, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		id := int64(i + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.ProcessAll(context.Background(),
				[]*trading.Trade{newTrade(id, id, "AAPL", 1, 100, trading.SideBuy)})
			outcomes <- outcome{result: res, err: err}
		}()
	}
	engine.Shutdown()
	wg.Wait()
	close(outcomes)

	// Every submission is either refused outright or settles in full under
	// the shutdown grace; none is stranded against a cancelled context.
	for o := range outcomes {
		if o.err != nil {
			assert.ErrorIs(t, o.err, ErrEngineClosed)
			continue
		}
		assert.Equal(t, o.result.TotalTrades, o.result.Completed)
		assert.Equal(t, int64(0), o.result.Errors)
	}
}

func TestAccountUpsertFailureDoesNotAbortBatch(t *testing.T) {
	gateway := newStubGateway()
	gateway.failAccounts = true
	ledger := portfolio.NewService()
	engine := NewService(Config{Workers: 2}, ledger, gateway, nil, quietLogger())
	defer engine.Shutdown()

	buy := newTrade(1, 5, "AAPL", 10, 100, trading.SideBuy)
	result, err := engine.ProcessAll(context.Background(), []*trading.Trade{buy})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Accepted)
}
