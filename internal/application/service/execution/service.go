package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	portfolio "main/internal/application/service/portfolio"
	validation "main/internal/application/service/validation"
	trading "main/internal/domain/entity/trading"
	interfaces "main/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTradeTimeout  = 60 * time.Second
	defaultShutdownGrace = 10 * time.Second
)

// ErrEngineClosed is returned when a batch is submitted after Shutdown.
var ErrEngineClosed = errors.New("execution engine is closed")

// Config tunes the worker pool and per-trade bounds.
type Config struct {
	// Workers bounds the number of trades processed in parallel. Defaults to
	// a small multiple of core count; the work mixes computation with
	// synchronous persistence I/O.
	Workers int
	// TradeTimeout bounds each trade's processing, covering its persistence
	// calls. A trade exceeding it is counted as an error without blocking the
	// rest of the batch.
	TradeTimeout time.Duration
	// ShutdownGrace is how long Shutdown waits for in-flight work before
	// force-cancelling.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.TradeTimeout <= 0 {
		c.TradeTimeout = defaultTradeTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	return c
}

func defaultWorkers() int {
	n := runtime.GOMAXPROCS(0) * 2
	if n < 4 {
		n = 4
	}
	return n
}

// Result aggregates the outcome of one batch run. Exactly one of accepted,
// rejected or errored is recorded per trade that settled, so
// Accepted+Rejected+Errors <= Completed <= TotalTrades.
type Result struct {
	RunID       uuid.UUID
	TotalTrades int64
	Completed   int64
	Accepted    int64
	Rejected    int64
	Errors      int64
	Elapsed     time.Duration
}

// OutcomePublisher receives per-trade outcomes on a best-effort basis.
// Position is nil for trades that applied no ledger mutation.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, runID uuid.UUID, trade *trading.Trade, position *trading.Snapshot)
}

// Service drives each trade through validate, apply-to-ledger and persist on
// a bounded worker pool, and aggregates outcome counters per batch.
type Service struct {
	cfg       Config
	ledger    *portfolio.Service
	gateway   interfaces.PersistenceGateway
	publisher OutcomePublisher
	logger    *logrus.Entry

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex // guards closed and batch admission into wg
	closed bool
	wg     sync.WaitGroup
}

// NewService wires the engine. publisher may be nil when outcome events are
// not configured.
func NewService(cfg Config, ledger *portfolio.Service, gateway interfaces.PersistenceGateway, publisher OutcomePublisher, logger *logrus.Logger) *Service {
	cfg = cfg.withDefaults()
	baseCtx, cancel := context.WithCancel(context.Background())
	entry := logger.WithField("component", "execution_engine")
	entry.WithField("workers", cfg.Workers).Info("execution engine initialized")
	return &Service{
		cfg:       cfg,
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		logger:    entry,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// ProcessAll submits the whole batch to the pool and waits until every trade
// settles or times out. Trades touching different keys complete in any order;
// trades on the same key serialize in whichever order their workers enter the
// position's critical section.
func (s *Service) ProcessAll(ctx context.Context, trades []*trading.Trade) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrEngineClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	runID := uuid.New()
	log := s.logger.WithField("run_id", runID)
	start := time.Now()

	result := Result{RunID: runID, TotalTrades: int64(len(trades))}
	if len(trades) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stop := context.AfterFunc(s.baseCtx, cancelRun)
	defer stop()

	log.WithField("trades", len(trades)).Info("submitting batch to worker pool")

	// Account rows must exist before trade/position writes reference them.
	s.ensureAccounts(runCtx, trades, log)

	var accepted, rejected, errored, completed atomic.Int64

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(s.cfg.Workers)
	for _, trade := range trades {
		trade := trade
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logrus.Fields{
						"trade_id": trade.ID,
						"panic":    r,
					}).Error("worker panic while processing trade")
					errored.Add(1)
					completed.Add(1)
				}
			}()

			tctx, cancel := context.WithTimeout(gctx, s.cfg.TradeTimeout)
			defer cancel()

			switch s.processOne(tctx, trade, runID, log) {
			case outcomeAccepted:
				accepted.Add(1)
			case outcomeRejected:
				rejected.Add(1)
			default:
				errored.Add(1)
			}
			completed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Completed = completed.Load()
	result.Accepted = accepted.Load()
	result.Rejected = rejected.Load()
	result.Errors = errored.Load()
	result.Elapsed = time.Since(start)

	log.WithFields(logrus.Fields{
		"completed":  result.Completed,
		"accepted":   result.Accepted,
		"rejected":   result.Rejected,
		"errors":     result.Errors,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}).Info("batch processing complete")
	return result, nil
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeRejected
	outcomeError
)

func (s *Service) processOne(ctx context.Context, trade *trading.Trade, runID uuid.UUID, log *logrus.Entry) outcome {
	if err := ctx.Err(); err != nil {
		log.WithField("trade_id", trade.ID).WithError(err).Error("trade skipped, context done")
		return outcomeError
	}

	if res := validation.Validate(trade); !res.OK() {
		trade.Reject("validation failed: " + res.Summary())
		return s.finishTrade(ctx, trade, nil, runID, log)
	}

	var snapshot trading.Snapshot
	if trade.Side == trading.SideSell {
		snap, ok := s.ledger.ApplySell(trade.AccountID, trade.Symbol, trade.Quantity, trade.Price)
		if !ok {
			trade.Reject(fmt.Sprintf("insufficient position: account=%d symbol=%s requested=%d available=%d",
				trade.AccountID, trade.Symbol, trade.Quantity, snap.NetQuantity))
			log.WithFields(logrus.Fields{
				"trade_id":  trade.ID,
				"symbol":    trade.Symbol,
				"requested": trade.Quantity,
				"available": snap.NetQuantity,
			}).Warn("sell rejected, insufficient quantity")
			return s.finishTrade(ctx, trade, nil, runID, log)
		}
		trade.Accept()
		snapshot = snap
	} else {
		// BUY cannot fail once structurally valid.
		snapshot = s.ledger.ApplyBuy(trade.AccountID, trade.Symbol, trade.Quantity, trade.Price)
		trade.Accept()
	}
	log.WithFields(logrus.Fields{
		"trade_id": trade.ID,
		"side":     trade.Side,
		"net_qty":  snapshot.NetQuantity,
	}).Debug("trade applied to ledger")
	return s.finishTrade(ctx, trade, &snapshot, runID, log)
}

// finishTrade forwards the outcome to the durability sink. Sink failures
// degrade auditability, not correctness: the ledger mutation and the trade's
// terminal status stand, and the trade is tallied as an error instead.
func (s *Service) finishTrade(ctx context.Context, trade *trading.Trade, snapshot *trading.Snapshot, runID uuid.UUID, log *logrus.Entry) outcome {
	failed := false

	if snapshot != nil {
		if err := s.gateway.UpsertPosition(ctx, *snapshot); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"account_id": snapshot.AccountID,
				"symbol":     snapshot.Symbol,
			}).Error("position upsert failed")
			failed = true
		}
	}
	if err := s.gateway.PersistTrade(ctx, trade); err != nil {
		log.WithError(err).WithField("trade_id", trade.ID).Error("trade persistence failed")
		failed = true
	}

	if s.publisher != nil {
		s.publisher.PublishOutcome(ctx, runID, trade, snapshot)
	}

	if failed {
		return outcomeError
	}
	if trade.Status() == trading.StatusAccepted {
		return outcomeAccepted
	}
	return outcomeRejected
}

// ensureAccounts upserts every distinct account referenced by the batch.
// Upserts are idempotent; a failure is logged and the batch proceeds, the
// affected trades surfacing as persistence errors later.
func (s *Service) ensureAccounts(ctx context.Context, trades []*trading.Trade, log *logrus.Entry) {
	seen := make(map[int64]struct{})
	for _, trade := range trades {
		if _, ok := seen[trade.AccountID]; ok {
			continue
		}
		seen[trade.AccountID] = struct{}{}
		if err := s.gateway.UpsertAccount(ctx, trade.AccountID, trading.AccountName(trade.AccountID)); err != nil {
			log.WithError(err).WithField("account_id", trade.AccountID).Error("account upsert failed")
		}
	}
}

// Shutdown stops accepting new batches, waits up to the grace period for
// in-flight work, then force-cancels whatever remains. Safe to call with no
// work ever submitted and safe to call more than once.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.logger.Info("shutting down execution engine")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("shutdown grace elapsed, cancelling in-flight trades")
	}
	s.cancel()
	s.logger.Info("execution engine stopped")
}
