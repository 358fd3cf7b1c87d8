package portfolio

import (
	"hash/fnv"
	"sort"
	"sync"

	trading "main/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
)

const shardCount = 32

type shard struct {
	mu        sync.RWMutex
	positions map[trading.PositionKey]*trading.Position
}

// Service is the concurrent ledger mapping (account, symbol) to a position.
// The key space is split across shards so structural inserts on unrelated
// keys never contend; value mutations serialize inside each position's own
// critical section. Snapshots are consistent per key, not batch-wide.
type Service struct {
	shards [shardCount]shard
}

func NewService() *Service {
	s := &Service{}
	for i := range s.shards {
		s.shards[i].positions = make(map[trading.PositionKey]*trading.Position)
	}
	return s
}

func (s *Service) shardFor(key trading.PositionKey) *shard {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return &s.shards[h.Sum32()%shardCount]
}

// getOrCreate is an atomic insert-if-absent: racing first touches of a new
// key always resolve to the same position instance.
func (s *Service) getOrCreate(key trading.PositionKey) *trading.Position {
	sh := s.shardFor(key)

	sh.mu.RLock()
	pos := sh.positions[key]
	sh.mu.RUnlock()
	if pos != nil {
		return pos
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if pos := sh.positions[key]; pos != nil {
		return pos
	}
	pos = trading.NewPosition(key.AccountID, key.Symbol)
	sh.positions[key] = pos
	return pos
}

// ApplyBuy applies a validated buy to the position for the key, creating it
// on first touch, and returns the resulting snapshot.
func (s *Service) ApplyBuy(accountID int64, symbol string, qty int64, price decimal.Decimal) trading.Snapshot {
	pos := s.getOrCreate(trading.PositionKey{AccountID: accountID, Symbol: symbol})
	pos.ApplyBuy(qty, price)
	return pos.Snapshot()
}

// ApplySell attempts to apply a sell to the position for the key. On success
// the returned snapshot reflects the applied mutation; on failure the
// position is completely unchanged and the snapshot shows the state that
// caused the rejection.
func (s *Service) ApplySell(accountID int64, symbol string, qty int64, price decimal.Decimal) (trading.Snapshot, bool) {
	pos := s.getOrCreate(trading.PositionKey{AccountID: accountID, Symbol: symbol})
	ok := pos.ApplySell(qty, price)
	return pos.Snapshot(), ok
}

// Get returns the snapshot for a key, or false if the key was never touched.
func (s *Service) Get(accountID int64, symbol string) (trading.Snapshot, bool) {
	key := trading.PositionKey{AccountID: accountID, Symbol: symbol}
	sh := s.shardFor(key)

	sh.mu.RLock()
	pos := sh.positions[key]
	sh.mu.RUnlock()
	if pos == nil {
		return trading.Snapshot{}, false
	}
	return pos.Snapshot(), true
}

// AllPositions returns snapshots of every position, ordered by account then
// symbol for stable reporting.
func (s *Service) AllPositions() []trading.Snapshot {
	var out []trading.Snapshot
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, pos := range sh.positions {
			out = append(out, pos.Snapshot())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// PositionsByAccount groups snapshots by account id, each group ordered by
// symbol.
func (s *Service) PositionsByAccount() map[int64][]trading.Snapshot {
	grouped := make(map[int64][]trading.Snapshot)
	for _, snap := range s.AllPositions() {
		grouped[snap.AccountID] = append(grouped[snap.AccountID], snap)
	}
	return grouped
}
