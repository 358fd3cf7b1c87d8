package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"

	execution "main/internal/application/service/execution"
	portfolio "main/internal/application/service/portfolio"
	trading "main/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
)

var (
	line = strings.Repeat("=", 80)
	div  = strings.Repeat("-", 80)
)

// Service renders the end-of-run summary reports. It reads the ledger and the
// trade slice only after ProcessAll has returned, so no synchronization is
// needed beyond the ledger's own snapshots.
type Service struct {
	w io.Writer
}

func NewService(w io.Writer) *Service {
	return &Service{w: w}
}

// WriteAll renders every report in order: processing summary, per-account
// trade status, portfolio positions, symbol activity, top accounts by
// notional and the rejected trades log.
func (s *Service) WriteAll(trades []*trading.Trade, ledger *portfolio.Service, result execution.Result) {
	s.writeProcessingSummary(result)
	s.writeTradeStatus(trades)
	s.writePortfolio(ledger)
	s.writeSymbolActivity(trades)
	s.writeTopAccounts(trades)
	s.writeRejectedTrades(trades)
}

func (s *Service) writeProcessingSummary(result execution.Result) {
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w, "  PROCESSING SUMMARY")
	fmt.Fprintln(s.w, line)
	fmt.Fprintf(s.w, "  %-30s %s\n", "Run ID:", result.RunID)
	fmt.Fprintf(s.w, "  %-30s %d\n", "Total Trades Submitted:", result.TotalTrades)
	fmt.Fprintf(s.w, "  %-30s %d\n", "Completed:", result.Completed)
	fmt.Fprintf(s.w, "  %-30s %d\n", "Accepted:", result.Accepted)
	fmt.Fprintf(s.w, "  %-30s %d\n", "Rejected:", result.Rejected)
	fmt.Fprintf(s.w, "  %-30s %d\n", "Errors:", result.Errors)
	fmt.Fprintf(s.w, "  %-30s %d ms\n", "Elapsed Time:", result.Elapsed.Milliseconds())
	if ms := result.Elapsed.Milliseconds(); ms > 0 {
		tps := float64(result.Completed) * 1000.0 / float64(ms)
		fmt.Fprintf(s.w, "  %-30s %.2f trades/sec\n", "Throughput:", tps)
	}
	rate := 0.0
	if result.TotalTrades > 0 {
		rate = float64(result.Accepted) * 100.0 / float64(result.TotalTrades)
	}
	fmt.Fprintf(s.w, "  %-30s %.1f%%\n", "Acceptance Rate:", rate)
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w)
}

func (s *Service) writeTradeStatus(trades []*trading.Trade) {
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w, "  TRADE STATUS REPORT  (per Account)")
	fmt.Fprintln(s.w, line)
	fmt.Fprintf(s.w, "  %-12s %-8s %-10s %-10s %-18s %-18s\n",
		"Account", "Total", "Accepted", "Rejected", "Buy Notional", "Sell Notional")
	fmt.Fprintln(s.w, div)

	byAccount := make(map[int64][]*trading.Trade)
	for _, t := range trades {
		byAccount[t.AccountID] = append(byAccount[t.AccountID], t)
	}
	for _, accountID := range sortedKeys(byAccount) {
		accountTrades := byAccount[accountID]
		var accepted, rejected int
		buyNotional, sellNotional := decimal.Zero, decimal.Zero
		for _, t := range accountTrades {
			switch t.Status() {
			case trading.StatusAccepted:
				accepted++
				if t.Side == trading.SideBuy {
					buyNotional = buyNotional.Add(t.Notional())
				} else {
					sellNotional = sellNotional.Add(t.Notional())
				}
			case trading.StatusRejected:
				rejected++
			}
		}
		fmt.Fprintf(s.w, "  %-12d %-8d %-10d %-10d %-18s %-18s\n",
			accountID, len(accountTrades), accepted, rejected,
			buyNotional.StringFixed(2), sellNotional.StringFixed(2))
	}
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w)
}

func (s *Service) writePortfolio(ledger *portfolio.Service) {
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w, "  PORTFOLIO POSITIONS REPORT  (In-Memory State)")
	fmt.Fprintln(s.w, line)
	fmt.Fprintf(s.w, "  %-12s %-12s %-10s %-14s %-16s\n",
		"Account", "Symbol", "Net Qty", "Avg Cost", "Realized PnL")
	fmt.Fprintln(s.w, div)

	grouped := ledger.PositionsByAccount()
	for _, accountID := range sortedKeys(grouped) {
		total := decimal.Zero
		for _, snap := range grouped[accountID] {
			sign := ""
			if snap.RealizedPnL.Sign() >= 0 {
				sign = "+"
			}
			fmt.Fprintf(s.w, "  %-12d %-12s %-10d %-14s %s%s\n",
				accountID, snap.Symbol, snap.NetQuantity,
				snap.AverageCost.StringFixed(4),
				sign, snap.RealizedPnL.StringFixed(2))
			total = total.Add(snap.RealizedPnL)
		}
		fmt.Fprintf(s.w, "  %-12s %-12s %-10s %-14s Total: %s\n",
			"", "", "", "", total.StringFixed(2))
		fmt.Fprintln(s.w, div)
	}
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w)
}

func (s *Service) writeSymbolActivity(trades []*trading.Trade) {
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w, "  SYMBOL ACTIVITY REPORT  (Cross-Account)")
	fmt.Fprintln(s.w, line)
	fmt.Fprintf(s.w, "  %-14s %-12s %-12s %-12s %-12s %-16s\n",
		"Symbol", "Buy Trades", "Sell Trades", "Buy Volume", "Sell Volume", "Net Notional")
	fmt.Fprintln(s.w, div)

	type stats struct {
		buyTrades, sellTrades int
		buyVolume, sellVolume int64
		netNotional           decimal.Decimal
	}
	bySymbol := make(map[string]*stats)
	for _, t := range trades {
		if t.Status() != trading.StatusAccepted {
			continue
		}
		st := bySymbol[t.Symbol]
		if st == nil {
			st = &stats{netNotional: decimal.Zero}
			bySymbol[t.Symbol] = st
		}
		if t.Side == trading.SideBuy {
			st.buyTrades++
			st.buyVolume += t.Quantity
			st.netNotional = st.netNotional.Add(t.Notional())
		} else {
			st.sellTrades++
			st.sellVolume += t.Quantity
			st.netNotional = st.netNotional.Sub(t.Notional())
		}
	}
	for _, symbol := range sortedKeys(bySymbol) {
		st := bySymbol[symbol]
		fmt.Fprintf(s.w, "  %-14s %-12d %-12d %-12d %-12d %-16s\n",
			symbol, st.buyTrades, st.sellTrades, st.buyVolume, st.sellVolume,
			st.netNotional.StringFixed(2))
	}
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w)
}

func (s *Service) writeTopAccounts(trades []*trading.Trade) {
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w, "  TOP ACCOUNTS BY TOTAL NOTIONAL VALUE")
	fmt.Fprintln(s.w, line)
	fmt.Fprintf(s.w, "  %-6s %-12s %-22s\n", "Rank", "Account", "Total Notional Value")
	fmt.Fprintln(s.w, div)

	totals := make(map[int64]decimal.Decimal)
	for _, t := range trades {
		if t.Status() != trading.StatusAccepted {
			continue
		}
		current, ok := totals[t.AccountID]
		if !ok {
			current = decimal.Zero
		}
		totals[t.AccountID] = current.Add(t.Notional())
	}
	type ranked struct {
		accountID int64
		notional  decimal.Decimal
	}
	rankings := make([]ranked, 0, len(totals))
	for accountID, notional := range totals {
		rankings = append(rankings, ranked{accountID, notional})
	}
	sort.Slice(rankings, func(i, j int) bool {
		if c := rankings[i].notional.Cmp(rankings[j].notional); c != 0 {
			return c > 0
		}
		return rankings[i].accountID < rankings[j].accountID
	})
	if len(rankings) > 10 {
		rankings = rankings[:10]
	}
	for i, r := range rankings {
		fmt.Fprintf(s.w, "  %-6d %-12d %-22s\n", i+1, r.accountID, r.notional.StringFixed(2))
	}
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w)
}

func (s *Service) writeRejectedTrades(trades []*trading.Trade) {
	var rejected []*trading.Trade
	for _, t := range trades {
		if t.Status() == trading.StatusRejected {
			rejected = append(rejected, t)
		}
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].ID < rejected[j].ID })

	fmt.Fprintln(s.w, line)
	fmt.Fprintf(s.w, "  REJECTED TRADES LOG  (%d rejected)\n", len(rejected))
	fmt.Fprintln(s.w, line)
	if len(rejected) == 0 {
		fmt.Fprintln(s.w, "  All trades were accepted successfully.")
	} else {
		fmt.Fprintf(s.w, "  %-10s %-10s %-8s %-8s %-8s %s\n",
			"Trade ID", "Account", "Symbol", "Qty", "Side", "Rejection Reason")
		fmt.Fprintln(s.w, div)
		for _, t := range rejected {
			fmt.Fprintf(s.w, "  %-10d %-10d %-8s %-8d %-8s %s\n",
				t.ID, t.AccountID, t.Symbol, t.Quantity, t.Side, t.Reason())
		}
	}
	fmt.Fprintln(s.w, line)
	fmt.Fprintln(s.w)
}

func sortedKeys[K int64 | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
