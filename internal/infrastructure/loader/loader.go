package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	trading "main/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Column layout: tradeId,accountId,symbol,quantity,price,side,timestamp
const (
	colTradeID = iota
	colAccountID
	colSymbol
	colQuantity
	colPrice
	colSide
	colTimestamp
	columnCount
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Loader reads trade requests from a CSV file. Lines that fail to parse are
// logged and skipped; the core only ever sees type-checked trades.
type Loader struct {
	path   string
	logger *logrus.Entry
}

func New(path string, logger *logrus.Logger) *Loader {
	return &Loader{
		path:   path,
		logger: logger.WithField("component", "trade_loader"),
	}
}

// Load parses the file and returns the successfully parsed trades in file
// order. The first line is treated as a header.
func (l *Loader) Load() ([]*trading.Trade, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open trades file: %w", err)
	}
	defer file.Close()

	l.logger.WithField("path", l.path).Info("loading trades")

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var trades []*trading.Trade
	lineNum := 0
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			l.logger.WithField("line", lineNum).WithError(err).Warn("malformed line skipped")
			skipped++
			continue
		}
		if lineNum == 1 {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < columnCount {
			l.logger.WithFields(logrus.Fields{
				"line":    lineNum,
				"columns": len(record),
			}).Warn("insufficient columns, line skipped")
			skipped++
			continue
		}
		trade, err := parseTrade(record)
		if err != nil {
			l.logger.WithField("line", lineNum).WithError(err).Warn("parse error, line skipped")
			skipped++
			continue
		}
		trades = append(trades, trade)
	}

	l.logger.WithFields(logrus.Fields{
		"loaded":  len(trades),
		"skipped": skipped,
	}).Info("trades loaded")
	return trades, nil
}

func parseTrade(record []string) (*trading.Trade, error) {
	tradeID, err := strconv.ParseInt(strings.TrimSpace(record[colTradeID]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid tradeId %q", record[colTradeID])
	}
	accountID, err := strconv.ParseInt(strings.TrimSpace(record[colAccountID]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid accountId %q", record[colAccountID])
	}
	symbol := strings.ToUpper(strings.TrimSpace(record[colSymbol]))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is empty")
	}
	quantity, err := strconv.ParseInt(strings.TrimSpace(record[colQuantity]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q", record[colQuantity])
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive (got %d)", quantity)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(record[colPrice]))
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", record[colPrice])
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("price must be positive (got %s)", price)
	}
	side := trading.Side(strings.ToUpper(strings.TrimSpace(record[colSide])))
	if side != trading.SideBuy && side != trading.SideSell {
		return nil, fmt.Errorf("invalid side %q, must be BUY or SELL", record[colSide])
	}
	timestamp, err := parseTimestamp(strings.TrimSpace(record[colTimestamp]))
	if err != nil {
		return nil, err
	}

	return &trading.Trade{
		ID:        tradeID,
		AccountID: accountID,
		Symbol:    symbol,
		Quantity:  quantity,
		Price:     price,
		Side:      side,
		Timestamp: timestamp,
	}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, expected ISO-8601", value)
}
