package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	trading "main/internal/domain/entity/trading"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher pushes per-trade outcome events to a RabbitMQ fanout exchange,
// buffered by size and timeout. Publishing is strictly best-effort: failures
// are logged and dropped, never surfaced to the execution path.
type Publisher struct {
	exchange string
	conn     *amqp.Connection
	logger   *logrus.Entry
	buffer   *outcomeBuffer

	mu sync.Mutex // amqp channels are not safe for concurrent publish
	ch *amqp.Channel
}

func NewPublisher(url, exchange string, cfg BatchConfig, logger *logrus.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &Publisher{
		exchange: exchange,
		conn:     conn,
		ch:       ch,
		logger:   logger.WithField("component", "outcome_publisher"),
	}
	p.buffer = newOutcomeBuffer(cfg, p.publishBatch, p.logger)
	return p, nil
}

// Run sets the base context used for asynchronous timer flushes.
func (p *Publisher) Run(ctx context.Context) {
	p.buffer.setContext(ctx)
}

// PublishOutcome enqueues one trade outcome. Implements the execution
// engine's OutcomePublisher contract.
func (p *Publisher) PublishOutcome(_ context.Context, runID uuid.UUID, trade *trading.Trade, position *trading.Snapshot) {
	msg := OutcomeMessage{
		RunID:       runID.String(),
		TradeID:     trade.ID,
		AccountID:   trade.AccountID,
		Symbol:      trade.Symbol,
		Side:        string(trade.Side),
		Quantity:    trade.Quantity,
		Price:       trade.Price.String(),
		Status:      trade.Status().String(),
		Reason:      trade.Reason(),
		ProcessedAt: time.Now().UTC(),
	}
	if position != nil {
		msg.Position = &PositionMessage{
			NetQuantity: position.NetQuantity,
			AverageCost: position.AverageCost.String(),
			RealizedPnL: position.RealizedPnL.String(),
		}
	}
	p.buffer.enqueue(msg)
}

func (p *Publisher) publishBatch(ctx context.Context, batch []OutcomeMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range batch {
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal outcome: %w", err)
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   msg.ProcessedAt,
			Body:        body,
		})
		if err != nil {
			return fmt.Errorf("publish outcome: %w", err)
		}
	}
	return nil
}

// Close drains the buffer and tears down the AMQP resources.
func (p *Publisher) Close(ctx context.Context) {
	if p == nil {
		return
	}
	p.buffer.drain(ctx)
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.logger.WithError(err).Warn("close channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.WithError(err).Warn("close connection")
		}
	}
}
