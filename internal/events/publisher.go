package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeName = "library.events"
	exchangeType = "topic"
	eventVersion = "1.0.0"

	// Event types
	EventTypeBookCreated  = "library.book.created"
	EventTypeBookUpdated  = "library.book.updated"
	EventTypeBookDeleted  = "library.book.deleted"
	EventTypeBookIssued   = "library.book.issued"
	EventTypeBookReturned = "library.book.returned"

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BookEvents announces catalog changes.
type BookEvents interface {
	PublishBookCreated(ctx context.Context, bookID uint, title, author string, quantity int) error
	PublishBookUpdated(ctx context.Context, bookID uint, title, author string, quantity int) error
	PublishBookDeleted(ctx context.Context, bookID uint) error
}

// LoanEvents announces issue and return movements.
type LoanEvents interface {
	PublishBookIssued(ctx context.Context, issueID, bookID, userID uint, qty, remaining int) error
	PublishBookReturned(ctx context.Context, issueID, bookID uint, qty, openQty int, closed bool, stock int) error
}

// Emitter is everything the service publishes, plus lifecycle.
type Emitter interface {
	BookEvents
	LoanEvents
	IsHealthy() bool
	Close() error
}

// Publisher handles event publishing to RabbitMQ.
//
// When the broker drops the connection the publisher degrades: events are
// logged and dropped while a background loop redials with backoff.
type Publisher struct {
	url    string
	redial func(url string) (*amqp.Connection, *amqp.Channel, error)
	log    *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	degraded  atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

// NewPublisher creates a new event publisher
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, channel, err := dial(url)
	if err != nil {
		return nil, err
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", exchangeName))

	p := &Publisher{
		url:     url,
		redial:  dial,
		log:     log,
		conn:    conn,
		channel: channel,
		done:    make(chan struct{}),
	}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

// dial opens a confirming channel on a fresh connection and declares the exchange.
func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Enable publisher confirms for reliability
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return conn, channel, nil
}

// watch waits for the connection behind notify to close. A close carrying an
// error means the broker went away; a clean close (ours) needs nothing.
func (p *Publisher) watch(notify <-chan *amqp.Error) {
	select {
	case <-p.done:
		return
	case amqpErr, ok := <-notify:
		if !ok || amqpErr == nil {
			return
		}
		p.degraded.Store(true)
		p.log.Warn("Lost RabbitMQ connection, dropping events until reconnected", zap.Error(amqpErr))
		p.reconnect()
	}
}

func (p *Publisher) reconnect() {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-p.done:
			return
		case <-time.After(backoff):
		}

		conn, channel, err := p.redial(p.url)
		if err != nil {
			p.log.Warn("Reconnect to RabbitMQ failed", zap.Int("attempt", attempt), zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		p.mu.Lock()
		p.conn, p.channel = conn, channel
		p.mu.Unlock()
		p.degraded.Store(false)

		p.log.Info("Reconnected to RabbitMQ", zap.Int("attempts", attempt))
		go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
		return
	}
}

// PublishBookCreated publishes a book created event
func (p *Publisher) PublishBookCreated(ctx context.Context, bookID uint, title, author string, quantity int) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeBookCreated, map[string]interface{}{
		"book_id":  bookID,
		"title":    title,
		"author":   author,
		"quantity": quantity,
	}))
}

// PublishBookUpdated publishes a book updated event
func (p *Publisher) PublishBookUpdated(ctx context.Context, bookID uint, title, author string, quantity int) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeBookUpdated, map[string]interface{}{
		"book_id":  bookID,
		"title":    title,
		"author":   author,
		"quantity": quantity,
	}))
}

// PublishBookDeleted publishes a book deleted event
func (p *Publisher) PublishBookDeleted(ctx context.Context, bookID uint) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeBookDeleted, map[string]interface{}{
		"book_id": bookID,
	}))
}

// PublishBookIssued publishes a book issued event
func (p *Publisher) PublishBookIssued(ctx context.Context, issueID, bookID, userID uint, qty, remaining int) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeBookIssued, map[string]interface{}{
		"issue_id":  issueID,
		"book_id":   bookID,
		"user_id":   userID,
		"qty":       qty,
		"remaining": remaining,
	}))
}

// PublishBookReturned publishes a book returned event
func (p *Publisher) PublishBookReturned(ctx context.Context, issueID, bookID uint, qty, openQty int, closed bool, stock int) error {
	return p.publishWithRetry(ctx, NewEvent(ctx, EventTypeBookReturned, map[string]interface{}{
		"issue_id": issueID,
		"book_id":  bookID,
		"qty":      qty,
		"open_qty": openQty,
		"closed":   closed,
		"stock":    stock,
	}))
}

// NewEvent builds the envelope for eventType, stamping id, time and correlation id.
func NewEvent(ctx context.Context, eventType string, payload map[string]interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload:       payload,
	}
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *Publisher) publishWithRetry(ctx context.Context, event Event) error {
	if p.degraded.Load() {
		p.log.Warn("RabbitMQ unavailable, event dropped",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	routingKey := event.EventType

	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		p.mu.RLock()
		channel := p.channel
		p.mu.RUnlock()

		confirmation, err := channel.PublishWithDeferredConfirmWithContext(
			ctx,
			exchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				Timestamp:     time.Now(),
				MessageId:     event.EventID,
				CorrelationId: event.CorrelationID,
				Body:          body,
				Headers: amqp.Table{
					"event_type":    event.EventType,
					"event_version": event.EventVersion,
				},
			},
		)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
		acked, err := confirmation.WaitContext(waitCtx)
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			lastErr = fmt.Errorf("confirmation timeout: %w", err)
		case acked:
			p.log.Info("Event published",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
			)
			return nil
		default:
			lastErr = fmt.Errorf("event not acknowledged")
		}

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// IsHealthy checks if the publisher connection is healthy. A degraded
// publisher counts as healthy: the service keeps serving without events,
// the same as running with no broker configured.
func (p *Publisher) IsHealthy() bool {
	if p.degraded.Load() {
		return true
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil && !p.conn.IsClosed()
}

// Close stops any reconnect loop and closes the publisher connection
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && !p.channel.IsClosed() {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}
