package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AlertPublisher publishes budget alerts
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, msg *BudgetAlertMessage)
}

// NoOpPublisher drops every alert (broker disabled or in tests)
type NoOpPublisher struct{}

// PublishBudgetAlert does nothing
func (NoOpPublisher) PublishBudgetAlert(ctx context.Context, msg *BudgetAlertMessage) {}

// sender is the part of Client the async publisher needs
type sender interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

const (
	defaultQueueSize  = 256
	maxPublishRetries = 5
	maxBackoff        = 30 * time.Second
)

// AsyncPublisher queues alerts and publishes them from a background worker,
// reconnecting with exponential backoff when the broker connection drops.
// A full queue drops the alert rather than blocking the caller.
// Once Close is called, queued alerts get a single delivery attempt each.
type AsyncPublisher struct {
	connect func() (sender, error)
	queue   chan *BudgetAlertMessage
	done    chan struct{}
	wg      sync.WaitGroup
	logger  zerolog.Logger
	after   func(time.Duration) <-chan time.Time

	// ctx is cancelled when Close gives up waiting on the worker
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	client sender
}

// NewAsyncPublisher starts a publisher that dials the broker at url
func NewAsyncPublisher(url, exchangeName, queueName string) *AsyncPublisher {
	return newAsyncPublisher(func() (sender, error) {
		return NewClient(url, exchangeName, queueName)
	}, defaultQueueSize, time.After)
}

func newAsyncPublisher(connect func() (sender, error), queueSize int, after func(time.Duration) <-chan time.Time) *AsyncPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPublisher{
		connect: connect,
		queue:   make(chan *BudgetAlertMessage, queueSize),
		done:    make(chan struct{}),
		logger:  log.With().Str("component", "amqp_publisher").Logger(),
		after:   after,
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// PublishBudgetAlert enqueues msg without blocking. Alerts published after Close are dropped.
func (p *AsyncPublisher) PublishBudgetAlert(ctx context.Context, msg *BudgetAlertMessage) {
	if msg == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn().Str("budget_id", msg.BudgetID).Str("event", msg.Event).Msg("Publisher closed, dropping alert")
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn().Str("budget_id", msg.BudgetID).Str("event", msg.Event).Msg("Alert queue full, dropping alert")
	}
}

// Close stops accepting alerts and flushes the queue until ctx expires.
// Whatever is still queued at that point is logged and dropped.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.dropQueued()
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn().Int("queued", len(p.queue)).Msg("Alert flush timed out, dropping queued alerts")
		return ctx.Err()
	}
}

func (p *AsyncPublisher) run() {
	defer p.wg.Done()
	defer func() {
		if p.client != nil {
			p.client.Close()
			p.client = nil
		}
	}()

	for {
		select {
		case msg := <-p.queue:
			p.deliver(msg)
		case <-p.done:
			for {
				select {
				case <-p.ctx.Done():
					p.dropQueued()
					return
				case msg := <-p.queue:
					p.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

// dropQueued empties the queue, logging each alert it discards
func (p *AsyncPublisher) dropQueued() {
	dropped := 0
	for {
		select {
		case msg := <-p.queue:
			dropped++
			p.logger.Warn().Str("budget_id", msg.BudgetID).Str("event", msg.Event).Msg("Dropping alert queued at shutdown")
		default:
			if dropped > 0 {
				p.logger.Warn().Int("dropped", dropped).Msg("Dropped undelivered alerts")
			}
			return
		}
	}
}

// closing reports whether Close has been called
func (p *AsyncPublisher) closing() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// backoff waits d, returning false if shutdown starts first
func (p *AsyncPublisher) backoff(d time.Duration) bool {
	select {
	case <-p.after(d):
		return !p.closing()
	case <-p.done:
		return false
	}
}

func (p *AsyncPublisher) deliver(msg *BudgetAlertMessage) {
	body, err := msg.ToJSON()
	if err != nil {
		p.logger.Error().Err(err).Str("budget_id", msg.BudgetID).Msg("Failed to marshal alert")
		return
	}

	for attempt := 0; attempt < maxPublishRetries; attempt++ {
		if attempt > 0 && (p.closing() || !p.backoff(exponentialBackoff(attempt-1))) {
			break
		}
		if p.client == nil {
			client, err := p.connect()
			if err != nil {
				p.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Failed to connect to broker")
				continue
			}
			p.client = client
		}

		err := p.client.Publish(p.ctx, AlertRoutingKey, body)
		if err == nil {
			p.logger.Info().
				Str("budget_id", msg.BudgetID).
				Str("user_id", msg.UserID).
				Str("event", msg.Event).
				Msg("Published budget alert")
			return
		}
		p.logger.Warn().Err(err).Int("attempt", attempt+1).Str("budget_id", msg.BudgetID).Msg("Failed to publish alert")
		if isConnectionError(err) {
			p.client.Close()
			p.client = nil
		}
	}
	p.logger.Error().Str("budget_id", msg.BudgetID).Str("event", msg.Event).Msg("Giving up on budget alert")
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isConnectionError reports whether err means the connection must be re-established
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
