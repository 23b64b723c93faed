// Package dispatch implements the Topic Dispatcher (C5) and the Dispatcher
// Manager (C6): one background loop per topic that pulls pending events for
// each subscribed consumer and delivers them with retry/back-off/eviction
// (spec.md §4.5, §4.6).
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/core/consumer"
	"github.com/kavelabs/eventbroker/core/eventstore"
)

const (
	defaultCheckInterval  = 500 * time.Millisecond
	defaultBaseRetryDelay = 1 * time.Second
	defaultMaxRetries     = 5
	maxRetryDelay         = 60 * time.Second
)

// retryState tracks a single consumer's back-off within one dispatcher.
type retryState struct {
	attempts    int
	nextRetryAt time.Time
}

// Dispatcher is the background delivery loop for one topic.
type Dispatcher struct {
	Tenant    string
	Namespace string
	Topic     string

	events    *eventstore.Store
	registry  *consumer.Registry
	logger    *zap.Logger

	checkInterval  time.Duration
	baseRetryDelay time.Duration
	maxRetries     int
	now            func() time.Time

	mu      sync.Mutex
	retries map[string]*retryState

	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithCheckInterval overrides the default 500ms tick.
func WithCheckInterval(d time.Duration) Option { return func(disp *Dispatcher) { disp.checkInterval = d } }

// WithBaseRetryDelay overrides the default 1s initial back-off.
func WithBaseRetryDelay(d time.Duration) Option { return func(disp *Dispatcher) { disp.baseRetryDelay = d } }

// WithMaxRetries overrides the default 5 attempts before eviction.
func WithMaxRetries(n int) Option { return func(disp *Dispatcher) { disp.maxRetries = n } }

// WithClock overrides time.Now, for deterministic back-off tests.
func WithClock(now func() time.Time) Option { return func(disp *Dispatcher) { disp.now = now } }

// NewDispatcher constructs a Dispatcher for one (tenant, namespace, topic).
func NewDispatcher(tenant, namespace, topic string, events *eventstore.Store, registry *consumer.Registry, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		Tenant:         tenant,
		Namespace:      namespace,
		Topic:          topic,
		events:         events,
		registry:       registry,
		logger:         logger,
		checkInterval:  defaultCheckInterval,
		baseRetryDelay: defaultBaseRetryDelay,
		maxRetries:     defaultMaxRetries,
		now:            time.Now,
		retries:        make(map[string]*retryState),
		trigger:        make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the dispatch loop in its own goroutine. It is idempotent
// only in the sense that the loop always returns once Stop is called; repeated
// Start calls on the same Dispatcher are the caller's responsibility to
// avoid (the Manager guards against it).
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Trigger wakes the loop immediately instead of waiting for the next tick.
// This is a bounded trigger, not a queue: a pending wake-up is coalesced.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	<-d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case <-d.trigger:
			d.tick(ctx)
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// TickOnce runs a single dispatch pass synchronously, without starting the
// background loop. Useful for tests and for an initial catch-up pass right
// after a dispatcher starts (spec.md §4.6 "immediately trigger one delivery
// pass").
func (d *Dispatcher) TickOnce() {
	d.tick(context.Background())
}

// tick performs one pass over every consumer subscribed to this topic. It
// never holds a lock across a deliver call: registry reads/writes and
// retry-state bookkeeping each take their own brief lock.
func (d *Dispatcher) tick(ctx context.Context) {
	for _, c := range d.registry.FindByTopic(d.Topic) {
		if d.isBackingOff(c.ID) {
			continue
		}

		cursor := c.Topics[d.Topic]
		events, err := d.events.GetEvents(d.Tenant, d.Namespace, d.Topic, cursor, "", 0)
		if err != nil {
			d.logger.Warn("dispatcher read failed", zap.String("topic", d.Topic), zap.String("consumer", c.ID), zap.Error(err))
			continue
		}
		if len(events) == 0 {
			continue
		}

		outcome := c.Deliver(ctx, events)
		latest := events[len(events)-1].Sequence

		if outcome.Success {
			updated := c.WithUpdatedLastEventID(d.Topic, latest)
			if err := d.registry.Save(updated); err != nil {
				d.logger.Warn("dispatcher cursor persist failed", zap.String("consumer", c.ID), zap.Error(err))
				continue
			}
			d.clearRetry(c.ID)
			continue
		}

		d.recordFailure(c.ID, outcome.ErrorCategory)
	}
}

func (d *Dispatcher) isBackingOff(consumerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.retries[consumerID]
	return ok && d.now().Before(rs.nextRetryAt)
}

func (d *Dispatcher) clearRetry(consumerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.retries, consumerID)
}

// recordFailure advances a consumer's back-off state and evicts it once
// maxRetries consecutive failures have accumulated (spec.md §4.5 step 6).
func (d *Dispatcher) recordFailure(consumerID, category string) {
	d.mu.Lock()
	rs, ok := d.retries[consumerID]
	if !ok {
		rs = &retryState{}
		d.retries[consumerID] = rs
	}
	rs.attempts++
	delay := d.baseRetryDelay * time.Duration(1<<uint(rs.attempts-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	rs.nextRetryAt = d.now().Add(delay)
	attempts := rs.attempts
	evict := attempts >= d.maxRetries
	if evict {
		delete(d.retries, consumerID)
	}
	d.mu.Unlock()

	d.logger.Info("delivery failed",
		zap.String("topic", d.Topic), zap.String("consumer", consumerID),
		zap.String("category", category), zap.Int("attempts", attempts))

	if evict {
		if err := d.registry.Delete(consumerID); err != nil {
			d.logger.Warn("consumer eviction failed", zap.String("consumer", consumerID), zap.Error(err))
		} else {
			d.logger.Info("consumer evicted after max retries", zap.String("consumer", consumerID), zap.String("topic", d.Topic))
		}
	}
}
