package dispatch

import (
	"context"
	"sync"

	events "github.com/asaidimu/go-events"
	"go.uber.org/zap"

	"github.com/kavelabs/eventbroker/core/consumer"
	"github.com/kavelabs/eventbroker/core/eventstore"
)

// PublishedEvent is the payload carried on the wake-signal bus when new
// events land for a topic (spec.md §4.6: "notify dispatcher of new events").
type PublishedEvent struct {
	Tenant    string
	Namespace string
	Topic     string
}

const publishedEventType = "dispatch.events_published"

// Manager is the Dispatcher Manager (C6): it owns one Dispatcher per
// fully-qualified topic and keeps them running on demand. A single mutex
// serializes the dispatcher map; it is never held across a Dispatcher's
// deliver call, since Start/Stop only touch goroutine lifecycle, not
// delivery itself (spec.md §4.6 invariant).
type Manager struct {
	eventStore *eventstore.Store
	registry   *consumer.Registry
	logger     *zap.Logger
	bus        *events.TypedEventBus[PublishedEvent]
	opts       []Option

	mu          sync.Mutex
	dispatchers map[string]*Dispatcher
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager constructs a Dispatcher Manager. The supplied bus, if non-nil,
// is subscribed to so that NotifyEventsPublished wakes the right dispatcher
// immediately rather than waiting for its next tick.
func NewManager(eventStore *eventstore.Store, registry *consumer.Registry, logger *zap.Logger, bus *events.TypedEventBus[PublishedEvent], opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		eventStore:  eventStore,
		registry:    registry,
		logger:      logger,
		bus:         bus,
		opts:        opts,
		dispatchers: make(map[string]*Dispatcher),
		ctx:         ctx,
		cancel:      cancel,
	}
	if bus != nil {
		bus.Subscribe(publishedEventType, func(_ context.Context, payload PublishedEvent) error {
			m.wake(payload.Tenant, payload.Namespace, payload.Topic)
			return nil
		})
	}
	return m
}

func topicKey(tenant, namespace, topic string) string {
	return tenant + "/" + namespace + "/" + topic
}

// StartDispatcher starts a dispatcher for (tenant, namespace, topic) if one
// is not already running, and immediately triggers one delivery pass so
// already-registered consumers catch up without waiting for the first tick
// (spec.md §4.6). Returns true if it started a new dispatcher.
func (m *Manager) StartDispatcher(tenant, namespace, topic string) bool {
	m.mu.Lock()
	key := topicKey(tenant, namespace, topic)
	if _, ok := m.dispatchers[key]; ok {
		m.mu.Unlock()
		return false
	}
	d := NewDispatcher(tenant, namespace, topic, m.eventStore, m.registry, m.logger, m.opts...)
	m.dispatchers[key] = d
	m.mu.Unlock()

	d.Start(m.ctx)
	d.Trigger()
	m.logger.Info("dispatcher started", zap.String("tenant", tenant), zap.String("namespace", namespace), zap.String("topic", topic))
	return true
}

// StopDispatcher stops and removes the dispatcher for a topic, if running.
func (m *Manager) StopDispatcher(tenant, namespace, topic string) {
	key := topicKey(tenant, namespace, topic)
	m.mu.Lock()
	d, ok := m.dispatchers[key]
	if ok {
		delete(m.dispatchers, key)
	}
	m.mu.Unlock()

	if ok {
		d.Stop()
		m.logger.Info("dispatcher stopped", zap.String("tenant", tenant), zap.String("namespace", namespace), zap.String("topic", topic))
	}
}

// StopAllDispatchers stops every running dispatcher. Stop calls happen
// outside the lock so a slow shutdown on one topic cannot block others from
// being signalled to stop.
func (m *Manager) StopAllDispatchers() {
	m.mu.Lock()
	all := make([]*Dispatcher, 0, len(m.dispatchers))
	for _, d := range m.dispatchers {
		all = append(all, d)
	}
	m.dispatchers = make(map[string]*Dispatcher)
	m.mu.Unlock()

	m.cancel()
	for _, d := range all {
		d.Stop()
	}
}

// GetRunningDispatchers returns the tenant/namespace/topic keys of every
// currently running dispatcher.
func (m *Manager) GetRunningDispatchers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.dispatchers))
	for k := range m.dispatchers {
		out = append(out, k)
	}
	return out
}

// EnsureDispatchersRunning starts a dispatcher for every given topic that is
// not already running, immediately triggering a catch-up delivery pass for
// each one newly started (via StartDispatcher), spec.md §4.6.
func (m *Manager) EnsureDispatchersRunning(topics []PublishedEvent) {
	for _, t := range topics {
		m.StartDispatcher(t.Tenant, t.Namespace, t.Topic)
	}
}

// NotifyEventsPublished wakes the dispatcher for a topic immediately after a
// publish, either directly or via the shared event bus if one was supplied.
func (m *Manager) NotifyEventsPublished(tenant, namespace, topic string) {
	if m.bus != nil {
		m.bus.Emit(publishedEventType, PublishedEvent{Tenant: tenant, Namespace: namespace, Topic: topic})
		return
	}
	m.wake(tenant, namespace, topic)
}

func (m *Manager) wake(tenant, namespace, topic string) {
	m.mu.Lock()
	d, ok := m.dispatchers[topicKey(tenant, namespace, topic)]
	m.mu.Unlock()
	if ok {
		d.Trigger()
	}
}
