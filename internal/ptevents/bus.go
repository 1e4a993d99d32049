package ptevents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wkmp/wkmp-ap/internal/logging"
)

// Config holds bus configuration, mirroring internal/events.Config.
type Config struct {
	BufferSize int
	// Workers defaults to 1 if zero: per-passage event ordering (§4.13)
	// only holds with a single worker draining the channel. Raise it only
	// for a deployment that's certain its consumers don't care about
	// ordering across events.
	Workers int
	Enabled bool
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 1024,
		Workers:    1,
		Enabled:    true,
	}
}

// Stats mirrors internal/events.EventBusStats for this bus.
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

// Bus is the domain event bus: asynchronous, non-blocking publish, fanned
// out to every registered Consumer.
type Bus struct {
	eventChan chan Event

	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	initialized atomic.Bool
	running     atomic.Bool

	mu        sync.Mutex
	consumers []Consumer

	stats Stats

	logger *slog.Logger
}

var (
	globalBus   *Bus
	globalMutex sync.Mutex
)

// Initialize creates or returns the global domain event bus.
func Initialize(config *Config) (*Bus, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalBus != nil {
		return globalBus, nil
	}

	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return nil, nil
	}

	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		eventChan: make(chan Event, config.BufferSize),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.ForService("ptevents"),
	}
	b.initialized.Store(true)
	globalBus = b

	b.logger.Info("domain event bus initialized",
		"buffer_size", config.BufferSize,
		"workers", workers,
	)
	return b, nil
}

// GetBus returns the global domain event bus, or nil if uninitialized.
func GetBus() *Bus {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return globalBus
}

// IsInitialized reports whether the global bus has been created.
func IsInitialized() bool {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return globalBus != nil && globalBus.initialized.Load()
}

// New constructs a standalone bus, bypassing the global singleton. Tests
// and any composition root that wants an isolated bus (rather than the
// process-wide one) should use this instead of Initialize.
func New(config *Config) *Bus {
	if config == nil {
		config = DefaultConfig()
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		eventChan: make(chan Event, config.BufferSize),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.ForService("ptevents"),
	}
	b.initialized.Store(true)
	return b
}

// RegisterConsumer adds a consumer, starting the worker pool on the first
// registration.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil {
		return fmt.Errorf("ptevents: bus not initialized")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("ptevents: consumer %s already registered", consumer.Name())
		}
	}

	b.consumers = append(b.consumers, consumer)
	b.logger.Info("registered domain event consumer", "consumer", consumer.Name())

	if len(b.consumers) == 1 && !b.running.Load() {
		b.start()
	}
	return nil
}

// TryPublish attempts to publish an event without blocking the caller.
// Returns false if the bus is absent, not running, or its buffer is full.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil || !b.initialized.Load() || !b.running.Load() {
		return false
	}

	b.mu.Lock()
	hasConsumers := len(b.consumers) > 0
	b.mu.Unlock()
	if !hasConsumers {
		return false
	}

	select {
	case b.eventChan <- event:
		atomic.AddUint64(&b.stats.EventsReceived, 1)
		return true
	default:
		atomic.AddUint64(&b.stats.EventsDropped, 1)
		b.logger.Warn("domain event dropped, buffer full", "kind", event.Kind)
		return false
	}
}

func (b *Bus) start() {
	if b.running.Swap(true) {
		return
	}
	b.logger.Info("starting domain event bus workers", "count", b.workers)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	logger := b.logger.With("worker_id", id)

	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventChan:
			if !ok {
				return
			}
			b.processEvent(event, logger)
		}
	}
}

func (b *Bus) processEvent(event Event, logger *slog.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&b.stats.ConsumerErrors, 1)
					logger.Error("domain event consumer panicked",
						"consumer", consumer.Name(), "panic", r, "kind", event.Kind)
				}
			}()
			if err := consumer.ProcessEvent(event); err != nil {
				atomic.AddUint64(&b.stats.ConsumerErrors, 1)
				logger.Error("domain event consumer error",
					"consumer", consumer.Name(), "error", err, "kind", event.Kind)
				return
			}
			atomic.AddUint64(&b.stats.EventsProcessed, 1)
		}()
	}
}

// Shutdown stops accepting new events and waits for in-flight events to
// drain, up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || !b.initialized.Load() {
		return nil
	}
	b.running.Store(false)
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("ptevents: shutdown timeout exceeded")
	}
}

// GetStats returns a snapshot of the bus's counters.
func (b *Bus) GetStats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		EventsReceived:  atomic.LoadUint64(&b.stats.EventsReceived),
		EventsProcessed: atomic.LoadUint64(&b.stats.EventsProcessed),
		EventsDropped:   atomic.LoadUint64(&b.stats.EventsDropped),
		ConsumerErrors:  atomic.LoadUint64(&b.stats.ConsumerErrors),
	}
}
