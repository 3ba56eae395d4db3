package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"movievault/internal/logging"
	"movievault/internal/metrics"
	"movievault/internal/models"
)

var (
	ErrDispatcherBusy = errors.New("user event queue full")
	ErrStopped        = errors.New("event manager stopped")
)

const (
	defaultQueueSize  = 32
	defaultWorkerIdle = 10 * time.Minute
	defaultJobTimeout = time.Minute
	minReapInterval   = 10 * time.Millisecond
	maxReapInterval   = time.Minute
)

// Handler processes one inbound event.
type Handler interface {
	Handle(ctx context.Context, ev models.Event) error
}

type Config struct {
	QueueSize   int
	IdleTimeout time.Duration
	JobTimeout  time.Duration
}

// Manager runs one goroutine per active user so that a user's events are
// handled strictly in arrival order while different users proceed in
// parallel. Idle workers are retired by Serve.
type Manager struct {
	handler Handler
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	workers map[int64]*workerState
	stopped bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

type workerState struct {
	events chan models.Event
	stopCh chan struct{}
	// pending and lastUsed are guarded by Manager.mu.
	pending  int
	lastUsed time.Time
}

func NewManager(handler Handler, cfg Config) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultWorkerIdle
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		handler: handler,
		cfg:     cfg,
		now:     time.Now,
		workers: make(map[int64]*workerState),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Submit queues ev on its user's worker without blocking.
func (m *Manager) Submit(ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	state := m.ensureWorkerLocked(ev.UserID)
	select {
	case state.events <- ev:
		state.pending++
		state.lastUsed = m.now()
		return nil
	default:
		metrics.EventsDropped.Inc()
		return ErrDispatcherBusy
	}
}

// Stop retires the user's worker, dropping anything still queued.
func (m *Manager) Stop(userID int64) {
	m.mu.Lock()
	if state, ok := m.workers[userID]; ok {
		close(state.stopCh)
		delete(m.workers, userID)
		metrics.ActiveWorkers.Dec()
	}
	m.mu.Unlock()
}

// Len returns the number of live workers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Serve retires idle workers until ctx is cancelled, then stops every worker
// and waits for in-flight events to finish.
func (m *Manager) Serve(ctx context.Context) error {
	m.running.Store(true)
	defer m.running.Store(false)

	interval := m.cfg.IdleTimeout / 2
	if interval < minReapInterval {
		interval = minReapInterval
	}
	if interval > maxReapInterval {
		interval = maxReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if n := m.reapIdle(); n > 0 {
				logging.Debug().Int("retired", n).Msg("idle event workers retired")
			}
		}
	}
}

// Alive reports whether Serve is running.
func (m *Manager) Alive() bool {
	return m.running.Load()
}

func (m *Manager) String() string {
	return "event-manager"
}

func (m *Manager) ensureWorkerLocked(userID int64) *workerState {
	if state, ok := m.workers[userID]; ok {
		return state
	}
	state := &workerState{
		events:   make(chan models.Event, m.cfg.QueueSize),
		stopCh:   make(chan struct{}),
		lastUsed: m.now(),
	}
	m.workers[userID] = state
	metrics.ActiveWorkers.Inc()
	m.wg.Add(1)
	go m.runWorker(userID, state)
	return state
}

func (m *Manager) runWorker(userID int64, state *workerState) {
	defer m.wg.Done()
	for {
		select {
		case <-state.stopCh:
			return
		case ev := <-state.events:
			m.handle(userID, ev)
			m.mu.Lock()
			state.pending--
			state.lastUsed = m.now()
			m.mu.Unlock()
		}
	}
}

func (m *Manager) handle(userID int64, ev models.Event) {
	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.JobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Int64("user_id", userID).
				Str("kind", string(ev.Kind)).
				Msg("event handler panicked")
		}
	}()
	if err := m.handler.Handle(ctx, ev); err != nil {
		logging.Warn().Err(err).
			Int64("user_id", userID).
			Int64("chat_id", ev.ChatID).
			Str("kind", string(ev.Kind)).
			Msg("event handling failed")
	}
}

// reapIdle retires workers with nothing queued that have been idle for the
// configured timeout. Holding mu while checking pending guarantees no
// event is in flight, so a later Submit cannot race an old worker.
func (m *Manager) reapIdle() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	retired := 0
	for id, state := range m.workers {
		if state.pending == 0 && now.Sub(state.lastUsed) >= m.cfg.IdleTimeout {
			close(state.stopCh)
			delete(m.workers, id)
			metrics.ActiveWorkers.Dec()
			retired++
		}
	}
	return retired
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	m.stopped = true
	for id, state := range m.workers {
		close(state.stopCh)
		delete(m.workers, id)
		metrics.ActiveWorkers.Dec()
	}
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}
