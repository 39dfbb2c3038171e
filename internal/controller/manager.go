// Package controller runs reconciliation loops over stored resources: the
// run controller executes Pending workflow runs submitted through the API
// and the reaper fails runs that stopped making progress.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// Reconciler processes a single resource key.
type Reconciler interface {
	Reconcile(ctx context.Context, key string) error
}

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

type workItem struct {
	key       string
	nextRetry time.Time
}

// WorkQueue is a de-duplicating queue with per-key exponential backoff.
// A key added while it is being processed is queued again on Done, so no
// event is lost and no key is processed by two workers at once.
type WorkQueue struct {
	mu         sync.Mutex
	items      []workItem
	dirty      map[string]bool
	processing map[string]bool
	backoffs   map[string]*backoff.ExponentialBackOff
	notify     chan struct{}
	closed     bool

	initial time.Duration
	max     time.Duration
}

// NewWorkQueue creates a queue whose Requeue delay starts at initial and
// doubles up to max.
func NewWorkQueue(initial, max time.Duration) *WorkQueue {
	return &WorkQueue{
		dirty:      make(map[string]bool),
		processing: make(map[string]bool),
		backoffs:   make(map[string]*backoff.ExponentialBackOff),
		notify:     make(chan struct{}, 1),
		initial:    initial,
		max:        max,
	}
}

// Add enqueues key for immediate processing.
func (q *WorkQueue) Add(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.processing[key] {
		q.dirty[key] = true
		return
	}
	for _, item := range q.items {
		if item.key == key {
			return
		}
	}
	q.push(workItem{key: key})
}

// push appends an item and wakes one waiter. Callers hold q.mu.
func (q *WorkQueue) push(item workItem) {
	q.items = append(q.items, item)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get blocks until an item is ready or the queue is closed, in which case
// it returns ("", false).
func (q *WorkQueue) Get() (string, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return "", false
		}

		now := time.Now()
		var wait time.Duration
		for i, item := range q.items {
			if !now.Before(item.nextRetry) {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.processing[item.key] = true
				delete(q.dirty, item.key)
				q.mu.Unlock()
				return item.key, true
			}
			if d := item.nextRetry.Sub(now); wait == 0 || d < wait {
				wait = d
			}
		}
		notify := q.notify
		q.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-notify:
			case <-timer.C:
			}
			timer.Stop()
		} else {
			<-notify
		}
	}
}

// Done marks key processed and clears its failure count.
func (q *WorkQueue) Done(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, key)
	delete(q.backoffs, key)
	if q.dirty[key] && !q.closed {
		delete(q.dirty, key)
		q.push(workItem{key: key})
	}
}

// Requeue schedules key again after its next backoff delay.
func (q *WorkQueue) Requeue(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, key)
	delete(q.dirty, key)
	if q.closed {
		return
	}
	q.push(workItem{key: key, nextRetry: time.Now().Add(q.backoffFor(key).NextBackOff())})
}

// backoffFor returns key's backoff, creating one on its first failure. Done
// drops it, so the next failure starts again from initial.
func (q *WorkQueue) backoffFor(key string) *backoff.ExponentialBackOff {
	b, ok := q.backoffs[key]
	if !ok {
		b = &backoff.ExponentialBackOff{
			InitialInterval: q.initial,
			Multiplier:      2,
			MaxInterval:     q.max,
		}
		b.Reset()
		q.backoffs[key] = b
	}
	return b
}

func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close shuts down the queue, unblocking any pending Get calls.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// ---------------------------------------------------------------------------
// Controller Manager
// ---------------------------------------------------------------------------

// Controller describes one reconciliation loop.
type Controller struct {
	Name       string
	Reconciler Reconciler
	// Kinds are watched; every mutation enqueues its key.
	Kinds []string
	// Seed lists keys to enqueue at start and on every Resync tick.
	Seed    func() ([]string, error)
	Resync  time.Duration
	Workers int
}

// Manager runs registered controllers until Stop or ctx cancellation.
type Manager struct {
	store       store.Store
	controllers []*controllerRunner
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type controllerRunner struct {
	Controller
	queue  *WorkQueue
	cancel context.CancelFunc
}

func NewManager(s store.Store, logger *zap.Logger) *Manager {
	return &Manager{store: s, logger: logger}
}

func (m *Manager) Register(c Controller) {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	m.controllers = append(m.controllers, &controllerRunner{
		Controller: c,
		queue:      NewWorkQueue(initialBackoff, maxBackoff),
	})
}

// Start launches watchers, the resync loop and workers for every
// controller. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	for _, cr := range m.controllers {
		cCtx, cancel := context.WithCancel(ctx)
		cr.cancel = cancel

		m.logger.Info("starting controller",
			zap.String("controller", cr.Name),
			zap.Strings("watchKinds", cr.Kinds),
			zap.Int("workers", cr.Workers),
		)

		for _, kind := range cr.Kinds {
			eventCh, cancelWatch := m.store.Watch(store.KindPrefix(kind, ""))
			m.wg.Add(1)
			go m.watchLoop(cCtx, cr, eventCh, cancelWatch)
		}
		if cr.Seed != nil {
			m.seed(cr)
			if cr.Resync > 0 {
				m.wg.Add(1)
				go m.resyncLoop(cCtx, cr)
			}
		}
		for i := 0; i < cr.Workers; i++ {
			m.wg.Add(1)
			go m.workerLoop(cCtx, cr)
		}
	}
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, cr *controllerRunner, eventCh <-chan v1alpha1.WatchEvent, cancelWatch func()) {
	defer m.wg.Done()
	defer cancelWatch()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if event.Type == v1alpha1.EventDeleted {
				continue
			}
			m.logger.Debug("watch event received",
				zap.String("controller", cr.Name),
				zap.String("type", string(event.Type)),
				zap.String("key", event.Key),
			)
			cr.queue.Add(event.Key)
		}
	}
}

func (m *Manager) resyncLoop(ctx context.Context, cr *controllerRunner) {
	defer m.wg.Done()
	ticker := time.NewTicker(cr.Resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.seed(cr)
		}
	}
}

func (m *Manager) seed(cr *controllerRunner) {
	keys, err := cr.Seed()
	if err != nil {
		m.logger.Warn("controller seed failed", zap.String("controller", cr.Name), zap.Error(err))
		return
	}
	for _, key := range keys {
		cr.queue.Add(key)
	}
}

func (m *Manager) workerLoop(ctx context.Context, cr *controllerRunner) {
	defer m.wg.Done()
	for {
		key, ok := cr.queue.Get()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			cr.queue.Done(key)
			return
		}

		m.logger.Debug("reconciling", zap.String("controller", cr.Name), zap.String("key", key))
		if err := cr.Reconciler.Reconcile(ctx, key); err != nil {
			m.logger.Error("reconcile failed",
				zap.String("controller", cr.Name),
				zap.String("key", key),
				zap.Error(err),
			)
			cr.queue.Requeue(key)
			continue
		}
		cr.queue.Done(key)
	}
}

// Stop cancels every controller and waits for in-flight reconciles.
func (m *Manager) Stop() {
	for _, cr := range m.controllers {
		m.logger.Info("stopping controller", zap.String("controller", cr.Name))
		if cr.cancel != nil {
			cr.cancel()
		}
		cr.queue.Close()
	}
	m.wg.Wait()
}
