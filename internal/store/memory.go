package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/fogfish/opts"
)

const defaultSweepInterval = 5 * time.Minute

var _ Store = (*Memory)(nil)

type entry struct {
	mu      sync.Mutex
	session Session
	deleted bool
}

// Memory is a process-local Store. Each session sits behind its own mutex inside
// a lock-free map, so there is no store-wide lock.
type Memory struct {
	sessions      *haxmap.Map[string, *entry]
	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

var (
	// WithRetention sets how long an untouched session stays resumable.
	WithRetention = opts.ForName[Memory, time.Duration]("retention")
	// WithSweepInterval sets how often the janitor looks for expired sessions.
	WithSweepInterval = opts.ForName[Memory, time.Duration]("sweepInterval")
	// WithClock replaces time.Now, for tests.
	WithClock = opts.ForName[Memory, func() time.Time]("now")
)

// NewMemory creates an empty in-memory store. Call Start to run the janitor.
func NewMemory(options ...opts.Option[Memory]) (*Memory, error) {
	m := &Memory{
		sessions:      haxmap.New[string, *entry](),
		retention:     DefaultRetention,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if err := opts.Apply(m, options); err != nil {
		return nil, err
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = defaultSweepInterval
	}
	return m, nil
}

func (m *Memory) Create(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.now()
	fresh := &entry{session: *session.Clone()}
	fresh.session.CreatedAt = now
	fresh.session.UpdatedAt = now

	current, loaded := m.sessions.GetOrSet(session.ID, fresh)
	if !loaded {
		return nil
	}

	current.mu.Lock()
	defer current.mu.Unlock()
	if !current.deleted && !expired(current.session.UpdatedAt, now, m.retention) {
		return ErrExists
	}
	// replace the stale entry; anyone still holding it sees deleted
	current.deleted = true
	m.sessions.Set(session.ID, fresh)
	return nil
}

// lookup returns the live entry for id with its mutex held.
func (m *Memory) lookup(id string) (*entry, error) {
	e, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	if e.deleted || expired(e.session.UpdatedAt, m.now(), m.retention) {
		e.mu.Unlock()
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (m *Memory) Append(ctx context.Context, id, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.session.Text += text
	e.session.UpdatedAt = m.now()
	return nil
}

func (m *Memory) SetModel(ctx context.Context, id, model string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.session.Model = model
	e.session.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	if e, ok := m.sessions.Get(id); ok {
		e.mu.Lock()
		m.remove(id, e)
		e.mu.Unlock()
	}
	return nil
}

// remove drops e from the map unless it was already replaced. The caller holds e.mu.
func (m *Memory) remove(id string, e *entry) {
	e.deleted = true
	if cur, ok := m.sessions.Get(id); ok && cur == e {
		m.sessions.Del(id)
	}
}

// Len reports how many sessions are held, including expired ones not yet swept.
func (m *Memory) Len() int {
	return int(m.sessions.Len())
}

// Sweep removes every session untouched for longer than the retention window
// and returns how many were removed. It only ever locks one entry at a time.
func (m *Memory) Sweep() int {
	now := m.now()
	var stale []string
	m.sessions.ForEach(func(id string, e *entry) bool {
		e.mu.Lock()
		if e.deleted || expired(e.session.UpdatedAt, now, m.retention) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
		return true
	})

	var removed int
	for _, id := range stale {
		e, ok := m.sessions.Get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		// the session may have been touched since it was collected
		if e.deleted || expired(e.session.UpdatedAt, now, m.retention) {
			m.remove(id, e)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Start runs the janitor until ctx is done or Close is called.
func (m *Memory) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.janitor(ctx)
	})
}

func (m *Memory) janitor(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("swept expired sessions", slog.Int("count", n), slogx.LoggerName("store.memory"))
			}
		}
	}
}

// Close stops the janitor started by Start and waits for it to exit.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
	return nil
}
