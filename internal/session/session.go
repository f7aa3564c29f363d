// Package session keeps one cart and order history per signed-in customer.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xenking/easyeat/internal/domain/auth"
	"github.com/xenking/easyeat/internal/domain/cart"
	"github.com/xenking/easyeat/internal/domain/order"
	"github.com/xenking/easyeat/internal/storage/localstore"
)

// Session is the state of one customer between sign-in and sign-out.
type Session struct {
	Identity auth.Identity
	Cart     *cart.Cart
	History  *order.HistoryStore

	holder   *auth.Holder
	stopPoll context.CancelFunc
	pollDone chan struct{}
	lastSeen time.Time
}

// Config tunes the Manager.
type Config struct {
	History order.Config
	// PollInterval of zero disables background refresh.
	PollInterval time.Duration
}

// Manager owns the live sessions.
type Manager struct {
	cfg    Config
	orders order.Repository
	store  localstore.Store
	opts   order.Options
	lg     *zap.Logger
	clock  clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. Each session's local history lives in store
// under a key prefix of the customer id.
func NewManager(cfg Config, orders order.Repository, store localstore.Store, opts order.Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Manager{
		cfg:      cfg,
		orders:   orders,
		store:    store,
		opts:     opts,
		lg:       opts.Logger.Named("session"),
		clock:    opts.Clock,
		sessions: make(map[string]*Session),
	}
}

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("session manager closed")

// Acquire returns the session of id, creating it on first use. A new session
// restores its local history and starts refreshing the remote one. The
// restore runs outside the manager lock; when two calls race for the same
// customer the first one to finish wins.
func (m *Manager) Acquire(ctx context.Context, id auth.Identity) (*Session, error) {
	if id.ID == "" {
		return nil, errors.New("empty identity")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[id.ID]; ok {
		s.lastSeen = m.clock.Now()
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	holder := auth.NewHolder(id)
	history := order.NewHistoryStore(m.cfg.History, holder, m.orders,
		localstore.Prefixed(m.store, id.ID), m.opts)
	if err := history.Load(ctx); err != nil {
		m.lg.Warn("Load local history failed", zap.String("customer_id", id.ID), zap.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		history.Close()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[id.ID]; ok {
		history.Close()
		s.lastSeen = m.clock.Now()
		return s, nil
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		Identity: id,
		Cart:     cart.New(),
		History:  history,
		holder:   holder,
		stopPoll: cancel,
		pollDone: make(chan struct{}),
		lastSeen: m.clock.Now(),
	}
	go func() {
		defer close(s.pollDone)
		_ = history.Refresh(pollCtx)
		history.Poll(pollCtx, m.cfg.PollInterval)
	}()

	m.sessions[id.ID] = s
	m.lg.Info("Session started", zap.String("customer_id", id.ID))
	return s, nil
}

// Release ends the session of customerID. Unknown ids are ignored.
func (m *Manager) Release(customerID string) {
	m.mu.Lock()
	s, ok := m.sessions[customerID]
	delete(m.sessions, customerID)
	m.mu.Unlock()

	if ok {
		s.close()
		m.lg.Info("Session ended", zap.String("customer_id", customerID))
	}
}

// Sweep ends sessions not acquired for longer than maxIdle and returns how
// many were ended.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	now := m.clock.Now()

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > maxIdle {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := m.Sweep(maxIdle); n > 0 {
				m.lg.Info("Idle sessions ended", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every session and rejects new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (s *Session) close() {
	s.stopPoll()
	<-s.pollDone
	s.holder.SignOut()
	s.History.Close()
}
