package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/igz0/resonite-online-checker-cli/internal/signalr"
	"github.com/igz0/resonite-online-checker-cli/internal/status"
)

var ErrConnectFailed = errors.New("channel connect failed")

type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Failed       State = "failed"
)

// Connection is the real-time channel capability. internal/signalr provides
// the production implementation; tests substitute fakes.
type Connection interface {
	Start(ctx context.Context) error
	Invoke(ctx context.Context, target string, args ...any) error
	On(target string, h signalr.Handler)
	Done() <-chan error
	Stop(ctx context.Context) error
}

// SnapshotRefresher is the session cache surface the manager drives.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) error
}

// StatusConsumer receives presence events decoded off the channel.
type StatusConsumer interface {
	OnStatusEvent(ev status.Event)
}

// Authenticator ends the REST session during teardown.
type Authenticator interface {
	Logout(ctx context.Context)
}

// Manager owns the channel lifecycle: bounded connect retries, the
// status-sync handshake, and ordered teardown.
type Manager struct {
	conn     Connection
	cache    SnapshotRefresher
	statuses StatusConsumer
	auth     Authenticator
	log      *zap.Logger

	attempts int
	delay    time.Duration
	sleep    func(time.Duration)

	mu    sync.Mutex
	state State
}

func NewManager(conn Connection, cache SnapshotRefresher, statuses StatusConsumer, auth Authenticator, attempts int, delay time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		conn:     conn,
		cache:    cache,
		statuses: statuses,
		auth:     auth,
		log:      log,
		attempts: attempts,
		delay:    delay,
		sleep:    time.Sleep,
		state:    Disconnected,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Connect opens the channel and performs the status-sync handshake. The hub
// only starts pushing presence events after InitializeStatus and
// RequestStatus, and the first snapshot must land in between so the first
// reconciled table does not classify everyone as private.
func (m *Manager) Connect(ctx context.Context) error {
	m.registerHandlers()
	m.setState(Connecting)

	if err := m.startWithRetry(ctx); err != nil {
		m.setState(Failed)
		return err
	}
	m.setState(Connected)

	if err := m.conn.Invoke(ctx, "InitializeStatus"); err != nil {
		m.setState(Failed)
		return fmt.Errorf("%w: InitializeStatus: %v", ErrConnectFailed, err)
	}

	if err := m.cache.Refresh(ctx); err != nil {
		// Recoverable: the timer retries, first statuses may read Private.
		m.log.Warn("initial session refresh failed", zap.Error(err))
	}

	if err := m.conn.Invoke(ctx, "RequestStatus", nil, false); err != nil {
		m.setState(Failed)
		return fmt.Errorf("%w: RequestStatus: %v", ErrConnectFailed, err)
	}

	return nil
}

func (m *Manager) startWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if attempt > 1 {
			m.sleep(m.delay)
		}
		lastErr = m.conn.Start(ctx)
		if lastErr == nil {
			return nil
		}
		m.log.Warn("channel connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("of", m.attempts),
			zap.Error(lastErr))
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConnectFailed, m.attempts, lastErr)
}

func (m *Manager) registerHandlers() {
	// Reserved by the hub; nothing to do with them yet.
	m.conn.On("debug", func(json.RawMessage) {})
	m.conn.On("receivesessionupdate", func(json.RawMessage) {})
	m.conn.On("removesession", func(json.RawMessage) {})
	m.conn.On("sendstatustouser", func(json.RawMessage) {})

	m.conn.On("receivestatusupdate", func(payload json.RawMessage) {
		var ev status.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			m.log.Debug("dropping malformed status update", zap.Error(err))
			return
		}
		m.statuses.OnStatusEvent(ev)
	})
}

// Done surfaces the channel's terminal error.
func (m *Manager) Done() <-chan error { return m.conn.Done() }

// Stop closes the channel and ends the REST session. The refresh timer is
// cancelled by the caller before this runs. Each step's failure is isolated
// so a dead channel never blocks the logout.
func (m *Manager) Stop(ctx context.Context) {
	if err := m.conn.Stop(ctx); err != nil {
		m.log.Warn("closing channel failed", zap.Error(err))
	}

	m.auth.Logout(ctx)
	m.setState(Disconnected)
}
