package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"nhooyr.io/websocket"

	"github.com/roostlabs/roost/internal/config"
	"github.com/roostlabs/roost/internal/live"
	"github.com/roostlabs/roost/internal/models"
	"github.com/roostlabs/roost/internal/ops"
)

// State is the lifecycle state of the push channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is the minimal surface the manager needs from a channel
// connection. The production implementation wraps a websocket; tests
// substitute a fake.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// DialFunc establishes a channel connection.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Manager owns the single push-channel connection for the process.
// Connect is idempotent: no matter how many callers invoke it, at most
// one live channel exists. Reconnection is manual, driven entirely by
// the manager's backoff timer, so attempt counting is deterministic.
type Manager struct {
	url        string
	backoffMin time.Duration
	backoffMax time.Duration
	agg        *live.Aggregator
	logger     *ops.Logger
	dial       DialFunc

	mu      sync.Mutex
	state   State
	attempt int
	conn    Conn
	gen     uint64 // bumped on Disconnect; stale pumps and timers check it
	timer   *time.Timer
	cancel  context.CancelFunc
}

// NewManager creates a push manager feeding the given aggregator.
func NewManager(cfg *config.Push, agg *live.Aggregator, logger *ops.Logger) *Manager {
	backoffMin := time.Duration(cfg.BackoffMinMs) * time.Millisecond
	if backoffMin <= 0 {
		backoffMin = time.Second
	}
	backoffMax := time.Duration(cfg.BackoffMaxMs) * time.Millisecond
	if backoffMax <= 0 {
		backoffMax = 30 * time.Second
	}
	if logger == nil {
		logger = ops.Default()
	}
	return &Manager{
		url:        cfg.URL,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		agg:        agg,
		logger:     logger.WithComponent("push"),
		dial:       dialWebsocket,
	}
}

// dialWebsocket is the production dialer.
func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(1 << 20)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "disconnect")
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the reconnect attempt counter. It resets to zero only
// on a successful connect.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Connect starts the push channel if none is active. Calling it while
// connecting or connected is a no-op.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	if m.url == "" {
		m.mu.Unlock()
		return
	}
	m.state = Connecting
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	gen := m.gen
	m.mu.Unlock()

	go m.establish(ctx, gen)
}

// NotifyVisible is the hook for the host UI becoming visible again.
func (m *Manager) NotifyVisible() {
	m.Connect()
}

// NotifyOnline is the hook for the network transitioning back online.
func (m *Manager) NotifyOnline() {
	m.Connect()
}

// Disconnect tears down the channel and clears all derived live state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.agg.Reset()
	m.logger.LogConnection(Disconnected.String(), 0, nil)
}

// establish dials the channel and starts the read pump.
func (m *Manager) establish(ctx context.Context, gen uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, err := m.dial(dialCtx, m.url)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		attempt := m.attempt
		m.mu.Unlock()
		m.logger.LogConnection(Connecting.String(), attempt, err)
		m.scheduleReconnect(gen)
		return
	}
	m.conn = conn
	m.state = Connected
	m.attempt = 0
	m.mu.Unlock()

	m.logger.LogConnection(Connected.String(), 0, nil)
	m.readPump(ctx, conn, gen)
}

// readPump consumes messages until the connection fails or is superseded.
func (m *Manager) readPump(ctx context.Context, conn Conn, gen uint64) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			attempt := m.attempt
			m.mu.Unlock()

			m.logger.LogConnection(Disconnected.String(), attempt, err)
			m.scheduleReconnect(gen)
			return
		}
		m.handleMessage(data)
	}
}

// scheduleReconnect arms the backoff timer and increments the attempt
// counter. delay = min(backoffMin * 2^attempt, backoffMax).
func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	delay := m.backoff(m.attempt)
	m.attempt++
	m.state = Connecting
	m.timer = time.AfterFunc(delay, func() { m.redial(gen) })
	m.mu.Unlock()

	m.logger.LogReconnectScheduled(m.Attempt(), delay)
}

// redial is the timer callback for a reconnect attempt.
func (m *Manager) redial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.establish(ctx, gen)
}

// backoff computes the reconnect delay for a given attempt number.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.backoffMin
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= m.backoffMax {
			return m.backoffMax
		}
	}
	if delay > m.backoffMax {
		return m.backoffMax
	}
	return delay
}

// handleMessage routes one wire message to the aggregator. The envelope
// is {"event": <name>, "data": <payload>}.
func (m *Manager) handleMessage(data []byte) {
	name := gjson.GetBytes(data, "event").String()
	payload := gjson.GetBytes(data, "data")
	if name == "" || !payload.Exists() {
		m.logger.LogEventDropped(name, "malformed envelope")
		return
	}

	switch name {
	case EventNewPost:
		var post models.Post
		if err := decodePayload(payload.Raw, &post); err != nil {
			m.logger.LogEventDropped(name, err.Error())
			return
		}
		m.agg.AddPost(post)

	case EventEngagement:
		var ev EngagementEvent
		if err := decodePayload(payload.Raw, &ev); err != nil {
			m.logger.LogEventDropped(name, err.Error())
			return
		}
		m.agg.SetDelta(ev.PostID, ev.EngagementCounts)

	case EventPresence:
		var ev PresenceEvent
		if err := decodePayload(payload.Raw, &ev); err != nil {
			m.logger.LogEventDropped(name, err.Error())
			return
		}
		m.agg.SetOnline(ev.Handle, ev.Online)

	case EventTrending:
		var ev TrendingEvent
		if err := decodePayload(payload.Raw, &ev); err != nil {
			m.logger.LogEventDropped(name, err.Error())
			return
		}
		m.agg.SetTrending(ev.Tags)

	default:
		// DMs, tips, and future event kinds are not this component's
		// concern.
		m.logger.LogEventDropped(name, "unhandled event")
	}
}

func decodePayload(raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
