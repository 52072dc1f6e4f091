package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// heartbeatInterval is how often the manager pings every client. A client
// that fails its ping is torn down.
const heartbeatInterval = 30 * time.Second

// pingTimeout bounds how long a heartbeat ping may wait for its pong.
const pingTimeout = 10 * time.Second

// ConnectionManager manages WebSocket dashboard connections and
// broadcasts anomaly notifications to all of them.
//
// The clients set is mutated from accept, teardown, and the heartbeat
// timer; all three run on different goroutines, so access is guarded by
// a mutex.
type ConnectionManager struct {
	clients      map[string]*wsClient
	mu           sync.RWMutex
	writeTimeout time.Duration
	logger       *slog.Logger
}

// wsClient is a single connected dashboard.
type wsClient struct {
	id        string
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnectionManager creates a manager with the given per-client write
// timeout.
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		clients:      make(map[string]*wsClient),
		writeTimeout: writeTimeout,
		logger:       slog.Default().With("component", "ws-manager"),
	}
}

// HandleConnection manages the lifecycle of one upgraded connection.
// Blocks until the connection closes. The read loop discards inbound
// data frames; reading is what lets the library answer pings, deliver
// pongs, and complete the close handshake.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &wsClient{
		id:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()
	m.logger.Debug("WebSocket client connected", "client_id", c.id)

	defer m.teardown(c, "read loop ended")

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// RunHeartbeat pings every client on a fixed interval until ctx is
// cancelled. Clients that fail the ping are torn down; any inbound frame
// or pong between sweeps keeps a client alive.
func (m *ConnectionManager) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range m.snapshot() {
				go m.pingClient(c)
			}
		}
	}
}

func (m *ConnectionManager) pingClient(c *wsClient) {
	pingCtx, cancel := context.WithTimeout(c.ctx, pingTimeout)
	defer cancel()
	if err := c.conn.Ping(pingCtx); err != nil {
		m.logger.Debug("Heartbeat failed, closing client",
			"client_id", c.id, "error", err)
		m.teardown(c, "heartbeat failed")
	}
}

// BroadcastAnomaly encodes the anomaly envelope once and writes it to
// every client. A per-client write failure tears down that client only.
// Returns the number of clients written.
func (m *ConnectionManager) BroadcastAnomaly(msg AnomalyMessage) int {
	payload, err := json.Marshal(map[string]string{
		"type":        "anomaly",
		"severity":    msg.Severity,
		"message":     msg.Message,
		"detected_at": msg.DetectedAt,
		"anomaly_id":  msg.AnomalyID,
		"rule_id":     msg.RuleID,
	})
	if err != nil {
		m.logger.Error("Failed to marshal anomaly broadcast", "error", err)
		return 0
	}

	sent := 0
	for _, c := range m.snapshot() {
		if err := m.send(c, payload); err != nil {
			m.logger.Warn("Broadcast write failed, closing client",
				"client_id", c.id, "error", err)
			m.teardown(c, "write failed")
			continue
		}
		sent++
	}
	m.logger.Debug("Anomaly broadcast", "clients", sent, "anomaly_id", msg.AnomalyID)
	return sent
}

// ActiveConnections returns the number of connected clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll tears down every client. Used at shutdown.
func (m *ConnectionManager) CloseAll() {
	for _, c := range m.snapshot() {
		m.teardown(c, "server shutting down")
	}
}

// snapshot copies client pointers so sends never hold the set lock.
func (m *ConnectionManager) snapshot() []*wsClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]*wsClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	return clients
}

func (m *ConnectionManager) send(c *wsClient, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, payload)
}

// teardown removes the client and closes its socket. Idempotent: the
// read loop, a failed write, the heartbeat, and shutdown may all race to
// close the same client.
func (m *ConnectionManager) teardown(c *wsClient, reason string) {
	c.closeOnce.Do(func() {
		m.mu.Lock()
		delete(m.clients, c.id)
		m.mu.Unlock()

		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, reason)
		m.logger.Debug("WebSocket client closed", "client_id", c.id, "reason", reason)
	})
}
