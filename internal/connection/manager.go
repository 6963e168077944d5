package connection

import (
	"fmt"
	"sync"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// ClientInfo holds registry metadata about a connected weather station,
// layered on top of a *Conn (adapted from the teacher's ClientInfo, whose
// Conn field held a raw net.Conn; here it holds the full engine-backed
// Conn so callers can reach TryReceive/EnqueueSend/Close through it).
type ClientInfo struct {
	ConnectionID  string
	StationID     string
	City          string
	ConnectedAt   time.Time
	LastHeardFrom time.Time
	Conn          *Conn
	mu            sync.RWMutex
}

// UpdateLastHeardFrom updates the last activity timestamp.
func (c *ClientInfo) UpdateLastHeardFrom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastHeardFrom = time.Now()
}

// GetLastHeardFrom returns the last activity timestamp.
func (c *ClientInfo) GetLastHeardFrom() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastHeardFrom
}

// Manager is the registry of active weather-station connections, grouped
// by station ID for lookups such as "which connections serve station X"
// (generalized from the teacher's byStationID grouping).
type Manager struct {
	clients   map[string]*ClientInfo // key: connection_id
	byStation map[string][]string    // key: station ID, value: []connection_id
	mu        sync.RWMutex
	maxConns  int
	log       nlog.Logger
}

// NewManager creates a new connection manager. log receives diagnostics
// from ReapInactive/CloseAll; a nil log is replaced with nlog.NopLogger.
func NewManager(maxConnections int, log nlog.Logger) *Manager {
	if log == nil {
		log = nlog.NopLogger{}
	}
	return &Manager{
		clients:   make(map[string]*ClientInfo),
		byStation: make(map[string][]string),
		maxConns:  maxConnections,
		log:       log,
	}
}

// Register adds a new client connection.
func (m *Manager) Register(connectionID, stationID, city string, conn *Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.clients) >= m.maxConns {
		return ErrMaxConnectionsReached
	}
	if _, exists := m.clients[connectionID]; exists {
		return fmt.Errorf("connection ID %s already registered", connectionID)
	}

	now := time.Now()
	clientInfo := &ClientInfo{
		ConnectionID:  connectionID,
		StationID:     stationID,
		City:          city,
		ConnectedAt:   now,
		LastHeardFrom: now,
		Conn:          conn,
	}

	m.clients[connectionID] = clientInfo
	m.byStation[stationID] = append(m.byStation[stationID], connectionID)

	return nil
}

// Unregister removes a client connection.
func (m *Manager) Unregister(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, exists := m.clients[connectionID]
	if !exists {
		return fmt.Errorf("connection ID %s not found", connectionID)
	}

	stationID := client.StationID
	if connIDs, ok := m.byStation[stationID]; ok {
		for i, id := range connIDs {
			if id == connectionID {
				m.byStation[stationID] = append(connIDs[:i], connIDs[i+1:]...)
				break
			}
		}
		if len(m.byStation[stationID]) == 0 {
			delete(m.byStation, stationID)
		}
	}

	delete(m.clients, connectionID)
	return nil
}

// Get retrieves client information by connection ID.
func (m *Manager) Get(connectionID string) (*ClientInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[connectionID]
	return client, exists
}

// GetByStation retrieves all connection IDs registered for a station.
func (m *Manager) GetByStation(stationID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connIDs := m.byStation[stationID]
	result := make([]string, len(connIDs))
	copy(result, connIDs)
	return result
}

// UpdateActivity updates the last-heard-from timestamp for a connection.
func (m *Manager) UpdateActivity(connectionID string) error {
	m.mu.RLock()
	client, exists := m.clients[connectionID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("connection ID %s not found", connectionID)
	}

	client.UpdateLastHeardFrom()
	return nil
}

// GetInactiveConnections returns connection IDs not heard from within timeout.
func (m *Manager) GetInactiveConnections(timeout time.Duration) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var inactive []string

	for connID, client := range m.clients {
		if now.Sub(client.GetLastHeardFrom()) > timeout {
			inactive = append(inactive, connID)
		}
	}

	return inactive
}

// ReapInactive closes and unregisters every connection not heard from
// within timeout, logging each eviction. It is a backstop against the
// per-connection inactivity timer (internal/server's scheduleInactivityTimer)
// missing a connection that stalls without ever producing a read error —
// a half-open socket the OS never reports as reset, say.
func (m *Manager) ReapInactive(timeout time.Duration) int {
	reaped := 0
	for _, connID := range m.GetInactiveConnections(timeout) {
		client, exists := m.Get(connID)
		if !exists {
			continue
		}
		m.log.Warnf("reaping inactive connection %s (station=%s, idle since %s)",
			connID, client.StationID, client.GetLastHeardFrom().Format(time.RFC3339))
		client.Conn.Close()
		m.Unregister(connID)
		reaped++
	}
	return reaped
}

// CloseAll closes and unregisters every currently registered connection. It
// is the graceful-shutdown counterpart to Register: internal/server's
// listener close only stops new connections from arriving, so a caller
// that wants every in-flight station uplink drained before the process
// exits calls CloseAll after stopping accept.
func (m *Manager) CloseAll() int {
	closed := 0
	for _, connID := range m.GetAllConnections() {
		client, exists := m.Get(connID)
		if !exists {
			continue
		}
		client.Conn.Close()
		m.Unregister(connID)
		closed++
	}
	return closed
}

// Count returns the total number of active connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CountByStation returns the number of active connections per station.
func (m *Manager) CountByStation() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int)
	for stationID, connIDs := range m.byStation {
		result[stationID] = len(connIDs)
	}
	return result
}

// GetAllConnections returns all connection IDs.
func (m *Manager) GetAllConnections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connIDs := make([]string, 0, len(m.clients))
	for connID := range m.clients {
		connIDs = append(connIDs, connID)
	}
	return connIDs
}

// Stats returns statistics about the connection manager.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		TotalConnections: len(m.clients),
		UniqueStations:   len(m.byStation),
		MaxConnections:   m.maxConns,
	}
}

// ManagerStats contains statistics about the connection manager.
type ManagerStats struct {
	TotalConnections int
	UniqueStations   int
	MaxConnections   int
}

var ErrMaxConnectionsReached = &ConnectionError{"maximum connections reached"}

// ConnectionError represents a connection-registry error.
type ConnectionError struct {
	msg string
}

func (e *ConnectionError) Error() string { return e.msg }
