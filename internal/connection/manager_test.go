package connection

import (
	"net"
	"testing"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

func testConn(t *testing.T) *Conn {
	t.Helper()
	a, _ := net.Pipe()
	t.Cleanup(func() { a.Close() })
	return newConn(a, RoleClient, DefaultTunables(), nlog.NopLogger{})
}

func TestManager_Register(t *testing.T) {
	m := NewManager(10, nil)
	conn := testConn(t)

	err := m.Register("conn1", "WXK-90210", "Beverly Hills", conn)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if m.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", m.Count())
	}

	client, exists := m.Get("conn1")
	if !exists {
		t.Fatal("Client not found")
	}

	if client.StationID != "WXK-90210" {
		t.Errorf("Expected station WXK-90210, got %s", client.StationID)
	}
}

func TestManager_RegisterMaxConnections(t *testing.T) {
	m := NewManager(2, nil)
	conn := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn2", "WXK-33139", "Miami Beach", conn)

	err := m.Register("conn3", "WXK-10001", "New York", conn)
	if err != ErrMaxConnectionsReached {
		t.Errorf("Expected ErrMaxConnectionsReached, got %v", err)
	}
}

func TestManager_Unregister(t *testing.T) {
	m := NewManager(10, nil)
	conn := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn2", "WXK-90210", "Beverly Hills", conn)

	err := m.Unregister("conn1")
	if err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	if m.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", m.Count())
	}

	connIDs := m.GetByStation("WXK-90210")
	if len(connIDs) != 1 {
		t.Errorf("Expected 1 connection for station, got %d", len(connIDs))
	}
}

func TestManager_GetByStation(t *testing.T) {
	m := NewManager(10, nil)
	conn := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn2", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn3", "WXK-33139", "Miami Beach", conn)

	connIDs := m.GetByStation("WXK-90210")
	if len(connIDs) != 2 {
		t.Errorf("Expected 2 connections for WXK-90210, got %d", len(connIDs))
	}

	connIDs = m.GetByStation("WXK-33139")
	if len(connIDs) != 1 {
		t.Errorf("Expected 1 connection for WXK-33139, got %d", len(connIDs))
	}
}

func TestManager_UpdateActivity(t *testing.T) {
	m := NewManager(10, nil)
	conn := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn)

	client, _ := m.Get("conn1")
	firstHeard := client.GetLastHeardFrom()

	time.Sleep(10 * time.Millisecond)

	err := m.UpdateActivity("conn1")
	if err != nil {
		t.Fatalf("UpdateActivity failed: %v", err)
	}

	client, _ = m.Get("conn1")
	secondHeard := client.GetLastHeardFrom()

	if !secondHeard.After(firstHeard) {
		t.Error("LastHeardFrom was not updated")
	}
}

func TestManager_GetInactiveConnections(t *testing.T) {
	m := NewManager(10, nil)
	conn := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn2", "WXK-33139", "Miami Beach", conn)

	client1, _ := m.Get("conn1")
	client1.mu.Lock()
	client1.LastHeardFrom = time.Now().Add(-5 * time.Minute)
	client1.mu.Unlock()

	inactive := m.GetInactiveConnections(2 * time.Minute)
	if len(inactive) != 1 {
		t.Errorf("Expected 1 inactive connection, got %d", len(inactive))
	}

	if inactive[0] != "conn1" {
		t.Errorf("Expected conn1 to be inactive, got %s", inactive[0])
	}
}

func TestManager_ReapInactive(t *testing.T) {
	m := NewManager(10, nil)
	conn1 := testConn(t)
	conn2 := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn1)
	m.Register("conn2", "WXK-33139", "Miami Beach", conn2)

	client1, _ := m.Get("conn1")
	client1.mu.Lock()
	client1.LastHeardFrom = time.Now().Add(-5 * time.Minute)
	client1.mu.Unlock()

	n := m.ReapInactive(2 * time.Minute)
	if n != 1 {
		t.Fatalf("ReapInactive reaped %d, want 1", n)
	}
	if m.Count() != 1 {
		t.Errorf("Expected 1 remaining connection, got %d", m.Count())
	}
	if _, exists := m.Get("conn1"); exists {
		t.Error("conn1 should have been unregistered by ReapInactive")
	}
	if conn1.State() != StateExitAsked {
		t.Errorf("conn1 should have been asked to close after reap, state=%v", conn1.State())
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(10, nil)
	conn1 := testConn(t)
	conn2 := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn1)
	m.Register("conn2", "WXK-33139", "Miami Beach", conn2)

	n := m.CloseAll()
	if n != 2 {
		t.Fatalf("CloseAll closed %d, want 2", n)
	}
	if m.Count() != 0 {
		t.Errorf("Expected 0 connections after CloseAll, got %d", m.Count())
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(100, nil)
	conn := testConn(t)

	m.Register("conn1", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn2", "WXK-90210", "Beverly Hills", conn)
	m.Register("conn3", "WXK-33139", "Miami Beach", conn)

	stats := m.Stats()
	if stats.TotalConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", stats.TotalConnections)
	}
	if stats.UniqueStations != 2 {
		t.Errorf("Expected 2 unique stations, got %d", stats.UniqueStations)
	}
	if stats.MaxConnections != 100 {
		t.Errorf("Expected max 100, got %d", stats.MaxConnections)
	}
}
