// Package pool implements the connection pool (spec.md §4.3): a
// key->Connection map protected by a reader/writer lock, supporting add,
// remove, and broadcast fan-out. Grounded on the teacher's
// internal/connection.Manager stationID-grouping idea, generalized from
// "group by stationID" to arbitrary named pool membership with broadcast.
package pool

import (
	"errors"
	"sync"

	"github.com/gullradriel/nilorea-library-sub000/internal/connection"
	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
)

// Errors surfaced by the pool package's public contract (spec.md §7).
var (
	ErrAlreadyMember = errors.New("pool: connection is already a member")
	ErrNotMember     = errors.New("pool: connection is not a member")
)

// Pool is a reader/writer-lock-guarded map from a connection-identifying
// key to its member, plus broadcast. A Conn may belong to multiple pools;
// each pool is registered on the connection's own back-reference list (via
// the connection.PoolMembership interface) so removal stays symmetric even
// when the connection closes itself first (spec.md §4.3, §9).
type Pool struct {
	mu      sync.RWMutex
	members map[string]*connection.Conn
}

// New creates an empty pool. capacityHint sizes the initial map allocation.
func New(capacityHint int) *Pool {
	return &Pool{members: make(map[string]*connection.Conn, capacityHint)}
}

// RemoveMember implements connection.PoolMembership: it is invoked by a
// Conn that is closing itself and wants to clear its own entry from this
// pool without the conn re-entering Remove (which would try to clear the
// already-departing back-reference again).
func (p *Pool) RemoveMember(conn *connection.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := conn.Key()
	if p.members[key] == conn {
		delete(p.members, key)
	}
}

// Add registers conn as a member, keyed by conn.Key(). Fails with
// ErrAlreadyMember if already present.
func (p *Pool) Add(conn *connection.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := conn.Key()
	if _, exists := p.members[key]; exists {
		return ErrAlreadyMember
	}
	p.members[key] = conn
	conn.JoinPool(p)
	return nil
}

// Remove removes conn from the pool, symmetrically clearing its
// back-reference. Fails with ErrNotMember if absent.
func (p *Pool) Remove(conn *connection.Conn) error {
	p.mu.Lock()
	key := conn.Key()
	if _, exists := p.members[key]; !exists {
		p.mu.Unlock()
		return ErrNotMember
	}
	delete(p.members, key)
	p.mu.Unlock()

	conn.LeavePool(p)
	return nil
}

// Size returns the current member count under the read lock.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// Broadcast fans the same encoded message to every current member except
// originator (if non-nil), duplicating the buffer per recipient (spec.md
// §4.3). Broadcast takes the pool lock only in read mode and never holds
// it while blocking on a per-connection send path — EnqueueSend never
// blocks (it only ever takes the connection's own send-queue lock), so
// this is safe by construction.
func (p *Pool) Broadcast(originator *connection.Conn, msg *buffer.Buffer) {
	p.mu.RLock()
	recipients := make([]*connection.Conn, 0, len(p.members))
	var originatorKey string
	if originator != nil {
		originatorKey = originator.Key()
	}
	for key, c := range p.members {
		if originator != nil && key == originatorKey {
			continue
		}
		recipients = append(recipients, c)
	}
	p.mu.RUnlock()

	for _, c := range recipients {
		c.EnqueueSend(msg.Clone())
	}
}

// Destroy closes all remaining members as a safety net (spec.md §4.3).
func (p *Pool) Destroy() {
	p.mu.Lock()
	conns := make([]*connection.Conn, 0, len(p.members))
	for _, c := range p.members {
		conns = append(conns, c)
	}
	p.members = make(map[string]*connection.Conn)
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
