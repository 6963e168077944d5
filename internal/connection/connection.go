// Package connection implements the connection object and its threaded
// engine (spec.md §4.1): socket setup, blocking/non-blocking accept,
// per-connection send/receive queues, background sender/receiver
// goroutines, and a graceful shutdown handshake built on the framed wire
// protocol from pkg/netmsg.
package connection

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// Role identifies how a Conn came into being.
type Role int

const (
	RoleClient Role = iota
	RoleServerAccepted
	RoleListener
)

// State is the connection's externally observable lifecycle state.
// Transitions are monotonic within a run: Run -> Pause <-> Run ->
// ExitAsked -> Exited; Error is absorbing (spec.md §3).
type State int

const (
	StateRun State = iota
	StatePause
	StateExitAsked
	StateExited
	StateError
)

func (s State) String() string {
	switch s {
	case StateRun:
		return "RUN"
	case StatePause:
		return "PAUSE"
	case StateExitAsked:
		return "EXIT_ASKED"
	case StateExited:
		return "EXITED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// EngineState tracks whether the sender/receiver goroutines are running.
type EngineState int

const (
	EngineStopped EngineState = iota
	EngineStarted
)

// shutdownSentinel is the state word a sender transmits on its own, with no
// trailing length or payload, to announce end-of-stream (spec.md §6). It
// is simply the numeric encoding of StateExitAsked; §9's Open Question
// about the frame shape is resolved in DESIGN.md.
const shutdownSentinel = uint32(StateExitAsked)

// Tunables holds the per-connection pacing and socket-option knobs spec.md
// §4.1/§6 exposes to the embedder.
type Tunables struct {
	SendQueueIdlePoll      time.Duration // sender sleep when the send queue is empty
	SendQueueConsecutive   time.Duration // sender pacing sleep between transmits
	PauseWait              time.Duration // receiver sleep while paused
	SendQueueLimit         int           // <=0 means unbounded
	ReceiveQueueLimit      int           // <=0 means unbounded
	DisableNagle           bool
	SendBufferBytes        int
	ReceiveBufferBytes     int
	Linger                 *time.Duration // nil means platform default
	SendTimeout            time.Duration  // 0 means no deadline (SO_SNDTIMEO)
	ReceiveTimeout         time.Duration  // 0 means no deadline (SO_RCVTIMEO)
}

// DefaultTunables mirrors the reference application's defaults.
func DefaultTunables() Tunables {
	return Tunables{
		SendQueueIdlePoll:    5 * time.Millisecond,
		SendQueueConsecutive: 0,
		PauseWait:            10 * time.Millisecond,
		SendQueueLimit:       0,
		ReceiveQueueLimit:    0,
	}
}

// Errors surfaced by the connection package's public contract (spec.md §7).
var (
	ErrResolve        = errors.New("connection: resolve failed")
	ErrBind           = errors.New("connection: bind failed")
	ErrListen         = errors.New("connection: listen failed")
	ErrConnect        = errors.New("connection: connect failed")
	ErrAccept         = errors.New("connection: accept failed")
	ErrSocketOption   = errors.New("connection: socket option failed")
	ErrQueueFull      = errors.New("connection: queue full")
	ErrInvalidArg     = errors.New("connection: invalid argument")
	ErrAlreadyStarted = errors.New("connection: engine already started")
	ErrNotStarted     = errors.New("connection: engine not started")
	ErrTimeout        = errors.New("connection: timeout")
)

// TransportKind classifies a runtime transport failure (spec.md §7).
type TransportKind int

const (
	TransportResetByPeer TransportKind = iota
	TransportDisconnected
	TransportShortRead
	TransportShortWrite
	TransportOther
)

// TransportError wraps a runtime socket failure that moves a Conn to
// StateError.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection: transport error (%v): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError signals a decoded frame that violates the codec contract.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "connection: protocol error: " + e.Reason }

// Conn is one TCP endpoint with its send/receive queues, sender/receiver
// goroutines, state machine, and wait-for-message primitive (spec.md §3).
type Conn struct {
	raw      net.Conn
	role     Role
	local    net.Addr
	remote   net.Addr
	tunables Tunables
	log      nlog.Logger

	stateMu sync.Mutex
	state   State
	engine  EngineState

	sendMu    sync.Mutex
	sendQueue []*buffer.Buffer

	recvMu    sync.Mutex
	recvQueue []*buffer.Buffer

	senderWake chan struct{} // capacity-1 semaphore waking the sender

	wg       sync.WaitGroup
	closeOne sync.Once

	poolMu  sync.Mutex
	pools   map[PoolMembership]struct{}
}

// PoolMembership is the interface-side back-reference a Conn keeps to
// every pool it has joined, so Close can remove itself symmetrically
// without a raw pointer cycle (spec.md §9). Exported so packages outside
// connection (e.g. internal/pool) can implement it.
type PoolMembership interface {
	RemoveMember(c *Conn)
}

func newConn(raw net.Conn, role Role, tun Tunables, log nlog.Logger) *Conn {
	if log == nil {
		log = nlog.NopLogger{}
	}
	return &Conn{
		raw:        raw,
		role:       role,
		local:      raw.LocalAddr(),
		remote:     raw.RemoteAddr(),
		tunables:   tun,
		log:        log,
		state:      StateRun,
		engine:     EngineStopped,
		senderWake: make(chan struct{}, 1),
		pools:      make(map[PoolMembership]struct{}),
	}
}

// LocalAddr returns the resolved local address.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// RemoteAddr returns the resolved remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Role returns whether this Conn is a client, server-accepted, or listener.
func (c *Conn) Role() Role { return c.role }

// Key returns a stable identifier for this connection, suitable as a
// pool.Pool map key (spec.md §4.3: "the socket descriptor as a string is
// sufficient").
func (c *Conn) Key() string {
	if c.remote != nil {
		return c.remote.String()
	}
	return fmt.Sprintf("%p", c)
}

// State returns the current lifecycle state under the state lock.
func (c *Conn) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// EngineState returns whether the sender/receiver goroutines are running.
func (c *Conn) EngineState() EngineState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.engine
}

// SetState requests a RUN/PAUSE/EXIT_ASKED transition. Any state change
// posts the sender semaphore so a paused or exit-asked sender observes it
// promptly (spec.md §4.1).
func (c *Conn) SetState(s State) {
	c.stateMu.Lock()
	if c.state != StateError && c.state != StateExited {
		c.state = s
	}
	c.stateMu.Unlock()
	c.wakeSender()
}

func (c *Conn) setErrorState(err error) {
	c.stateMu.Lock()
	alreadyTerminal := c.state == StateError || c.state == StateExited
	c.state = StateError
	c.stateMu.Unlock()
	if !alreadyTerminal {
		c.log.Warnf("connection %s: %v", c.Key(), err)
	}
	c.wakeSender()
}

func (c *Conn) wakeSender() {
	select {
	case c.senderWake <- struct{}{}:
	default:
	}
}

// JoinPool registers a back-reference from this connection to a pool it
// was just added to.
func (c *Conn) JoinPool(p PoolMembership) {
	c.poolMu.Lock()
	c.pools[p] = struct{}{}
	c.poolMu.Unlock()
}

// LeavePool removes the back-reference without notifying the pool (used
// when the pool itself initiates the removal).
func (c *Conn) LeavePool(p PoolMembership) {
	c.poolMu.Lock()
	delete(c.pools, p)
	c.poolMu.Unlock()
}

func (c *Conn) leaveAllPools() {
	c.poolMu.Lock()
	pools := make([]PoolMembership, 0, len(c.pools))
	for p := range c.pools {
		pools = append(pools, p)
	}
	c.pools = make(map[PoolMembership]struct{})
	c.poolMu.Unlock()

	for _, p := range pools {
		p.RemoveMember(c)
	}
}

// QueueDepths returns (send-pending, receive-pending).
func (c *Conn) QueueDepths() (sendPending, receivePending int) {
	c.sendMu.Lock()
	sendPending = len(c.sendQueue)
	c.sendMu.Unlock()

	c.recvMu.Lock()
	receivePending = len(c.recvQueue)
	c.recvMu.Unlock()
	return
}
