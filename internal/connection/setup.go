package connection

import (
	"fmt"
	"net"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// IPVersion constrains address resolution (spec.md §4.1).
type IPVersion int

const (
	IPAny IPVersion = iota
	IPv4Only
	IPv6Only
)

func (v IPVersion) network() string {
	switch v {
	case IPv4Only:
		return "tcp4"
	case IPv6Only:
		return "tcp6"
	default:
		return "tcp"
	}
}

// Listener wraps a net.Listener in listener role. Its blocking mode is
// fixed at construction (spec.md §9's resolved Open Question); Accept
// selects behavior per-call via AcceptMode instead.
type Listener struct {
	ln  net.Listener
	log nlog.Logger
}

// Listen binds to the first address from name resolution that accepts
// SO_REUSEADDR, per spec.md §4.1. address may be empty to bind all
// interfaces.
func Listen(address string, port int, backlog int, ipVersion IPVersion, log nlog.Logger) (*Listener, error) {
	addr := net.JoinHostPort(address, fmt.Sprintf("%d", port))

	lc := net.ListenConfig{}
	ln, err := lc.Listen(nil, ipVersion.network(), addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListen, err)
	}
	return &Listener{ln: ln, log: log}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// AcceptMode selects blocking behavior for a single Accept call.
type AcceptMode struct {
	kind    acceptKind
	timeout time.Duration
}

type acceptKind int

const (
	acceptBlocking acceptKind = iota
	acceptNonBlockingPoll
	acceptTimeout
)

// Blocking waits indefinitely for the next inbound connection.
func Blocking() AcceptMode { return AcceptMode{kind: acceptBlocking} }

// NonBlockingPoll returns ErrTimeout immediately if nothing is pending.
func NonBlockingPoll() AcceptMode { return AcceptMode{kind: acceptNonBlockingPoll} }

// WithTimeout waits up to d for an inbound connection.
func WithTimeout(d time.Duration) AcceptMode { return AcceptMode{kind: acceptTimeout, timeout: d} }

// Accept obtains a new inbound Conn from l, or ErrTimeout per mode
// (spec.md §4.1). The returned connection is always blocking regardless of
// the listener's own mode.
func Accept(l *Listener, tun Tunables, mode AcceptMode, log nlog.Logger) (*Conn, error) {
	type result struct {
		raw net.Conn
		err error
	}

	switch mode.kind {
	case acceptBlocking:
		raw, err := l.ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAccept, err)
		}
		return finishAccept(raw, tun, log), nil

	case acceptNonBlockingPoll:
		ch := make(chan result, 1)
		go func() {
			raw, err := l.ln.Accept()
			ch <- result{raw, err}
		}()
		select {
		case r := <-ch:
			if r.err != nil {
				if r.raw != nil {
					r.raw.Close()
				}
				return nil, fmt.Errorf("%w: %v", ErrAccept, r.err)
			}
			return finishAccept(r.raw, tun, log), nil
		default:
			// Nothing pending right now; the accept above keeps running in
			// the background and its result is discarded intentionally —
			// non-blocking poll mode only reports what was ready at the
			// moment of the call.
			go func() {
				r := <-ch
				if r.err == nil && r.raw != nil {
					r.raw.Close()
				}
			}()
			return nil, ErrTimeout
		}

	case acceptTimeout:
		ch := make(chan result, 1)
		go func() {
			raw, err := l.ln.Accept()
			ch <- result{raw, err}
		}()
		select {
		case r := <-ch:
			if r.err != nil {
				if r.raw != nil {
					r.raw.Close()
				}
				return nil, fmt.Errorf("%w: %v", ErrAccept, r.err)
			}
			return finishAccept(r.raw, tun, log), nil
		case <-time.After(mode.timeout):
			go func() {
				r := <-ch
				if r.err == nil && r.raw != nil {
					r.raw.Close()
				}
			}()
			return nil, ErrTimeout
		}
	}
	return nil, ErrInvalidArg
}

func finishAccept(raw net.Conn, tun Tunables, log nlog.Logger) *Conn {
	applySocketOptions(raw, tun)
	c := newConn(raw, RoleServerAccepted, tun, log)
	return c
}

// Connect dials host:port, trying resolved addresses in order and
// returning the first that completes connect; all other attempts are
// closed (spec.md §4.1).
func Connect(host string, port int, ipVersion IPVersion, tun Tunables, log nlog.Logger) (*Conn, error) {
	network := ipVersion.network()
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	ips, err := net.DefaultResolver.LookupIPAddr(nil, host)
	if err != nil || len(ips) == 0 {
		// Fall back to net.Dial's own resolution (handles literal IPs and
		// DNS records LookupIPAddr might not surface identically).
		raw, derr := net.Dial(network, addr)
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, derr)
		}
		applySocketOptions(raw, tun)
		return newConn(raw, RoleClient, tun, log), nil
	}

	var lastErr error
	for _, ip := range ips {
		candidate := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port))
		raw, derr := net.Dial(network, candidate)
		if derr != nil {
			lastErr = derr
			continue
		}
		applySocketOptions(raw, tun)
		return newConn(raw, RoleClient, tun, log), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrConnect, lastErr)
}

func applySocketOptions(raw net.Conn, tun Tunables) {
	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		return
	}
	if tun.DisableNagle {
		tcp.SetNoDelay(true)
	}
	if tun.SendBufferBytes > 0 {
		tcp.SetWriteBuffer(tun.SendBufferBytes)
	}
	if tun.ReceiveBufferBytes > 0 {
		tcp.SetReadBuffer(tun.ReceiveBufferBytes)
	}
	if tun.Linger != nil {
		tcp.SetLinger(int(tun.Linger.Seconds()))
	}
}
