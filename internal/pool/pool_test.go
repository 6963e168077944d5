package pool

import (
	"net"
	"testing"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/internal/connection"
	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// dialedPair returns two live Conns over a real loopback TCP connection, so
// each side's Key() (derived from the remote address) is distinct — unlike
// net.Pipe(), whose two ends both report the address "pipe".
func dialedPair(t *testing.T) (client, server *connection.Conn) {
	t.Helper()
	tun := connection.DefaultTunables()
	tun.SendQueueIdlePoll = time.Millisecond
	tun.PauseWait = time.Millisecond

	ln, err := connection.Listen("127.0.0.1", 0, 1, connection.IPv4Only, nlog.NopLogger{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("listener address is not TCP: %v", ln.Addr())
	}

	type acceptResult struct {
		c   *connection.Conn
		err error
	}
	ch := make(chan acceptResult, 1)
	go func() {
		c, err := connection.Accept(ln, tun, connection.Blocking(), nlog.NopLogger{})
		ch <- acceptResult{c, err}
	}()

	cli, err := connection.Connect("127.0.0.1", tcpAddr.Port, connection.IPv4Only, tun, nlog.NopLogger{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	res := <-ch
	if res.err != nil {
		t.Fatalf("Accept: %v", res.err)
	}

	if err := cli.StartEngine(); err != nil {
		t.Fatalf("StartEngine client: %v", err)
	}
	if err := res.c.StartEngine(); err != nil {
		t.Fatalf("StartEngine server: %v", err)
	}

	t.Cleanup(func() {
		cli.Close()
		res.c.Close()
	})
	return cli, res.c
}

// newMember dials a fresh loopback pair; the client side is what tests add
// into a Pool, and the accepted peer is what receives anything the pool
// sends to that member, since a *connection.Conn only ever reads its own
// inbound direction of the underlying socket.
func newMember(t *testing.T) (member, peer *connection.Conn) {
	t.Helper()
	return dialedPair(t)
}

func TestAddRemoveSize(t *testing.T) {
	p := New(4)
	a, _ := newMember(t)
	b, _ := newMember(t)

	if err := p.Add(a); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := p.Add(a); err != ErrAlreadyMember {
		t.Fatalf("re-Add a = %v, want ErrAlreadyMember", err)
	}
	if err := p.Add(b); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if got := p.Size(); got != 2 {
		t.Fatalf("Size = %d, want 2", got)
	}

	if err := p.Remove(a); err != nil {
		t.Fatalf("Remove a: %v", err)
	}
	if err := p.Remove(a); err != ErrNotMember {
		t.Fatalf("re-Remove a = %v, want ErrNotMember", err)
	}
	if got := p.Size(); got != 1 {
		t.Fatalf("Size after remove = %d, want 1", got)
	}
}

// TestBroadcastSkipsOriginator implements spec.md §8 scenario 3: a message
// broadcast through the pool reaches every member except the originator.
func TestBroadcastSkipsOriginator(t *testing.T) {
	p := New(4)
	originator, originatorPeer := newMember(t)
	other1, other1Peer := newMember(t)
	other2, other2Peer := newMember(t)

	for _, c := range []*connection.Conn{originator, other1, other2} {
		if err := p.Add(c); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	msg := netmsg.Encode(netmsg.NewChatStringMessage(&netmsg.ChatString{
		IDFrom: 1, IDTo: 0, Color: 0, Name: "alice", Channel: "ALL", Text: "hello",
	}))
	p.Broadcast(originator, msg)

	if got := originatorPeer.WaitReceive(time.Millisecond, 50*time.Millisecond); got != nil {
		t.Fatalf("originator's peer received a broadcast message, want none")
	}
	if got := other1Peer.WaitReceive(time.Millisecond, 2*time.Second); got == nil {
		t.Fatal("other1 did not receive broadcast")
	}
	if got := other2Peer.WaitReceive(time.Millisecond, 2*time.Second); got == nil {
		t.Fatal("other2 did not receive broadcast")
	}
}

// TestCloseRemovesFromPool verifies a connection closing itself is
// symmetrically dropped from any pool it had joined (spec.md §4.3, §9).
func TestCloseRemovesFromPool(t *testing.T) {
	p := New(4)
	a, _ := newMember(t)
	if err := p.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	a.Close()

	deadline := time.Now().Add(2 * time.Second)
	for p.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pool still reports %d members after member close", p.Size())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDestroyClosesMembers(t *testing.T) {
	p := New(4)
	a, _ := newMember(t)
	b, _ := newMember(t)
	p.Add(a)
	p.Add(b)

	p.Destroy()

	if got := p.Size(); got != 0 {
		t.Fatalf("Size after Destroy = %d, want 0", got)
	}
}
