package connection

import (
	"net"
	"testing"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	tun := DefaultTunables()
	tun.SendQueueIdlePoll = time.Millisecond
	tun.PauseWait = time.Millisecond
	ca := newConn(a, RoleClient, tun, nlog.NopLogger{})
	cb := newConn(b, RoleServerAccepted, tun, nlog.NopLogger{})
	if err := ca.StartEngine(); err != nil {
		t.Fatalf("StartEngine a: %v", err)
	}
	if err := cb.StartEngine(); err != nil {
		t.Fatalf("StartEngine b: %v", err)
	}
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

// TestIdentifyRoundTrip implements spec.md §8 scenario 1.
func TestIdentifyRoundTrip(t *testing.T) {
	client, server := pipePair(t)

	req := netmsg.NewIdentMessage(netmsg.MsgTypeIdentRequest, 0, "alice", "secret")
	if err := client.EnqueueSend(netmsg.Encode(req)); err != nil {
		t.Fatalf("EnqueueSend: %v", err)
	}

	wire := server.WaitReceive(5*time.Millisecond, 2*time.Second)
	if wire == nil {
		t.Fatal("server did not receive identify request")
	}
	typ, err := netmsg.PeekFirstInt(wire)
	if err != nil || typ != netmsg.MsgTypeIdentRequest {
		t.Fatalf("PeekFirstInt = %d, %v", typ, err)
	}
	decoded, err := netmsg.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ident, err := netmsg.DecodeIdent(decoded)
	if err != nil {
		t.Fatalf("DecodeIdent: %v", err)
	}
	if ident.Name != "alice" || ident.Password != "secret" {
		t.Fatalf("unexpected ident: %+v", ident)
	}

	reply := netmsg.NewIdentMessage(netmsg.MsgTypeIdentReplyOK, 42, "alice", "secret")
	if err := server.EnqueueSend(netmsg.Encode(reply)); err != nil {
		t.Fatalf("EnqueueSend reply: %v", err)
	}

	replyWire := client.WaitReceive(10*time.Millisecond, 2*time.Second)
	if replyWire == nil {
		t.Fatal("client did not receive identify reply")
	}
	replyTyp, _ := netmsg.PeekFirstInt(replyWire)
	if replyTyp != netmsg.MsgTypeIdentReplyOK {
		t.Fatalf("got type %d, want IdentReplyOK", replyTyp)
	}
	replyDecoded, _ := netmsg.Decode(replyWire)
	replyIdent, err := netmsg.DecodeIdent(replyDecoded)
	if err != nil || replyIdent.ID != 42 {
		t.Fatalf("DecodeIdent reply: %+v, %v", replyIdent, err)
	}
}

// TestShutdownSentinel implements spec.md §8 scenario 2.
func TestShutdownSentinel(t *testing.T) {
	client, server := pipePair(t)

	chat := netmsg.NewChatStringMessage(&netmsg.ChatString{
		IDFrom: 1, IDTo: 0, Color: 0, Name: "alice", Channel: "ALL", Text: "hi",
	})
	if err := client.EnqueueSend(netmsg.Encode(chat)); err != nil {
		t.Fatalf("EnqueueSend: %v", err)
	}
	if server.WaitReceive(2*time.Millisecond, time.Second) == nil {
		t.Fatal("server did not receive chat message before shutdown")
	}

	client.SetState(StateExitAsked)

	// The server's sender moves EXIT_ASKED on to EXITED as soon as it sees
	// the sentinel, so either state shows the sentinel was observed.
	deadline := time.Now().Add(2 * time.Second)
	for st := server.State(); st != StateExitAsked && st != StateExited; st = server.State() {
		if time.Now().After(deadline) {
			t.Fatalf("server never observed EXIT_ASKED, state=%v", server.State())
		}
		time.Sleep(time.Millisecond)
	}
}

// TestBackpressureQueueFull implements spec.md §8 scenario 6.
func TestBackpressureQueueFull(t *testing.T) {
	a, b := net.Pipe()
	tun := DefaultTunables()
	tun.SendQueueLimit = 4
	tun.SendQueueIdlePoll = time.Millisecond
	client := newConn(a, RoleClient, tun, nlog.NopLogger{})
	peer := newConn(b, RoleServerAccepted, DefaultTunables(), nil)
	t.Cleanup(func() {
		client.Close()
		peer.Close()
	})

	client.SetState(StatePause) // don't start the sender draining yet
	if err := client.StartEngine(); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}

	msg := netmsg.Encode(netmsg.NewQuitMessage())
	for i := 0; i < 4; i++ {
		if err := client.EnqueueSend(msg.Clone()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := client.EnqueueSend(msg.Clone()); err != ErrQueueFull {
		t.Fatalf("5th enqueue = %v, want ErrQueueFull", err)
	}

	if err := peer.StartEngine(); err != nil {
		t.Fatalf("StartEngine peer: %v", err)
	}
	client.SetState(StateRun)

	deadline := time.Now().Add(2 * time.Second)
	for {
		depth, _ := client.QueueDepths()
		if depth == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("send queue never drained, depth=%d", depth)
		}
		time.Sleep(time.Millisecond)
	}

	if err := client.EnqueueSend(msg.Clone()); err != nil {
		t.Fatalf("enqueue after drain: %v", err)
	}
}

func TestEnqueueSendRejectsEmpty(t *testing.T) {
	client, _ := pipePair(t)
	if err := client.EnqueueSend(buffer.New(nil)); err != ErrInvalidArg {
		t.Fatalf("got %v, want ErrInvalidArg", err)
	}
}

func TestStartEngineTwiceFails(t *testing.T) {
	client, _ := pipePair(t)
	if err := client.StartEngine(); err != ErrAlreadyStarted {
		t.Fatalf("got %v, want ErrAlreadyStarted", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	client, _ := pipePair(t)
	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
