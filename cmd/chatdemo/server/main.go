// Command chatdemo-server is a minimal reference program exercising the
// ChatString, Position and PingRequest/PingReply shapes over an
// internal/pool.Pool with broadcast (SPEC_FULL.md §12). It is grounded on
// original_source/examples/ex_gui_netserver.c's process_clients loop,
// stripped of the Allegro display/event-loop machinery: accept, add to
// pool, identify, then dispatch decoded frames by type and broadcast
// Position/ChatString to every other pool member.
package main

import (
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gullradriel/nilorea-library-sub000/internal/connection"
	"github.com/gullradriel/nilorea-library-sub000/internal/pool"
	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

func main() {
	addr := flag.String("addr", "", "address to bind (empty = all interfaces)")
	port := flag.Int("port", 9090, "port to listen on")
	roomCapacity := flag.Int("room-capacity", 64, "capacity hint for the broadcast room")
	verbose := flag.Bool("verbose", false, "log connection-engine debug output")
	flag.Parse()

	level := logrus.InfoLevel
	if *verbose {
		level = logrus.DebugLevel
	}
	nl := nlog.New(level)

	ln, err := connection.Listen(*addr, *port, 128, connection.IPAny, nl)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	room := pool.New(*roomCapacity)
	defer room.Destroy()

	fmt.Printf("chatdemo server listening on :%d\n", *port)

	var nextID int32
	tun := connection.DefaultTunables()
	for {
		conn, err := connection.Accept(ln, tun, connection.Blocking(), nl)
		if err != nil {
			log.Printf("accept: %v", err)
			continue
		}
		id := atomic.AddInt32(&nextID, 1)
		go handleClient(conn, room, id)
	}
}

func handleClient(conn *connection.Conn, room *pool.Pool, id int32) {
	defer conn.Close()

	if err := conn.StartEngine(); err != nil {
		log.Printf("conn %d: start engine: %v", id, err)
		return
	}

	wire := conn.WaitReceive(5*time.Millisecond, 10*time.Second)
	if wire == nil {
		log.Printf("conn %d: no ident within timeout", id)
		return
	}
	msg, err := netmsg.Decode(wire)
	if err != nil {
		log.Printf("conn %d: malformed ident frame: %v", id, err)
		return
	}
	typ, err := netmsg.PeekFirstInt(wire)
	if err != nil || typ != netmsg.MsgTypeIdentRequest {
		log.Printf("conn %d: expected ident request, got type %d (err=%v)", id, typ, err)
		return
	}
	ident, err := netmsg.DecodeIdent(msg)
	if err != nil {
		log.Printf("conn %d: failed to decode ident: %v", id, err)
		return
	}

	if err := room.Add(conn); err != nil {
		log.Printf("conn %d: failed to join room: %v", id, err)
		conn.EnqueueSend(netmsg.Encode(netmsg.NewIdentMessage(netmsg.MsgTypeIdentReplyNOK, id, ident.Name, "")))
		return
	}
	defer room.Remove(conn)

	conn.EnqueueSend(netmsg.Encode(netmsg.NewIdentMessage(netmsg.MsgTypeIdentReplyOK, id, ident.Name, "")))
	log.Printf("conn %d: %q joined (%s)", id, ident.Name, conn.RemoteAddr())

	for {
		wire := conn.WaitReceive(5*time.Millisecond, 30*time.Second)
		if wire == nil {
			if conn.State() != connection.StateRun {
				log.Printf("conn %d: %q disconnected", id, ident.Name)
				return
			}
			continue
		}
		if !dispatch(conn, room, id, ident.Name, wire) {
			return
		}
	}
}

// dispatch decodes one frame and acts on it, mirroring process_clients'
// switch on netw_msg_get_type. Position and ChatString are re-broadcast to
// every other room member unchanged, pings are answered directly to the
// sender, and a Quit frame ends the connection.
func dispatch(conn *connection.Conn, room *pool.Pool, id int32, name string, wire *buffer.Buffer) bool {
	msg, err := netmsg.Decode(wire)
	if err != nil {
		log.Printf("conn %d: malformed frame: %v", id, err)
		return true
	}
	typ, err := msg.PopInt()
	if err != nil {
		log.Printf("conn %d: empty frame", id)
		return true
	}

	switch typ {
	case netmsg.MsgTypePosition:
		room.Broadcast(conn, wire)

	case netmsg.MsgTypeChatString:
		chat, err := netmsg.DecodeChatString(msg)
		if err != nil {
			log.Printf("conn %d: malformed chat string: %v", id, err)
			return true
		}
		log.Printf("[%s] %s: %s", chat.Channel, chat.Name, chat.Text)
		room.Broadcast(conn, wire)

	case netmsg.MsgTypePingRequest:
		ping, err := netmsg.DecodePing(msg)
		if err != nil {
			log.Printf("conn %d: malformed ping: %v", id, err)
			return true
		}
		conn.EnqueueSend(netmsg.Encode(netmsg.NewPingMessage(netmsg.MsgTypePingReply, ping)))

	case netmsg.MsgTypeQuit:
		log.Printf("conn %d: %q asked to quit", id, name)
		return false

	default:
		log.Printf("conn %d: unknown message type %d", id, typ)
	}

	return true
}
