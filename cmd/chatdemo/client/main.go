// Command chatdemo-client is the counterpart to cmd/chatdemo/server: a
// terminal chat client exercising Ident, ChatString, Position and
// PingRequest/PingReply over internal/connection (SPEC_FULL.md §12).
// Grounded on original_source/examples/ex_gui_netclient.c's identify /
// send-position-on-movement / read-chat loop, stripped of the Allegro
// display and keyboard polling: position updates are sent on a timer
// instead of on keypress, and chat lines come from stdin instead of an
// on-screen text box.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gullradriel/nilorea-library-sub000/internal/connection"
	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

func main() {
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 9090, "server port")
	name := flag.String("name", "", "chat handle (required)")
	verbose := flag.Bool("verbose", false, "log connection-engine debug output")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: chatdemo-client -name <handle> [-host h] [-port p]")
		os.Exit(1)
	}

	level := logrus.WarnLevel
	if *verbose {
		level = logrus.DebugLevel
	}
	nl := nlog.New(level)

	tun := connection.DefaultTunables()
	conn, err := connection.Connect(*host, *port, connection.IPAny, tun, nl)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	if err := conn.StartEngine(); err != nil {
		log.Fatalf("start engine: %v", err)
	}

	conn.EnqueueSend(netmsg.Encode(netmsg.NewIdentMessage(netmsg.MsgTypeIdentRequest, 0, *name, "")))

	reply := conn.WaitReceive(5*time.Millisecond, 10*time.Second)
	if reply == nil {
		log.Fatal("no identify reply from server")
	}
	msg, err := netmsg.Decode(reply)
	if err != nil {
		log.Fatalf("malformed identify reply: %v", err)
	}
	typ, _ := netmsg.PeekFirstInt(reply)
	if typ != netmsg.MsgTypeIdentReplyOK {
		log.Fatalf("server rejected identify (type=%d)", typ)
	}
	ident, err := netmsg.DecodeIdent(msg)
	if err != nil {
		log.Fatalf("malformed identify reply body: %v", err)
	}
	selfID := ident.ID
	fmt.Printf("Connected as %q (id=%d). Type a line to chat, /pos to send a random position, /quit to exit.\n", *name, selfID)

	go receiveLoop(conn, *name)

	x, y := rand.Float64()*100, rand.Float64()*100
	positionTicker := time.NewTicker(5 * time.Second)
	defer positionTicker.Stop()
	go func() {
		for range positionTicker.C {
			x += rand.Float64()*4 - 2
			y += rand.Float64()*4 - 2
			sendPosition(conn, selfID, x, y)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch line {
		case "/quit":
			conn.EnqueueSend(netmsg.Encode(netmsg.NewQuitMessage()))
			conn.WaitClose()
			return
		case "/pos":
			sendPosition(conn, selfID, x, y)
		case "/ping":
			sendPing(conn, selfID)
		default:
			if line == "" {
				continue
			}
			chat := &netmsg.ChatString{IDFrom: selfID, IDTo: 0, Color: 0, Name: *name, Channel: "ALL", Text: line}
			conn.EnqueueSend(netmsg.Encode(netmsg.NewChatStringMessage(chat)))
		}
	}
}

func sendPosition(conn *connection.Conn, selfID int32, x, y float64) {
	p := &netmsg.Position{ID: selfID, X: x, Y: y, Timestamp: int32(time.Now().Unix())}
	if err := conn.EnqueueSend(netmsg.Encode(netmsg.NewPositionMessage(p))); err != nil {
		log.Printf("send position: %v", err)
	}
}

func sendPing(conn *connection.Conn, selfID int32) {
	ping := &netmsg.Ping{IDFrom: selfID, IDTo: 0, Time: int32(time.Now().Unix())}
	if err := conn.EnqueueSend(netmsg.Encode(netmsg.NewPingMessage(netmsg.MsgTypePingRequest, ping))); err != nil {
		log.Printf("send ping: %v", err)
	}
}

func receiveLoop(conn *connection.Conn, selfName string) {
	for {
		wire := conn.WaitReceive(5*time.Millisecond, 0)
		if wire == nil {
			if conn.State() != connection.StateRun {
				fmt.Println("disconnected from server")
				return
			}
			continue
		}
		msg, err := netmsg.Decode(wire)
		if err != nil {
			continue
		}
		typ, err := msg.PopInt()
		if err != nil {
			continue
		}
		switch typ {
		case netmsg.MsgTypeChatString:
			chat, err := netmsg.DecodeChatString(msg)
			if err != nil {
				continue
			}
			if chat.Name == selfName {
				continue
			}
			fmt.Printf("[%s] %s: %s\n", chat.Channel, chat.Name, chat.Text)

		case netmsg.MsgTypePosition:
			pos, err := netmsg.DecodePosition(msg)
			if err != nil {
				continue
			}
			fmt.Printf("(peer %d moved to %.1f,%.1f)\n", pos.ID, pos.X, pos.Y)

		case netmsg.MsgTypePingReply:
			fmt.Println("(pong)")
		}
	}
}
