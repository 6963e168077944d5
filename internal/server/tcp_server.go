package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gullradriel/nilorea-library-sub000/internal/connection"
	"github.com/gullradriel/nilorea-library-sub000/internal/protocol"
	"github.com/gullradriel/nilorea-library-sub000/internal/queue"
	"github.com/gullradriel/nilorea-library-sub000/internal/timer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/config"
	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// TCPServer is the plain TCP server for weather stations: one goroutine
// per connection, frames handled inline. WorkerPoolTCPServer is the
// variant that fans frame handling out to a bounded worker pool instead.
type TCPServer struct {
	config       *config.TCPServerConfig
	connCfg      config.ConnectionConfig
	connManager  *connection.Manager
	timerManager *timer.TimerManager
	producer     *queue.Producer
	listener     *connection.Listener
	log          nlog.Logger
	wg           sync.WaitGroup
	stopCh       chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewTCPServer creates a new TCP server.
func NewTCPServer(cfg *config.TCPServerConfig, connCfg config.ConnectionConfig, connManager *connection.Manager, timerManager *timer.TimerManager, producer *queue.Producer, log nlog.Logger) *TCPServer {
	if log == nil {
		log = nlog.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{
		config:       cfg,
		connCfg:      connCfg,
		connManager:  connManager,
		timerManager: timerManager,
		producer:     producer,
		log:          log,
		stopCh:       make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the TCP server.
func (s *TCPServer) Start() error {
	ln, err := connection.Listen("", s.config.Port, 128, connection.IPAny, s.log)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.listener = ln
	fmt.Printf("TCP server listening on :%d\n", s.config.Port)

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop stops the TCP server gracefully.
func (s *TCPServer) Stop() {
	close(s.stopCh)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	fmt.Println("TCP server stopped")
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()

	tun := s.connCfg.ToTunables()
	for {
		conn, err := connection.Accept(s.listener, tun, connection.Blocking(), s.log)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				fmt.Printf("Failed to accept connection: %v\n", err)
				continue
			}
		}

		if s.connManager.Count() >= s.config.MaxConnections {
			fmt.Println("Maximum connections reached, rejecting connection")
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *TCPServer) handleConnection(conn *connection.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	conn.StartEngine()

	connectionID := uuid.New().String()
	fmt.Printf("New connection: %s from %s\n", connectionID, conn.RemoteAddr())

	wire := conn.WaitReceive(5*time.Millisecond, s.config.IdentifyTimeout)
	if wire == nil {
		fmt.Printf("Connection %s: no identify message within timeout\n", connectionID)
		return
	}

	msg, err := netmsg.Decode(wire)
	if err != nil {
		fmt.Printf("Connection %s: malformed identify frame: %v\n", connectionID, err)
		return
	}
	typ, err := netmsg.PeekFirstInt(wire)
	if err != nil || typ != netmsg.MsgTypeIdentRequest {
		fmt.Printf("Connection %s: expected ident request, got type %d (err=%v)\n", connectionID, typ, err)
		return
	}
	ident, err := netmsg.DecodeIdent(msg)
	if err != nil {
		fmt.Printf("Connection %s: failed to decode ident request: %v\n", connectionID, err)
		return
	}
	stationID := ident.Name

	if err := s.connManager.Register(connectionID, stationID, "", conn); err != nil {
		fmt.Printf("Failed to register client: %v\n", err)
		conn.EnqueueSend(netmsg.Encode(netmsg.NewIdentMessage(netmsg.MsgTypeIdentReplyNOK, ident.ID, stationID, "")))
		return
	}
	defer s.connManager.Unregister(connectionID)

	fmt.Printf("Client identified: %s (stationID=%s)\n", connectionID, stationID)
	conn.EnqueueSend(netmsg.Encode(netmsg.NewIdentMessage(netmsg.MsgTypeIdentReplyOK, ident.ID, stationID, "")))

	s.scheduleInactivityTimer(connectionID)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		wire := conn.WaitReceive(5*time.Millisecond, 30*time.Second)
		if wire == nil {
			if conn.State() != connection.StateRun {
				fmt.Printf("Connection %s closed\n", connectionID)
				return
			}
			continue
		}

		if err := s.handleFrame(connectionID, stationID, conn, wire); err != nil {
			fmt.Printf("Failed to handle message: %v\n", err)
		}

		s.connManager.UpdateActivity(connectionID)
		s.scheduleInactivityTimer(connectionID)
	}
}

func (s *TCPServer) handleFrame(connectionID, stationID string, conn *connection.Conn, wire *buffer.Buffer) error {
	msg, err := netmsg.Decode(wire)
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	typ, err := msg.PopInt()
	if err != nil {
		return fmt.Errorf("empty frame: %w", err)
	}

	switch typ {
	case netmsg.MsgTypeMetricSample:
		sample, err := netmsg.DecodeMetricSample(msg)
		if err != nil {
			return fmt.Errorf("malformed metric sample: %w", err)
		}
		return s.handleMetrics(connectionID, stationID, sample)

	case netmsg.MsgTypePingRequest:
		ping, err := netmsg.DecodePing(msg)
		if err != nil {
			return fmt.Errorf("malformed ping: %w", err)
		}
		return conn.EnqueueSend(netmsg.Encode(netmsg.NewPingMessage(netmsg.MsgTypePingReply, ping)))

	case netmsg.MsgTypeQuit:
		return conn.Close()

	default:
		return fmt.Errorf("unknown message type: %d", typ)
	}
}

func (s *TCPServer) handleMetrics(connectionID, stationID string, sample *netmsg.MetricSample) error {
	client, exists := s.connManager.Get(connectionID)
	city := ""
	if exists {
		city = client.City
	}

	metricMsg := &protocol.MetricMessage{
		ConnectionID: connectionID,
		StationID:    stationID,
		City:         city,
		ReceivedAt:   time.Now(),
		Sample:       *sample,
	}

	data, err := protocol.EncodeMetricMessage(metricMsg)
	if err != nil {
		return fmt.Errorf("failed to encode metric: %w", err)
	}

	if err := s.producer.Publish(s.ctx, stationID, data); err != nil {
		return fmt.Errorf("failed to publish metric: %w", err)
	}

	fmt.Printf("Received metrics from %s (stationID=%s)\n", connectionID, stationID)
	return nil
}

func (s *TCPServer) scheduleInactivityTimer(connectionID string) {
	timerID := fmt.Sprintf("inactivity-%s", connectionID)
	expiryAt := time.Now().Add(s.config.InactivityTimeout)

	callback := func() {
		s.log.Warnf("inactivity timeout for connection %s", connectionID)

		client, exists := s.connManager.Get(connectionID)
		if !exists {
			return
		}
		client.Conn.Close()
	}

	s.timerManager.Schedule(timerID, expiryAt, callback)
}
