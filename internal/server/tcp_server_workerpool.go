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
	"github.com/gullradriel/nilorea-library-sub000/internal/workerpool"
	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/config"
	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// WorkerPoolTCPServer is a TCP server that hands each decoded frame off to
// a bounded worker pool instead of processing it on the connection's own
// goroutine, so one slow Kafka publish can't stall a connection's reads.
type WorkerPoolTCPServer struct {
	config       *config.TCPServerConfig
	connCfg      config.ConnectionConfig
	connManager  *connection.Manager
	timerManager *timer.TimerManager
	producer     *queue.Producer
	listener     *connection.Listener
	workers      *workerpool.Pool
	log          nlog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkerPoolTCPServer creates a new worker pool TCP server.
func NewWorkerPoolTCPServer(
	cfg *config.TCPServerConfig,
	connCfg config.ConnectionConfig,
	connManager *connection.Manager,
	timerManager *timer.TimerManager,
	producer *queue.Producer,
	workerCount int,
	jobQueueSize int,
	pollInterval time.Duration,
	log nlog.Logger,
) *WorkerPoolTCPServer {
	if log == nil {
		log = nlog.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	if workerCount <= 0 {
		workerCount = 10
	}
	if jobQueueSize <= 0 {
		jobQueueSize = 1000
	}

	return &WorkerPoolTCPServer{
		config:       cfg,
		connCfg:      connCfg,
		connManager:  connManager,
		timerManager: timerManager,
		producer:     producer,
		workers:      workerpool.New(workerCount, jobQueueSize, pollInterval),
		log:          log,
		stopCh:       make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the TCP server and worker pool.
func (s *WorkerPoolTCPServer) Start() error {
	ln, err := connection.Listen("", s.config.Port, 128, connection.IPAny, s.log)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = ln

	fmt.Printf("Worker pool TCP server listening on :%d with %d workers\n", s.config.Port, s.config.WorkerCount)

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop stops the TCP server gracefully.
func (s *WorkerPoolTCPServer) Stop() {
	fmt.Println("Stopping worker pool TCP server...")
	close(s.stopCh)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	s.workers.Destroy()
	fmt.Println("Worker pool TCP server stopped")
}

// acceptConnections accepts incoming connections.
func (s *WorkerPoolTCPServer) acceptConnections() {
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

// handleConnection performs the identify handshake and then reads frames,
// dispatching each to the worker pool for processing.
func (s *WorkerPoolTCPServer) handleConnection(conn *connection.Conn) {
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
		fmt.Printf("Connection %s: failed to register: %v\n", connectionID, err)
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

		err := s.workers.Submit(workerpool.Direct, func() {
			s.processFrame(connectionID, stationID, conn, wire)
		})
		if err != nil {
			fmt.Printf("Worker pool full, dropping frame from %s: %v\n", connectionID, err)
		}

		s.connManager.UpdateActivity(connectionID)
		s.scheduleInactivityTimer(connectionID)
	}
}

// processFrame decodes and dispatches a single frame. Runs on a worker
// pool goroutine, never on the connection's own reader goroutine.
func (s *WorkerPoolTCPServer) processFrame(connectionID, stationID string, conn *connection.Conn, wire *buffer.Buffer) {
	msg, err := netmsg.Decode(wire)
	if err != nil {
		fmt.Printf("Connection %s: malformed frame: %v\n", connectionID, err)
		return
	}

	typ, err := msg.PopInt()
	if err != nil {
		fmt.Printf("Connection %s: empty frame\n", connectionID)
		return
	}

	switch typ {
	case netmsg.MsgTypeMetricSample:
		sample, err := netmsg.DecodeMetricSample(msg)
		if err != nil {
			fmt.Printf("Connection %s: malformed metric sample: %v\n", connectionID, err)
			return
		}
		s.handleMetricSample(connectionID, stationID, sample)

	case netmsg.MsgTypePingRequest:
		ping, err := netmsg.DecodePing(msg)
		if err != nil {
			fmt.Printf("Connection %s: malformed ping: %v\n", connectionID, err)
			return
		}
		reply := netmsg.NewPingMessage(netmsg.MsgTypePingReply, ping)
		conn.EnqueueSend(netmsg.Encode(reply))

	case netmsg.MsgTypeQuit:
		conn.Close()

	default:
		fmt.Printf("Connection %s: unhandled message type %d\n", connectionID, typ)
	}
}

// handleMetricSample publishes a decoded weather reading to Kafka. The
// wire sample's StationID is the transport-level numeric id (it parallels
// Ident.ID); the string station id used for partitioning and for the
// database layer comes from the connection's registered identity, set at
// handshake time, not re-derived per sample.
func (s *WorkerPoolTCPServer) handleMetricSample(connectionID, stationID string, sample *netmsg.MetricSample) {
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
		fmt.Printf("Failed to encode metric: %v\n", err)
		return
	}

	if err := s.producer.Publish(s.ctx, stationID, data); err != nil {
		fmt.Printf("Failed to publish metric: %v\n", err)
		return
	}

	fmt.Printf("Received metrics from %s (stationID=%s)\n", connectionID, stationID)
}

func (s *WorkerPoolTCPServer) scheduleInactivityTimer(connectionID string) {
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
