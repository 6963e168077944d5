package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gullradriel/nilorea-library-sub000/internal/connection"
	"github.com/gullradriel/nilorea-library-sub000/internal/database"
	"github.com/gullradriel/nilorea-library-sub000/internal/queue"
	"github.com/gullradriel/nilorea-library-sub000/internal/server"
	"github.com/gullradriel/nilorea-library-sub000/internal/timer"
	"github.com/gullradriel/nilorea-library-sub000/pkg/config"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Weather Server...")

	nl := nlog.New(logrus.InfoLevel)

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Run migrations
	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create Kafka topics
	if err := queue.CreateTopic(
		cfg.Kafka.Brokers,
		cfg.Kafka.TopicMetrics,
		cfg.Kafka.NumPartitions,
		1, // replication factor
		nl,
	); err != nil {
		nl.Warnf("topic creation failed (may already exist): %v", err)
	}

	if err := queue.CreateTopic(
		cfg.Kafka.Brokers,
		cfg.Kafka.TopicAlarms,
		1, // single partition for alarms
		1, // replication factor
		nl,
	); err != nil {
		nl.Warnf("topic creation failed (may already exist): %v", err)
	}

	// Create optimized Kafka producer (Phase 2!)
	producerConfig := &queue.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.TopicMetrics,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  cfg.Kafka.Compression,
		Async:        cfg.Kafka.Async,
		MaxAttempts:  cfg.Kafka.MaxAttempts,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		BatchBytes:   1048576, // 1MB
	}
	producer := queue.NewProducerWithConfig(producerConfig)
	defer producer.Close()
	fmt.Printf("Kafka producer initialized (batch=%d, compression=%s, async=%v)\n",
		cfg.Kafka.BatchSize, cfg.Kafka.Compression, cfg.Kafka.Async)

	// Create connection manager
	connManager := connection.NewManager(cfg.TCPServer.MaxConnections, nl)
	fmt.Println("Connection manager initialized")

	// Create timer manager
	timerManager := timer.NewTimerManager(cfg.WorkerPool.MaxWorkers, cfg.WorkerPool.MaxWaiting, cfg.WorkerPool.PollInterval, nl)
	timerManager.Start()
	defer timerManager.Stop()
	fmt.Println("Timer manager started")

	// Periodically sweep for connections the per-connection inactivity
	// timer missed (e.g. a half-open socket that never produced a read
	// error to trip scheduleInactivityTimer's own reschedule path).
	reapStop := make(chan struct{})
	defer close(reapStop)
	go func() {
		ticker := time.NewTicker(cfg.TCPServer.InactivityTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := connManager.ReapInactive(cfg.TCPServer.InactivityTimeout); n > 0 {
					nl.Warnf("reaped %d inactive connection(s)", n)
				}
			case <-reapStop:
				return
			}
		}
	}()

	// Create TCP server with worker pool support (Phase 1!)
	var tcpServer interface {
		Start() error
		Stop()
	}

	if cfg.TCPServer.UseWorkerPool {
		// Calculate worker count
		workerCount := cfg.TCPServer.WorkerCount
		if workerCount == 0 {
			workerCount = runtime.NumCPU() * 4 // Auto: 4x CPU cores
		}

		fmt.Printf("Starting TCP server with worker pool (%d workers, queue size %d)\n",
			workerCount, cfg.TCPServer.JobQueueSize)

		tcpServer = server.NewWorkerPoolTCPServer(
			&cfg.TCPServer,
			cfg.Connection,
			connManager,
			timerManager,
			producer,
			workerCount,
			cfg.TCPServer.JobQueueSize,
			cfg.WorkerPool.PollInterval,
			nl,
		)
	} else {
		fmt.Println("Starting TCP server with goroutine-per-connection")
		tcpServer = server.NewTCPServer(&cfg.TCPServer, cfg.Connection, connManager, timerManager, producer, nl)
	}

	if err := tcpServer.Start(); err != nil {
		log.Fatalf("Failed to start TCP server: %v", err)
	}
	defer tcpServer.Stop()

	// Start database writer
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicMetrics, "db-writer-group")
	defer consumer.Close()

	batchWriter := queue.NewBatchWriter(consumer, db, 100, 5*time.Second)
	if err := batchWriter.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start batch writer: %v", err)
	}
	defer batchWriter.Stop()
	fmt.Println("Database writer started")

	// Print statistics periodically
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := connManager.Stats()
			timerStats := timerManager.Stats()
			fmt.Printf("\n--- Server Statistics ---\n")
			fmt.Printf("Active Connections: %d / %d\n", stats.TotalConnections, stats.MaxConnections)
			fmt.Printf("Unique StationIDs: %d\n", stats.UniqueStations)
			for stationID, count := range connManager.CountByStation() {
				fmt.Printf("  %s: %d connection(s)\n", stationID, count)
			}
			fmt.Printf("Scheduled Timers: %d\n", timerStats.ScheduledTasks)
			fmt.Printf("------------------------\n\n")
		}
	}()

	fmt.Println("\n✓ Weather Server is running")
	fmt.Printf("✓ TCP Server listening on port %d\n", cfg.TCPServer.Port)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	if n := connManager.CloseAll(); n > 0 {
		nl.Infof("closed %d remaining connection(s) during shutdown", n)
	}
}
