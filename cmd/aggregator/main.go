package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gullradriel/nilorea-library-sub000/internal/aggregation"
	"github.com/gullradriel/nilorea-library-sub000/internal/database"
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

	fmt.Println("Starting Aggregation Service...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Create timer manager
	nl := nlog.New(logrus.InfoLevel)
	timerManager := timer.NewTimerManager(cfg.WorkerPool.MaxWorkers, cfg.WorkerPool.MaxWaiting, cfg.WorkerPool.PollInterval, nl)
	timerManager.Start()
	defer timerManager.Stop()
	fmt.Println("Timer manager started")

	// Create aggregators
	hourlyAgg := aggregation.NewHourlyAggregator(db, nl)
	dailyAgg := aggregation.NewDailyAggregator(db, nl)

	// Schedule hourly aggregation
	scheduleHourlyAggregation(timerManager, hourlyAgg, cfg.Aggregation.HourlyDelay, nl)

	// Schedule daily aggregation
	scheduleDailyAggregation(timerManager, dailyAgg, cfg.Aggregation.DailyTime, nl)

	fmt.Println("\n✓ Aggregation Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

func scheduleHourlyAggregation(tm *timer.TimerManager, agg *aggregation.HourlyAggregator, delay time.Duration, nl nlog.Logger) {
	taskID := "hourly-aggregation"

	var scheduleNext func()
	scheduleNext = func() {
		nextRun := agg.CalculateNextRunTime(delay)
		nl.Infof("next hourly aggregation scheduled for: %s", nextRun.Format("2006-01-02 15:04:05"))

		callback := func() {
			if err := agg.AggregatePreviousHour(); err != nil {
				nl.Errorf("hourly aggregation failed: %v", err)
			}

			// Schedule next run
			scheduleNext()
		}

		tm.Schedule(taskID, nextRun, callback)
	}

	scheduleNext()
}

func scheduleDailyAggregation(tm *timer.TimerManager, agg *aggregation.DailyAggregator, timeOfDay string, nl nlog.Logger) {
	taskID := "daily-aggregation"

	var scheduleNext func()
	scheduleNext = func() {
		nextRun, err := agg.CalculateNextRunTime(timeOfDay)
		if err != nil {
			log.Fatalf("Failed to calculate daily run time: %v", err)
		}
		nl.Infof("next daily aggregation scheduled for: %s", nextRun.Format("2006-01-02 15:04:05"))

		callback := func() {
			if err := agg.AggregatePreviousDay(); err != nil {
				nl.Errorf("daily aggregation failed: %v", err)
			}

			// Schedule next run
			scheduleNext()
		}

		tm.Schedule(taskID, nextRun, callback)
	}

	scheduleNext()
}
