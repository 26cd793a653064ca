package services

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// ReportScheduler runs the daily fiscal report export at the configured
// local time.
type ReportScheduler struct {
	reports  *ReportService
	stopChan chan bool
	running  atomic.Bool
}

// NewReportScheduler creates a scheduler for reports.
func NewReportScheduler(reports *ReportService) *ReportScheduler {
	return &ReportScheduler{
		reports:  reports,
		stopChan: make(chan bool),
	}
}

// Start begins the scheduler
func (s *ReportScheduler) Start() error {
	if s.running.Load() {
		return fmt.Errorf("scheduler is already running")
	}

	config, err := s.reports.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	if !config.IsEnabled || !config.AutoSync {
		log.Println("Report auto-sync is disabled")
		return nil
	}

	s.running.Store(true)
	go s.run()

	log.Println("Report scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *ReportScheduler) Stop() {
	if !s.running.Load() {
		return
	}
	s.stopChan <- true
	s.running.Store(false)
	log.Println("Report scheduler stopped")
}

func (s *ReportScheduler) run() {
	for {
		config, err := s.reports.GetConfig()
		if err != nil {
			log.Printf("Error getting report config: %v", err)
			time.Sleep(1 * time.Minute)
			continue
		}
		if !config.IsEnabled || !config.AutoSync {
			log.Println("Report auto-sync disabled, stopping scheduler")
			s.running.Store(false)
			return
		}

		wait := timeUntilDaily(config.SyncTime, time.Now())
		log.Printf("Next fiscal report sync scheduled in %v", wait)

		select {
		case <-time.After(wait):
			if err := s.reports.SyncNow(); err != nil {
				log.Printf("Scheduled report sync failed: %v", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

// timeUntilDaily returns the duration until the next occurrence of the HH:MM
// time. A malformed value falls back to 23:00.
func timeUntilDaily(syncTime string, now time.Time) time.Duration {
	t, err := time.Parse("15:04", syncTime)
	if err != nil {
		t, _ = time.Parse("15:04", "23:00")
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
