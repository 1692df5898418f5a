package main

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gluk-w/claworc/console/internal/config"
	"github.com/gluk-w/claworc/console/internal/database"
	"github.com/gluk-w/claworc/console/internal/terminal"
)

const (
	terminalCleanupSchedule = "@every 1m"
	auditPruneSchedule      = "@hourly"
)

// startJobs schedules the periodic maintenance jobs and starts the scheduler.
func startJobs(mgr *terminal.Manager) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := c.AddFunc(terminalCleanupSchedule, func() { cleanupTerminals(mgr) }); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(auditPruneSchedule, func() { pruneAuditLog(time.Now()) }); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// cleanupTerminals drops closed terminals past their retention window.
func cleanupTerminals(mgr *terminal.Manager) int {
	if mgr == nil {
		return 0
	}
	return mgr.CleanupClosed()
}

// pruneAuditLog deletes session records older than the audit retention.
func pruneAuditLog(now time.Time) int64 {
	if config.Cfg.AuditRetention <= 0 {
		return 0
	}
	n, err := database.PruneSessions(now.Add(-config.Cfg.AuditRetention))
	if err != nil {
		log.Printf("[jobs] prune audit log: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("[jobs] pruned %d terminal session record(s)", n)
	}
	return n
}
