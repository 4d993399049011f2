package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/backup"
	"github.com/b0ase/cardlog/internal/config"
	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/ingest"
	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/push"
	"github.com/b0ase/cardlog/internal/scanlog"
	"github.com/b0ase/cardlog/internal/server"
)

const statusInterval = 60 * time.Second

// Daemon orchestrates all cardlogd subsystems.
type Daemon struct {
	cfg       *config.Config
	clock     clock.Clock
	nodeID    string
	startTime time.Time
	hub       *push.Hub
	scans     *scanlog.Service
	backups   *backup.Manager
	reader    *ingest.Reader
	httpSrv   *server.Server
	port      int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
}

// New creates a new daemon instance. clk may be nil.
func New(cfg *config.Config, clk clock.Clock) (*Daemon, error) {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{cfg: cfg, clock: clk, ctx: ctx, cancel: cancel, log: logging.Named("daemon")}, nil
}

// Start initializes and starts all subsystems in order. Only a database
// failure is fatal; other subsystems log and stay off.
func (d *Daemon) Start() error {
	d.startTime = d.clock.Now()

	// 1. Open database
	if err := db.Open(d.cfg.Database.Driver, d.cfg.DBPath()); err != nil {
		return fmt.Errorf("db open: %w", err)
	}

	// 2. Node ID
	nodeID, err := db.GetNodeID()
	if err != nil {
		db.Close()
		return fmt.Errorf("get node id: %w", err)
	}
	d.nodeID = nodeID
	d.log.Infof("Node ID: %s", shortID(nodeID))

	// 3. Push hub and the scan write path
	d.hub = push.New(d.cfg.API.CORSOrigin)
	d.scans = scanlog.New(d.clock, d.cfg.Users, d.hub)
	if n := len(d.cfg.Users); n > 0 {
		d.log.Infof("Loaded %d card holders", n)
	}

	// 4. Backups and retention
	if mgr, err := backup.NewManager(d.cfg.BackupDir(), d.cfg.Database.Driver, d.clock); err != nil {
		d.log.Warnf("Backups disabled: %v", err)
	} else {
		d.backups = mgr
	}
	d.wg.Add(1)
	go d.maintenanceLoop()

	// 5. Card reader feed
	if d.cfg.Reader.Path != "" {
		d.reader = ingest.NewReader(d.cfg.Reader.Path, d.cfg.Reader.FromStart, d.scans)
		if err := d.reader.Start(d.ctx); err != nil {
			d.log.Warnf("Card reader feed failed to start: %v", err)
			d.reader = nil
		}
	}

	// 6. Periodic status logging
	d.wg.Add(1)
	go d.statusLoop()

	// 7. HTTP API
	d.httpSrv = server.New(d.cfg, d.scans, d.hub, d.clock)
	if port, err := d.httpSrv.Start(); err != nil {
		d.log.Warnf("HTTP API failed to start: %v (reader feed continues)", err)
		d.httpSrv = nil
	} else {
		d.port = port
		d.log.Infof("HTTP API on port %d", port)
	}

	d.log.Info("All systems online")
	return nil
}

// maintenanceLoop runs RunMaintenance every backup interval, and once at
// startup when the last backup is older than one interval.
func (d *Daemon) maintenanceLoop() {
	defer d.wg.Done()

	interval := d.cfg.Database.BackupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := d.clock.Ticker(interval)
	defer ticker.Stop()

	if last, err := db.GetConfigTime(db.KeyLastBackup); err == nil && d.clock.Since(last) >= interval {
		d.RunMaintenance()
	}
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.RunMaintenance()
		}
	}
}

// RunMaintenance performs one backup, backup prune and log retention pass
// according to the database config.
func (d *Daemon) RunMaintenance() {
	cfg := d.cfg.Database
	if d.backups != nil {
		if cfg.BackupEnabled {
			if _, err := d.backups.Create(""); err != nil {
				d.log.Warnf("Scheduled backup failed: %v", err)
			}
		}
		if cfg.BackupRetentionDays > 0 {
			if _, err := d.backups.Prune(cfg.BackupRetentionDays); err != nil {
				d.log.Warnf("Backup prune failed: %v", err)
			}
		}
	}
	if cfg.CleanupDays > 0 {
		deleted, err := db.CleanupOlderThan(d.clock.Now().AddDate(0, 0, -cfg.CleanupDays))
		if err != nil {
			d.log.Warnf("Log retention failed: %v", err)
			return
		}
		if err := db.SetConfigTime(db.KeyLastPurge, d.clock.Now()); err != nil {
			d.log.Warnf("Failed to record purge time: %v", err)
		}
		if deleted > 0 {
			d.log.Infof("Removed %d logs older than %d days", deleted, cfg.CleanupDays)
		}
	}
}

func (d *Daemon) statusLoop() {
	defer d.wg.Done()
	ticker := d.clock.Ticker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			stats, err := db.GetStats(d.clock.Now())
			if err != nil {
				d.log.Warnf("Status: %v", err)
				continue
			}
			d.log.Infof("Scans: %d | Users: %d | Today: %d | Live clients: %d",
				stats.TotalScans, stats.UniqueUsers, stats.TodayScans, d.hub.ClientCount())
		}
	}
}

// Stop shuts down all subsystems.
func (d *Daemon) Stop() {
	d.log.Info("Shutting down...")
	d.cancel()

	if d.reader != nil {
		d.reader.Stop()
	}
	if d.httpSrv != nil {
		d.httpSrv.Stop()
	}
	if d.hub != nil {
		d.hub.Close()
	}
	d.wg.Wait()
	db.Close()

	d.log.Info("Shutdown complete")
}

// shortID trims an id for log lines. Restored databases may carry ids of
// any length.
func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

// --- Status accessors ---

func (d *Daemon) NodeID() string          { return d.nodeID }
func (d *Daemon) Uptime() time.Duration   { return d.clock.Since(d.startTime) }
func (d *Daemon) Port() int               { return d.port }
func (d *Daemon) Scans() *scanlog.Service { return d.scans }
