// Package mobile provides gomobile-bindable functions for running cardlogd on
// a kiosk tablet with an NFC reader. All complex data is returned as JSON
// strings since gomobile cannot export maps, slices, or structs.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/b0ase/cardlog/internal/config"
	"github.com/b0ase/cardlog/internal/daemon"
	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/scanlog"

	// Required by gomobile bind at build time
	_ "golang.org/x/mobile/bind"
)

var (
	mu      sync.Mutex
	d       *daemon.Daemon
	version = "0.1.0"
)

// Start initialises and starts the daemon. configYAML may be empty to use
// defaults. dataDir is the app's private files directory
// (e.g. Context.getFilesDir() + "/cardlog").
func Start(configYAML string, dataDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if d != nil {
		return fmt.Errorf("already running")
	}

	cfg, err := config.LoadFromBytes([]byte(configYAML))
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	// the cgo driver is not available in the Android build
	cfg.Database.Driver = db.DriverPure
	// reachable from the tablet's own browser and the LAN
	cfg.API.Bind = "0.0.0.0"

	nd, err := daemon.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := nd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	d = nd
	return nil
}

// Stop gracefully shuts down the daemon.
func Stop() {
	mu.Lock()
	defer mu.Unlock()

	if d != nil {
		d.Stop()
		d = nil
	}
}

// IsRunning returns true if the daemon is currently running.
func IsRunning() bool {
	mu.Lock()
	defer mu.Unlock()
	return d != nil
}

// GetStatus returns daemon status and scan counters as a JSON string.
func GetStatus() string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"running":false}`
	}

	status := map[string]interface{}{
		"running":   true,
		"node_id":   d.NodeID(),
		"uptime_ms": d.Uptime().Milliseconds(),
		"api_port":  d.Port(),
	}
	if stats, err := db.GetStats(time.Now()); err == nil {
		status["stats"] = stats
	}

	data, _ := json.Marshal(status)
	return string(data)
}

// RecordScan stores a card read by the device's NFC reader. user may be empty
// to resolve it from the card holder directory.
// Returns JSON: {"id":N,"time":"...","uid":"...","user":"..."} or {"error":"..."}.
func RecordScan(uid, user string) string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"error":"daemon not running"}`
	}
	rec, err := d.Scans().Record(context.Background(), uid, user, scanlog.SourceMobile)
	if err != nil {
		return errorJSON(err)
	}
	data, _ := json.Marshal(rec)
	return string(data)
}

// GetRecentScans returns up to limit scans, newest first, as a JSON array.
func GetRecentScans(limit int) string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `[]`
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	logs, err := db.RecentScans(limit)
	if err != nil {
		return `[]`
	}
	data, _ := json.Marshal(db.Records(logs))
	return string(data)
}

// GetAPIPort returns the port the HTTP API is listening on, or 0.
func GetAPIPort() int {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return 0
	}
	return d.Port()
}

// GetVersion returns the cardlog version string.
func GetVersion() string {
	return version
}

func errorJSON(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
