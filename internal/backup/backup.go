// Package backup maintains the scan database: snapshots, restore, compaction
// and backup retention.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/logging"
)

const stampLayout = "20060102_150405"

// File describes one backup on disk.
type File struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Info is a snapshot of database and backup statistics.
type Info struct {
	DatabasePath string     `json:"database_path"`
	SizeBytes    int64      `json:"database_size_bytes"`
	SizeMB       float64    `json:"database_size_mb"`
	Tables       []string   `json:"tables"`
	TotalLogs    int        `json:"total_logs"`
	OldestLog    string     `json:"oldest_log,omitempty"`
	NewestLog    string     `json:"newest_log,omitempty"`
	BackupCount  int        `json:"backup_count"`
	BackupFiles  []File     `json:"backup_files"`
	LastBackup   *time.Time `json:"last_backup,omitempty"`
}

// OptimizeResult reports the effect of Optimize.
type OptimizeResult struct {
	InitialSize int64     `json:"initial_size_bytes"`
	FinalSize   int64     `json:"final_size_bytes"`
	SpaceSaved  int64     `json:"space_saved_bytes"`
	SavedMB     float64   `json:"space_saved_mb"`
	At          time.Time `json:"optimization_date"`
}

// Manager operates on the database opened through package db.
type Manager struct {
	dir    string
	driver string
	clock  clock.Clock
	mu     sync.Mutex
	log    *zap.SugaredLogger
}

// NewManager creates the backup directory if needed. driver is reused when
// Restore reopens the database.
func NewManager(dir, driver string, clk clock.Clock) (*Manager, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{dir: dir, driver: driver, clock: clk, log: logging.Named("backup")}, nil
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Create writes a consistent copy of the live database. An empty name
// produces cardlog_backup_<timestamp>.db.
func (m *Manager) Create(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(name)
}

func (m *Manager) create(name string) (string, error) {
	conn := db.DB()
	if conn == nil {
		return "", fmt.Errorf("database not open")
	}
	if name == "" {
		name = fmt.Sprintf("cardlog_backup_%s.db", m.clock.Now().Format(stampLayout))
	}
	if filepath.Base(name) != name || !strings.HasSuffix(name, ".db") {
		return "", fmt.Errorf("invalid backup name %q", name)
	}

	dest := filepath.Join(m.dir, name)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup %s already exists", name)
	}

	// VACUUM INTO captures WAL contents, a plain file copy would not
	if _, err := conn.Exec(`VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	if err := db.SetConfigTime(db.KeyLastBackup, m.clock.Now()); err != nil {
		m.log.Warnf("Failed to record backup time: %v", err)
	}

	m.log.Infof("Database backup created: %s", dest)
	return dest, nil
}

// Restore replaces the live database with the backup at path. The current
// database is first saved as pre_restore_<timestamp>.db. Returns that path.
func (m *Manager) Restore(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("backup file not found: %w", err)
	}
	livePath := db.Path()
	if livePath == "" || db.DB() == nil {
		return "", fmt.Errorf("database not open")
	}

	previous, err := m.create(fmt.Sprintf("pre_restore_%s.db", m.clock.Now().Format(stampLayout)))
	if err != nil {
		return "", fmt.Errorf("save current database: %w", err)
	}

	db.Close()
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(livePath + suffix)
	}
	copyErr := copyFile(path, livePath)
	if err := db.Open(m.driver, livePath); err != nil {
		return previous, fmt.Errorf("reopen database: %w", err)
	}
	if copyErr != nil {
		return previous, fmt.Errorf("copy backup: %w", copyErr)
	}

	m.log.Infof("Database restored from %s (previous state saved to %s)", path, previous)
	return previous, nil
}

// List returns backups sorted newest first.
func (m *Manager) List() ([]File, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Name:     e.Name(),
			Path:     filepath.Join(m.dir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified.After(files[j].Modified) })
	return files, nil
}

// Prune deletes backups last modified more than days ago.
func (m *Manager) Prune(days int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := m.clock.Now().AddDate(0, 0, -days)
	deleted := 0
	for _, f := range files {
		if f.Modified.Before(cutoff) {
			if err := os.Remove(f.Path); err != nil {
				m.log.Warnf("Failed to delete %s: %v", f.Name, err)
				continue
			}
			deleted++
			m.log.Infof("Deleted old backup: %s", f.Name)
		}
	}
	m.log.Infof("Backup cleanup completed, deleted %d files", deleted)
	return deleted, nil
}

// Info gathers database and backup statistics.
func (m *Manager) Info() (*Info, error) {
	path := db.Path()
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat database: %w", err)
	}
	tables, err := db.Tables()
	if err != nil {
		return nil, err
	}
	total, err := db.CountScans()
	if err != nil {
		return nil, err
	}
	oldest, newest, err := db.ScanRange()
	if err != nil {
		return nil, err
	}
	files, err := m.List()
	if err != nil {
		return nil, err
	}

	info := &Info{
		DatabasePath: path,
		SizeBytes:    st.Size(),
		SizeMB:       toMB(st.Size()),
		Tables:       tables,
		TotalLogs:    total,
		OldestLog:    oldest,
		NewestLog:    newest,
		BackupCount:  len(files),
		BackupFiles:  files,
	}
	if len(files) > 0 {
		last := files[0].Modified
		info.LastBackup = &last
	}
	return info, nil
}

// Optimize runs ANALYZE, VACUUM and REINDEX.
func (m *Manager) Optimize() (*OptimizeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn := db.DB()
	if conn == nil {
		return nil, fmt.Errorf("database not open")
	}
	before, err := fileSize(db.Path())
	if err != nil {
		return nil, err
	}
	for _, stmt := range []string{"ANALYZE", "VACUUM", "REINDEX"} {
		if _, err := conn.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(stmt), err)
		}
	}
	after, err := fileSize(db.Path())
	if err != nil {
		return nil, err
	}

	res := &OptimizeResult{
		InitialSize: before,
		FinalSize:   after,
		SpaceSaved:  before - after,
		SavedMB:     toMB(before - after),
		At:          m.clock.Now(),
	}
	m.log.Infof("Database optimization completed, space saved: %d bytes", res.SpaceSaved)
	return res, nil
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func toMB(n int64) float64 {
	return float64(int64(float64(n)/(1024*1024)*100+0.5)) / 100
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
