package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/b0ase/cardlog/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// Registered database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

var (
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
)

func dsn(driver, path string) (string, error) {
	switch driver {
	case DriverCGO, "":
		return path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", nil
	case DriverPure:
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q", driver)
	}
}

// Open initializes the SQLite database and runs the embedded schema.
func Open(driver, path string) error {
	mu.Lock()
	defer mu.Unlock()

	if db != nil {
		return nil // already open
	}
	if driver == "" {
		driver = DriverCGO
	}

	source, err := dsn(driver, path)
	if err != nil {
		return err
	}
	conn, err := sql.Open(driver, source)
	if err != nil {
		return err
	}

	// Single writer, multiple readers
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return fmt.Errorf("apply schema: %w", err)
	}

	db = conn
	dbPath = path
	logging.Named("db").Infof("Opened %s (driver %s)", path, driver)
	return nil
}

// Close shuts down the database connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if db != nil {
		db.Close()
		db = nil
		logging.Named("db").Info("Closed")
	}
}

// DB returns the underlying *sql.DB for direct queries.
func DB() *sql.DB {
	return db
}

// Path returns the file path passed to the last successful Open.
func Path() string {
	return dbPath
}

// Ping reports whether the database is open and answering.
func Ping() error {
	if db == nil {
		return fmt.Errorf("database not open")
	}
	return db.Ping()
}
