package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/b0ase/cardlog/internal/model"
)

// storedLayout keeps timestamps lexically ordered so ORDER BY and DATE() work.
// Reads CAST the column to TEXT so drivers that parse DATETIME columns
// hand back the stored string unchanged.
const storedLayout = "2006-01-02 15:04:05"

// CardLog is one row of card_logs.
type CardLog struct {
	ID        int64
	UID       string
	User      string
	Timestamp time.Time
}

// Record converts the row to its wire form.
func (c *CardLog) Record() model.LogRecord {
	return model.NewLogRecord(c.ID, c.UID, c.User, c.Timestamp)
}

// Stats are the aggregate counters served by /api/stats.
type Stats struct {
	TotalScans  int `json:"total_scans"`
	UniqueUsers int `json:"unique_users"`
	TodayScans  int `json:"today_scans"`
}

// InsertScan stores a scan and returns it with its assigned id.
func InsertScan(uid, user string, ts time.Time) (*CardLog, error) {
	res, err := db.Exec(`
		INSERT INTO card_logs (uid, user, timestamp)
		VALUES (?, ?, ?)`,
		uid, user, ts.Format(storedLayout))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &CardLog{ID: id, UID: uid, User: user, Timestamp: ts.Truncate(time.Second)}, nil
}

// RecentScans returns up to limit scans, newest first.
func RecentScans(limit int) ([]CardLog, error) {
	return queryScans(`
		SELECT id, uid, user, CAST(timestamp AS TEXT)
		FROM card_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
}

// SearchScans matches term as a substring of uid or user, newest first.
func SearchScans(term string, limit int) ([]CardLog, error) {
	pattern := "%" + term + "%"
	return queryScans(`
		SELECT id, uid, user, CAST(timestamp AS TEXT)
		FROM card_logs
		WHERE uid LIKE ? OR user LIKE ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, pattern, pattern, limit)
}

// ScansByDate returns scans whose date is date (YYYY-MM-DD), newest first.
func ScansByDate(date string, limit int) ([]CardLog, error) {
	return queryScans(`
		SELECT id, uid, user, CAST(timestamp AS TEXT)
		FROM card_logs
		WHERE DATE(timestamp) = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, date, limit)
}

// GetStats computes totals; today selects the date counted as "today".
func GetStats(today time.Time) (*Stats, error) {
	var s Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT user),
			COALESCE(SUM(CASE WHEN DATE(timestamp) = ? THEN 1 ELSE 0 END), 0)
		FROM card_logs`, today.Format("2006-01-02")).
		Scan(&s.TotalScans, &s.UniqueUsers, &s.TodayScans)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ScanRange returns the oldest and newest timestamps, empty when there are no rows.
func ScanRange() (oldest, newest string, err error) {
	var lo, hi sql.NullString
	if err := db.QueryRow(`SELECT CAST(MIN(timestamp) AS TEXT), CAST(MAX(timestamp) AS TEXT) FROM card_logs`).Scan(&lo, &hi); err != nil {
		return "", "", err
	}
	return lo.String, hi.String, nil
}

// CountScans returns the number of rows in card_logs.
func CountScans() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM card_logs`).Scan(&n)
	return n, err
}

// CleanupOlderThan deletes scans stamped before cutoff and returns how many were removed.
func CleanupOlderThan(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM card_logs WHERE timestamp < ?`, cutoff.Format(storedLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Tables lists user tables in the database.
func Tables() ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func queryScans(query string, args ...interface{}) ([]CardLog, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []CardLog
	for rows.Next() {
		var (
			c  CardLog
			ts string
		)
		if err := rows.Scan(&c.ID, &c.UID, &c.User, &ts); err != nil {
			return nil, err
		}
		t, ok := model.ParseTime(ts, time.Local)
		if !ok {
			return nil, fmt.Errorf("row %d: bad timestamp %q", c.ID, ts)
		}
		c.Timestamp = t
		logs = append(logs, c)
	}
	return logs, rows.Err()
}

// Records converts rows to wire records, never returning nil.
func Records(logs []CardLog) []model.LogRecord {
	out := make([]model.LogRecord, 0, len(logs))
	for i := range logs {
		out = append(out, logs[i].Record())
	}
	return out
}
