package db

import (
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// Config keys used by the daemon.
const (
	KeyNodeID     = "node_id"
	KeyLastBackup = "last_backup_unix"
	KeyLastPurge  = "last_cleanup_unix"
)

func GetConfig(key string) (string, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&val)
	if err != nil {
		return "", err
	}
	return val, nil
}

func SetConfig(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// GetConfigTime reads a unix-seconds value; a missing key yields the zero time.
func GetConfigTime(key string) (time.Time, error) {
	v, err := GetConfig(key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

func SetConfigTime(key string, t time.Time) error {
	return SetConfig(key, strconv.FormatInt(t.Unix(), 10))
}

func GetNodeID() (string, error) {
	return GetConfig(KeyNodeID)
}
