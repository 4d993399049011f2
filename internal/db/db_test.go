package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, Open(DriverPure, path))
	t.Cleanup(Close)
}

func at(s string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestOpenClose(t *testing.T) {
	setupTestDB(t)

	require.NotNil(t, DB())
	assert.NoError(t, Ping())

	// Open is a no-op while already open
	assert.NoError(t, Open(DriverPure, filepath.Join(t.TempDir(), "other.db")))
}

func TestOpen_UnknownDriver(t *testing.T) {
	err := Open("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorContains(t, err, "unknown sqlite driver")
	assert.Nil(t, DB())
}

func TestGetNodeID(t *testing.T) {
	setupTestDB(t)

	id, err := GetNodeID()
	require.NoError(t, err)
	assert.Len(t, id, 32, "hex of 16 random bytes")
}

func TestConfigGetSet(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetConfig("test_key", "test_value"))
	val, err := GetConfig("test_key")
	require.NoError(t, err)
	assert.Equal(t, "test_value", val)

	require.NoError(t, SetConfig("test_key", "new_value"))
	val, _ = GetConfig("test_key")
	assert.Equal(t, "new_value", val)
}

func TestConfigTime(t *testing.T) {
	setupTestDB(t)

	zero, err := GetConfigTime(KeyLastBackup)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	now := time.Unix(1_760_000_000, 0)
	require.NoError(t, SetConfigTime(KeyLastBackup, now))
	got, err := GetConfigTime(KeyLastBackup)
	require.NoError(t, err)
	assert.True(t, now.Equal(got))
}

func TestInsertAndRecent(t *testing.T) {
	setupTestDB(t)

	_, err := InsertScan("A1", "alice", at("2026-10-18 10:00:00"))
	require.NoError(t, err)
	_, err = InsertScan("B2", "bob", at("2026-10-18 10:02:00"))
	require.NoError(t, err)
	third, err := InsertScan("C3", "carol", at("2026-10-17 09:00:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.ID)

	logs, err := RecentScans(50)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "bob", logs[0].User, "newest first")
	assert.Equal(t, "alice", logs[1].User)
	assert.Equal(t, "carol", logs[2].User)

	rec := logs[0].Record()
	assert.Equal(t, "2026-10-18 10:02:00", rec.Time)
	assert.Equal(t, "B2", rec.UID)

	limited, err := RecentScans(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecent_SameSecondOrderedByID(t *testing.T) {
	setupTestDB(t)

	ts := at("2026-10-18 10:00:00")
	InsertScan("A1", "first", ts)
	InsertScan("A2", "second", ts)

	logs, err := RecentScans(10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].User)
}

func TestSearchAndByDate(t *testing.T) {
	setupTestDB(t)

	InsertScan("04AABB", "alice", at("2026-10-18 08:00:00"))
	InsertScan("04CCDD", "bob", at("2026-10-17 08:00:00"))
	InsertScan("99EEFF", "alicia", at("2026-10-16 08:00:00"))

	byUser, err := SearchScans("ali", 50)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byUID, err := SearchScans("04", 50)
	require.NoError(t, err)
	assert.Len(t, byUID, 2)

	day, err := ScansByDate("2026-10-17", 50)
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "bob", day[0].User)

	none, err := ScansByDate("2020-01-01", 50)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, Records(none))
}

func TestStats(t *testing.T) {
	setupTestDB(t)

	empty, err := GetStats(at("2026-10-18 12:00:00"))
	require.NoError(t, err)
	assert.Equal(t, Stats{}, *empty)

	InsertScan("A1", "alice", at("2026-10-18 08:00:00"))
	InsertScan("A1", "alice", at("2026-10-18 09:00:00"))
	InsertScan("B2", "bob", at("2026-10-17 08:00:00"))

	s, err := GetStats(at("2026-10-18 12:00:00"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalScans)
	assert.Equal(t, 2, s.UniqueUsers)
	assert.Equal(t, 2, s.TodayScans)
}

func TestCleanupOlderThan(t *testing.T) {
	setupTestDB(t)

	InsertScan("A1", "old", at("2026-01-01 00:00:00"))
	InsertScan("B2", "new", at("2026-10-18 00:00:00"))

	n, err := CleanupOlderThan(at("2026-06-01 00:00:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := CountScans()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	oldest, newest, err := ScanRange()
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18 00:00:00", oldest)
	assert.Equal(t, oldest, newest)
}

func TestTables(t *testing.T) {
	setupTestDB(t)

	tables, err := Tables()
	require.NoError(t, err)
	assert.Contains(t, tables, "card_logs")
	assert.Contains(t, tables, "config")
}
