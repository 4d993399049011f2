package dashboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/cardlog/internal/model"
)

var refDay = time.Date(2026, 10, 18, 8, 30, 0, 0, time.Local)

func rec(id int64, tm, uid, user string) model.LogRecord {
	return model.LogRecord{ID: id, Time: tm, UID: uid, User: user}
}

func TestPushRow_CapsAndEvictsOldest(t *testing.T) {
	var rows []model.LogRecord
	for i := 1; i <= 51; i++ {
		rows = PushRow(rows, rec(int64(i), "", fmt.Sprint(i), "u"), 50)
	}
	require.Len(t, rows, 50)
	assert.Equal(t, int64(51), rows[0].ID)
	assert.Equal(t, int64(2), rows[49].ID, "only the first record was evicted")
}

func TestPushRow_DoesNotMutateInput(t *testing.T) {
	rows := []model.LogRecord{rec(1, "", "A", "a"), rec(2, "", "B", "b")}
	out := PushRow(rows, rec(3, "", "C", "c"), 2)

	assert.Equal(t, []model.LogRecord{rec(3, "", "C", "c"), rec(1, "", "A", "a")}, out)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, int64(2), rows[1].ID)
}

func TestApplyHistory_ReplaysOldestFirst(t *testing.T) {
	s := NewState(refDay, 50)
	history := []model.LogRecord{
		rec(2, "2026-10-18 10:02:00", "B2", "bob"),
		rec(1, "2026-10-18 10:00:00", "A1", "alice"),
	}

	s = ApplyHistory(s, history)

	assert.Equal(t, Counters{TotalScans: 2, UniqueUsers: 2, TodayScans: 2}, s.Counters())
	require.Len(t, s.Rows, 2)
	assert.Equal(t, "bob", s.Rows[0].User, "newest history record ends on top")
	assert.Equal(t, "alice", s.Rows[1].User)
	assert.Contains(t, s.Users, "alice")
	assert.Contains(t, s.Users, "bob")
}

func TestApplyHistory_Empty(t *testing.T) {
	s := NewState(refDay, 50)
	assert.Equal(t, s.Counters(), ApplyHistory(s, nil).Counters())
}

func TestApplyLive_Counters(t *testing.T) {
	s := NewState(refDay, 50)

	s = ApplyLive(s, rec(1, "2026-10-18 10:05:00", "C3", "carol"))
	s = ApplyLive(s, rec(2, "2026-10-17 23:59:59", "C3", "carol"))
	s = ApplyLive(s, rec(3, "10:02", "D4", "dave"))

	assert.Equal(t, Counters{TotalScans: 3, UniqueUsers: 2, TodayScans: 1}, s.Counters())
	assert.Equal(t, "dave", s.Rows[0].User)
}

func TestApplyLive_KeepsInputState(t *testing.T) {
	s := NewState(refDay, 50)
	next := ApplyLive(s, rec(1, "2026-10-18 10:05:00", "C3", "carol"))

	assert.Zero(t, s.TotalScans)
	assert.Empty(t, s.Users)
	assert.Empty(t, s.Rows)
	assert.Equal(t, 1, next.TotalScans)
}

func TestApplyLive_NoValidation(t *testing.T) {
	s := ApplyLive(NewState(refDay, 50), model.LogRecord{})

	assert.Equal(t, Counters{TotalScans: 1, UniqueUsers: 1, TodayScans: 0}, s.Counters())
	require.Len(t, s.Rows, 1)
	assert.Equal(t, model.LogRecord{}, s.Rows[0])
}

func TestState_Invariants(t *testing.T) {
	s := NewState(refDay, 50)
	s = ApplyHistory(s, []model.LogRecord{
		rec(3, "2026-10-18 09:00:00", "A1", "alice"),
		rec(2, "2026-10-16 09:00:00", "B2", "bob"),
		rec(1, "2026-10-15 09:00:00", "A1", "alice"),
	})
	for i := 0; i < 120; i++ {
		user := fmt.Sprintf("user%d", i%7)
		s = ApplyLive(s, rec(int64(10+i), "2026-10-18 11:00:00", "X", user))

		c := s.Counters()
		assert.LessOrEqual(t, c.UniqueUsers, c.TotalScans)
		assert.LessOrEqual(t, c.TodayScans, c.TotalScans)
		assert.LessOrEqual(t, len(s.Rows), 50)
		if c.TotalScans <= 50 {
			assert.Len(t, s.Rows, c.TotalScans)
		}
	}
	assert.Equal(t, 123, s.TotalScans)
	assert.Equal(t, 9, len(s.Users))
	assert.Equal(t, 121, s.TodayScans)
}

func TestNewState_DefaultMaxRows(t *testing.T) {
	assert.Equal(t, DefaultMaxRows, NewState(refDay, 0).MaxRows)
}
