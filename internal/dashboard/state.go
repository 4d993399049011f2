// Package dashboard keeps the live scan dashboard consistent: three counters
// and a bounded newest-first table fed by a history snapshot and a live
// event stream.
package dashboard

import (
	"time"

	"github.com/b0ase/cardlog/internal/model"
)

// DefaultMaxRows is the visible table size.
const DefaultMaxRows = 50

// Counters is what the view shows above the table.
type Counters struct {
	TotalScans  int
	UniqueUsers int
	TodayScans  int
}

// State is the whole client-side dashboard state. Update it only through
// ApplyLive and ApplyHistory, which return a new value and leave their input
// untouched.
type State struct {
	TotalScans int
	Users      map[string]struct{}
	TodayScans int
	Rows       []model.LogRecord // newest first

	MaxRows   int
	Reference time.Time // "today" is this calendar date, fixed for the session
}

// NewState returns an empty state whose today counter matches reference's date.
func NewState(reference time.Time, maxRows int) State {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return State{
		Users:     map[string]struct{}{},
		MaxRows:   maxRows,
		Reference: reference,
	}
}

// Counters projects the counter values.
func (s State) Counters() Counters {
	return Counters{
		TotalScans:  s.TotalScans,
		UniqueUsers: len(s.Users),
		TodayScans:  s.TodayScans,
	}
}

// ApplyLive accounts for one pushed record and puts it on top of the table.
// Records are not validated; empty fields are counted as they are.
func ApplyLive(s State, rec model.LogRecord) State {
	next := s.clone()
	next.add(rec)
	next.Rows = PushRow(s.Rows, rec, s.MaxRows)
	return next
}

// ApplyHistory replays a newest-first snapshot oldest-first, so the newest
// record ends on top. The total grows by len(recs).
func ApplyHistory(s State, recs []model.LogRecord) State {
	if len(recs) == 0 {
		return s
	}
	next := s.clone()
	rows := s.Rows
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		rows = PushRow(rows, rec, s.MaxRows)
		next.Users[rec.User] = struct{}{}
		if model.SameDate(rec.Time, s.Reference) {
			next.TodayScans++
		}
	}
	next.TotalScans += len(recs)
	next.Rows = rows
	return next
}

// PushRow returns a new slice with rec first, dropping the oldest rows beyond max.
func PushRow(rows []model.LogRecord, rec model.LogRecord, max int) []model.LogRecord {
	if max <= 0 {
		max = DefaultMaxRows
	}
	keep := len(rows)
	if keep > max-1 {
		keep = max - 1
	}
	out := make([]model.LogRecord, 0, keep+1)
	out = append(out, rec)
	return append(out, rows[:keep]...)
}

func (s State) clone() State {
	users := make(map[string]struct{}, len(s.Users)+1)
	for u := range s.Users {
		users[u] = struct{}{}
	}
	s.Users = users
	return s
}

func (s *State) add(rec model.LogRecord) {
	s.TotalScans++
	s.Users[rec.User] = struct{}{}
	if model.SameDate(rec.Time, s.Reference) {
		s.TodayScans++
	}
}
