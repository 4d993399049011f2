// Package model holds the card-scan record shared by the server and the
// dashboard clients.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the display and wire format of LogRecord.Time.
const TimeLayout = "2006-01-02 15:04:05"

// LogRecord is one card scan as sent over /api/logs and the push channel.
// ID is the server row id; it is zero when the sender does not provide one.
type LogRecord struct {
	ID   int64  `json:"id,omitempty"`
	Time string `json:"time"`
	UID  string `json:"uid"`
	User string `json:"user"`
}

// NewLogRecord stamps a record with t formatted in TimeLayout.
func NewLogRecord(id int64, uid, user string, t time.Time) LogRecord {
	return LogRecord{ID: id, Time: t.Format(TimeLayout), UID: uid, User: user}
}

// Message is the notification text for a scan.
func (r LogRecord) Message() string {
	return fmt.Sprintf("%s scanned card %s", r.User, r.UID)
}

var parseLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseTime parses a record timestamp in the server's local zone.
// Unknown formats (e.g. a bare "10:02") return ok=false.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SameDate reports whether s parses to the calendar date of ref (in ref's zone).
func SameDate(s string, ref time.Time) bool {
	t, ok := ParseTime(s, ref.Location())
	if !ok {
		return false
	}
	t = t.In(ref.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// EventNewLog is the push-channel event carrying one LogRecord.
const EventNewLog = "new_log"

// Envelope frames every push-channel message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
