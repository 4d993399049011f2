// Package scanlog records card scans: persist, resolve the display name,
// and announce them to live subscribers.
package scanlog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/metrics"
	"github.com/b0ase/cardlog/internal/model"
)

// UnknownUser is stored when neither the caller nor the directory names the card holder.
const UnknownUser = "Unknown"

// ErrMissingUID is returned for scans without a card id.
var ErrMissingUID = errors.New("missing UID")

// Source labels where a scan came from.
type Source string

const (
	SourceHTTP   Source = "http"
	SourceReader Source = "reader"
	SourceMobile Source = "mobile"
)

// Publisher receives every stored scan. push.Hub satisfies it.
type Publisher interface {
	Publish(rec model.LogRecord)
}

// Service is the single write path for scans.
type Service struct {
	clock     clock.Clock
	users     map[string]string
	publisher Publisher
	log       *zap.SugaredLogger
}

// New creates a service. users maps card uid to display name and may be nil.
func New(clk clock.Clock, users map[string]string, publisher Publisher) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		clock:     clk,
		users:     users,
		publisher: publisher,
		log:       logging.Named("scanlog"),
	}
}

// ResolveUser picks the display name for a scan.
func (s *Service) ResolveUser(uid, user string) string {
	if user = strings.TrimSpace(user); user != "" {
		return user
	}
	if name, ok := s.users[uid]; ok && name != "" {
		return name
	}
	return UnknownUser
}

// Record stores a scan and announces it.
func (s *Service) Record(ctx context.Context, uid, user string, source Source) (model.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.LogRecord{}, err
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return model.LogRecord{}, ErrMissingUID
	}
	user = s.ResolveUser(uid, user)

	row, err := db.InsertScan(uid, user, s.clock.Now())
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("insert scan: %w", err)
	}
	rec := row.Record()

	metrics.ScansTotal.WithLabelValues(string(source)).Inc()
	if s.publisher != nil {
		s.publisher.Publish(rec)
	}
	s.log.Debugf("Recorded %s scanned %s (id %d, via %s)", user, uid, rec.ID, source)
	return rec, nil
}
