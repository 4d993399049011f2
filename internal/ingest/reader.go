// Package ingest follows a card reader's output file and records every
// scanned card.
package ingest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/nxadm/tail"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/model"
	"github.com/b0ase/cardlog/internal/scanlog"
)

// Recorder stores one scan. scanlog.Service satisfies it.
type Recorder interface {
	Record(ctx context.Context, uid, user string, source scanlog.Source) (model.LogRecord, error)
}

// ParseLine reads "UID" or "UID,User". Blank lines and lines starting with
// '#' yield ok=false.
func ParseLine(line string) (uid, user string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	uid, user, _ = strings.Cut(line, ",")
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", "", false
	}
	return uid, strings.TrimSpace(user), true
}

// Reader tails one file.
type Reader struct {
	path      string
	fromStart bool
	rec       Recorder
	log       *zap.SugaredLogger

	mu   sync.Mutex
	t    *tail.Tail
	done chan struct{}
}

// NewReader prepares a reader for path. With fromStart the existing content
// is replayed, otherwise only lines appended after Start are recorded.
func NewReader(path string, fromStart bool, rec Recorder) *Reader {
	return &Reader{path: path, fromStart: fromStart, rec: rec, log: logging.Named("reader")}
}

// Start begins following the file. The file may not exist yet; it is
// picked up when created and reopened after rotation.
func (r *Reader) Start(ctx context.Context) error {
	location := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if r.fromStart {
		location = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	t, err := tail.TailFile(r.path, tail.Config{
		Location:  location,
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.t = t
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx, t, r.done)
	r.log.Infof("Following card reader output %s", r.path)
	return nil
}

func (r *Reader) run(ctx context.Context, t *tail.Tail, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				r.log.Warnf("Error reading %s: %v", r.path, line.Err)
				continue
			}
			uid, user, ok := ParseLine(line.Text)
			if !ok {
				continue
			}
			if _, err := r.rec.Record(ctx, uid, user, scanlog.SourceReader); err != nil {
				r.log.Warnf("Failed to record scan %q: %v", uid, err)
			}
		}
	}
}

// Stop ends the tail and waits for the reader goroutine.
func (r *Reader) Stop() {
	r.mu.Lock()
	t, done := r.t, r.done
	r.t = nil
	r.mu.Unlock()
	if t == nil {
		return
	}
	t.Stop()
	t.Cleanup()
	<-done
}
