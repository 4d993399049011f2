package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/model"
)

// DefaultHistoryLimit is how many records the initial snapshot asks for.
const DefaultHistoryLimit = 50

// HistorySource returns the most recent records, newest first.
type HistorySource interface {
	RecentLogs(ctx context.Context, limit int) ([]model.LogRecord, error)
}

// LiveSource streams pushed records until ctx is done, then closes the channel.
type LiveSource interface {
	Subscribe(ctx context.Context) (<-chan model.LogRecord, error)
}

// NotifyFilter decides whether a live record raises a notification.
// rules.Filter satisfies it.
type NotifyFilter interface {
	Match(rec model.LogRecord, today bool) bool
}

// Options tunes a Controller. Zero values pick the defaults.
type Options struct {
	MaxRows       int
	HistoryLimit  int
	ToastDuration time.Duration
	Clock         clock.Clock
	Filter        NotifyFilter
}

// Controller owns the dashboard State and drives a View. Every state change
// and every view call happens under one lock, so updates never interleave.
type Controller struct {
	mu      sync.Mutex
	state   State
	view    View
	toast   *Toast
	filter  NotifyFilter
	history HistorySource
	live    LiveSource
	limit   int
	log     *zap.SugaredLogger
}

// New creates a controller. The reference date for the today counter is
// taken from the clock now and never changes.
func New(view View, history HistorySource, live LiveSource, opts Options) *Controller {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Controller{
		state:   NewState(clk.Now(), opts.MaxRows),
		view:    view,
		toast:   NewToast(clk, opts.ToastDuration),
		filter:  opts.Filter,
		history: history,
		live:    live,
		limit:   limit,
		log:     logging.Named("dashboard"),
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state.clone()
	s.Rows = append([]model.LogRecord(nil), c.state.Rows...)
	return s
}

// Render pushes the current counters and rows to the view.
func (c *Controller) Render() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.RenderCounters(c.state.Counters())
	c.view.RenderRows(c.state.Rows)
}

// LoadHistory fetches the recent snapshot and applies it. Failures are
// logged and leave the dashboard as it was; there is no retry.
func (c *Controller) LoadHistory(ctx context.Context) {
	recs, err := c.fetchHistory(ctx)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyHistory(recs)
}

// OnLiveEvent accounts for one pushed record, renders it and raises a
// notification.
func (c *Controller) OnLiveEvent(rec model.LogRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLive(rec)
}

// Run subscribes to the live feed, loads history, and then applies live
// events until ctx is done. Events that arrive while history is in flight
// are held back and replayed after it, skipping any the snapshot already
// contains. If the subscription fails, history is still loaded before the
// error is returned.
func (c *Controller) Run(ctx context.Context) error {
	events, err := c.live.Subscribe(ctx)
	if err != nil {
		// the snapshot does not depend on the push channel
		c.log.Errorf("Live feed unavailable: %v", err)
		c.LoadHistory(ctx)
		return err
	}
	defer c.stopToast()

	type historyResult struct {
		recs []model.LogRecord
		err  error
	}
	done := make(chan historyResult, 1)
	go func() {
		recs, err := c.fetchHistory(ctx)
		done <- historyResult{recs, err}
	}()

	var pending []model.LogRecord
	loading := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-done:
			done = nil
			loading = false
			c.mu.Lock()
			var lastID int64
			if res.err == nil {
				c.applyHistory(res.recs)
				lastID = maxID(res.recs)
			}
			for _, rec := range pending {
				if lastID != 0 && rec.ID != 0 && rec.ID <= lastID {
					continue
				}
				c.applyLive(rec)
			}
			c.mu.Unlock()
			if n := len(pending); n > 0 {
				c.log.Debugf("Replayed %d events buffered during history load", n)
			}
			pending = nil
		case rec, ok := <-events:
			if !ok {
				return nil
			}
			if loading {
				pending = append(pending, rec)
				continue
			}
			c.OnLiveEvent(rec)
		}
	}
}

func (c *Controller) fetchHistory(ctx context.Context) ([]model.LogRecord, error) {
	recs, err := c.history.RecentLogs(ctx, c.limit)
	if err != nil {
		c.log.Errorf("Failed to load existing logs: %v", err)
		return nil, err
	}
	c.log.Infof("Loaded %d existing logs", len(recs))
	return recs, nil
}

func (c *Controller) applyHistory(recs []model.LogRecord) {
	if len(recs) == 0 {
		return
	}
	c.state = ApplyHistory(c.state, recs)
	c.view.RenderRows(c.state.Rows)
	c.view.RenderCounters(c.state.Counters())
}

func (c *Controller) applyLive(rec model.LogRecord) {
	c.state = ApplyLive(c.state, rec)
	c.view.RenderCounters(c.state.Counters())
	c.view.RenderRows(c.state.Rows)

	if c.filter != nil && !c.filter.Match(rec, model.SameDate(rec.Time, c.state.Reference)) {
		return
	}
	c.notify(rec.Message())
}

func (c *Controller) notify(msg string) {
	c.view.ShowNotification(msg)
	c.toast.Arm(c.expireToast)
}

func (c *Controller) expireToast(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.toast.Expire(gen) {
		c.view.HideNotification()
	}
}

func (c *Controller) stopToast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toast.Stop()
}

func maxID(recs []model.LogRecord) int64 {
	var id int64
	for _, r := range recs {
		if r.ID > id {
			id = r.ID
		}
	}
	return id
}
