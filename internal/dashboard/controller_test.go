package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/cardlog/internal/model"
)

type recordingView struct {
	mu       sync.Mutex
	counters Counters
	rows     []model.LogRecord
	shown    []string
	banner   string
	visible  bool
	hides    int
	renders  int
}

func (v *recordingView) RenderCounters(c Counters) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters = c
	v.renders++
}

func (v *recordingView) RenderRows(rows []model.LogRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows = rows
}

func (v *recordingView) ShowNotification(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown = append(v.shown, msg)
	v.banner = msg
	v.visible = true
}

func (v *recordingView) HideNotification() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = false
	v.hides++
}

func (v *recordingView) snapshot() recordingView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return recordingView{
		counters: v.counters,
		rows:     append([]model.LogRecord(nil), v.rows...),
		shown:    append([]string(nil), v.shown...),
		banner:   v.banner,
		visible:  v.visible,
		hides:    v.hides,
		renders:  v.renders,
	}
}

type fakeHistory struct {
	recs    []model.LogRecord
	err     error
	release chan struct{}
	calls   int
	limit   int
}

func (h *fakeHistory) RecentLogs(ctx context.Context, limit int) ([]model.LogRecord, error) {
	h.calls++
	h.limit = limit
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.recs, h.err
}

type fakeLive struct {
	ch chan model.LogRecord
}

func (l *fakeLive) Subscribe(ctx context.Context) (<-chan model.LogRecord, error) {
	return l.ch, nil
}

type brokenLive struct{}

func (brokenLive) Subscribe(ctx context.Context) (<-chan model.LogRecord, error) {
	return nil, errors.New("dial refused")
}

type userFilter string

func (f userFilter) Match(rec model.LogRecord, today bool) bool { return rec.User == string(f) }

func newController(t *testing.T, h HistorySource, opts Options) (*Controller, *recordingView, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(refDay)
	opts.Clock = clk
	view := &recordingView{}
	return New(view, h, &fakeLive{}, opts), view, clk
}

func TestLoadHistory(t *testing.T) {
	h := &fakeHistory{recs: []model.LogRecord{
		rec(2, "2026-10-18 10:02:00", "B2", "bob"),
		rec(1, "2026-10-18 10:00:00", "A1", "alice"),
	}}
	c, view, _ := newController(t, h, Options{})

	c.LoadHistory(context.Background())

	got := view.snapshot()
	assert.Equal(t, 50, h.limit)
	assert.Equal(t, Counters{TotalScans: 2, UniqueUsers: 2, TodayScans: 2}, got.counters)
	require.Len(t, got.rows, 2)
	assert.Equal(t, "bob", got.rows[0].User)
	assert.Empty(t, got.shown, "history does not notify")
}

func TestLoadHistory_FailureIsSwallowed(t *testing.T) {
	h := &fakeHistory{err: errors.New("connection refused")}
	c, view, _ := newController(t, h, Options{})

	c.LoadHistory(context.Background())

	got := view.snapshot()
	assert.Equal(t, 1, h.calls, "not retried")
	assert.Zero(t, got.renders)
	assert.Empty(t, got.rows)
	assert.Equal(t, 0, c.State().TotalScans)
}

func TestLoadHistory_EmptyLeavesViewUntouched(t *testing.T) {
	c, view, _ := newController(t, &fakeHistory{}, Options{})

	c.LoadHistory(context.Background())

	assert.Zero(t, view.snapshot().renders)
}

func TestOnLiveEvent_RendersAndNotifies(t *testing.T) {
	c, view, clk := newController(t, &fakeHistory{}, Options{})

	c.OnLiveEvent(rec(3, "2026-10-18 10:05:00", "C3", "carol"))

	got := view.snapshot()
	assert.Equal(t, Counters{TotalScans: 1, UniqueUsers: 1, TodayScans: 1}, got.counters)
	require.Len(t, got.rows, 1)
	assert.Equal(t, "carol", got.rows[0].User)
	assert.True(t, got.visible)
	assert.Equal(t, "carol scanned card C3", got.banner)

	clk.Add(3999 * time.Millisecond)
	assert.True(t, view.snapshot().visible)

	clk.Add(time.Millisecond)
	assert.Eventually(t, func() bool { return !view.snapshot().visible }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, view.snapshot().hides)
}

func TestOnLiveEvent_AfterHistory(t *testing.T) {
	h := &fakeHistory{recs: []model.LogRecord{
		rec(2, "2026-10-18 10:02:00", "B2", "bob"),
		rec(1, "2026-10-18 10:00:00", "A1", "alice"),
	}}
	c, view, _ := newController(t, h, Options{})

	c.LoadHistory(context.Background())
	c.OnLiveEvent(rec(3, "2026-10-18 10:05:00", "C3", "carol"))

	got := view.snapshot()
	assert.Equal(t, Counters{TotalScans: 3, UniqueUsers: 3, TodayScans: 3}, got.counters)
	require.Len(t, got.rows, 3)
	assert.Equal(t, []string{"carol", "bob", "alice"}, []string{got.rows[0].User, got.rows[1].User, got.rows[2].User})
}

func TestOnLiveEvent_FiftyOneEvents(t *testing.T) {
	c, view, _ := newController(t, &fakeHistory{}, Options{})

	for i := 1; i <= 51; i++ {
		c.OnLiveEvent(rec(int64(i), "2026-10-18 10:00:00", fmt.Sprintf("U%d", i), "u"))
	}

	got := view.snapshot()
	assert.Equal(t, 51, got.counters.TotalScans)
	require.Len(t, got.rows, 50)
	assert.Equal(t, "U51", got.rows[0].UID)
	for _, r := range got.rows {
		assert.NotEqual(t, "U1", r.UID)
	}
}

func TestOnLiveEvent_TodayUsesReferenceDate(t *testing.T) {
	c, view, clk := newController(t, &fakeHistory{}, Options{})

	// a day later the reference date is still the construction date
	clk.Add(24 * time.Hour)
	c.OnLiveEvent(rec(1, "2026-10-19 09:00:00", "A1", "alice"))
	c.OnLiveEvent(rec(2, "2026-10-18 23:00:00", "B2", "bob"))

	assert.Equal(t, 1, view.snapshot().counters.TodayScans)
}

func TestNotify_LastCallWins(t *testing.T) {
	c, view, clk := newController(t, &fakeHistory{}, Options{})

	c.OnLiveEvent(rec(1, "2026-10-18 10:00:00", "A1", "alice"))
	clk.Add(3 * time.Second)
	c.OnLiveEvent(rec(2, "2026-10-18 10:00:03", "B2", "bob"))

	// the first toast would have expired here
	clk.Add(time.Second)
	assert.Never(t, func() bool { return view.snapshot().hides > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	got := view.snapshot()
	assert.True(t, got.visible)
	assert.Equal(t, "bob scanned card B2", got.banner)

	clk.Add(3 * time.Second)
	assert.Eventually(t, func() bool { return !view.snapshot().visible }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, view.snapshot().hides)
	assert.Equal(t, []string{"alice scanned card A1", "bob scanned card B2"}, view.snapshot().shown)
}

func TestNotify_CustomDuration(t *testing.T) {
	c, view, clk := newController(t, &fakeHistory{}, Options{ToastDuration: time.Second})

	c.OnLiveEvent(rec(1, "", "A1", "alice"))
	clk.Add(time.Second)

	assert.Eventually(t, func() bool { return !view.snapshot().visible }, time.Second, 5*time.Millisecond)
}

func TestNotify_Filter(t *testing.T) {
	c, view, _ := newController(t, &fakeHistory{}, Options{Filter: userFilter("alice")})

	c.OnLiveEvent(rec(1, "", "B2", "bob"))
	c.OnLiveEvent(rec(2, "", "A1", "alice"))

	got := view.snapshot()
	assert.Equal(t, []string{"alice scanned card A1"}, got.shown)
	assert.Equal(t, 2, got.counters.TotalScans, "filter only affects notifications")
	assert.Len(t, got.rows, 2)
}

func TestRun_BuffersLiveUntilHistory(t *testing.T) {
	h := &fakeHistory{
		recs: []model.LogRecord{
			rec(5, "2026-10-18 10:05:00", "B2", "bob"),
			rec(4, "2026-10-18 10:04:00", "A1", "alice"),
		},
		release: make(chan struct{}),
	}
	live := &fakeLive{ch: make(chan model.LogRecord)}
	clk := clock.NewMock()
	clk.Set(refDay)
	view := &recordingView{}
	c := New(view, h, live, Options{Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	// id 5 is already in the snapshot, id 6 is not
	live.ch <- rec(5, "2026-10-18 10:05:00", "B2", "bob")
	live.ch <- rec(6, "2026-10-18 10:06:00", "C3", "carol")
	assert.Zero(t, view.snapshot().renders, "nothing rendered while history is loading")

	close(h.release)
	require.Eventually(t, func() bool { return view.snapshot().counters.TotalScans == 3 }, time.Second, 5*time.Millisecond)

	live.ch <- rec(7, "2026-10-18 10:07:00", "D4", "dave")
	require.Eventually(t, func() bool { return view.snapshot().counters.TotalScans == 4 }, time.Second, 5*time.Millisecond)

	got := view.snapshot()
	assert.Equal(t, 4, got.counters.UniqueUsers)
	assert.Equal(t, []string{"dave", "carol", "bob", "alice"},
		[]string{got.rows[0].User, got.rows[1].User, got.rows[2].User, got.rows[3].User})
	assert.Equal(t, []string{"carol scanned card C3", "dave scanned card D4"}, got.shown)

	cancel()
	require.NoError(t, <-errc)
}

func TestRun_HistoryFailureStillFlushesLive(t *testing.T) {
	h := &fakeHistory{err: errors.New("boom"), release: make(chan struct{})}
	live := &fakeLive{ch: make(chan model.LogRecord)}
	c := New(&recordingView{}, h, live, Options{Clock: clock.NewMock()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	live.ch <- rec(1, "", "A1", "alice")
	close(h.release)

	require.Eventually(t, func() bool { return c.State().TotalScans == 1 }, time.Second, 5*time.Millisecond)
}

func TestRun_NoIDsNothingDropped(t *testing.T) {
	h := &fakeHistory{
		recs:    []model.LogRecord{rec(0, "", "A1", "alice")},
		release: make(chan struct{}),
	}
	live := &fakeLive{ch: make(chan model.LogRecord)}
	c := New(&recordingView{}, h, live, Options{Clock: clock.NewMock()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	live.ch <- rec(0, "", "A1", "alice")
	close(h.release)

	require.Eventually(t, func() bool { return c.State().TotalScans == 2 }, time.Second, 5*time.Millisecond)
}

func TestRun_StopsWhenFeedCloses(t *testing.T) {
	live := &fakeLive{ch: make(chan model.LogRecord)}
	c := New(&recordingView{}, &fakeHistory{}, live, Options{Clock: clock.NewMock()})

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()
	close(live.ch)

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_SubscribeFailureStillLoadsHistory(t *testing.T) {
	h := &fakeHistory{recs: []model.LogRecord{
		rec(2, "2026-10-18 10:02:00", "B2", "bob"),
		rec(1, "2026-10-18 10:00:00", "A1", "alice"),
	}}
	view := &recordingView{}
	c := New(view, h, brokenLive{}, Options{Clock: clock.NewMock()})

	err := c.Run(context.Background())
	require.EqualError(t, err, "dial refused")

	assert.Equal(t, 1, h.calls)
	snap := view.snapshot()
	assert.Equal(t, 2, snap.counters.TotalScans)
	require.Len(t, snap.rows, 2)
	assert.Equal(t, "bob", snap.rows[0].User)
}
