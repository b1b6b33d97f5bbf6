package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	appLog "eventboard/internal/log"
)

// LoadFunc fetches and decodes one source into feed rows.
type LoadFunc func(ctx context.Context, src Source) ([]map[string]string, error)

// ApplyFunc receives the combined rows of a completed refresh.
type ApplyFunc func(rows []map[string]string)

// Refresher coordinates feed refreshes. Triggering while a refresh is in
// flight cancels the running one and starts over; a superseded run that
// still completes is discarded by generation check, so apply only ever
// sees the newest result.
type Refresher struct {
	mu     sync.Mutex
	load   LoadFunc
	apply  ApplyFunc
	gen    uint64
	cancel context.CancelFunc
}

// NewRefresher wires a Refresher to its loader and result sink.
func NewRefresher(load LoadFunc, apply ApplyFunc) *Refresher {
	return &Refresher{load: load, apply: apply}
}

// Trigger starts an asynchronous refresh of sources, superseding any
// refresh still in flight. The returned channel closes when this run
// finishes, whether applied or discarded.
func (r *Refresher) Trigger(parent context.Context, sources []Source) <-chan struct{} {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()

		rows, loaded := r.collect(ctx, sources)

		r.mu.Lock()
		current := gen == r.gen
		r.mu.Unlock()
		if !current || ctx.Err() != nil {
			appLog.Debug("feed: discarding superseded refresh")
			return
		}
		if !loaded {
			appLog.Info("feed: every source failed, keeping previous collection")
			return
		}
		r.apply(rows)
	}()
	return done
}

// Refresh runs one refresh synchronously. Used by the startup path and
// one-shot mode.
func (r *Refresher) Refresh(ctx context.Context, sources []Source) {
	<-r.Trigger(ctx, sources)
}

// collect loads every source, tolerating per-source failures so one bad
// feed never empties the board. loaded reports whether at least one
// source produced a result; a run where every source failed must not be
// applied, so the previous collection stays on screen.
func (r *Refresher) collect(ctx context.Context, sources []Source) (rows []map[string]string, loaded bool) {
	loaded = len(sources) == 0
	for _, src := range sources {
		if ctx.Err() != nil {
			return rows, loaded
		}
		got, err := r.load(ctx, src)
		if err != nil {
			appLog.Error("feed: source load failed", err, "id", src.ID)
			continue
		}
		loaded = true
		rows = append(rows, got...)
	}
	return rows, loaded
}

// SourceLoader builds the production LoadFunc: fetch via f, then decode
// as ICS when the payload looks like a calendar, CSV otherwise. ICS
// recurrences are expanded from one day behind now out to horizonDays.
func SourceLoader(f *Fetcher, horizonDays int, nowFn func() time.Time) LoadFunc {
	if horizonDays <= 0 {
		horizonDays = 60
	}
	return func(ctx context.Context, src Source) ([]map[string]string, error) {
		res, err := f.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		if looksLikeICS(src, res.Body) {
			now := nowFn()
			return ExpandICS(src, res.Body, now.AddDate(0, 0, -1), now.AddDate(0, 0, horizonDays))
		}
		return ParseCSV(res.Body)
	}
}

func looksLikeICS(src Source, body []byte) bool {
	if strings.HasSuffix(strings.ToLower(src.Location), ".ics") {
		return true
	}
	head := body
	if len(head) > 64 {
		head = head[:64]
	}
	return strings.Contains(string(head), "BEGIN:VCALENDAR")
}
