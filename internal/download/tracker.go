package download

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vidgrab/vidgrab/internal/logctx"
	"github.com/vidgrab/vidgrab/internal/telemetry"
)

// Tracker is the process-wide registry of download records. It supports many
// concurrent readers (progress streams), one logical writer per id (the
// orchestrator goroutine driving that download), and a background sweep
// deleting aged-out terminal records.
//
// Streams observe updates through Subscribe rather than polling; delivery is
// best-effort with the latest snapshot always winning over earlier ones.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record
	subs    map[string]map[int]chan Snapshot
	nextSub int

	telemetry *telemetry.Telemetry
}

// NewTracker creates an empty tracker. telemetry may be nil.
func NewTracker(t *telemetry.Telemetry) *Tracker {
	return &Tracker{
		records:   make(map[string]*record),
		subs:      make(map[string]map[int]chan Snapshot),
		telemetry: t,
	}
}

// Create inserts an initial downloading record for id. A duplicate id is
// silently ignored; id generation makes collisions negligible.
func (t *Tracker) Create(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[id]; exists {
		return
	}

	t.records[id] = &record{
		id:          id,
		status:      Downloading,
		lastUpdated: time.Now(),
	}
}

// Get returns a snapshot of the record, or false if the id is unknown.
func (t *Tracker) Get(id string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return Snapshot{}, false
	}

	return rec.snapshot(), true
}

// UpdateProgress records a new completion percentage. No-op for unknown or
// terminal records. Decile boundaries additionally land in the output log.
func (t *Tracker) UpdateProgress(id string, percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.status.Terminal() {
		return
	}

	rec.progress = percent
	rec.lastUpdated = time.Now()

	if math.Mod(percent, 10) == 0 || percent == 100 {
		rec.appendOutput(formatProgressLine(percent))
	}

	t.publishLocked(id, rec.snapshot())
}

// AppendOutput appends one raw process output line to the record's log.
// No-op for unknown records.
func (t *Tracker) AppendOutput(id, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return
	}

	rec.appendOutput(line)
}

// Complete transitions the record to its terminal Complete state. Progress
// is forced to 100 regardless of what the parser last observed.
func (t *Tracker) Complete(id, filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.status.Terminal() {
		return
	}

	rec.status = Complete
	rec.progress = 100
	rec.filename = filename
	rec.lastUpdated = time.Now()

	t.publishLocked(id, rec.snapshot())
}

// Fail transitions the record to its terminal Error state.
func (t *Tracker) Fail(id, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.status.Terminal() {
		return
	}

	rec.status = Error
	rec.errMessage = message
	rec.lastUpdated = time.Now()

	t.publishLocked(id, rec.snapshot())
}

// Remove deletes a record outright. Cancelled downloads use this so they do
// not linger in the active view the way completed and errored ones do.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, id)
}

// Subscribe registers for snapshot updates of one download. The returned
// cancel func must be called to release the subscription. Updates are
// best-effort: a slow receiver loses intermediate snapshots but always gets
// the most recent one.
func (t *Tracker) Subscribe(id string) (<-chan Snapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Snapshot, 4)

	if t.subs[id] == nil {
		t.subs[id] = make(map[int]chan Snapshot)
	}

	key := t.nextSub
	t.nextSub++
	t.subs[id][key] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if set, ok := t.subs[id]; ok {
			delete(set, key)

			if len(set) == 0 {
				delete(t.subs, id)
			}
		}
	}

	return ch, cancel
}

// publishLocked fans a snapshot out to subscribers. Callers hold t.mu.
// When a subscriber's buffer is full the oldest pending snapshot is dropped
// so the latest state always lands.
func (t *Tracker) publishLocked(id string, snap Snapshot) {
	for _, ch := range t.subs[id] {
		select {
		case ch <- snap:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- snap:
		default:
		}
	}
}

// Snapshots returns a copy of every tracked record.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(t.records))
	for _, rec := range t.records {
		snaps = append(snaps, rec.snapshot())
	}

	return snaps
}

// Sweep deletes terminal records whose last update is older than maxAge.
// Records still downloading survive regardless of age. Returns the number
// of records removed.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, rec := range t.records {
		if rec.status.Terminal() && rec.lastUpdated.Before(cutoff) {
			delete(t.records, id)
			removed++
		}
	}

	return removed
}

// StartSweeper runs the retention sweep on a fixed interval until ctx is
// cancelled.
func (t *Tracker) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("tracker sweep shutting down")

				return
			case <-ticker.C:
				if removed := t.Sweep(maxAge); removed > 0 {
					logger.Info("swept expired download records", "removed", removed)
					t.telemetry.RecordSweep(removed)
				}
			}
		}
	}()
}

func formatProgressLine(percent float64) string {
	return fmt.Sprintf("[progress] %g%% completed", percent)
}

func (r *record) appendOutput(line string) {
	r.output = append(r.output, line)
	if len(r.output) > maxOutputLines {
		r.output = r.output[len(r.output)-maxOutputLines:]
	}
}
