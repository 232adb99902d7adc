// Package tracker implements the live activity timer:
//
//	Idle -> Ready (activity selected) -> Tracking -> Finalizing -> Idle
//
// The 1-second tick drives the on-screen elapsed counter only. The committed
// duration is always recomputed from wall-clock timestamps, so a suspended or
// backgrounded ticker cannot corrupt the log.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"plodtrack/models"
	"plodtrack/state"

	"go.uber.org/zap"
)

// Phase is the tracker state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReady
	PhaseTracking
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseTracking:
		return "tracking"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Candidate is the proposed start/end presented for manual adjustment when
// the operator stops tracking.
type Candidate struct {
	Start time.Time
	End   time.Time
}

// Tracker accumulates one activity at a time for the logged-in operator.
type Tracker struct {
	store  *state.Store
	logger *zap.Logger

	mu           sync.Mutex
	phase        Phase
	activityType models.ActivityType
	startedAt    time.Time
	elapsed      int64
	metrics      map[string]models.LoggedMetric // keyed by definition id
	coworkers    []string
	tickDone     chan struct{}
	tickInterval time.Duration
}

func New(store *state.Store, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:        store,
		logger:       logger,
		metrics:      make(map[string]models.LoggedMetric),
		tickInterval: time.Second,
	}
}

func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Elapsed returns the display counter in seconds.
func (t *Tracker) Elapsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Select picks the activity type to track. Allowed from Idle or Ready, and
// only for activity types the logged-in operator is permitted to record.
func (t *Tracker) Select(activityTypeID string) error {
	u := t.store.CurrentUser()
	if u == nil {
		return fmt.Errorf("no operator is logged in")
	}
	a, ok := t.store.ActivityTypeByID(activityTypeID)
	if !ok {
		return fmt.Errorf("unknown activity type %q", activityTypeID)
	}
	if !u.Can(a.ID) {
		return fmt.Errorf("operator %s is not permitted to record %s", u.Name, a.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseIdle && t.phase != PhaseReady {
		return fmt.Errorf("cannot change activity while %s", t.phase)
	}
	t.activityType = a
	t.phase = PhaseReady
	return nil
}

// Start begins tracking the selected activity and starts the display tick.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseReady {
		return fmt.Errorf("no activity selected")
	}
	t.phase = PhaseTracking
	t.startedAt = time.Now()
	t.elapsed = 0
	t.tickDone = make(chan struct{})
	go t.tick(t.tickDone)
	t.logger.Info("tracking started", zap.String("activity_type", t.activityType.ID))
	return nil
}

func (t *Tracker) tick(done chan struct{}) {
	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()
			t.elapsed++
			t.mu.Unlock()
		}
	}
}

// SetMetricValues replaces the captured metric set. Values are accepted only
// for definitions linked to the selected activity type; blank values are
// dropped rather than stored empty.
func (t *Tracker) SetMetricValues(values map[string]string) error {
	defs := t.store.MetricDefinitions()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseTracking {
		return fmt.Errorf("not tracking")
	}

	captured := make(map[string]models.LoggedMetric, len(values))
	for defID, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		var def *models.MetricDefinition
		for i := range defs {
			if defs[i].ID == defID {
				def = &defs[i]
				break
			}
		}
		if def == nil {
			return fmt.Errorf("unknown metric definition %q", defID)
		}
		if !def.AppliesTo(t.activityType.ID) {
			return fmt.Errorf("metric %s does not apply to %s", def.Name, t.activityType.Name)
		}
		captured[defID] = models.LoggedMetric{
			DefinitionID: def.ID,
			Name:         def.Name,
			Value:        value,
			Unit:         def.Unit,
		}
	}
	t.metrics = captured
	return nil
}

// SetCoworkers replaces the co-worker set. The operator themselves is never
// a co-worker, and every id must name a known user.
func (t *Tracker) SetCoworkers(ids []string) error {
	u := t.store.CurrentUser()
	if u == nil {
		return fmt.Errorf("no operator is logged in")
	}

	coworkers := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == u.ID {
			return fmt.Errorf("co-workers cannot include the operator")
		}
		if _, ok := t.store.UserByID(id); !ok {
			return fmt.Errorf("unknown user %q", id)
		}
		coworkers = append(coworkers, id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseTracking {
		return fmt.Errorf("not tracking")
	}
	t.coworkers = coworkers
	return nil
}

// Stop halts the tick and proposes start/end times for manual adjustment.
// The candidate end is start plus the displayed elapsed seconds.
func (t *Tracker) Stop() (Candidate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseTracking {
		return Candidate{}, fmt.Errorf("not tracking")
	}
	close(t.tickDone)
	t.tickDone = nil
	t.phase = PhaseFinalizing
	return Candidate{
		Start: t.startedAt,
		End:   t.startedAt.Add(time.Duration(t.elapsed) * time.Second),
	}, nil
}

// Finalize commits the activity with the adjusted times. An end before the
// start is rejected with no state change so the operator can fix it. On
// confirmation the entry is assembled and submitted; the tracker resets to
// Idle whether or not the commit succeeded; a failed commit surfaces as the
// returned error and is not retried.
func (t *Tracker) Finalize(ctx context.Context, start, end time.Time, shift models.Shift) error {
	u := t.store.CurrentUser()

	t.mu.Lock()
	if t.phase != PhaseFinalizing {
		t.mu.Unlock()
		return fmt.Errorf("nothing to finalize")
	}
	if end.Before(start) {
		t.mu.Unlock()
		return fmt.Errorf("end time cannot be before start time")
	}
	if u == nil {
		t.mu.Unlock()
		return fmt.Errorf("no operator is logged in")
	}

	if shift == "" {
		shift = models.ShiftForTime(start)
	}

	metrics := make([]models.LoggedMetric, 0, len(t.metrics))
	for _, m := range t.metrics {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })

	entry := models.LogEntry{
		ActivityTypeID:  t.activityType.ID,
		ActivityName:    t.activityType.Name,
		UserID:          u.ID,
		UserName:        u.Name,
		Role:            u.Role,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: int64(end.Sub(start).Seconds()),
		Shift:           shift,
		Metrics:         metrics,
		Coworkers:       append([]string(nil), t.coworkers...),
	}
	t.resetLocked()
	t.mu.Unlock()

	if err := t.store.AddLog(ctx, &entry); err != nil {
		t.logger.Error("failed to commit log entry", zap.Error(err))
		return err
	}
	return nil
}

// Cancel aborts the activity from any phase and discards everything that was
// captured; nothing is logged.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	if t.tickDone != nil {
		close(t.tickDone)
		t.tickDone = nil
	}
	t.phase = PhaseIdle
	t.activityType = models.ActivityType{}
	t.startedAt = time.Time{}
	t.elapsed = 0
	t.metrics = make(map[string]models.LoggedMetric)
	t.coworkers = nil
}
