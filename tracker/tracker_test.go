package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"plodtrack/db/mock"
	"plodtrack/models"
	"plodtrack/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFixture(t *testing.T) (*Tracker, *state.Store, *mock.Store) {
	t.Helper()
	remote := mock.New()
	remote.Users = []models.User{
		{ID: "op", Name: "Ana", Role: models.RoleOperator, PIN: "11111", PermittedActivityTypes: []string{"a1"}},
		{ID: "mate", Name: "Ben", Role: models.RoleOperator, PIN: "22222", PermittedActivityTypes: []string{"a1"}},
	}
	remote.ActivityTypes = []models.ActivityType{
		{ID: "a1", Name: "Drilling"},
		{ID: "a2", Name: "Bolting"},
	}
	remote.MetricDefinitions = []models.MetricDefinition{
		{ID: "d1", Name: "Holes Drilled", Unit: "holes", LinkedActivityTypes: []string{"a1"}},
		{ID: "d2", Name: "Bolts Installed", Unit: "bolts", LinkedActivityTypes: []string{"a2"}},
	}
	store, err := state.New(context.Background(), remote, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NotNil(t, store.Login("op", "11111"))

	tr := New(store, zap.NewNop())
	t.Cleanup(tr.Cancel)
	return tr, store, remote
}

func TestSelectRequiresPermission(t *testing.T) {
	tr, _, _ := newFixture(t)

	assert.Error(t, tr.Select("a2"), "operator is not permitted to record Bolting")
	assert.Error(t, tr.Select("nope"))
	assert.Equal(t, PhaseIdle, tr.Phase())

	require.NoError(t, tr.Select("a1"))
	assert.Equal(t, PhaseReady, tr.Phase())
}

func TestStartRequiresSelection(t *testing.T) {
	tr, _, _ := newFixture(t)
	assert.Error(t, tr.Start())

	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())
	assert.Equal(t, PhaseTracking, tr.Phase())
}

func TestTickIncrementsElapsed(t *testing.T) {
	tr, _, _ := newFixture(t)
	tr.tickInterval = time.Millisecond

	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())

	assert.Eventually(t, func() bool { return tr.Elapsed() >= 3 },
		time.Second, time.Millisecond)

	_, err := tr.Stop()
	require.NoError(t, err)
}

func TestMetricCapture(t *testing.T) {
	tr, _, _ := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())

	t.Run("blank values are dropped", func(t *testing.T) {
		require.NoError(t, tr.SetMetricValues(map[string]string{"d1": "  "}))
		assert.Empty(t, tr.metrics)
	})

	t.Run("unlinked definition rejected", func(t *testing.T) {
		assert.Error(t, tr.SetMetricValues(map[string]string{"d2": "8"}))
	})

	t.Run("unknown definition rejected", func(t *testing.T) {
		assert.Error(t, tr.SetMetricValues(map[string]string{"ghost": "8"}))
	})

	t.Run("values replace, not accumulate", func(t *testing.T) {
		require.NoError(t, tr.SetMetricValues(map[string]string{"d1": "12"}))
		require.NoError(t, tr.SetMetricValues(map[string]string{"d1": "15"}))
		require.Len(t, tr.metrics, 1)
		m := tr.metrics["d1"]
		assert.Equal(t, "15", m.Value)
		assert.Equal(t, "Holes Drilled", m.Name)
		assert.Equal(t, "holes", m.Unit)
	})
}

func TestCoworkerCapture(t *testing.T) {
	tr, _, _ := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())

	assert.Error(t, tr.SetCoworkers([]string{"op"}), "self is never a co-worker")
	assert.Error(t, tr.SetCoworkers([]string{"ghost"}))
	require.NoError(t, tr.SetCoworkers([]string{"mate"}))
}

func TestFinalizeRejectsEndBeforeStart(t *testing.T) {
	tr, store, _ := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())

	cand, err := tr.Stop()
	require.NoError(t, err)
	require.Equal(t, PhaseFinalizing, tr.Phase())

	err = tr.Finalize(context.Background(), cand.Start, cand.Start.Add(-time.Minute), "")
	require.Error(t, err)
	assert.Equal(t, PhaseFinalizing, tr.Phase(), "rejection causes no state transition")
	assert.Empty(t, store.Logs(), "no entry is produced")
}

func TestFinalizeUsesAdjustedTimes(t *testing.T) {
	tr, store, remote := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())
	require.NoError(t, tr.SetMetricValues(map[string]string{"d1": "12"}))
	require.NoError(t, tr.SetCoworkers([]string{"mate"}))

	_, err := tr.Stop()
	require.NoError(t, err)

	// The operator pulls the window to an explicit range; the committed
	// duration follows the adjusted times, not the live counter.
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	require.NoError(t, tr.Finalize(context.Background(), start, end, ""))
	assert.Equal(t, PhaseIdle, tr.Phase())

	require.Len(t, remote.Logs, 1)
	entry := remote.Logs[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, int64(2700), entry.DurationSeconds)
	assert.Equal(t, "Drilling", entry.ActivityName)
	assert.Equal(t, "Ana", entry.UserName)
	assert.Equal(t, models.RoleOperator, entry.Role)
	assert.Equal(t, models.ShiftDay, entry.Shift, "shift defaults from the start hour")
	assert.Equal(t, []string{"mate"}, entry.Coworkers)
	require.Len(t, entry.Metrics, 1)
	assert.Equal(t, "12", entry.Metrics[0].Value)

	// The snapshot brought the committed entry back into the store.
	require.Len(t, store.Logs(), 1)
}

func TestFinalizeShiftOverride(t *testing.T) {
	tr, _, remote := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())
	_, err := tr.Stop()
	require.NoError(t, err)

	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Finalize(context.Background(), start, start.Add(time.Hour), models.ShiftNight))
	require.Len(t, remote.Logs, 1)
	assert.Equal(t, models.ShiftNight, remote.Logs[0].Shift)
}

func TestCancelDiscardsEverything(t *testing.T) {
	tr, store, _ := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())
	require.NoError(t, tr.SetMetricValues(map[string]string{"d1": "12"}))
	_, err := tr.Stop()
	require.NoError(t, err)

	tr.Cancel()
	assert.Equal(t, PhaseIdle, tr.Phase())
	assert.Empty(t, store.Logs(), "a cancelled activity is not logged")
	assert.Empty(t, tr.metrics)
	assert.Zero(t, tr.Elapsed())
}

func TestFailedCommitStillResets(t *testing.T) {
	tr, _, remote := newFixture(t)
	require.NoError(t, tr.Select("a1"))
	require.NoError(t, tr.Start())
	_, err := tr.Stop()
	require.NoError(t, err)

	remote.FailWrites = errors.New("backend unavailable")
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	err = tr.Finalize(context.Background(), start, start.Add(time.Hour), "")
	require.Error(t, err)
	assert.Equal(t, PhaseIdle, tr.Phase(), "reset happens regardless of commit outcome")
	assert.Empty(t, remote.Logs)
}
