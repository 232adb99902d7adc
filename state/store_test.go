package state_test

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
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, remote *mock.Store) *state.Store {
	t.Helper()
	s, err := state.New(context.Background(), remote, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func seededRemote() *mock.Store {
	r := mock.New()
	r.Users = []models.User{
		{ID: "u1", Name: "Ana", Role: models.RoleOperator, PIN: "11111", PermittedActivityTypes: []string{"a1"}},
		{ID: "u2", Name: "Ben", Role: models.RoleSupervisor, PIN: "22222"},
	}
	r.ActivityTypes = []models.ActivityType{{ID: "a1", Name: "Drilling"}}
	r.MetricDefinitions = []models.MetricDefinition{{ID: "d1", Name: "Holes Drilled", Unit: "holes", LinkedActivityTypes: []string{"a1"}}}
	return r
}

func TestLoadingResolvesAfterAllFourSnapshots(t *testing.T) {
	remote := mock.New()
	remote.Manual = true
	s := newStore(t, remote)

	assert.True(t, s.IsLoading())

	// Arrival order across collections is not guaranteed; logs first is fine.
	remote.EmitLogs()
	assert.True(t, s.IsLoading())
	remote.EmitMetricDefinitions()
	remote.EmitActivityTypes()
	assert.True(t, s.IsLoading())
	remote.EmitUsers()
	assert.False(t, s.IsLoading())
}

func TestLoginExactMatchOnly(t *testing.T) {
	s := newStore(t, seededRemote())

	tests := []struct {
		name   string
		userID string
		pin    string
		want   bool
	}{
		{"match", "u1", "11111", true},
		{"wrong pin", "u1", "22222", false},
		{"wrong user", "zzz", "11111", false},
		{"swapped", "u2", "11111", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Logout()
			u := s.Login(tt.userID, tt.pin)
			if tt.want {
				require.NotNil(t, u)
				assert.Equal(t, tt.userID, u.ID)
				require.NotNil(t, s.CurrentUser())
			} else {
				assert.Nil(t, u)
				assert.Nil(t, s.CurrentUser())
			}
		})
	}
}

func TestFailedLoginLeavesCurrentUserUnchanged(t *testing.T) {
	s := newStore(t, seededRemote())

	require.NotNil(t, s.Login("u1", "11111"))
	assert.Nil(t, s.Login("u2", "99999"))

	cur := s.CurrentUser()
	require.NotNil(t, cur)
	assert.Equal(t, "u1", cur.ID)
}

func TestMutationsAreNotReflectedSynchronously(t *testing.T) {
	remote := seededRemote()
	remote.Manual = true
	s := newStore(t, remote)

	u := models.User{Name: "Cid", Role: models.RoleTrainee, PIN: "33333"}
	require.NoError(t, s.AddUser(context.Background(), &u))
	assert.NotEmpty(t, u.ID, "adapter-generated id is reflected back into the entity")

	// The store only learns about the write from the next snapshot.
	assert.Empty(t, s.Users())
	remote.EmitUsers()
	require.Len(t, s.Users(), 3)
}

func TestOnChangeFiresPerSnapshot(t *testing.T) {
	remote := seededRemote()
	remote.Manual = true
	s := newStore(t, remote)

	var fired int
	unsub := s.OnChange(func() { fired++ })

	remote.EmitUsers()
	remote.EmitLogs()
	assert.Equal(t, 2, fired)

	unsub()
	remote.EmitUsers()
	assert.Equal(t, 2, fired)
}

func TestAddUserValidatesPIN(t *testing.T) {
	remote := seededRemote()
	s := newStore(t, remote)

	err := s.AddUser(context.Background(), &models.User{Name: "Bad", PIN: "123"})
	require.Error(t, err)
	assert.Empty(t, remote.Journal, "validation errors never reach the remote store")
}

func TestRemoteWriteErrorsSurfaceAndLeaveStateAlone(t *testing.T) {
	remote := seededRemote()
	s := newStore(t, remote)
	remote.FailWrites = errors.New("backend unavailable")

	before := s.Users()
	err := s.AddUser(context.Background(), &models.User{Name: "Cid", PIN: "33333"})
	require.Error(t, err)
	assert.Equal(t, before, s.Users())
}

func TestAddLogValidatesDuration(t *testing.T) {
	remote := seededRemote()
	s := newStore(t, remote)

	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	bad := models.LogEntry{StartTime: start, EndTime: start.Add(time.Hour), DurationSeconds: 10}
	assert.Error(t, s.AddLog(context.Background(), &bad))

	good := models.LogEntry{StartTime: start, EndTime: start.Add(time.Hour), DurationSeconds: 3600, ActivityTypeID: "a1"}
	require.NoError(t, s.AddLog(context.Background(), &good))
	require.Len(t, s.Logs(), 1)
}

func TestSyncAllBatchesEverything(t *testing.T) {
	remote := seededRemote()
	s := newStore(t, remote)

	require.NoError(t, s.SyncAll(context.Background()))
	require.NotEmpty(t, remote.Journal)
	assert.Equal(t, "BatchWrite:4", remote.Journal[len(remote.Journal)-1],
		"two users, one activity type and one definition go out in a single batch")
}

func TestResumeRefusesSentinelAccounts(t *testing.T) {
	remote := seededRemote()
	remote.Users = append(remote.Users, models.User{ID: "u3", Name: "New", Role: models.RoleOperator, PIN: models.SentinelPIN})
	s := newStore(t, remote)

	assert.Nil(t, s.Resume("u3"))
	require.NotNil(t, s.Resume("u1"))
}
