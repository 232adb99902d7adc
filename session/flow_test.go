package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"plodtrack/db/mock"
	"plodtrack/models"
	"plodtrack/session"
	"plodtrack/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFixture(t *testing.T) (*session.Flow, *state.Store, *mock.Store) {
	t.Helper()
	remote := mock.New()
	remote.Users = []models.User{
		{ID: "admin", Name: "Site Admin", Role: models.RoleAdmin, PIN: "12345"},
		{ID: "fresh", Name: "New Operator", Role: models.RoleOperator, PIN: models.SentinelPIN},
	}
	store, err := state.New(context.Background(), remote, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	tokens := session.NewTokenManager("test-secret", time.Hour)
	return session.NewFlow(store, tokens, zap.NewNop()), store, remote
}

func TestDirectLoginWithRealPIN(t *testing.T) {
	flow, store, _ := newFixture(t)

	stage, err := flow.Submit("admin", "12345")
	require.NoError(t, err)
	assert.Equal(t, session.StageLoggedIn, stage)
	require.NotNil(t, store.CurrentUser())
	assert.NotEmpty(t, flow.ResumeToken())
}

func TestInvalidCredentials(t *testing.T) {
	flow, store, _ := newFixture(t)

	stage, err := flow.Submit("admin", "99999")
	assert.Equal(t, session.StageLoggedOut, stage)
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
	assert.Nil(t, store.CurrentUser())
}

func TestForcedCredentialSetupHappyPath(t *testing.T) {
	flow, _, remote := newFixture(t)

	stage, err := flow.Submit("fresh", models.SentinelPIN)
	require.NoError(t, err)
	require.Equal(t, session.StagePinRotationRequired, stage)

	require.NoError(t, flow.ProvideNewPIN("54321", "54321"))
	require.Equal(t, session.StageSignatureCaptureRequired, flow.Stage())

	// Nothing has been written yet: the PIN is never persisted alone.
	assert.Empty(t, remote.Journal)

	sig := []byte("signature-bytes")
	require.NoError(t, flow.ProvideSignature(context.Background(), sig))
	assert.Equal(t, session.StageLoggedIn, flow.Stage())

	// Exactly one write, carrying both the PIN and the signature.
	require.Equal(t, []string{"UpdateUser:fresh"}, remote.Journal)
	var stored models.User
	for _, u := range remote.Users {
		if u.ID == "fresh" {
			stored = u
		}
	}
	assert.Equal(t, "54321", stored.PIN, "sentinel must not persist past first login")
	assert.Equal(t, sig, stored.Signature)
}

func TestPinRotationValidation(t *testing.T) {
	tests := []struct {
		name    string
		pin     string
		confirm string
	}{
		{"mismatch", "54321", "54322"},
		{"too short", "543", "543"},
		{"non-numeric", "54x21", "54x21"},
		{"sentinel reuse", models.SentinelPIN, models.SentinelPIN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, _, _ := newFixture(t)
			_, err := flow.Submit("fresh", models.SentinelPIN)
			require.NoError(t, err)

			assert.Error(t, flow.ProvideNewPIN(tt.pin, tt.confirm))
			assert.Equal(t, session.StagePinRotationRequired, flow.Stage(), "a bad PIN keeps the flow where it was")
		})
	}
}

func TestCancelDuringPinRotation(t *testing.T) {
	flow, store, remote := newFixture(t)

	_, err := flow.Submit("fresh", models.SentinelPIN)
	require.NoError(t, err)

	err = flow.Cancel()
	assert.ErrorIs(t, err, session.ErrPinChangeCancelled)
	assert.Equal(t, session.StageLoggedOut, flow.Stage())
	assert.Nil(t, store.CurrentUser())
	assert.Empty(t, remote.Journal, "rollback must leave no partial write")
}

func TestEmptySignatureRollsBack(t *testing.T) {
	flow, store, remote := newFixture(t)

	_, err := flow.Submit("fresh", models.SentinelPIN)
	require.NoError(t, err)
	require.NoError(t, flow.ProvideNewPIN("54321", "54321"))

	err = flow.ProvideSignature(context.Background(), nil)
	assert.ErrorIs(t, err, session.ErrSignatureCancelled)
	assert.Equal(t, session.StageLoggedOut, flow.Stage())
	assert.Nil(t, store.CurrentUser())
	assert.Empty(t, remote.Journal)

	// The user's stored PIN is untouched, so the next login repeats setup.
	stage, err := flow.Submit("fresh", models.SentinelPIN)
	require.NoError(t, err)
	assert.Equal(t, session.StagePinRotationRequired, stage)
}

func TestWriteFailureKeepsFlowRetryable(t *testing.T) {
	flow, _, remote := newFixture(t)

	_, err := flow.Submit("fresh", models.SentinelPIN)
	require.NoError(t, err)
	require.NoError(t, flow.ProvideNewPIN("54321", "54321"))

	remote.FailWrites = errors.New("backend unavailable")
	err = flow.ProvideSignature(context.Background(), []byte("sig"))
	require.Error(t, err)
	assert.Equal(t, session.StageSignatureCaptureRequired, flow.Stage())

	remote.FailWrites = nil
	require.NoError(t, flow.ProvideSignature(context.Background(), []byte("sig")))
	assert.Equal(t, session.StageLoggedIn, flow.Stage())
}

func TestResumeTokenRoundTrip(t *testing.T) {
	flow, store, _ := newFixture(t)

	_, err := flow.Submit("admin", "12345")
	require.NoError(t, err)
	token := flow.ResumeToken()
	require.NotEmpty(t, token)

	flow.Logout()
	assert.Nil(t, store.CurrentUser())
	assert.Empty(t, flow.ResumeToken())

	stage, err := flow.Resume(token)
	require.NoError(t, err)
	assert.Equal(t, session.StageLoggedIn, stage)
	require.NotNil(t, store.CurrentUser())
	assert.Equal(t, "admin", store.CurrentUser().ID)
}

func TestResumeRejectsForeignToken(t *testing.T) {
	flow, _, _ := newFixture(t)

	other := session.NewTokenManager("other-secret", time.Hour)
	token, err := other.Issue(&models.User{ID: "admin", Name: "Site Admin", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = flow.Resume(token)
	assert.Error(t, err)
	assert.Equal(t, session.StageLoggedOut, flow.Stage())
}

func TestTokenExpiry(t *testing.T) {
	tm := session.NewTokenManager("secret", -time.Minute)
	token, err := tm.Issue(&models.User{ID: "u1", Name: "Ana", Role: models.RoleOperator})
	require.NoError(t, err)

	_, err = tm.Validate(token)
	assert.Error(t, err)
}
