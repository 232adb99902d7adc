// Package session implements the PIN login flow, including the forced
// credential setup for accounts still carrying the sentinel PIN.
package session

import (
	"context"
	"errors"
	"fmt"

	"plodtrack/models"
	"plodtrack/state"

	"go.uber.org/zap"
)

// Stage is the login flow state.
type Stage int

const (
	StageLoggedOut Stage = iota
	StagePinRotationRequired
	StageSignatureCaptureRequired
	StageLoggedIn
)

func (s Stage) String() string {
	switch s {
	case StagePinRotationRequired:
		return "pin-rotation-required"
	case StageSignatureCaptureRequired:
		return "signature-capture-required"
	case StageLoggedIn:
		return "logged-in"
	default:
		return "logged-out"
	}
}

// Error messages surfaced to the operator. The texts are part of the screen
// contract and must not change.
var (
	ErrInvalidCredentials = errors.New("Invalid User ID or PIN.")
	ErrPinChangeCancelled = errors.New("PIN change was cancelled.")
	ErrSignatureCancelled = errors.New("Signature capture was cancelled.")
)

// Flow drives one login attempt:
//
//	LoggedOut -> {PinRotationRequired -> SignatureCaptureRequired -> LoggedIn} | LoggedIn | LoggedOut(failed)
//
// The new PIN and signature of a first login are persisted together in a
// single update only once both are captured; cancelling at any earlier point
// rolls back to LoggedOut without touching the stored user.
type Flow struct {
	store  *state.Store
	tokens *TokenManager
	logger *zap.Logger

	stage       Stage
	pendingUser models.User
	newPIN      string
	resumeToken string
}

func NewFlow(store *state.Store, tokens *TokenManager, logger *zap.Logger) *Flow {
	return &Flow{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

func (f *Flow) Stage() Stage {
	return f.stage
}

// ResumeToken returns the token issued on the last successful login, if any.
// The caller persists it alongside the local settings.
func (f *Flow) ResumeToken() string {
	return f.resumeToken
}

// Submit authenticates the operator. A sentinel PIN routes the flow through
// forced credential setup; any other successful match logs straight in.
func (f *Flow) Submit(userID, pin string) (Stage, error) {
	if f.stage != StageLoggedOut {
		return f.stage, fmt.Errorf("login already in progress (stage %s)", f.stage)
	}

	u := f.store.Login(userID, pin)
	if u == nil {
		return StageLoggedOut, ErrInvalidCredentials
	}

	if u.MustChangePIN() {
		f.pendingUser = *u
		f.stage = StagePinRotationRequired
		f.logger.Info("first login, credential setup required", zap.String("user", u.ID))
		return f.stage, nil
	}

	f.complete(u)
	return f.stage, nil
}

// ProvideNewPIN accepts the rotated PIN, entered twice. Nothing is persisted
// yet; the write happens together with the signature.
func (f *Flow) ProvideNewPIN(pin, confirm string) error {
	if f.stage != StagePinRotationRequired {
		return fmt.Errorf("no PIN rotation in progress")
	}
	if err := models.ValidatePIN(pin); err != nil {
		return err
	}
	if pin != confirm {
		return fmt.Errorf("PINs do not match")
	}
	if pin == models.SentinelPIN {
		return fmt.Errorf("PIN %q is reserved", models.SentinelPIN)
	}
	f.newPIN = pin
	f.stage = StageSignatureCaptureRequired
	return nil
}

// ProvideSignature completes the forced setup. The new PIN and the signature
// are persisted in one update; an empty signature counts as a cancellation.
// On a write error the flow stays in this stage so the operator may retry or
// cancel; the stored user is unchanged until a later snapshot says otherwise.
func (f *Flow) ProvideSignature(ctx context.Context, signature []byte) error {
	if f.stage != StageSignatureCaptureRequired {
		return fmt.Errorf("no signature capture in progress")
	}
	if len(signature) == 0 {
		f.rollback()
		return ErrSignatureCancelled
	}

	u := f.pendingUser
	u.PIN = f.newPIN
	u.Signature = signature
	if err := f.store.UpdateUser(ctx, &u); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	f.logger.Info("credential setup completed", zap.String("user", u.ID))
	f.complete(&u)
	return nil
}

// Cancel aborts a forced setup mid-way, rolling back to LoggedOut. The
// returned error carries the operator-facing message for the stage that was
// abandoned.
func (f *Flow) Cancel() error {
	switch f.stage {
	case StagePinRotationRequired:
		f.rollback()
		return ErrPinChangeCancelled
	case StageSignatureCaptureRequired:
		f.rollback()
		return ErrSignatureCancelled
	default:
		return fmt.Errorf("nothing to cancel (stage %s)", f.stage)
	}
}

// Resume restores a session from a persisted resume token.
func (f *Flow) Resume(token string) (Stage, error) {
	if f.stage != StageLoggedOut {
		return f.stage, fmt.Errorf("login already in progress (stage %s)", f.stage)
	}
	if f.tokens == nil {
		return StageLoggedOut, fmt.Errorf("session resume is not configured")
	}
	claims, err := f.tokens.Validate(token)
	if err != nil {
		return StageLoggedOut, err
	}
	u := f.store.Resume(claims.UserID)
	if u == nil {
		return StageLoggedOut, ErrInvalidCredentials
	}
	f.resumeToken = token
	f.stage = StageLoggedIn
	return f.stage, nil
}

// Logout ends the session and discards the resume token.
func (f *Flow) Logout() {
	f.store.Logout()
	f.stage = StageLoggedOut
	f.pendingUser = models.User{}
	f.newPIN = ""
	f.resumeToken = ""
}

func (f *Flow) complete(u *models.User) {
	f.stage = StageLoggedIn
	f.pendingUser = models.User{}
	f.newPIN = ""
	if f.tokens != nil {
		token, err := f.tokens.Issue(u)
		if err != nil {
			f.logger.Warn("failed to issue resume token", zap.Error(err))
		} else {
			f.resumeToken = token
		}
	}
}

func (f *Flow) rollback() {
	f.store.Logout()
	f.stage = StageLoggedOut
	f.pendingUser = models.User{}
	f.newPIN = ""
}
