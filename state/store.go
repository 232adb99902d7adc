// Package state owns the in-memory copies of all entities for one
// authenticated session. Collections are mutated only by the adapter's
// subscription callbacks; every other mutation goes down through the adapter
// and comes back as a fresh snapshot. Callers must never assume a mutating
// call has updated the local collections by the time it returns.
package state

import (
	"context"
	"fmt"
	"sync"

	"plodtrack/db"
	"plodtrack/models"

	"go.uber.org/zap"
)

const (
	loadedUsers = 1 << iota
	loadedActivityTypes
	loadedMetricDefinitions
	loadedLogs
	loadedAll = loadedUsers | loadedActivityTypes | loadedMetricDefinitions | loadedLogs
)

// Store is the application state store, constructed once per session.
type Store struct {
	remote db.Remote
	logger *zap.Logger

	mu                sync.RWMutex
	currentUser       *models.User
	users             []models.User
	activityTypes     []models.ActivityType
	metricDefinitions []models.MetricDefinition
	logs              []models.LogEntry
	loaded            uint8
	listeners         map[int]func()
	nextListener      int

	cancels []db.CancelFunc
	closed  bool
}

// New constructs the store and starts the four collection subscriptions.
// IsLoading reports true until every collection has delivered at least one
// snapshot, in whatever order they arrive.
func New(ctx context.Context, remote db.Remote, logger *zap.Logger) (*Store, error) {
	s := &Store{
		remote:    remote,
		logger:    logger,
		listeners: make(map[int]func()),
	}

	subs := []func() (db.CancelFunc, error){
		func() (db.CancelFunc, error) {
			return remote.SubscribeUsers(ctx, s.onUsers)
		},
		func() (db.CancelFunc, error) {
			return remote.SubscribeActivityTypes(ctx, s.onActivityTypes)
		},
		func() (db.CancelFunc, error) {
			return remote.SubscribeMetricDefinitions(ctx, s.onMetricDefinitions)
		},
		func() (db.CancelFunc, error) {
			return remote.SubscribeLogs(ctx, s.onLogs)
		},
	}
	for _, sub := range subs {
		cancel, err := sub()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start subscription: %w", err)
		}
		s.cancels = append(s.cancels, cancel)
	}
	return s, nil
}

// Close cancels all subscriptions. In-flight writes are left to complete or
// fail on their own.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := s.cancels
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// OnChange registers a callback invoked after every snapshot arrival.
// The returned function unregisters it.
func (s *Store) OnChange(fn func()) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// --- Subscription callbacks ---

func (s *Store) onUsers(users []models.User) {
	s.mu.Lock()
	s.users = users
	s.loaded |= loadedUsers
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onActivityTypes(types []models.ActivityType) {
	s.mu.Lock()
	s.activityTypes = types
	s.loaded |= loadedActivityTypes
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onMetricDefinitions(defs []models.MetricDefinition) {
	s.mu.Lock()
	s.metricDefinitions = defs
	s.loaded |= loadedMetricDefinitions
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onLogs(logs []models.LogEntry) {
	s.mu.Lock()
	s.logs = logs
	s.loaded |= loadedLogs
	s.mu.Unlock()
	s.notify()
}

// --- Accessors (value copies, insertion order preserved) ---

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded != loadedAll
}

// CurrentUser returns a copy of the logged-in operator, or nil.
func (s *Store) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return nil
	}
	u := *s.currentUser
	return &u
}

func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User(nil), s.users...)
}

func (s *Store) ActivityTypes() []models.ActivityType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ActivityType(nil), s.activityTypes...)
}

func (s *Store) MetricDefinitions() []models.MetricDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MetricDefinition(nil), s.metricDefinitions...)
}

func (s *Store) Logs() []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LogEntry(nil), s.logs...)
}

// ActivityTypeByID returns a copy of the named activity type.
func (s *Store) ActivityTypeByID(id string) (models.ActivityType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.activityTypes {
		if a.ID == id {
			return a, true
		}
	}
	return models.ActivityType{}, false
}

// UserByID returns a copy of the named user.
func (s *Store) UserByID(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// --- Session ---

// Login searches the in-memory users for an exact id+PIN match. On success
// it sets the current user and returns a copy; on failure it returns nil and
// leaves the current user untouched. No lockout or rate limiting applies.
func (s *Store) Login(userID, pin string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == userID && s.users[i].PIN == pin {
			u := s.users[i]
			s.currentUser = &u
			s.logger.Info("user logged in", zap.String("user", u.ID), zap.String("role", string(u.Role)))
			out := u
			return &out
		}
	}
	return nil
}

// Resume restores the session for a known user without a PIN check. It is
// used by the resume-token path only and refuses accounts that still carry
// the sentinel PIN (those must complete first login interactively).
func (s *Store) Resume(userID string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == userID && !s.users[i].MustChangePIN() {
			u := s.users[i]
			s.currentUser = &u
			s.logger.Info("session resumed", zap.String("user", u.ID))
			out := u
			return &out
		}
	}
	return nil
}

// Logout clears the current user.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUser != nil {
		s.logger.Info("user logged out", zap.String("user", s.currentUser.ID))
	}
	s.currentUser = nil
}

// --- Mutations (delegated to the adapter, reflected via snapshots) ---

func (s *Store) AddUser(ctx context.Context, u *models.User) error {
	if err := models.ValidatePIN(u.PIN); err != nil {
		return err
	}
	if err := s.remote.AddUser(ctx, u); err != nil {
		return err
	}
	s.logger.Info("user added", zap.String("user", u.ID))
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	if err := models.ValidatePIN(u.PIN); err != nil {
		return err
	}
	if err := s.remote.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.logger.Info("user updated", zap.String("user", u.ID))
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.remote.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.String("user", id))
	return nil
}

func (s *Store) AddActivityType(ctx context.Context, a *models.ActivityType) error {
	if a.Name == "" {
		return fmt.Errorf("activity type name is required")
	}
	if err := s.remote.AddActivityType(ctx, a); err != nil {
		return err
	}
	s.logger.Info("activity type added", zap.String("activity_type", a.ID))
	return nil
}

func (s *Store) UpdateActivityType(ctx context.Context, a *models.ActivityType) error {
	if err := s.remote.UpdateActivityType(ctx, a); err != nil {
		return err
	}
	s.logger.Info("activity type updated", zap.String("activity_type", a.ID))
	return nil
}

func (s *Store) DeleteActivityType(ctx context.Context, id string) error {
	if err := s.remote.DeleteActivityType(ctx, id); err != nil {
		return err
	}
	s.logger.Info("activity type deleted", zap.String("activity_type", id))
	return nil
}

func (s *Store) AddMetricDefinition(ctx context.Context, d *models.MetricDefinition) error {
	if d.Name == "" {
		return fmt.Errorf("metric definition name is required")
	}
	if err := s.remote.AddMetricDefinition(ctx, d); err != nil {
		return err
	}
	s.logger.Info("metric definition added", zap.String("definition", d.ID))
	return nil
}

func (s *Store) UpdateMetricDefinition(ctx context.Context, d *models.MetricDefinition) error {
	if err := s.remote.UpdateMetricDefinition(ctx, d); err != nil {
		return err
	}
	s.logger.Info("metric definition updated", zap.String("definition", d.ID))
	return nil
}

func (s *Store) DeleteMetricDefinition(ctx context.Context, id string) error {
	if err := s.remote.DeleteMetricDefinition(ctx, id); err != nil {
		return err
	}
	s.logger.Info("metric definition deleted", zap.String("definition", id))
	return nil
}

// AddLog appends a finalized log entry. There is no update or delete path.
func (s *Store) AddLog(ctx context.Context, e *models.LogEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.remote.AddLog(ctx, e); err != nil {
		return err
	}
	s.logger.Info("log entry added",
		zap.String("log", e.ID),
		zap.String("activity_type", e.ActivityTypeID),
		zap.Int64("duration_s", e.DurationSeconds))
	return nil
}

// SyncAll re-writes every in-memory entity as one atomic batch. This is a
// manual reconciliation escape hatch, not a normal code path.
func (s *Store) SyncAll(ctx context.Context) error {
	s.mu.RLock()
	users := append([]models.User(nil), s.users...)
	types := append([]models.ActivityType(nil), s.activityTypes...)
	defs := append([]models.MetricDefinition(nil), s.metricDefinitions...)
	logs := append([]models.LogEntry(nil), s.logs...)
	s.mu.RUnlock()

	if err := s.remote.BatchWrite(ctx, users, types, defs, logs); err != nil {
		return err
	}
	s.logger.Info("manual sync completed",
		zap.Int("users", len(users)),
		zap.Int("activity_types", len(types)),
		zap.Int("definitions", len(defs)),
		zap.Int("logs", len(logs)))
	return nil
}
