// Package mock provides an in-memory db.Remote for tests. It reproduces the
// adapter contract: mutations are never reflected back synchronously through
// the mutating call, they re-emit a full collection snapshot to subscribers.
package mock

import (
	"context"
	"fmt"
	"sync"

	"plodtrack/db"
	"plodtrack/models"

	"github.com/google/uuid"
)

// Store is an in-memory Remote. Set Manual to suppress automatic snapshot
// emission and drive it explicitly with the Emit methods; set FailWrites to
// make every write return that error without mutating anything.
type Store struct {
	mu sync.Mutex

	Users             []models.User
	ActivityTypes     []models.ActivityType
	MetricDefinitions []models.MetricDefinition
	Logs              []models.LogEntry

	Manual     bool
	FailWrites error

	// Journal records every write as "Op:id" for ordering assertions.
	Journal []string

	userSubs map[int]func([]models.User)
	typeSubs map[int]func([]models.ActivityType)
	defSubs  map[int]func([]models.MetricDefinition)
	logSubs  map[int]func([]models.LogEntry)
	nextSub  int
}

var _ db.Remote = (*Store)(nil)

func New() *Store {
	return &Store{
		userSubs: make(map[int]func([]models.User)),
		typeSubs: make(map[int]func([]models.ActivityType)),
		defSubs:  make(map[int]func([]models.MetricDefinition)),
		logSubs:  make(map[int]func([]models.LogEntry)),
	}
}

// --- Subscriptions ---

func (s *Store) SubscribeUsers(ctx context.Context, fn func([]models.User)) (db.CancelFunc, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.userSubs[id] = fn
	snap := s.usersSnapshot()
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		fn(snap)
	}
	return func() {
		s.mu.Lock()
		delete(s.userSubs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) SubscribeActivityTypes(ctx context.Context, fn func([]models.ActivityType)) (db.CancelFunc, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.typeSubs[id] = fn
	snap := s.typesSnapshot()
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		fn(snap)
	}
	return func() {
		s.mu.Lock()
		delete(s.typeSubs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) SubscribeMetricDefinitions(ctx context.Context, fn func([]models.MetricDefinition)) (db.CancelFunc, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.defSubs[id] = fn
	snap := s.defsSnapshot()
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		fn(snap)
	}
	return func() {
		s.mu.Lock()
		delete(s.defSubs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) SubscribeLogs(ctx context.Context, fn func([]models.LogEntry)) (db.CancelFunc, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.logSubs[id] = fn
	snap := s.logsSnapshot()
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		fn(snap)
	}
	return func() {
		s.mu.Lock()
		delete(s.logSubs, id)
		s.mu.Unlock()
	}, nil
}

// --- Emission ---

func (s *Store) usersSnapshot() []models.User {
	return append([]models.User(nil), s.Users...)
}

func (s *Store) typesSnapshot() []models.ActivityType {
	return append([]models.ActivityType(nil), s.ActivityTypes...)
}

func (s *Store) defsSnapshot() []models.MetricDefinition {
	return append([]models.MetricDefinition(nil), s.MetricDefinitions...)
}

func (s *Store) logsSnapshot() []models.LogEntry {
	return append([]models.LogEntry(nil), s.Logs...)
}

// EmitUsers delivers the current users snapshot to all subscribers.
func (s *Store) EmitUsers() {
	s.mu.Lock()
	snap := s.usersSnapshot()
	subs := make([]func([]models.User), 0, len(s.userSubs))
	for _, fn := range s.userSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// EmitActivityTypes delivers the current activity-type snapshot.
func (s *Store) EmitActivityTypes() {
	s.mu.Lock()
	snap := s.typesSnapshot()
	subs := make([]func([]models.ActivityType), 0, len(s.typeSubs))
	for _, fn := range s.typeSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// EmitMetricDefinitions delivers the current definition snapshot.
func (s *Store) EmitMetricDefinitions() {
	s.mu.Lock()
	snap := s.defsSnapshot()
	subs := make([]func([]models.MetricDefinition), 0, len(s.defSubs))
	for _, fn := range s.defSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// EmitLogs delivers the current log snapshot.
func (s *Store) EmitLogs() {
	s.mu.Lock()
	snap := s.logsSnapshot()
	subs := make([]func([]models.LogEntry), 0, len(s.logSubs))
	for _, fn := range s.logSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) record(op, id string) {
	s.Journal = append(s.Journal, fmt.Sprintf("%s:%s", op, id))
}

// --- Users ---

func (s *Store) AddUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.Users = append(s.Users, *u)
	s.record("AddUser", u.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitUsers()
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	for i := range s.Users {
		if s.Users[i].ID == u.ID {
			s.Users[i] = *u
			break
		}
	}
	s.record("UpdateUser", u.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitUsers()
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	for i := range s.Users {
		if s.Users[i].ID == id {
			s.Users = append(s.Users[:i], s.Users[i+1:]...)
			break
		}
	}
	s.record("DeleteUser", id)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitUsers()
	}
	return nil
}

// --- Activity types ---

func (s *Store) AddActivityType(ctx context.Context, a *models.ActivityType) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.ActivityTypes = append(s.ActivityTypes, *a)
	s.record("AddActivityType", a.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitActivityTypes()
	}
	return nil
}

func (s *Store) UpdateActivityType(ctx context.Context, a *models.ActivityType) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	for i := range s.ActivityTypes {
		if s.ActivityTypes[i].ID == a.ID {
			s.ActivityTypes[i] = *a
			break
		}
	}
	s.record("UpdateActivityType", a.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitActivityTypes()
	}
	return nil
}

func (s *Store) DeleteActivityType(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	for i := range s.ActivityTypes {
		if s.ActivityTypes[i].ID == id {
			s.ActivityTypes = append(s.ActivityTypes[:i], s.ActivityTypes[i+1:]...)
			break
		}
	}
	s.record("DeleteActivityType", id)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitActivityTypes()
	}
	return nil
}

// --- Metric definitions ---

func (s *Store) AddMetricDefinition(ctx context.Context, d *models.MetricDefinition) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.MetricDefinitions = append(s.MetricDefinitions, *d)
	s.record("AddMetricDefinition", d.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitMetricDefinitions()
	}
	return nil
}

func (s *Store) UpdateMetricDefinition(ctx context.Context, d *models.MetricDefinition) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	for i := range s.MetricDefinitions {
		if s.MetricDefinitions[i].ID == d.ID {
			s.MetricDefinitions[i] = *d
			break
		}
	}
	s.record("UpdateMetricDefinition", d.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitMetricDefinitions()
	}
	return nil
}

func (s *Store) DeleteMetricDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	for i := range s.MetricDefinitions {
		if s.MetricDefinitions[i].ID == id {
			s.MetricDefinitions = append(s.MetricDefinitions[:i], s.MetricDefinitions[i+1:]...)
			break
		}
	}
	s.record("DeleteMetricDefinition", id)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitMetricDefinitions()
	}
	return nil
}

// --- Logs ---

func (s *Store) AddLog(ctx context.Context, e *models.LogEntry) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.Logs = append(s.Logs, *e)
	s.record("AddLog", e.ID)
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitLogs()
	}
	return nil
}

// --- Batch ---

func (s *Store) BatchWrite(ctx context.Context, users []models.User, types []models.ActivityType, defs []models.MetricDefinition, logs []models.LogEntry) error {
	s.mu.Lock()
	if s.FailWrites != nil {
		defer s.mu.Unlock()
		return s.FailWrites
	}
	s.upsertUsers(users)
	s.upsertTypes(types)
	s.upsertDefs(defs)
	s.upsertLogs(logs)
	s.record("BatchWrite", fmt.Sprintf("%d", len(users)+len(types)+len(defs)+len(logs)))
	manual := s.Manual
	s.mu.Unlock()
	if !manual {
		s.EmitUsers()
		s.EmitActivityTypes()
		s.EmitMetricDefinitions()
		s.EmitLogs()
	}
	return nil
}

func (s *Store) upsertUsers(users []models.User) {
	for _, u := range users {
		found := false
		for i := range s.Users {
			if s.Users[i].ID == u.ID {
				s.Users[i] = u
				found = true
				break
			}
		}
		if !found {
			s.Users = append(s.Users, u)
		}
	}
}

func (s *Store) upsertTypes(types []models.ActivityType) {
	for _, a := range types {
		found := false
		for i := range s.ActivityTypes {
			if s.ActivityTypes[i].ID == a.ID {
				s.ActivityTypes[i] = a
				found = true
				break
			}
		}
		if !found {
			s.ActivityTypes = append(s.ActivityTypes, a)
		}
	}
}

func (s *Store) upsertDefs(defs []models.MetricDefinition) {
	for _, d := range defs {
		found := false
		for i := range s.MetricDefinitions {
			if s.MetricDefinitions[i].ID == d.ID {
				s.MetricDefinitions[i] = d
				found = true
				break
			}
		}
		if !found {
			s.MetricDefinitions = append(s.MetricDefinitions, d)
		}
	}
}

func (s *Store) upsertLogs(logs []models.LogEntry) {
	for _, e := range logs {
		found := false
		for i := range s.Logs {
			if s.Logs[i].ID == e.ID {
				s.Logs[i] = e
				found = true
				break
			}
		}
		if !found {
			s.Logs = append(s.Logs, e)
		}
	}
}
