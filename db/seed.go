package db

import (
	"context"
	"sync"

	"plodtrack/models"

	"go.uber.org/zap"
)

// Stable ids for the seeded records so repeated installs of the same tenant
// would collide instead of duplicating.
const (
	seedTypeDrilling = "plod-drilling"
	seedTypeBolting  = "plod-bolting"
	seedTypeCharging = "plod-charging"
)

// DefaultActivityTypes returns the activity types seeded into a new tenant.
func DefaultActivityTypes() []models.ActivityType {
	return []models.ActivityType{
		{ID: seedTypeDrilling, Name: "Drilling"},
		{ID: seedTypeBolting, Name: "Bolting"},
		{ID: seedTypeCharging, Name: "Charging"},
	}
}

// DefaultMetricDefinitions returns the metric definitions seeded into a new
// tenant, each linked to the activity types it measures.
func DefaultMetricDefinitions() []models.MetricDefinition {
	return []models.MetricDefinition{
		{ID: "def-holes", Name: "Holes Drilled", Unit: "holes", LinkedActivityTypes: []string{seedTypeDrilling}},
		{ID: "def-meters", Name: "Meters Advanced", Unit: "m", LinkedActivityTypes: []string{seedTypeDrilling, seedTypeCharging}},
		{ID: "def-bolts", Name: "Bolts Installed", Unit: "bolts", LinkedActivityTypes: []string{seedTypeBolting}},
		{ID: "def-explosives", Name: "Explosives Used", Unit: "kg", LinkedActivityTypes: []string{seedTypeCharging}},
	}
}

// DefaultUsers returns the bootstrap accounts: one ready-to-use admin and
// two sentinel-PIN accounts that must set credentials on first login.
func DefaultUsers() []models.User {
	allTypes := []string{seedTypeDrilling, seedTypeBolting, seedTypeCharging}
	return []models.User{
		{ID: "user-admin", Name: "Site Admin", Role: models.RoleAdmin, PIN: "12345", PermittedActivityTypes: allTypes},
		{ID: "user-operator", Name: "Default Operator", Role: models.RoleOperator, PIN: models.SentinelPIN, PermittedActivityTypes: allTypes},
		{ID: "user-supervisor", Name: "Default Supervisor", Role: models.RoleSupervisor, PIN: models.SentinelPIN, PermittedActivityTypes: allTypes},
	}
}

// seeder decides, from user snapshots, whether the tenant needs its default
// data. The decision is taken once: the first snapshot either shows existing
// users (never seed) or triggers the one-time bootstrap batch. Check-then-
// write is acceptable here since this runs only on a brand-new tenant.
type seeder struct {
	db     *FirestoreDB
	logger *zap.Logger

	mu      sync.Mutex
	decided bool
}

// observe is called with the user count of every users snapshot.
func (s *seeder) observe(ctx context.Context, userCount int) {
	if !s.shouldSeed(userCount) {
		return
	}
	s.logger.Info("empty tenant detected, seeding default data", zap.String("tenant", s.db.tenant))
	if err := s.db.BatchWrite(ctx, DefaultUsers(), DefaultActivityTypes(), DefaultMetricDefinitions(), nil); err != nil {
		s.logger.Error("default-data seeding failed", zap.Error(err))
		// Allow a later snapshot to retry, the tenant is still empty.
		s.mu.Lock()
		s.decided = false
		s.mu.Unlock()
	}
}

// shouldSeed reports the seeding decision for a snapshot with the given user
// count, flipping the one-shot guard.
func (s *seeder) shouldSeed(userCount int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decided {
		return false
	}
	s.decided = true
	return userCount == 0
}
