package db

import (
	"context"
	"fmt"

	"plodtrack/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Collection names under the tenant scope.
const (
	colUsers             = "users"
	colActivityTypes     = "activityTypes"
	colMetricDefinitions = "metricDefinitions"
	colLogs              = "logs"
)

// Firestore limits a write batch to 500 operations.
const maxBatchWrites = 450

// CancelFunc stops a subscription. Safe to call more than once.
type CancelFunc func()

// Remote is the adapter boundary to the hosted document store. Each
// Subscribe method delivers the full collection snapshot on every change
// until cancelled. Add methods assign a generated id when the entity carries
// an empty one, reflecting it back into the passed entity. Writes are not
// retried; errors surface to the caller.
type Remote interface {
	SubscribeUsers(ctx context.Context, fn func([]models.User)) (CancelFunc, error)
	SubscribeActivityTypes(ctx context.Context, fn func([]models.ActivityType)) (CancelFunc, error)
	SubscribeMetricDefinitions(ctx context.Context, fn func([]models.MetricDefinition)) (CancelFunc, error)
	SubscribeLogs(ctx context.Context, fn func([]models.LogEntry)) (CancelFunc, error)

	AddUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error

	AddActivityType(ctx context.Context, a *models.ActivityType) error
	UpdateActivityType(ctx context.Context, a *models.ActivityType) error
	DeleteActivityType(ctx context.Context, id string) error

	AddMetricDefinition(ctx context.Context, d *models.MetricDefinition) error
	UpdateMetricDefinition(ctx context.Context, d *models.MetricDefinition) error
	DeleteMetricDefinition(ctx context.Context, id string) error

	AddLog(ctx context.Context, e *models.LogEntry) error

	BatchWrite(ctx context.Context, users []models.User, types []models.ActivityType, defs []models.MetricDefinition, logs []models.LogEntry) error
}

// FirestoreDB wraps the Firestore client, scoped to one tenant.
type FirestoreDB struct {
	client *firestore.Client
	tenant string
	logger *zap.Logger
	seeder *seeder
}

var _ Remote = (*FirestoreDB)(nil)

// NewFirestoreDB initializes a new Firestore client for the tenant.
func NewFirestoreDB(ctx context.Context, projectID, credentialsPath, tenant string, logger *zap.Logger) (*FirestoreDB, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	logger.Info("connected to Firestore", zap.String("project", projectID), zap.String("tenant", tenant))

	db := &FirestoreDB{
		client: client,
		tenant: tenant,
		logger: logger,
	}
	db.seeder = &seeder{db: db, logger: logger}
	return db, nil
}

// Close closes the Firestore client.
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

func (db *FirestoreDB) col(name string) *firestore.CollectionRef {
	return db.client.Collection("tenants").Doc(db.tenant).Collection(name)
}

// subscribe runs a snapshot listener for one collection, handing the full
// document set of every snapshot to handle until the returned CancelFunc is
// called. Listener errors end the stream; they are logged, not retried.
func (db *FirestoreDB) subscribe(ctx context.Context, name string, handle func(docs []*firestore.DocumentSnapshot)) (CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := db.col(name).Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					db.logger.Error("snapshot listener stopped", zap.String("collection", name), zap.Error(err))
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				db.logger.Error("failed to read snapshot documents", zap.String("collection", name), zap.Error(err))
				continue
			}
			handle(docs)
		}
	}()

	return CancelFunc(cancel), nil
}

// SubscribeUsers streams full user snapshots. The first empty snapshot
// triggers the one-time default-data seeding for the tenant.
func (db *FirestoreDB) SubscribeUsers(ctx context.Context, fn func([]models.User)) (CancelFunc, error) {
	return db.subscribe(ctx, colUsers, func(docs []*firestore.DocumentSnapshot) {
		users := make([]models.User, 0, len(docs))
		for _, doc := range docs {
			var u models.User
			if err := doc.DataTo(&u); err != nil {
				db.logger.Warn("failed to parse user", zap.String("id", doc.Ref.ID), zap.Error(err))
				continue
			}
			u.Role = models.ParseRole(string(u.Role))
			users = append(users, u)
		}
		db.seeder.observe(ctx, len(users))
		fn(users)
	})
}

// SubscribeActivityTypes streams full activity-type snapshots.
func (db *FirestoreDB) SubscribeActivityTypes(ctx context.Context, fn func([]models.ActivityType)) (CancelFunc, error) {
	return db.subscribe(ctx, colActivityTypes, func(docs []*firestore.DocumentSnapshot) {
		types := make([]models.ActivityType, 0, len(docs))
		for _, doc := range docs {
			var a models.ActivityType
			if err := doc.DataTo(&a); err != nil {
				db.logger.Warn("failed to parse activity type", zap.String("id", doc.Ref.ID), zap.Error(err))
				continue
			}
			types = append(types, a)
		}
		fn(types)
	})
}

// SubscribeMetricDefinitions streams full metric-definition snapshots.
func (db *FirestoreDB) SubscribeMetricDefinitions(ctx context.Context, fn func([]models.MetricDefinition)) (CancelFunc, error) {
	return db.subscribe(ctx, colMetricDefinitions, func(docs []*firestore.DocumentSnapshot) {
		defs := make([]models.MetricDefinition, 0, len(docs))
		for _, doc := range docs {
			var d models.MetricDefinition
			if err := doc.DataTo(&d); err != nil {
				db.logger.Warn("failed to parse metric definition", zap.String("id", doc.Ref.ID), zap.Error(err))
				continue
			}
			defs = append(defs, d)
		}
		fn(defs)
	})
}

// SubscribeLogs streams full log snapshots.
func (db *FirestoreDB) SubscribeLogs(ctx context.Context, fn func([]models.LogEntry)) (CancelFunc, error) {
	return db.subscribe(ctx, colLogs, func(docs []*firestore.DocumentSnapshot) {
		logs := make([]models.LogEntry, 0, len(docs))
		for _, doc := range docs {
			var e models.LogEntry
			if err := doc.DataTo(&e); err != nil {
				db.logger.Warn("failed to parse log entry", zap.String("id", doc.Ref.ID), zap.Error(err))
				continue
			}
			e.Role = models.ParseRole(string(e.Role))
			e.Shift = models.ParseShift(string(e.Shift))
			logs = append(logs, e)
		}
		fn(logs)
	})
}

// --- User operations ---

func (db *FirestoreDB) AddUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, err := db.col(colUsers).Doc(u.ID).Set(ctx, u); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

func (db *FirestoreDB) UpdateUser(ctx context.Context, u *models.User) error {
	if _, err := db.col(colUsers).Doc(u.ID).Set(ctx, u); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (db *FirestoreDB) DeleteUser(ctx context.Context, id string) error {
	if _, err := db.col(colUsers).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// --- Activity type operations ---

func (db *FirestoreDB) AddActivityType(ctx context.Context, a *models.ActivityType) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, err := db.col(colActivityTypes).Doc(a.ID).Set(ctx, a); err != nil {
		return fmt.Errorf("failed to add activity type: %w", err)
	}
	return nil
}

func (db *FirestoreDB) UpdateActivityType(ctx context.Context, a *models.ActivityType) error {
	if _, err := db.col(colActivityTypes).Doc(a.ID).Set(ctx, a); err != nil {
		return fmt.Errorf("failed to update activity type: %w", err)
	}
	return nil
}

func (db *FirestoreDB) DeleteActivityType(ctx context.Context, id string) error {
	if _, err := db.col(colActivityTypes).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete activity type: %w", err)
	}
	return nil
}

// --- Metric definition operations ---

func (db *FirestoreDB) AddMetricDefinition(ctx context.Context, d *models.MetricDefinition) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, err := db.col(colMetricDefinitions).Doc(d.ID).Set(ctx, d); err != nil {
		return fmt.Errorf("failed to add metric definition: %w", err)
	}
	return nil
}

func (db *FirestoreDB) UpdateMetricDefinition(ctx context.Context, d *models.MetricDefinition) error {
	if _, err := db.col(colMetricDefinitions).Doc(d.ID).Set(ctx, d); err != nil {
		return fmt.Errorf("failed to update metric definition: %w", err)
	}
	return nil
}

func (db *FirestoreDB) DeleteMetricDefinition(ctx context.Context, id string) error {
	if _, err := db.col(colMetricDefinitions).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete metric definition: %w", err)
	}
	return nil
}

// --- Log operations ---

// AddLog appends a finalized log entry. Logs are never updated or deleted.
func (db *FirestoreDB) AddLog(ctx context.Context, e *models.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := db.col(colLogs).Doc(e.ID).Set(ctx, e); err != nil {
		return fmt.Errorf("failed to add log entry: %w", err)
	}
	return nil
}

// --- Batch ---

type batchDoc struct {
	col string
	id  string
	val any
}

// BatchWrite re-writes every passed entity. Atomicity holds per backend
// write batch, so chunks of up to maxBatchWrites documents commit together.
func (db *FirestoreDB) BatchWrite(ctx context.Context, users []models.User, types []models.ActivityType, defs []models.MetricDefinition, logs []models.LogEntry) error {
	docs := make([]batchDoc, 0, len(users)+len(types)+len(defs)+len(logs))
	for i := range users {
		docs = append(docs, batchDoc{colUsers, users[i].ID, &users[i]})
	}
	for i := range types {
		docs = append(docs, batchDoc{colActivityTypes, types[i].ID, &types[i]})
	}
	for i := range defs {
		docs = append(docs, batchDoc{colMetricDefinitions, defs[i].ID, &defs[i]})
	}
	for i := range logs {
		docs = append(docs, batchDoc{colLogs, logs[i].ID, &logs[i]})
	}

	for start := 0; start < len(docs); start += maxBatchWrites {
		end := start + maxBatchWrites
		if end > len(docs) {
			end = len(docs)
		}
		batch := db.client.Batch()
		for _, d := range docs[start:end] {
			batch.Set(db.col(d.col).Doc(d.id), d.val)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("batch write failed: %w", err)
		}
	}

	db.logger.Info("batch write committed", zap.Int("documents", len(docs)))
	return nil
}
