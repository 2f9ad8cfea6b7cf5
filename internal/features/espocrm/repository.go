package espocrm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-bridge/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConfigRepository interface {
	GetActive(ctx context.Context) (*Config, error)
	Get(ctx context.Context, id string) (*Config, error)
	Create(ctx context.Context, config *Config) error
	Update(ctx context.Context, id string, updates map[string]interface{}) error
}

// SyncLogFilter narrows log listings; zero values mean "no filter"
type SyncLogFilter struct {
	Status   SyncStatus
	SyncType SyncType
	Page     int
	Limit    int
}

type SyncLogRepository interface {
	Create(ctx context.Context, log *SyncLog) error
	Update(ctx context.Context, log *SyncLog) error
	List(ctx context.Context, filter SyncLogFilter) ([]SyncLog, int64, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status SyncStatus) (int64, error)
	LastSuccessfulAt(ctx context.Context) (*time.Time, error)
}

type ConfigRepositoryImpl struct {
	collection *mongo.Collection
}

func NewConfigRepository(db *database.MongodbDB) ConfigRepository {
	return &ConfigRepositoryImpl{
		collection: db.DB.Collection("espocrm_configs"),
	}
}

// GetActive returns (nil, nil) when no configuration is active
func (r *ConfigRepositoryImpl) GetActive(ctx context.Context) (*Config, error) {
	var config Config
	err := r.collection.FindOne(ctx, bson.M{"is_active": true}).Decode(&config)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &config, nil
}

func (r *ConfigRepositoryImpl) Get(ctx context.Context, id string) (*Config, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var config Config
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// Create rejects a second active configuration
func (r *ConfigRepositoryImpl) Create(ctx context.Context, config *Config) error {
	if config.IsActive {
		existing, err := r.GetActive(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("an active EspoCRM configuration already exists")
		}
	}

	if config.ID.IsZero() {
		config.ID = primitive.NewObjectID()
	}
	config.CreatedAt = time.Now()
	config.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, config)
	return err
}

func (r *ConfigRepositoryImpl) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	updates["updated_at"] = time.Now()
	_, err = r.collection.UpdateOne(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": updates},
	)
	return err
}

type SyncLogRepositoryImpl struct {
	collection *mongo.Collection
}

func NewSyncLogRepository(db *database.MongodbDB) SyncLogRepository {
	return &SyncLogRepositoryImpl{
		collection: db.DB.Collection("espocrm_sync_logs"),
	}
}

func (r *SyncLogRepositoryImpl) Create(ctx context.Context, log *SyncLog) error {
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, log)
	return err
}

func (r *SyncLogRepositoryImpl) Update(ctx context.Context, log *SyncLog) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": log.ID}, log)
	return err
}

func (r *SyncLogRepositoryImpl) List(ctx context.Context, filter SyncLogFilter) ([]SyncLog, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.SyncType != "" {
		query["sync_type"] = filter.SyncType
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page-1) * int64(limit)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var logs []SyncLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (r *SyncLogRepositoryImpl) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

func (r *SyncLogRepositoryImpl) CountByStatus(ctx context.Context, status SyncStatus) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"status": status})
}

// LastSuccessfulAt returns the creation time of the newest successful entry,
// or nil when none exists
func (r *SyncLogRepositoryImpl) LastSuccessfulAt(ctx context.Context) (*time.Time, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var log SyncLog
	err := r.collection.FindOne(ctx, bson.M{"status": StatusSuccess}, opts).Decode(&log)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &log.CreatedAt, nil
}
