// Package mongo registers a MongoDB entry store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/model"
	registrymigrate "github.com/chirino/summary-memory/internal/registry/migrate"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionName = "memory_entries"

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: config.DatastoreMongo,
		Loader: func(ctx context.Context) (registrystore.EntryStore, error) {
			cfg := config.FromContext(ctx)
			client, err := connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return New(client.Database(databaseName(cfg))), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

func connect(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("mongo store: SUMMARY_MEMORY_DB_URL is required")
	}
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

func databaseName(cfg *config.Config) string {
	if cfg.MongoDatabase != "" {
		return cfg.MongoDatabase
	}
	return config.DefaultConfig().MongoDatabase
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.NormalizedDatastoreType() != config.DatastoreMongo {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mongo migration: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureIndexes(ctx, client.Database(databaseName(cfg))); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

// EnsureIndexes creates the memory entry collection and its unique
// (user_id, key) index. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	// CreateCollection fails when the collection exists; the index call below
	// is what matters.
	_ = db.CreateCollection(ctx, collectionName)
	_, err := db.Collection(collectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_user_key"),
	})
	if err != nil {
		return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", collectionName, err)
	}
	return nil
}

// MongoStore implements registrystore.EntryStore using MongoDB.
type MongoStore struct {
	col *mongo.Collection
	now func() time.Time
}

// New returns a store backed by the memory_entries collection of db.
func New(db *mongo.Database) *MongoStore {
	return &MongoStore{
		col: db.Collection(collectionName),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type entryDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Key        string    `bson:"key"`
	Value      string    `bson:"value"`
	TokenCount *int      `bson:"token_count,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (d entryDoc) toModel() model.MemoryEntry {
	id, _ := uuid.Parse(d.ID)
	return model.MemoryEntry{
		ID:         id,
		UserID:     d.UserID,
		Key:        d.Key,
		Value:      d.Value,
		TokenCount: d.TokenCount,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (s *MongoStore) ListEntries(ctx context.Context, userID string) ([]model.MemoryEntry, error) {
	cursor, err := s.col.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list memory entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode memory entries: %w", err)
	}
	entries := make([]model.MemoryEntry, len(docs))
	for i, d := range docs {
		entries[i] = d.toModel()
	}
	return entries, nil
}

func (s *MongoStore) WriteEntry(ctx context.Context, req registrystore.WriteEntryRequest) (*model.MemoryEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	doc := entryDoc{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Key:        req.Key,
		Value:      req.Value,
		TokenCount: req.TokenCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &registrystore.ConflictError{UserID: req.UserID, Key: req.Key, Err: err}
		}
		return nil, fmt.Errorf("write memory entry: %w", err)
	}
	entry := doc.toModel()
	return &entry, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	err := s.col.Database().Client().Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

var _ registrystore.EntryStore = (*MongoStore)(nil)
