// Package mongo implements the user, permission and session stores on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abneribeiro/apits/internal/core/domain"
)

const (
	defaultTimeout = 10 * time.Second

	collectionUsers           = "users"
	collectionPermissions     = "permissions"
	collectionRolePermissions = "role_permissions"
	collectionUserPermissions = "user_permissions"
	collectionRefreshTokens   = "refresh_tokens"
)

// Config captures the minimal settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect establishes a MongoDB client, verifies connectivity with a ping, and
// returns both the client and the selected database. A default timeout is
// applied when none is provided.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	return client, db, nil
}

// EnsureIndexes creates the unique and lookup indexes every store relies on.
// Refresh tokens also get a TTL index so the server drops expired records.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)
	plan := map[string][]mongo.IndexModel{
		collectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		collectionPermissions: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique},
		},
		collectionRolePermissions: {
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "permission_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		collectionUserPermissions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "permission_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		collectionRefreshTokens: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for coll, indexes := range plan {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", coll, err)
		}
	}
	return nil
}

// findOptions turns a normalized page query into sort, skip and limit.
func findOptions(q domain.PageQuery, fields map[string]string) *options.FindOptions {
	field, ok := fields[q.OrderBy]
	if !ok {
		field = "created_at"
	}
	dir := -1
	if q.Ascending() {
		dir = 1
	}
	return options.Find().
		SetSort(bson.D{{Key: field, Value: dir}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Limit))
}

func isNoDocuments(err error) bool { return errors.Is(err, mongo.ErrNoDocuments) }

// duplicateOn reports whether err is a duplicate key error naming field.
func duplicateOn(err error, field string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), field)
}
