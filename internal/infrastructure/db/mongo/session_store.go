package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/abneribeiro/apits/internal/core/domain"
)

type mongoSession struct {
	Hash      string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

func toMongoSession(rt domain.RefreshToken) mongoSession {
	created := rt.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return mongoSession{
		Hash:      domain.HashToken(rt.Token),
		UserID:    rt.UserID,
		ExpiresAt: rt.ExpiresAt.UTC(),
		CreatedAt: created.UTC(),
	}
}

// SessionStore keeps one document per refresh token, keyed by the token digest.
type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{col: db.Collection(collectionRefreshTokens)}
}

func (s *SessionStore) Create(ctx context.Context, rt domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.col.InsertOne(ctx, toMongoSession(rt)); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Find(ctx context.Context, token string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoSession
	if err := s.col.FindOne(ctx, bson.M{"_id": domain.HashToken(token)}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, domain.E(domain.KindInvalidToken, "invalid refresh token")
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &domain.RefreshToken{Token: token, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt, CreatedAt: doc.CreatedAt}, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": domain.HashToken(token)})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.col.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// Rotate consumes the old record with FindOneAndDelete, which only one caller
// can win, and stores next afterwards.
func (s *SessionStore) Rotate(ctx context.Context, oldToken string, next domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := s.col.FindOneAndDelete(ctx, bson.M{"_id": domain.HashToken(oldToken)}).Err()
	if isNoDocuments(err) {
		return domain.E(domain.KindInvalidToken, "invalid refresh token")
	}
	if err != nil {
		return fmt.Errorf("rotate session: delete: %w", err)
	}
	if _, err := s.col.InsertOne(ctx, toMongoSession(next)); err != nil {
		return fmt.Errorf("rotate session: insert: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.col.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}
