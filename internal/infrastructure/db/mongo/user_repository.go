package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abneribeiro/apits/internal/core/domain"
)

var userSortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"email":     "email",
	"username":  "username",
}

type mongoUser struct {
	ID              string     `bson:"_id"`
	Email           string     `bson:"email"`
	Username        string     `bson:"username"`
	FirstName       *string    `bson:"first_name,omitempty"`
	LastName        *string    `bson:"last_name,omitempty"`
	PasswordHash    string     `bson:"password_hash"`
	Role            string     `bson:"role"`
	IsActive        bool       `bson:"is_active"`
	IsEmailVerified bool       `bson:"is_email_verified"`
	LastLogin       *time.Time `bson:"last_login,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toMongoUser(u *domain.User) mongoUser {
	return mongoUser{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		PasswordHash:    u.PasswordHash,
		Role:            string(u.Role),
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		LastLogin:       u.LastLogin,
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

func (m mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:              m.ID,
		Email:           m.Email,
		Username:        m.Username,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		PasswordHash:    m.PasswordHash,
		Role:            domain.Role(m.Role),
		IsActive:        m.IsActive,
		IsEmailVerified: m.IsEmailVerified,
		LastLogin:       m.LastLogin,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

type UserRepository struct {
	col    *mongo.Collection
	grants *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		col:    db.Collection(collectionUsers),
		grants: db.Collection(collectionUserPermissions),
	}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoUser(u)
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, userWriteError("insert user", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.M{"email": email})
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.M{"username": username})
}

func (r *UserRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) List(ctx context.Context, q domain.PageQuery) ([]*domain.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	cur, err := r.col.Find(ctx, bson.M{}, findOptions(q, userSortFields))
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}

	users := make([]*domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}
	return users, int(total), nil
}

func (r *UserRepository) Update(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.Username != nil {
		set["username"] = *upd.Username
	}
	if upd.FirstName != nil {
		set["first_name"] = *upd.FirstName
	}
	if upd.LastName != nil {
		set["last_name"] = *upd.LastName
	}
	if upd.Role != nil {
		set["role"] = string(*upd.Role)
	}
	if upd.IsActive != nil {
		set["is_active"] = *upd.IsActive
	}
	if upd.IsEmailVerified != nil {
		set["is_email_verified"] = *upd.IsEmailVerified
	}
	return r.updateOne(ctx, id, set)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := r.updateOne(ctx, id, bson.M{"password_hash": hash, "updated_at": time.Now().UTC()})
	return err
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.updateOne(ctx, id, bson.M{"last_login": at.UTC()})
	return err
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	return r.updateOne(ctx, id, bson.M{"is_active": active, "updated_at": time.Now().UTC()})
}

func (r *UserRepository) updateOne(ctx context.Context, id string, set bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoUser
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	if isNoDocuments(err) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, userWriteError("update user", err)
	}
	return doc.toDomain(), nil
}

// Delete removes the user and its direct permission grants. Sessions are
// revoked by the caller beforehand.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	if _, err := r.grants.DeleteMany(ctx, bson.M{"user_id": id}); err != nil {
		return fmt.Errorf("delete user grants: %w", err)
	}
	return nil
}

func userWriteError(op string, err error) error {
	switch {
	case duplicateOn(err, "username"):
		return domain.ErrUsernameExists
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrEmailExists
	}
	return fmt.Errorf("%s: %w", op, err)
}
