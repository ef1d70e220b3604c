package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/abneribeiro/apits/internal/core/domain"
)

func newMockT(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func userDoc(id, email string, active bool) bson.D {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "email", Value: email},
		{Key: "username", Value: "alice"},
		{Key: "password_hash", Value: "hash"},
		{Key: "role", Value: "moderator"},
		{Key: "is_active", Value: active},
		{Key: "is_email_verified", Value: false},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}
}

func TestUserRepository(t *testing.T) {
	mt := newMockT(t)

	mt.Run("find by id", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "apits.users", mtest.FirstBatch, userDoc("u1", "alice@example.com", true)))

		u, err := repo.FindByID(context.Background(), "u1")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if u.ID != "u1" || u.Role != domain.RoleModerator || !u.IsActive || u.FirstName != nil {
			t.Fatalf("unexpected user: %+v", u)
		}
	})

	mt.Run("missing user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "apits.users", mtest.FirstBatch))

		if _, err := repo.FindByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("duplicate username", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: apits.users index: username_1 dup key",
		}))

		_, err := repo.Create(context.Background(), &domain.User{ID: "u1", Email: "a@example.com", Username: "alice", Role: domain.RoleUser})
		if !errors.Is(err, domain.ErrUsernameExists) {
			t.Fatalf("expected ErrUsernameExists, got %v", err)
		}
	})

	mt.Run("duplicate email", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: apits.users index: email_1 dup key",
		}))

		_, err := repo.Create(context.Background(), &domain.User{ID: "u1", Email: "a@example.com", Username: "alice", Role: domain.RoleUser})
		if !errors.Is(err, domain.ErrEmailExists) {
			t.Fatalf("expected ErrEmailExists, got %v", err)
		}
	})

	mt.Run("set active returns the updated document", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: userDoc("u1", "alice@example.com", false)}})

		u, err := repo.SetActive(context.Background(), "u1", false)
		if err != nil {
			t.Fatalf("SetActive: %v", err)
		}
		if u.IsActive {
			t.Fatalf("expected inactive user")
		}
	})

	mt.Run("set active on missing user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		if _, err := repo.SetActive(context.Background(), "ghost", true); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})

	mt.Run("delete missing user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		if err := repo.Delete(context.Background(), "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestPermissionRepository(t *testing.T) {
	mt := newMockT(t)

	mt.Run("role permissions", func(mt *mtest.T) {
		repo := NewPermissionRepository(mt.DB)
		now := time.Now().UTC().Truncate(time.Millisecond)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "values", Value: bson.A{"p1", "p2"}}),
			mtest.CreateCursorResponse(0, "apits.permissions", mtest.FirstBatch,
				bson.D{{Key: "_id", Value: "p2"}, {Key: "name", Value: "users.read"}, {Key: "resource", Value: "users"}, {Key: "action", Value: "read"}, {Key: "created_at", Value: now}, {Key: "updated_at", Value: now}},
				bson.D{{Key: "_id", Value: "p1"}, {Key: "name", Value: "users.write"}, {Key: "resource", Value: "users"}, {Key: "action", Value: "write"}, {Key: "created_at", Value: now}, {Key: "updated_at", Value: now}},
			),
		)

		perms, err := repo.FindRolePermissions(context.Background(), domain.RoleModerator)
		if err != nil {
			t.Fatalf("FindRolePermissions: %v", err)
		}
		if len(perms) != 2 || perms[0].Name != "users.read" || !perms[1].Matches("users", "write") {
			t.Fatalf("unexpected permissions: %+v", perms)
		}
	})

	mt.Run("no grants", func(mt *mtest.T) {
		repo := NewPermissionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "values", Value: bson.A{}}))

		perms, err := repo.FindUserPermissions(context.Background(), "u1")
		if err != nil {
			t.Fatalf("FindUserPermissions: %v", err)
		}
		if perms == nil || len(perms) != 0 {
			t.Fatalf("expected an empty non-nil slice, got %#v", perms)
		}
	})

	mt.Run("duplicate name", func(mt *mtest.T) {
		repo := NewPermissionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error index: name_1"}))

		if _, err := repo.Create(context.Background(), &domain.Permission{ID: "p1", Name: "users.read"}); !errors.Is(err, domain.ErrPermissionExists) {
			t.Fatalf("expected ErrPermissionExists, got %v", err)
		}
	})

	mt.Run("assign is an upsert", func(mt *mtest.T) {
		repo := NewPermissionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}))

		if err := repo.AssignToRole(context.Background(), domain.RoleUser, "p1"); err != nil {
			t.Fatalf("AssignToRole: %v", err)
		}
	})

	mt.Run("revoke reports absence", func(mt *mtest.T) {
		repo := NewPermissionRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		removed, err := repo.RevokeFromUser(context.Background(), "u1", "p1")
		if err != nil {
			t.Fatalf("RevokeFromUser: %v", err)
		}
		if removed {
			t.Fatalf("expected nothing removed")
		}
	})
}

func TestSessionStore(t *testing.T) {
	mt := newMockT(t)
	next := domain.RefreshToken{Token: "next", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}

	mt.Run("rotate consumes the old record", func(mt *mtest.T) {
		store := NewSessionStore(mt.DB)
		mt.AddMockResponses(
			bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: bson.D{{Key: "_id", Value: domain.HashToken("old")}, {Key: "user_id", Value: "u1"}}}},
			mtest.CreateSuccessResponse(),
		)

		if err := store.Rotate(context.Background(), "old", next); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
	})

	mt.Run("rotate of a consumed token stores nothing", func(mt *mtest.T) {
		store := NewSessionStore(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		if err := store.Rotate(context.Background(), "old", next); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	mt.Run("find keys by digest", func(mt *mtest.T) {
		store := NewSessionStore(mt.DB)
		exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "apits.refresh_tokens", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: domain.HashToken("raw")},
			{Key: "user_id", Value: "u1"},
			{Key: "expires_at", Value: exp},
			{Key: "created_at", Value: exp.Add(-time.Hour)},
		}))

		rec, err := store.Find(context.Background(), "raw")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if rec.Token != "raw" || rec.UserID != "u1" || !rec.ExpiresAt.Equal(exp) {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	mt.Run("find missing", func(mt *mtest.T) {
		store := NewSessionStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "apits.refresh_tokens", mtest.FirstBatch))

		if _, err := store.Find(context.Background(), "raw"); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	mt.Run("delete by user counts", func(mt *mtest.T) {
		store := NewSessionStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		n, err := store.DeleteByUser(context.Background(), "u1")
		if err != nil {
			t.Fatalf("DeleteByUser: %v", err)
		}
		if n != 3 {
			t.Fatalf("expected 3 removed, got %d", n)
		}
	})
}
