package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abneribeiro/apits/internal/core/domain"
)

func TestUserService_Deactivate_RevokesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := register(t, f, "lena@example.com", "lena", "")
	if _, err := f.auth.Login(ctx, "lena@example.com", goodPassword); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	u, err := f.userSvc.Deactivate(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if u.IsActive {
		t.Fatalf("expected user to be inactive")
	}
	if n := f.sessions.countFor(reg.User.ID); n != 0 {
		t.Fatalf("expected no sessions, got %d", n)
	}
	if _, err := f.auth.Refresh(ctx, reg.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected revoked token to be invalid, got %v", err)
	}

	if _, err := f.userSvc.Activate(ctx, reg.User.ID); err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}
	if _, err := f.auth.Refresh(ctx, reg.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected reactivation not to revive sessions, got %v", err)
	}
}

func TestUserService_UpdateUser_DeactivationRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := register(t, f, "mike@example.com", "mike", "")

	inactive := false
	_, revoked, err := f.userSvc.UpdateUser(ctx, reg.User.ID, domain.UserUpdate{IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected the deactivation to report a revocation")
	}
	if n := f.sessions.countFor(reg.User.ID); n != 0 {
		t.Fatalf("expected sessions revoked, got %d", n)
	}

	// Already inactive: nothing left to revoke.
	_, revoked, err = f.userSvc.UpdateUser(ctx, reg.User.ID, domain.UserUpdate{IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected no revocation for an already inactive user")
	}
}

func TestUserService_UpdateUser_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f, "nina@example.com", "nina", "")
	other := register(t, f, "omar@example.com", "omar", "")

	email := "NINA@example.com"
	if _, _, err := f.userSvc.UpdateUser(ctx, other.User.ID, domain.UserUpdate{Email: &email}); !errors.Is(err, domain.ErrEmailExists) {
		t.Fatalf("expected email conflict, got %v", err)
	}
	username := "nina"
	if _, _, err := f.userSvc.UpdateUser(ctx, other.User.ID, domain.UserUpdate{Username: &username}); !errors.Is(err, domain.ErrDuplicateEntity) {
		t.Fatalf("expected username conflict, got %v", err)
	}
	bad := domain.Role("root")
	if _, _, err := f.userSvc.UpdateUser(ctx, other.User.ID, domain.UserUpdate{Role: &bad}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected role validation error, got %v", err)
	}

	same := "omar@example.com"
	u, _, err := f.userSvc.UpdateUser(ctx, other.User.ID, domain.UserUpdate{Email: &same})
	if err != nil {
		t.Fatalf("expected keeping own email to succeed, got %v", err)
	}
	if u.Email != same {
		t.Fatalf("unexpected email: %s", u.Email)
	}
}

func TestUserService_DeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := register(t, f, "pia@example.com", "pia", "")

	if err := f.userSvc.DeleteUser(ctx, reg.User.ID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if n := f.sessions.countFor(reg.User.ID); n != 0 {
		t.Fatalf("expected sessions revoked, got %d", n)
	}
	if _, err := f.userSvc.GetUser(ctx, reg.User.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.userSvc.DeleteUser(ctx, reg.User.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleting twice to fail, got %v", err)
	}
}

func TestUserService_DeleteUser_RevokesSessionRotatedMidDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := register(t, f, "pete@example.com", "pete", "")

	// A rotation that commits after the first revocation but before the
	// account row is removed.
	f.users.beforeDelete = func() {
		if err := f.sessions.Create(ctx, domain.RefreshToken{Token: "late", UserID: reg.User.ID, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			t.Errorf("Create returned error: %v", err)
		}
	}

	if err := f.userSvc.DeleteUser(ctx, reg.User.ID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	if n := f.sessions.countFor(reg.User.ID); n != 0 {
		t.Fatalf("expected no session to outlive the delete, got %d", n)
	}
}

func TestUserService_ListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"quinn", "rita", "sam"} {
		register(t, f, name+"@example.com", name, "")
	}

	page, err := f.userSvc.ListUsers(ctx, domain.PageQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if page.Pagination.Total != 3 || page.Pagination.Pages != 2 || len(page.Data) != 1 {
		t.Fatalf("unexpected page: %+v", page.Pagination)
	}
	if page.Data[0].Permissions == nil {
		t.Fatalf("expected permission names to be attached")
	}

	if _, err := f.userSvc.ListUsers(ctx, domain.PageQuery{OrderBy: "password"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected invalid sort field to fail, got %v", err)
	}
}
