package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/abneribeiro/apits/internal/core/domain"
)

const userColumns = `id, email, username, first_name, last_name, password_hash, role, ` +
	`is_active, is_email_verified, last_login, created_at, updated_at`

var userOrderColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"email":     "email",
	"username":  "username",
}

type userRow struct {
	ID              string     `db:"id"`
	Email           string     `db:"email"`
	Username        string     `db:"username"`
	FirstName       *string    `db:"first_name"`
	LastName        *string    `db:"last_name"`
	PasswordHash    string     `db:"password_hash"`
	Role            string     `db:"role"`
	IsActive        bool       `db:"is_active"`
	IsEmailVerified bool       `db:"is_email_verified"`
	LastLogin       *time.Time `db:"last_login"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:              r.ID,
		Email:           r.Email,
		Username:        r.Username,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		PasswordHash:    r.PasswordHash,
		Role:            domain.Role(r.Role),
		IsActive:        r.IsActive,
		IsEmailVerified: r.IsEmailVerified,
		LastLogin:       r.LastLogin,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO users (id, email, username, first_name, last_name, password_hash, role,
			is_active, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+userColumns,
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash, string(u.Role),
		u.IsActive, u.IsEmailVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, userWriteError("create user", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *UserRepository) findOne(ctx context.Context, col, value string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", col, err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}

func (r *UserRepository) exists(ctx context.Context, col, value string) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM users WHERE `+col+` = $1)`, value); err != nil {
		return false, fmt.Errorf("check user %s: %w", col, err)
	}
	return ok, nil
}

func (r *UserRepository) List(ctx context.Context, q domain.PageQuery) ([]*domain.User, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users ` + orderClause(q, userOrderColumns) + ` LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, q.Limit, q.Offset()); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	users := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, total, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	if upd.Empty() {
		return r.FindByID(ctx, id)
	}

	var b setBuilder
	if upd.Email != nil {
		b.add("email", *upd.Email)
	}
	if upd.Username != nil {
		b.add("username", *upd.Username)
	}
	if upd.FirstName != nil {
		b.add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		b.add("last_name", *upd.LastName)
	}
	if upd.Role != nil {
		b.add("role", string(*upd.Role))
	}
	if upd.IsActive != nil {
		b.add("is_active", *upd.IsActive)
	}
	if upd.IsEmailVerified != nil {
		b.add("is_email_verified", *upd.IsEmailVerified)
	}
	b.add("updated_at", time.Now().UTC())
	idArg := b.where(id)

	var row userRow
	query := `UPDATE users SET ` + strings.Join(b.sets, ", ") + ` WHERE id = ` + idArg + ` RETURNING ` + userColumns
	err := r.db.GetContext(ctx, &row, query, b.args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, userWriteError("update user", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, "update password",
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, time.Now().UTC(), id)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, "update last login",
		`UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3 RETURNING `+userColumns,
		active, time.Now().UTC(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set user active: %w", err)
	}
	return row.toDomain(), nil
}

// Delete removes the user; its grants and sessions go with it through
// ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func userWriteError(op string, err error) error {
	if constraint, ok := uniqueViolation(err); ok {
		if strings.Contains(constraint, "username") {
			return domain.ErrUsernameExists
		}
		return domain.ErrEmailExists
	}
	return fmt.Errorf("%s: %w", op, err)
}
