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

const permissionColumns = `id, name, description, resource, action, created_at, updated_at`

var permissionOrderColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
}

type permissionRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	Resource    string    `db:"resource"`
	Action      string    `db:"action"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r permissionRow) toDomain() domain.Permission {
	return domain.Permission{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Resource:    r.Resource,
		Action:      r.Action,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type PermissionRepository struct {
	db *sqlx.DB
}

func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) Create(ctx context.Context, p *domain.Permission) (*domain.Permission, error) {
	var row permissionRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO permissions (id, name, description, resource, action, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+permissionColumns,
		p.ID, p.Name, p.Description, p.Resource, p.Action, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, permissionWriteError("create permission", err)
	}
	out := row.toDomain()
	return &out, nil
}

func (r *PermissionRepository) FindByID(ctx context.Context, id string) (*domain.Permission, error) {
	return r.findOne(ctx, "id", id)
}

func (r *PermissionRepository) FindByName(ctx context.Context, name string) (*domain.Permission, error) {
	return r.findOne(ctx, "name", name)
}

func (r *PermissionRepository) findOne(ctx context.Context, col, value string) (*domain.Permission, error) {
	var row permissionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+permissionColumns+` FROM permissions WHERE `+col+` = $1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find permission by %s: %w", col, err)
	}
	out := row.toDomain()
	return &out, nil
}

func (r *PermissionRepository) List(ctx context.Context, q domain.PageQuery) ([]*domain.Permission, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM permissions`); err != nil {
		return nil, 0, fmt.Errorf("count permissions: %w", err)
	}

	var rows []permissionRow
	query := `SELECT ` + permissionColumns + ` FROM permissions ` + orderClause(q, permissionOrderColumns) + ` LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, q.Limit, q.Offset()); err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}

	out := make([]*domain.Permission, 0, len(rows))
	for _, row := range rows {
		p := row.toDomain()
		out = append(out, &p)
	}
	return out, total, nil
}

func (r *PermissionRepository) Update(ctx context.Context, id string, upd domain.PermissionUpdate) (*domain.Permission, error) {
	var b setBuilder
	if upd.Name != nil {
		b.add("name", *upd.Name)
	}
	if upd.Description != nil {
		b.add("description", *upd.Description)
	}
	if upd.Resource != nil {
		b.add("resource", *upd.Resource)
	}
	if upd.Action != nil {
		b.add("action", *upd.Action)
	}
	if len(b.sets) == 0 {
		return r.FindByID(ctx, id)
	}
	b.add("updated_at", time.Now().UTC())
	idArg := b.where(id)

	var row permissionRow
	query := `UPDATE permissions SET ` + strings.Join(b.sets, ", ") + ` WHERE id = ` + idArg + ` RETURNING ` + permissionColumns
	err := r.db.GetContext(ctx, &row, query, b.args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPermissionNotFound
	}
	if err != nil {
		return nil, permissionWriteError("update permission", err)
	}
	out := row.toDomain()
	return &out, nil
}

// Delete removes the permission and, through ON DELETE CASCADE, every grant of it.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	} else if n == 0 {
		return domain.ErrPermissionNotFound
	}
	return nil
}

func (r *PermissionRepository) AssignToRole(ctx context.Context, role domain.Role, permissionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		string(role), permissionID)
	if foreignKeyViolation(err) {
		return domain.ErrPermissionNotFound
	}
	if err != nil {
		return fmt.Errorf("assign role permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) RevokeFromRole(ctx context.Context, role domain.Role, permissionID string) (bool, error) {
	return r.deleteEdge(ctx, "revoke role permission",
		`DELETE FROM role_permissions WHERE role = $1 AND permission_id = $2`, string(role), permissionID)
}

func (r *PermissionRepository) FindRolePermissions(ctx context.Context, role domain.Role) ([]domain.Permission, error) {
	return r.selectGrants(ctx, "role permissions", `
		SELECT p.id, p.name, p.description, p.resource, p.action, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role = $1
		ORDER BY p.name`, string(role))
}

func (r *PermissionRepository) AssignToUser(ctx context.Context, userID, permissionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, permissionID)
	if foreignKeyViolation(err) {
		return domain.E(domain.KindNotFound, "user or permission not found")
	}
	if err != nil {
		return fmt.Errorf("assign user permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) RevokeFromUser(ctx context.Context, userID, permissionID string) (bool, error) {
	return r.deleteEdge(ctx, "revoke user permission",
		`DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
}

func (r *PermissionRepository) FindUserPermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	return r.selectGrants(ctx, "user permissions", `
		SELECT p.id, p.name, p.description, p.resource, p.action, p.created_at, p.updated_at
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY p.name`, userID)
}

func (r *PermissionRepository) selectGrants(ctx context.Context, op, query string, arg string) ([]domain.Permission, error) {
	var rows []permissionRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]domain.Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *PermissionRepository) deleteEdge(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

func permissionWriteError(op string, err error) error {
	if _, ok := uniqueViolation(err); ok {
		return domain.ErrPermissionExists
	}
	return fmt.Errorf("%s: %w", op, err)
}
