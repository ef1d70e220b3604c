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

var permissionSortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
}

type mongoPermission struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description *string   `bson:"description,omitempty"`
	Resource    string    `bson:"resource"`
	Action      string    `bson:"action"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (m mongoPermission) toDomain() domain.Permission {
	return domain.Permission{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Resource:    m.Resource,
		Action:      m.Action,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type roleGrant struct {
	Role         string    `bson:"role"`
	PermissionID string    `bson:"permission_id"`
	CreatedAt    time.Time `bson:"created_at"`
}

type userGrant struct {
	UserID       string    `bson:"user_id"`
	PermissionID string    `bson:"permission_id"`
	CreatedAt    time.Time `bson:"created_at"`
}

type PermissionRepository struct {
	col        *mongo.Collection
	roleGrants *mongo.Collection
	userGrants *mongo.Collection
}

func NewPermissionRepository(db *mongo.Database) *PermissionRepository {
	return &PermissionRepository{
		col:        db.Collection(collectionPermissions),
		roleGrants: db.Collection(collectionRolePermissions),
		userGrants: db.Collection(collectionUserPermissions),
	}
}

func (r *PermissionRepository) Create(ctx context.Context, p *domain.Permission) (*domain.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoPermission{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Resource:    p.Resource,
		Action:      p.Action,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrPermissionExists
		}
		return nil, fmt.Errorf("insert permission: %w", err)
	}
	out := doc.toDomain()
	return &out, nil
}

func (r *PermissionRepository) FindByID(ctx context.Context, id string) (*domain.Permission, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *PermissionRepository) FindByName(ctx context.Context, name string) (*domain.Permission, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *PermissionRepository) findOne(ctx context.Context, filter bson.M) (*domain.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoPermission
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("find permission: %w", err)
	}
	out := doc.toDomain()
	return &out, nil
}

func (r *PermissionRepository) List(ctx context.Context, q domain.PageQuery) ([]*domain.Permission, int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count permissions: %w", err)
	}
	cur, err := r.col.Find(ctx, bson.M{}, findOptions(q, permissionSortFields))
	if err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}
	var docs []mongoPermission
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode permissions: %w", err)
	}

	out := make([]*domain.Permission, 0, len(docs))
	for _, d := range docs {
		p := d.toDomain()
		out = append(out, &p)
	}
	return out, int(total), nil
}

func (r *PermissionRepository) Update(ctx context.Context, id string, upd domain.PermissionUpdate) (*domain.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Resource != nil {
		set["resource"] = *upd.Resource
	}
	if upd.Action != nil {
		set["action"] = *upd.Action
	}

	var doc mongoPermission
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	switch {
	case isNoDocuments(err):
		return nil, domain.ErrPermissionNotFound
	case mongo.IsDuplicateKeyError(err):
		return nil, domain.ErrPermissionExists
	case err != nil:
		return nil, fmt.Errorf("update permission: %w", err)
	}
	out := doc.toDomain()
	return &out, nil
}

// Delete removes the permission, then every role and user grant of it.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPermissionNotFound
	}
	if _, err := r.roleGrants.DeleteMany(ctx, bson.M{"permission_id": id}); err != nil {
		return fmt.Errorf("delete role grants: %w", err)
	}
	if _, err := r.userGrants.DeleteMany(ctx, bson.M{"permission_id": id}); err != nil {
		return fmt.Errorf("delete user grants: %w", err)
	}
	return nil
}

func (r *PermissionRepository) AssignToRole(ctx context.Context, role domain.Role, permissionID string) error {
	filter := bson.M{"role": string(role), "permission_id": permissionID}
	doc := roleGrant{Role: string(role), PermissionID: permissionID, CreatedAt: time.Now().UTC()}
	return upsertGrant(ctx, r.roleGrants, filter, doc)
}

func (r *PermissionRepository) RevokeFromRole(ctx context.Context, role domain.Role, permissionID string) (bool, error) {
	return deleteGrant(ctx, r.roleGrants, bson.M{"role": string(role), "permission_id": permissionID})
}

func (r *PermissionRepository) FindRolePermissions(ctx context.Context, role domain.Role) ([]domain.Permission, error) {
	return r.grantedPermissions(ctx, r.roleGrants, bson.M{"role": string(role)})
}

func (r *PermissionRepository) AssignToUser(ctx context.Context, userID, permissionID string) error {
	filter := bson.M{"user_id": userID, "permission_id": permissionID}
	doc := userGrant{UserID: userID, PermissionID: permissionID, CreatedAt: time.Now().UTC()}
	return upsertGrant(ctx, r.userGrants, filter, doc)
}

func (r *PermissionRepository) RevokeFromUser(ctx context.Context, userID, permissionID string) (bool, error) {
	return deleteGrant(ctx, r.userGrants, bson.M{"user_id": userID, "permission_id": permissionID})
}

func (r *PermissionRepository) FindUserPermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	return r.grantedPermissions(ctx, r.userGrants, bson.M{"user_id": userID})
}

// grantedPermissions loads the permissions referenced by the grant edges matching filter.
func (r *PermissionRepository) grantedPermissions(ctx context.Context, edges *mongo.Collection, filter bson.M) ([]domain.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ids, err := edges.Distinct(ctx, "permission_id", filter)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Permission{}, nil
	}

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load granted permissions: %w", err)
	}
	var docs []mongoPermission
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode granted permissions: %w", err)
	}

	out := make([]domain.Permission, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func upsertGrant(ctx context.Context, edges *mongo.Collection, filter bson.M, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := edges.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("assign grant: %w", err)
	}
	return nil
}

func deleteGrant(ctx context.Context, edges *mongo.Collection, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := edges.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("revoke grant: %w", err)
	}
	return res.DeletedCount > 0, nil
}
