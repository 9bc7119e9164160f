package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessd/accessd/internal/platform/db"
)

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	UpdatePermission(ctx context.Context, p Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, name, display_name, element_type, parent_id, created_at, updated_at`

// ListPermissions returns every permission ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetPermission fetches one permission by ID.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, display_name, element_type, parent_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+permissionColumns,
		p.Name, p.DisplayName, p.ElementType, p.ParentID)
	created, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapWriteError(err)
	}
	return created, nil
}

// UpdatePermission renames or reparents an existing permission. A reparent
// locks the permission and the proposed parent, then walks the ancestor
// chain inside the same transaction, so two concurrent reparents serialize
// and the second sees the first's committed edge before validating.
func (r *Repository) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	var updated Permission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if p.ParentID != nil {
			if err := r.lockAndCheckParent(ctx, tx, p.ID, *p.ParentID); err != nil {
				return err
			}
		}
		row := tx.QueryRow(ctx,
			`UPDATE permissions
			 SET name = $2, display_name = $3, element_type = $4, parent_id = $5, updated_at = now()
			 WHERE id = $1
			 RETURNING `+permissionColumns,
			p.ID, p.Name, p.DisplayName, p.ElementType, p.ParentID)
		got, err := scanPermission(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return mapWriteError(err)
		}
		updated = got
		return nil
	})
	if err != nil {
		return Permission{}, err
	}
	return updated, nil
}

// lockAndCheckParent takes FOR UPDATE locks on the permission and its
// proposed parent (in id order, so concurrent reparents cannot deadlock) and
// rejects the edge when the stored ancestor chain would loop back.
func (r *Repository) lockAndCheckParent(ctx context.Context, tx pgx.Tx, id, parentID int64) error {
	rows, err := tx.Query(ctx,
		`SELECT id FROM permissions WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]int64{id, parentID})
	if err != nil {
		return err
	}
	locked := make(map[int64]struct{}, 2)
	for rows.Next() {
		var got int64
		if err := rows.Scan(&got); err != nil {
			rows.Close()
			return err
		}
		locked[got] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if _, ok := locked[id]; !ok {
		return ErrNotFound
	}
	if _, ok := locked[parentID]; !ok {
		return ErrParentNotFound
	}

	parents := make(map[int64]*int64)
	rows, err = tx.Query(ctx, `SELECT id, parent_id FROM permissions`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var nodeID int64
		var nodeParent *int64
		if err := rows.Scan(&nodeID, &nodeParent); err != nil {
			rows.Close()
			return err
		}
		parents[nodeID] = nodeParent
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if closesLoop(parents, id, parentID) {
		return ErrHierarchyCycle
	}
	return nil
}

// DeletePermission removes a permission together with its role assignments.
// A permission that still has children is refused; the delete of assignment
// rows and the definition commits atomically.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var hasChildren bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM permissions WHERE parent_id = $1)`, id).Scan(&hasChildren); err != nil {
			return err
		}
		if hasChildren {
			return ErrHasChildren
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.ElementType, &p.ParentID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Permission{}, err
	}
	return p, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case "uq_permissions_name":
			return ErrDuplicateName
		case "fk_permissions_parent":
			return ErrParentNotFound
		}
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
