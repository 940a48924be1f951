package filters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskdesk/taskdesk/internal/platform/db"
)

// Repository persists filters.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	ListActive(ctx context.Context, tenant string) ([]Filter, error)
	ListVisible(ctx context.Context, tenant, user string, roles []string) ([]Filter, error)
	Get(ctx context.Context, id int64) (Filter, error)
	GetForUpdate(ctx context.Context, id int64) (Filter, error)
	Create(ctx context.Context, f Filter) (Filter, error)
	Update(ctx context.Context, f Filter) (Filter, error)
	SetStatus(ctx context.Context, id int64, status Status, by string, at time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

const filterColumns = `id, name, description, criteria, variables, properties, roles, users,
	status, tenant, created, modified, created_by, modified_by`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) ListActive(ctx context.Context, tenant string) ([]Filter, error) {
	const query = `SELECT ` + filterColumns + ` FROM filters
		WHERE status = 'active' AND tenant IS NOT DISTINCT FROM $1
		ORDER BY id`
	return r.list(ctx, query, tenantParam(tenant))
}

// ListVisible returns active filters shared with the user directly, through
// one of the roles, created by the user, or shared with nobody in particular.
func (r *repository) ListVisible(ctx context.Context, tenant, user string, roles []string) ([]Filter, error) {
	const query = `SELECT ` + filterColumns + ` FROM filters
		WHERE status = 'active' AND tenant IS NOT DISTINCT FROM $1
		  AND (created_by = $2
		       OR $2 = ANY(users)
		       OR roles && $3::text[]
		       OR (cardinality(roles) = 0 AND cardinality(users) = 0))
		ORDER BY id`
	if roles == nil {
		roles = []string{}
	}
	return r.list(ctx, query, tenantParam(tenant), user, roles)
}

func (r *repository) Get(ctx context.Context, id int64) (Filter, error) {
	const query = `SELECT ` + filterColumns + ` FROM filters WHERE id = $1`
	return r.one(ctx, query, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (Filter, error) {
	const query = `SELECT ` + filterColumns + ` FROM filters WHERE id = $1 FOR UPDATE`
	return r.one(ctx, query, id)
}

func (r *repository) Create(ctx context.Context, f Filter) (Filter, error) {
	criteria, variables, properties, err := encodeDocuments(f)
	if err != nil {
		return Filter{}, err
	}
	const query = `INSERT INTO filters
		(name, description, criteria, variables, properties, roles, users, status, tenant, created, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + filterColumns
	return r.one(ctx, query,
		f.Name, f.Description, criteria, variables, properties,
		nonNil(f.Roles), nonNil(f.Users), string(f.Status), tenantParam(f.Tenant),
		f.Created, f.CreatedBy)
}

func (r *repository) Update(ctx context.Context, f Filter) (Filter, error) {
	criteria, variables, properties, err := encodeDocuments(f)
	if err != nil {
		return Filter{}, err
	}
	var modified pgtype.Timestamptz
	if f.Modified != nil {
		modified = pgtype.Timestamptz{Time: *f.Modified, Valid: true}
	}
	const query = `UPDATE filters SET
		name = $2, description = $3, criteria = $4, variables = $5, properties = $6,
		roles = $7, users = $8, modified = $9, modified_by = $10
		WHERE id = $1
		RETURNING ` + filterColumns
	return r.one(ctx, query,
		f.ID, f.Name, f.Description, criteria, variables, properties,
		nonNil(f.Roles), nonNil(f.Users), modified, f.ModifiedBy)
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status, by string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE filters SET status = $2, modified = $3, modified_by = $4 WHERE id = $1`,
		id, string(status), at, by)
	if err != nil {
		return fmt.Errorf("filters: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) list(ctx context.Context, query string, args ...interface{}) ([]Filter, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filters: list: %w", err)
	}
	defer rows.Close()

	var out []Filter
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *repository) one(ctx context.Context, query string, args ...interface{}) (Filter, error) {
	f, err := scanFilter(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Filter{}, ErrNotFound
		}
		return Filter{}, err
	}
	return f, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilter(row rowScanner) (Filter, error) {
	var (
		f                               Filter
		description, tenant, modifiedBy pgtype.Text
		criteria, variables, properties []byte
		status                          string
		created, modified               pgtype.Timestamptz
	)
	err := row.Scan(&f.ID, &f.Name, &description, &criteria, &variables, &properties,
		&f.Roles, &f.Users, &status, &tenant, &created, &modified, &f.CreatedBy, &modifiedBy)
	if err != nil {
		return Filter{}, err
	}
	f.Description = description.String
	f.Status = Status(status)
	f.Tenant = tenant.String
	f.Created = created.Time
	if modified.Valid {
		t := modified.Time
		f.Modified = &t
	}
	f.ModifiedBy = modifiedBy.String

	if err := decodeDocument(criteria, &f.Criteria); err != nil {
		return Filter{}, fmt.Errorf("filters: decode criteria for %d: %w", f.ID, err)
	}
	if err := decodeDocument(variables, &f.Variables); err != nil {
		return Filter{}, fmt.Errorf("filters: decode variables for %d: %w", f.ID, err)
	}
	if err := decodeDocument(properties, &f.Properties); err != nil {
		return Filter{}, fmt.Errorf("filters: decode properties for %d: %w", f.ID, err)
	}
	return f, nil
}

func encodeDocuments(f Filter) (criteria, variables, properties []byte, err error) {
	if criteria, err = json.Marshal(f.Criteria); err != nil {
		return nil, nil, nil, fmt.Errorf("filters: encode criteria: %w", err)
	}
	vars := f.Variables
	if vars == nil {
		vars = []Variable{}
	}
	if variables, err = json.Marshal(vars); err != nil {
		return nil, nil, nil, fmt.Errorf("filters: encode variables: %w", err)
	}
	if properties, err = json.Marshal(f.Properties); err != nil {
		return nil, nil, nil, fmt.Errorf("filters: encode properties: %w", err)
	}
	return criteria, variables, properties, nil
}

func decodeDocument(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func tenantParam(tenant string) pgtype.Text {
	return pgtype.Text{String: tenant, Valid: tenant != ""}
}
