package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/cids/pkg/permission"
)

// ErrNotFound is returned when an application or role does not exist.
var ErrNotFound = errors.New("not found")

// Store is the durable persistence boundary for the registry. PostgreSQL is
// the production implementation; MemoryStore backs tests.
type Store interface {
	CreateApp(ctx context.Context, app *App) error
	GetApp(ctx context.Context, appID string) (*App, error)
	ListApps(ctx context.Context) ([]*App, error)
	UpdateAppDiscovery(ctx context.Context, appID, status string, at time.Time) error
	DeleteApp(ctx context.Context, appID string) error

	ReplaceCatalog(ctx context.Context, appID string, metas []permission.Metadata) error
	GetCatalog(ctx context.Context, appID string) ([]permission.Metadata, error)

	UpsertRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, appID, name string) (*Role, error)
	ListRoles(ctx context.Context, appID string) ([]*Role, error)
	DeleteRole(ctx context.Context, appID, name string) error
}

// PostgresStore implements Store on database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the registry tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS apps (
			app_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			discovery_url TEXT NOT NULL DEFAULT '',
			allow_discovery BOOLEAN NOT NULL DEFAULT FALSE,
			discovery_status TEXT NOT NULL DEFAULT '',
			last_discovery_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS permission_catalog (
			app_id TEXT NOT NULL REFERENCES apps(app_id) ON DELETE CASCADE,
			permission_key TEXT NOT NULL,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			field_path TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sensitive BOOLEAN NOT NULL DEFAULT FALSE,
			pii BOOLEAN NOT NULL DEFAULT FALSE,
			phi BOOLEAN NOT NULL DEFAULT FALSE,
			source_endpoint_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (app_id, permission_key)
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			app_id TEXT NOT NULL REFERENCES apps(app_id) ON DELETE CASCADE,
			role_name TEXT NOT NULL,
			allowed_permissions JSONB NOT NULL DEFAULT '[]',
			denied_permissions JSONB NOT NULL DEFAULT '[]',
			rls_filters JSONB NOT NULL DEFAULT '{}',
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (app_id, role_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running registry migration: %w", err)
		}
	}
	return nil
}

// CreateApp inserts a registered application.
func (s *PostgresStore) CreateApp(ctx context.Context, app *App) error {
	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (app_id, name, discovery_url, allow_discovery, discovery_status, last_discovery_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (app_id) DO UPDATE SET
			name = EXCLUDED.name,
			discovery_url = EXCLUDED.discovery_url,
			allow_discovery = EXCLUDED.allow_discovery,
			updated_at = EXCLUDED.updated_at`,
		app.ID, app.Name, app.DiscoveryURL, app.AllowDiscovery, app.DiscoveryStatus, app.LastDiscoveryAt, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating app %s: %w", app.ID, err)
	}
	return nil
}

// GetApp retrieves one application record.
func (s *PostgresStore) GetApp(ctx context.Context, appID string) (*App, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT app_id, name, discovery_url, allow_discovery, discovery_status, last_discovery_at, created_at, updated_at
		FROM apps WHERE app_id = $1`, appID)
	return scanApp(row)
}

// ListApps returns every registered application.
func (s *PostgresStore) ListApps(ctx context.Context) ([]*App, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, name, discovery_url, allow_discovery, discovery_status, last_discovery_at, created_at, updated_at
		FROM apps ORDER BY app_id`)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	defer rows.Close()

	var apps []*App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateAppDiscovery records the outcome of a discovery run on the app.
func (s *PostgresStore) UpdateAppDiscovery(ctx context.Context, appID, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE apps SET discovery_status = $2, last_discovery_at = $3, updated_at = $3
		WHERE app_id = $1`, appID, status, at)
	if err != nil {
		return fmt.Errorf("updating discovery status for %s: %w", appID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}
	return nil
}

// DeleteApp removes the application; catalog rows and roles cascade.
func (s *PostgresStore) DeleteApp(ctx context.Context, appID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE app_id = $1`, appID)
	if err != nil {
		return fmt.Errorf("deleting app %s: %w", appID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}
	return nil
}

// ReplaceCatalog atomically swaps the application's permission catalog.
func (s *PostgresStore) ReplaceCatalog(ctx context.Context, appID string, metas []permission.Metadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM permission_catalog WHERE app_id = $1`, appID); err != nil {
		return fmt.Errorf("clearing catalog for %s: %w", appID, err)
	}
	for _, m := range metas {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permission_catalog (app_id, permission_key, resource, action, field_path, description, sensitive, pii, phi, source_endpoint_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			appID, m.PermissionKey, m.Resource, m.Action, m.FieldPath, m.Description, m.Sensitive, m.PII, m.PHI, m.SourceEndpointID,
		); err != nil {
			return fmt.Errorf("inserting catalog row %s: %w", m.PermissionKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing catalog for %s: %w", appID, err)
	}
	return nil
}

// GetCatalog returns the application's permission catalog ordered by key.
func (s *PostgresStore) GetCatalog(ctx context.Context, appID string) ([]permission.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission_key, resource, action, field_path, description, sensitive, pii, phi, source_endpoint_id
		FROM permission_catalog WHERE app_id = $1 ORDER BY permission_key`, appID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog for %s: %w", appID, err)
	}
	defer rows.Close()

	var metas []permission.Metadata
	for rows.Next() {
		var m permission.Metadata
		if err := rows.Scan(&m.PermissionKey, &m.Resource, &m.Action, &m.FieldPath, &m.Description, &m.Sensitive, &m.PII, &m.PHI, &m.SourceEndpointID); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// UpsertRole writes a role, updating in place when (appID, name) exists.
func (s *PostgresStore) UpsertRole(ctx context.Context, role *Role) error {
	allowed, err := json.Marshal(role.AllowedPermissions)
	if err != nil {
		return fmt.Errorf("marshaling allowed permissions: %w", err)
	}
	denied, err := json.Marshal(role.DeniedPermissions)
	if err != nil {
		return fmt.Errorf("marshaling denied permissions: %w", err)
	}
	filters, err := json.Marshal(role.RLSFilters)
	if err != nil {
		return fmt.Errorf("marshaling rls filters: %w", err)
	}

	now := time.Now()
	role.UpdatedAt = now
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roles (app_id, role_name, allowed_permissions, denied_permissions, rls_filters, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (app_id, role_name) DO UPDATE SET
			allowed_permissions = EXCLUDED.allowed_permissions,
			denied_permissions = EXCLUDED.denied_permissions,
			rls_filters = EXCLUDED.rls_filters,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		role.AppID, role.Name, string(allowed), string(denied), string(filters), role.Description, role.IsActive, role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting role %s/%s: %w", role.AppID, role.Name, err)
	}
	return nil
}

// GetRole retrieves one role.
func (s *PostgresStore) GetRole(ctx context.Context, appID, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT app_id, role_name, allowed_permissions, denied_permissions, rls_filters, description, is_active, created_at, updated_at
		FROM roles WHERE app_id = $1 AND role_name = $2`, appID, name)
	return scanRole(row)
}

// ListRoles returns every role defined for the application.
func (s *PostgresStore) ListRoles(ctx context.Context, appID string) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, role_name, allowed_permissions, denied_permissions, rls_filters, description, is_active, created_at, updated_at
		FROM roles WHERE app_id = $1 ORDER BY role_name`, appID)
	if err != nil {
		return nil, fmt.Errorf("listing roles for %s: %w", appID, err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// DeleteRole removes one role and its permission and RLS rows with it.
func (s *PostgresStore) DeleteRole(ctx context.Context, appID, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE app_id = $1 AND role_name = $2`, appID, name)
	if err != nil {
		return fmt.Errorf("deleting role %s/%s: %w", appID, name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("role %s/%s: %w", appID, name, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApp(row rowScanner) (*App, error) {
	var app App
	var last sql.NullTime
	err := row.Scan(&app.ID, &app.Name, &app.DiscoveryURL, &app.AllowDiscovery, &app.DiscoveryStatus, &last, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning app row: %w", err)
	}
	if last.Valid {
		t := last.Time
		app.LastDiscoveryAt = &t
	}
	return &app, nil
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var allowed, denied, filters []byte
	err := row.Scan(&role.AppID, &role.Name, &allowed, &denied, &filters, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning role row: %w", err)
	}
	if err := json.Unmarshal(allowed, &role.AllowedPermissions); err != nil {
		return nil, fmt.Errorf("unmarshaling allowed permissions: %w", err)
	}
	if err := json.Unmarshal(denied, &role.DeniedPermissions); err != nil {
		return nil, fmt.Errorf("unmarshaling denied permissions: %w", err)
	}
	if err := json.Unmarshal(filters, &role.RLSFilters); err != nil {
		return nil, fmt.Errorf("unmarshaling rls filters: %w", err)
	}
	return &role, nil
}
