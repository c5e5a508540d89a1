package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/o008/registry/coreengine/entity"
)

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	URL      string
	MaxConns int32
}

// Postgres is a Store backed by PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool returns the underlying pool.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close closes the pool.
func (p *Postgres) Close() { p.pool.Close() }

// mapError translates driver errors into store errors.
func mapError(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return fmt.Errorf("%s: %s: %w", what, pgErr.Message, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// =============================================================================
// TENANT
// =============================================================================

func (p *Postgres) CreateTenant(ctx context.Context, t *entity.Tenant) error {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tenant (id, name, coexisting) VALUES ($1, $2, $3)`,
		id, t.Name, t.Coexisting)
	if err != nil {
		return mapError("tenant "+t.Name, err)
	}
	t.ID = id
	return nil
}

func (p *Postgres) TenantByName(ctx context.Context, name string) (*entity.Tenant, error) {
	var t entity.Tenant
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, coexisting FROM tenant WHERE name = $1`, name).
		Scan(&t.ID, &t.Name, &t.Coexisting)
	if err != nil {
		return nil, mapError("tenant "+name, err)
	}
	return &t, nil
}

// =============================================================================
// BUILDER
// =============================================================================

func (p *Postgres) CreateBuilder(ctx context.Context, b *entity.Builder) error {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO builder (id, name, active, build_command) VALUES ($1, $2, $3, $4)`,
		id, b.Name, b.Active, b.BuildCommand)
	if err != nil {
		return mapError("builder "+b.Name, err)
	}
	b.ID = id
	return nil
}

func (p *Postgres) BuilderByName(ctx context.Context, name string) (*entity.Builder, error) {
	var b entity.Builder
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, active, build_command FROM builder WHERE name = $1`, name).
		Scan(&b.ID, &b.Name, &b.Active, &b.BuildCommand)
	if err != nil {
		return nil, mapError("builder "+name, err)
	}
	return &b, nil
}

func (p *Postgres) DeleteBuilder(ctx context.Context, name string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM builder WHERE name = $1`, name)
	if err != nil {
		return mapError("builder "+name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("builder %s: %w", name, ErrNotFound)
	}
	return nil
}

// =============================================================================
// APPLICATION
// =============================================================================

const applicationColumns = `
	a.id, a.name, a.class_unit, a.functional_group,
	t.id, t.name, t.coexisting`

func scanApplication(row pgx.Row, a *entity.Application) error {
	return row.Scan(
		&a.ID, &a.Name, &a.ClassUnit, &a.FunctionalGroup,
		&a.Tenant.ID, &a.Tenant.Name, &a.Tenant.Coexisting,
	)
}

func (p *Postgres) CreateApplication(ctx context.Context, a *entity.Application) error {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO application (id, name, tenant, class_unit, functional_group)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, a.Name, a.Tenant.ID, a.ClassUnit, a.FunctionalGroup)
	if err != nil {
		return mapError("application "+a.Name, err)
	}
	a.ID = id
	return nil
}

func (p *Postgres) ApplicationByName(ctx context.Context, tenant, name string) (*entity.Application, error) {
	var a entity.Application
	row := p.pool.QueryRow(ctx, `SELECT `+applicationColumns+`
		FROM application a
		JOIN tenant t ON t.id = a.tenant
		WHERE t.name = $1 AND a.name = $2`, tenant, name)
	if err := scanApplication(row, &a); err != nil {
		return nil, mapError("application "+name, err)
	}
	return &a, nil
}

// =============================================================================
// SERVICE
// =============================================================================

const serviceColumns = `
	s.id, s.name, s.original_name, s.default_repo,
	a.id, a.name, a.class_unit, a.functional_group,
	t.id, t.name, t.coexisting`

const serviceJoins = `
	FROM service s
	JOIN application a ON a.id = s.application
	JOIN tenant t ON t.id = a.tenant`

func scanService(row pgx.Row, s *entity.Service) error {
	app := &s.Application
	return row.Scan(
		&s.ID, &s.Name, &s.OriginalName, &s.DefaultRepo,
		&app.ID, &app.Name, &app.ClassUnit, &app.FunctionalGroup,
		&app.Tenant.ID, &app.Tenant.Name, &app.Tenant.Coexisting,
	)
}

func (p *Postgres) CreateService(ctx context.Context, s *entity.Service) error {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO service (id, name, original_name, application, default_repo)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, s.Name, s.OriginalName, s.Application.ID, s.DefaultRepo)
	if err != nil {
		return mapError("service "+s.Name, err)
	}
	s.ID = id
	return nil
}

func (p *Postgres) UpdateService(ctx context.Context, s *entity.Service) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE service SET name = $2, original_name = $3, application = $4, default_repo = $5
		 WHERE id = $1`,
		s.ID, s.Name, s.OriginalName, s.Application.ID, s.DefaultRepo)
	if err != nil {
		return mapError("service "+s.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) ServiceByName(ctx context.Context, tenant, app, name string) (*entity.Service, error) {
	var s entity.Service
	row := p.pool.QueryRow(ctx, `SELECT `+serviceColumns+serviceJoins+`
		WHERE t.name = $1 AND a.name = $2 AND s.name = $3`,
		tenant, app, entity.NormalizeServiceName(name))
	if err := scanService(row, &s); err != nil {
		return nil, mapError("service "+name, err)
	}
	return &s, nil
}

// =============================================================================
// REPO REFERENCE
// =============================================================================

func (p *Postgres) CreateRepoReference(ctx context.Context, r *entity.RepoReference) error {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO repo_reference (id, repo, kind, reference) VALUES ($1, $2, $3, $4)`,
		id, r.Repo, string(r.Kind), r.Reference)
	if err != nil {
		return mapError("repo reference "+r.Reference, err)
	}
	r.ID = id
	return nil
}

func (p *Postgres) FindRepoReference(ctx context.Context, repo string, kind entity.RepoReferenceKind, reference string) (*entity.RepoReference, error) {
	var (
		r    entity.RepoReference
		kstr string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, repo, kind, reference FROM repo_reference
		 WHERE repo = $1 AND kind = $2 AND reference = $3`,
		repo, string(kind), reference).
		Scan(&r.ID, &r.Repo, &kstr, &r.Reference)
	if err != nil {
		return nil, mapError("repo reference "+reference, err)
	}
	r.Kind = entity.RepoReferenceKind(kstr)
	return &r, nil
}

// =============================================================================
// SERVICE VERSION
// =============================================================================

const versionQuery = `SELECT
	v.id, v.version,` + serviceColumns + `,
	r.id, r.repo, r.kind, r.reference,
	b.id, b.name, b.active, b.build_command
	FROM service_version v
	JOIN service s ON s.id = v.service
	JOIN application a ON a.id = s.application
	JOIN tenant t ON t.id = a.tenant
	JOIN repo_reference r ON r.id = v.repo_ref
	JOIN builder b ON b.id = v.builder`

func scanServiceVersion(row pgx.Row, v *entity.ServiceVersion) error {
	var kind string
	s := &v.Service
	app := &s.Application
	err := row.Scan(
		&v.ID, &v.Version,
		&s.ID, &s.Name, &s.OriginalName, &s.DefaultRepo,
		&app.ID, &app.Name, &app.ClassUnit, &app.FunctionalGroup,
		&app.Tenant.ID, &app.Tenant.Name, &app.Tenant.Coexisting,
		&v.RepoRef.ID, &v.RepoRef.Repo, &kind, &v.RepoRef.Reference,
		&v.Builder.ID, &v.Builder.Name, &v.Builder.Active, &v.Builder.BuildCommand,
	)
	v.RepoRef.Kind = entity.RepoReferenceKind(kind)
	return err
}

func (p *Postgres) CreateServiceVersion(ctx context.Context, v *entity.ServiceVersion) error {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO service_version (id, version, service, repo_ref, builder)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, v.Version, v.Service.ID, v.RepoRef.ID, v.Builder.ID)
	if err != nil {
		return mapError("service version "+v.Version, err)
	}
	v.ID = id
	return nil
}

func (p *Postgres) UpdateServiceVersion(ctx context.Context, v *entity.ServiceVersion) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE service_version SET version = $2, service = $3, repo_ref = $4, builder = $5
		 WHERE id = $1`,
		v.ID, v.Version, v.Service.ID, v.RepoRef.ID, v.Builder.ID)
	if err != nil {
		return mapError("service version "+v.Version, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service version %s: %w", v.ID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) ServiceVersion(ctx context.Context, serviceID uuid.UUID, version string) (*entity.ServiceVersion, error) {
	var v entity.ServiceVersion
	row := p.pool.QueryRow(ctx, versionQuery+` WHERE v.service = $1 AND v.version = $2`, serviceID, version)
	if err := scanServiceVersion(row, &v); err != nil {
		return nil, mapError("service version "+version, err)
	}
	return &v, nil
}

func (p *Postgres) ServiceVersions(ctx context.Context, serviceID uuid.UUID) ([]entity.ServiceVersion, error) {
	rows, err := p.pool.Query(ctx, versionQuery+` WHERE v.service = $1 ORDER BY v.version`, serviceID)
	if err != nil {
		return nil, mapError("service versions", err)
	}
	defer rows.Close()

	var out []entity.ServiceVersion
	for rows.Next() {
		var v entity.ServiceVersion
		if err := scanServiceVersion(rows, &v); err != nil {
			return nil, mapError("service versions", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("service versions", err)
	}
	return out, nil
}
