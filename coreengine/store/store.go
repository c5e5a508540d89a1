// Package store persists deployment-metadata entities.
//
// Two implementations are provided: Memory, used by tests and the default
// configuration, and Postgres, backed by a pgx connection pool with schema
// migrations applied by goose.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/o008/registry/coreengine/entity"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness or
	// reference constraint.
	ErrConflict = errors.New("conflict")
)

// Store is the persistence collaborator of the actions.
//
// Create methods assign a fresh id to the entity they are given. Lookups by
// name resolve the whole ownership chain, so nested parents are populated.
type Store interface {
	CreateTenant(ctx context.Context, t *entity.Tenant) error
	TenantByName(ctx context.Context, name string) (*entity.Tenant, error)

	CreateBuilder(ctx context.Context, b *entity.Builder) error
	BuilderByName(ctx context.Context, name string) (*entity.Builder, error)
	DeleteBuilder(ctx context.Context, name string) error

	CreateApplication(ctx context.Context, a *entity.Application) error
	ApplicationByName(ctx context.Context, tenant, name string) (*entity.Application, error)

	CreateService(ctx context.Context, s *entity.Service) error
	UpdateService(ctx context.Context, s *entity.Service) error
	ServiceByName(ctx context.Context, tenant, app, name string) (*entity.Service, error)

	CreateRepoReference(ctx context.Context, r *entity.RepoReference) error
	FindRepoReference(ctx context.Context, repo string, kind entity.RepoReferenceKind, reference string) (*entity.RepoReference, error)

	CreateServiceVersion(ctx context.Context, v *entity.ServiceVersion) error
	UpdateServiceVersion(ctx context.Context, v *entity.ServiceVersion) error
	ServiceVersion(ctx context.Context, serviceID uuid.UUID, version string) (*entity.ServiceVersion, error)
	ServiceVersions(ctx context.Context, serviceID uuid.UUID) ([]entity.ServiceVersion, error)

	Ping(ctx context.Context) error
	Close()
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
