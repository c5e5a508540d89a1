package store

import (
	"context"
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o008/registry/coreengine/entity"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	store   *Memory
	tenant  *entity.Tenant
	app     *entity.Application
	service *entity.Service
	builder *entity.Builder
	ref     *entity.RepoReference
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()

	tenant := entity.NewTenant("acme", false)
	require.NoError(t, m.CreateTenant(ctx, tenant))
	app := entity.NewApplication("billing", *tenant, "cu", "fg")
	require.NoError(t, m.CreateApplication(ctx, app))
	svc := entity.NewService("Invoice", *app, "git@example.com:acme/invoice.git")
	require.NoError(t, m.CreateService(ctx, svc))
	bld := entity.NewBuilder("maven", true, "mvn package")
	require.NoError(t, m.CreateBuilder(ctx, bld))
	ref := entity.NewRepoReference(svc.DefaultRepo, entity.RepoReferenceTag, "v1.0.0")
	require.NoError(t, m.CreateRepoReference(ctx, ref))

	return &fixture{store: m, tenant: tenant, app: app, service: svc, builder: bld, ref: ref}
}

// =============================================================================
// TENANT / BUILDER TESTS
// =============================================================================

func TestCreateTenantAssignsID(t *testing.T) {
	m := NewMemory()
	tenant := entity.NewTenant("acme", true)

	require.NoError(t, m.CreateTenant(context.Background(), tenant))

	assert.NotEqual(t, uuid.Nil, tenant.ID)
	got, err := m.TenantByName(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, *tenant, *got)
}

func TestCreateTenantDuplicate(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.CreateTenant(context.Background(), entity.NewTenant("acme", false)))

	err := m.CreateTenant(context.Background(), entity.NewTenant("acme", true))

	assert.ErrorIs(t, err, ErrConflict)
}

func TestTenantNotFound(t *testing.T) {
	_, err := NewMemory().TenantByName(context.Background(), "does-not-exist")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBuilder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateBuilder(ctx, entity.NewBuilder("gradle", true, "gradle build")))

	require.NoError(t, m.DeleteBuilder(ctx, "gradle"))

	_, err := m.BuilderByName(ctx, "gradle")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteBuilder(ctx, "gradle"), ErrNotFound)
}

func TestDeleteBuilderInUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := entity.NewServiceVersion("1.0.0", *f.service, *f.ref, *f.builder)
	require.NoError(t, f.store.CreateServiceVersion(ctx, v))

	err := f.store.DeleteBuilder(ctx, "maven")

	assert.ErrorIs(t, err, ErrConflict)
}

// =============================================================================
// APPLICATION / SERVICE TESTS
// =============================================================================

func TestApplicationByNameResolvesTenant(t *testing.T) {
	f := newFixture(t)

	app, err := f.store.ApplicationByName(context.Background(), "acme", "billing")

	require.NoError(t, err)
	assert.Equal(t, f.app.ID, app.ID)
	assert.Equal(t, "acme", app.Tenant.Name)
}

func TestApplicationRequiresTenant(t *testing.T) {
	app := entity.NewApplication("billing", entity.Tenant{ID: uuid.New(), Name: "ghost"}, "cu", "fg")

	err := NewMemory().CreateApplication(context.Background(), app)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceByNameIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)

	svc, err := f.store.ServiceByName(context.Background(), "acme", "billing", "INVOICE")

	require.NoError(t, err)
	assert.Equal(t, f.service.ID, svc.ID)
	assert.Equal(t, "invoice", svc.Name)
	assert.Equal(t, "Invoice", svc.OriginalName)
	assert.Equal(t, "acme", svc.Application.Tenant.Name)
}

func TestServiceLookupMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.ServiceByName(ctx, "other", "billing", "invoice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.ServiceByName(ctx, "acme", "other", "invoice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.ServiceByName(ctx, "acme", "billing", "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := *f.service
	svc.DefaultRepo = "git@example.com:acme/invoice-v2.git"
	svc.Rename("Invoicing")

	require.NoError(t, f.store.UpdateService(ctx, &svc))

	got, err := f.store.ServiceByName(ctx, "acme", "billing", "invoicing")
	require.NoError(t, err)
	assert.Equal(t, f.service.ID, got.ID)
	assert.Equal(t, svc.DefaultRepo, got.DefaultRepo)

	missing := svc
	missing.ID = uuid.New()
	assert.ErrorIs(t, f.store.UpdateService(ctx, &missing), ErrNotFound)
}

// =============================================================================
// VERSION TESTS
// =============================================================================

func TestServiceVersionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v1 := entity.NewServiceVersion("1.0.0", *f.service, *f.ref, *f.builder)
	require.NoError(t, f.store.CreateServiceVersion(ctx, v1))
	v2 := entity.NewServiceVersion("0.9.0", *f.service, *f.ref, *f.builder)
	require.NoError(t, f.store.CreateServiceVersion(ctx, v2))

	dup := entity.NewServiceVersion("1.0.0", *f.service, *f.ref, *f.builder)
	assert.ErrorIs(t, f.store.CreateServiceVersion(ctx, dup), ErrConflict)

	got, err := f.store.ServiceVersion(ctx, f.service.ID, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, got.ID)
	assert.Equal(t, "maven", got.Builder.Name)
	assert.Equal(t, "billing", got.Service.Application.Name)

	list, err := f.store.ServiceVersions(ctx, f.service.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0.9.0", list[0].Version)
	assert.Equal(t, "1.0.0", list[1].Version)

	got.Version = "1.0.1"
	require.NoError(t, f.store.UpdateServiceVersion(ctx, got))
	_, err = f.store.ServiceVersion(ctx, f.service.ID, "1.0.0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindRepoReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.store.FindRepoReference(ctx, f.ref.Repo, entity.RepoReferenceTag, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, f.ref.ID, got.ID)

	_, err = f.store.FindRepoReference(ctx, f.ref.Repo, entity.RepoReferenceBranch, "v1.0.0")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.store.CreateRepoReference(ctx, entity.NewRepoReference(f.ref.Repo, entity.RepoReferenceTag, "v1.0.0")), ErrConflict)
}

func TestMemoryPing(t *testing.T) {
	m := NewMemory()
	assert.NoError(t, m.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, m.Ping(ctx))
	m.Close()
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")

	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_registry.sql", entries[0].Name())
}
