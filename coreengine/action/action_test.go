package action

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/dispatcher"
	"github.com/o008/registry/coreengine/entity"
	"github.com/o008/registry/coreengine/request"
	"github.com/o008/registry/coreengine/runtime"
	"github.com/o008/registry/coreengine/store"
	mocks "github.com/o008/registry/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestService() (*Service, *store.Memory) {
	st := store.NewMemory()
	return NewService(st, mocks.NewMockLogger()), st
}

func decode[T any](t *testing.T, v command.Value) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(v, &out))
	return out
}

func must(t *testing.T) func(command.Value, error) command.Value {
	return func(v command.Value, err error) command.Value {
		t.Helper()
		require.NoError(t, err)
		return v
	}
}

func builderRequest(name string) request.Builder {
	return request.Builder{
		Name:         request.String(name),
		Active:       request.Bool(true),
		BuildCommand: request.String("make image"),
	}
}

func applicationRequest(name, tenant string) request.Application {
	return request.Application{
		Name:            request.String(name),
		Tenant:          &request.Tenant{Name: request.String(tenant)},
		ClassUnit:       request.String("core"),
		FunctionalGroup: request.String("finance"),
	}
}

func serviceRequest(name, app, tenant, repo string) request.Service {
	a := request.GetApplication(app, tenant)
	return request.Service{
		Name:        request.String(name),
		Application: &a,
		DefaultRepo: request.String(repo),
	}
}

func versionRequest(version, service, app, tenant, builder, tag string) request.ServiceVersion {
	sv := request.GetServiceVersion(version, service, app, tenant)
	rr := request.GetRepoReference("git@example.com:acme/billing.git", entity.RepoReferenceTag, tag)
	b := request.GetBuilder(builder)
	sv.RepoRef = &rr
	sv.Builder = &b
	return sv
}

// seed creates tenant acme, application payments, builder docker and
// service Billing.
func seed(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	ok := must(t)

	ok(s.CreateTenant(ctx, request.Tenant{Name: request.String("acme"), Coexisting: request.Bool(false)}))
	ok(s.CreateApplication(ctx, applicationRequest("payments", "acme")))
	ok(s.CreateBuilder(ctx, builderRequest("docker")))
	ok(s.CreateService(ctx, serviceRequest("Billing", "payments", "acme", "git@example.com:acme/billing.git")))
}

// =============================================================================
// TENANT TESTS
// =============================================================================

func TestCreateTenant(t *testing.T) {
	s, _ := newTestService()

	v, err := s.CreateTenant(context.Background(), request.Tenant{
		Name:       request.String("acme"),
		Coexisting: request.Bool(false),
	})

	require.NoError(t, err)
	tenant := decode[entity.Tenant](t, v)
	assert.NotEqual(t, uuid.Nil, tenant.ID)
	assert.Equal(t, "acme", tenant.Name)
	assert.False(t, tenant.Coexisting)
}

func TestCreateTenantErrors(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	_, err := s.CreateTenant(ctx, request.Tenant{Name: request.String("acme")})
	assert.ErrorIs(t, err, command.ErrInvalidRequest)

	must(t)(s.CreateTenant(ctx, request.Tenant{Name: request.String("acme"), Coexisting: request.Bool(true)}))
	_, err = s.CreateTenant(ctx, request.Tenant{Name: request.String("acme"), Coexisting: request.Bool(true)})
	assert.ErrorIs(t, err, command.ErrCreate)
}

func TestGetTenant(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)

	v, err := s.GetTenant(context.Background(), request.GetTenant("acme"))
	require.NoError(t, err)
	assert.Equal(t, "acme", decode[entity.Tenant](t, v).Name)

	_, err = s.GetTenant(context.Background(), request.GetTenant("unknown"))
	assert.ErrorIs(t, err, command.ErrNotFound)

	_, err = s.GetTenant(context.Background(), request.Tenant{})
	assert.ErrorIs(t, err, command.ErrInvalidRequest)
}

// =============================================================================
// BUILDER TESTS
// =============================================================================

func TestBuilderLifecycle(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	v := must(t)(s.CreateBuilder(ctx, builderRequest("docker")))
	created := decode[entity.Builder](t, v)
	assert.True(t, created.Active)
	assert.Equal(t, "make image", created.BuildCommand)

	v = must(t)(s.GetBuilder(ctx, request.GetBuilder("docker")))
	assert.Equal(t, created.ID, decode[entity.Builder](t, v).ID)

	v = must(t)(s.DeleteBuilder(ctx, request.GetBuilder("docker")))
	assert.Equal(t, "docker", decode[string](t, v))

	_, err := s.DeleteBuilder(ctx, request.GetBuilder("docker"))
	assert.ErrorIs(t, err, command.ErrNotFound)

	_, err = s.CreateBuilder(ctx, request.Builder{Name: request.String("partial")})
	assert.ErrorIs(t, err, command.ErrInvalidRequest)
}

func TestDeleteReferencedBuilderFails(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()

	must(t)(s.CreateServiceVersion(ctx, versionRequest("1.0.0", "billing", "payments", "acme", "docker", "v1.0.0")))

	_, err := s.DeleteBuilder(ctx, request.GetBuilder("docker"))
	assert.ErrorIs(t, err, command.ErrDestroy)
}

// =============================================================================
// APPLICATION TESTS
// =============================================================================

func TestCreateApplication(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()

	v := must(t)(s.GetApplication(ctx, request.GetApplication("payments", "acme")))
	app := decode[entity.Application](t, v)
	assert.Equal(t, "acme", app.Tenant.Name)
	assert.Equal(t, "core", app.ClassUnit)

	_, err := s.CreateApplication(ctx, applicationRequest("ledger", "nobody"))
	assert.ErrorIs(t, err, command.ErrNotFound)

	_, err = s.GetApplication(ctx, request.GetApplication("ledger", "acme"))
	assert.ErrorIs(t, err, command.ErrNotFound)

	_, err = s.CreateApplication(ctx, request.Application{Name: request.String("ledger")})
	assert.ErrorIs(t, err, command.ErrInvalidRequest)
}

// =============================================================================
// SERVICE TESTS
// =============================================================================

func TestCreateServiceNormalizesName(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)

	v := must(t)(s.GetService(context.Background(), request.GetService("BILLING", "payments", "acme")))
	srv := decode[entity.Service](t, v)

	assert.Equal(t, "billing", srv.Name)
	assert.Equal(t, "Billing", srv.OriginalName)
	assert.Equal(t, "payments", srv.Application.Name)
	assert.Equal(t, "acme", srv.Application.Tenant.Name)
	assert.Empty(t, srv.Versions)
}

func TestCreateServiceUnderMissingApplication(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)

	_, err := s.CreateService(context.Background(), serviceRequest("ledger", "nowhere", "acme", "repo"))

	assert.ErrorIs(t, err, command.ErrNotFound)
}

func TestUpdateService(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()

	v, err := s.UpdateService(ctx,
		request.GetService("billing", "payments", "acme"),
		request.Service{Name: request.String("Invoicing"), DefaultRepo: request.String("git@example.com:acme/invoicing.git")},
	)

	require.NoError(t, err)
	srv := decode[entity.Service](t, v)
	assert.Equal(t, "invoicing", srv.Name)
	assert.Equal(t, "git@example.com:acme/invoicing.git", srv.DefaultRepo)

	_, err = s.GetService(ctx, request.GetService("billing", "payments", "acme"))
	assert.ErrorIs(t, err, command.ErrNotFound)

	_, err = s.UpdateService(ctx, request.GetService("invoicing", "payments", "acme"), request.Service{})
	assert.ErrorIs(t, err, command.ErrInvalidRequest)
}

func TestPersistServiceCreatesThenUpdates(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()
	source := request.GetService("Ledger", "payments", "acme")

	v := must(t)(s.PersistService(ctx, source, request.Service{DefaultRepo: request.String("repo-a")}))
	created := decode[entity.Service](t, v)
	assert.Equal(t, "ledger", created.Name)
	assert.Equal(t, "repo-a", created.DefaultRepo)

	v = must(t)(s.PersistService(ctx, source, request.Service{DefaultRepo: request.String("repo-b")}))
	updated := decode[entity.Service](t, v)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "repo-b", updated.DefaultRepo)
}

func TestPersistServiceWithoutDefaultRepo(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)

	_, err := s.PersistService(context.Background(), request.GetService("ledger", "payments", "acme"), request.Service{})

	assert.ErrorIs(t, err, command.ErrInvalidRequest)
}

// =============================================================================
// SERVICE VERSION TESTS
// =============================================================================

func TestCreateServiceVersionReusesRepoReference(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()

	v := must(t)(s.CreateServiceVersion(ctx, versionRequest("1.0.0", "billing", "payments", "acme", "docker", "v1")))
	first := decode[entity.ServiceVersion](t, v)
	assert.Equal(t, "1.0.0", first.Version)
	assert.Equal(t, "billing", first.Service.Name)
	assert.Equal(t, entity.RepoReferenceTag, first.RepoRef.Kind)
	assert.NotEqual(t, uuid.Nil, first.RepoRef.ID)

	v = must(t)(s.CreateServiceVersion(ctx, versionRequest("1.0.1", "billing", "payments", "acme", "docker", "v1")))
	second := decode[entity.ServiceVersion](t, v)
	assert.Equal(t, first.RepoRef.ID, second.RepoRef.ID)

	_, err := s.CreateServiceVersion(ctx, versionRequest("1.0.0", "billing", "payments", "acme", "docker", "v1"))
	assert.ErrorIs(t, err, command.ErrCreate)
}

func TestCreateServiceVersionMissingReferences(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()

	_, err := s.CreateServiceVersion(ctx, versionRequest("1.0.0", "ghost", "payments", "acme", "docker", "v1"))
	assert.ErrorIs(t, err, command.ErrNotFound)
	assert.Contains(t, err.Error(), "service")

	_, err = s.CreateServiceVersion(ctx, versionRequest("1.0.0", "billing", "payments", "acme", "podman", "v1"))
	assert.ErrorIs(t, err, command.ErrNotFound)
	assert.Contains(t, err.Error(), "builder")

	_, err = s.CreateServiceVersion(ctx, request.ServiceVersion{Version: request.String("1.0.0")})
	assert.ErrorIs(t, err, command.ErrInvalidRequest)
}

func TestGetServiceVersions(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()

	for _, version := range []string{"2.0.0", "1.0.0"} {
		must(t)(s.CreateServiceVersion(ctx, versionRequest(version, "billing", "payments", "acme", "docker", "v"+version)))
	}

	v := must(t)(s.GetServiceVersions(ctx, request.GetService("billing", "payments", "acme")))
	srv := decode[entity.Service](t, v)

	require.Len(t, srv.Versions, 2)
	assert.Equal(t, "1.0.0", srv.Versions[0].Version)
	assert.Equal(t, "2.0.0", srv.Versions[1].Version)
	assert.Equal(t, "docker", srv.Versions[0].Builder.Name)
}

func TestPersistServiceVersionCreatesThenUpdates(t *testing.T) {
	s, _ := newTestService()
	seed(t, s)
	ctx := context.Background()
	must(t)(s.CreateBuilder(ctx, builderRequest("buildpacks")))

	source := request.GetServiceVersion("3.0.0", "billing", "payments", "acme")
	rr := request.GetRepoReference("git@example.com:acme/billing.git", entity.RepoReferenceBranch, "main")
	docker := request.GetBuilder("docker")

	v := must(t)(s.PersistServiceVersion(ctx, source, request.ServiceVersion{RepoRef: &rr, Builder: &docker}))
	created := decode[entity.ServiceVersion](t, v)
	assert.Equal(t, "3.0.0", created.Version)
	assert.Equal(t, "docker", created.Builder.Name)

	buildpacks := request.GetBuilder("buildpacks")
	v = must(t)(s.PersistServiceVersion(ctx, source, request.ServiceVersion{Builder: &buildpacks}))
	updated := decode[entity.ServiceVersion](t, v)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "buildpacks", updated.Builder.Name)
	assert.Equal(t, created.RepoRef.ID, updated.RepoRef.ID)

	unknown := request.GetRepoReference("git@example.com:acme/billing.git", entity.RepoReferenceCommit, "deadbeef")
	_, err := s.PersistServiceVersion(ctx, source, request.ServiceVersion{RepoRef: &unknown})
	assert.ErrorIs(t, err, command.ErrNotFound)
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestTenantScenarioThroughRunner(t *testing.T) {
	s, _ := newTestService()
	runner := runtime.NewCommandRunner(dispatcher.New(s), runtime.DefaultConfig(), mocks.NewMockLogger())
	defer runner.Close()
	ctx := context.Background()

	result, ok := runner.DispatchAndWait(ctx, mocks.NewTenantCommand("acme", false))
	require.True(t, ok)
	require.NoError(t, result.Err)
	tenant := decode[entity.Tenant](t, result.Value)
	assert.NotEqual(t, uuid.Nil, tenant.ID)
	assert.Equal(t, "acme", tenant.Name)
	assert.False(t, tenant.Coexisting)

	result, ok = runner.DispatchAndWait(ctx, mocks.GetTenantCommand("acme"))
	require.True(t, ok)
	assert.Equal(t, tenant.ID, decode[entity.Tenant](t, result.Value).ID)

	result, ok = runner.DispatchAndWait(ctx, mocks.GetTenantCommand("nobody"))
	require.True(t, ok)
	assert.ErrorIs(t, result.Err, command.ErrNotFound)
}
