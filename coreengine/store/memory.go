package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/o008/registry/coreengine/entity"
)

type applicationRow struct {
	id              uuid.UUID
	name            string
	tenant          uuid.UUID
	classUnit       string
	functionalGroup string
}

type serviceRow struct {
	id           uuid.UUID
	name         string
	originalName string
	application  uuid.UUID
	defaultRepo  string
}

type versionRow struct {
	id      uuid.UUID
	version string
	service uuid.UUID
	repoRef uuid.UUID
	builder uuid.UUID
}

// Memory is an in-process Store. Rows reference their parents by id, the
// same way the relational schema does, and lookups assemble the nested
// entities on read.
type Memory struct {
	tenants      map[uuid.UUID]entity.Tenant
	builders     map[uuid.UUID]entity.Builder
	applications map[uuid.UUID]applicationRow
	services     map[uuid.UUID]serviceRow
	repoRefs     map[uuid.UUID]entity.RepoReference
	versions     map[uuid.UUID]versionRow
	mu           sync.RWMutex
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants:      make(map[uuid.UUID]entity.Tenant),
		builders:     make(map[uuid.UUID]entity.Builder),
		applications: make(map[uuid.UUID]applicationRow),
		services:     make(map[uuid.UUID]serviceRow),
		repoRefs:     make(map[uuid.UUID]entity.RepoReference),
		versions:     make(map[uuid.UUID]versionRow),
	}
}

// =============================================================================
// TENANT
// =============================================================================

func (m *Memory) CreateTenant(ctx context.Context, t *entity.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenantByName(t.Name); ok {
		return fmt.Errorf("tenant %s: %w", t.Name, ErrConflict)
	}
	t.ID = uuid.New()
	m.tenants[t.ID] = *t
	return nil
}

func (m *Memory) TenantByName(ctx context.Context, name string) (*entity.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenantByName(name)
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", name, ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) tenantByName(name string) (entity.Tenant, bool) {
	for _, t := range m.tenants {
		if t.Name == name {
			return t, true
		}
	}
	return entity.Tenant{}, false
}

// =============================================================================
// BUILDER
// =============================================================================

func (m *Memory) CreateBuilder(ctx context.Context, b *entity.Builder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.builderByName(b.Name); ok {
		return fmt.Errorf("builder %s: %w", b.Name, ErrConflict)
	}
	b.ID = uuid.New()
	m.builders[b.ID] = *b
	return nil
}

func (m *Memory) BuilderByName(ctx context.Context, name string) (*entity.Builder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.builderByName(name)
	if !ok {
		return nil, fmt.Errorf("builder %s: %w", name, ErrNotFound)
	}
	return &b, nil
}

func (m *Memory) DeleteBuilder(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.builderByName(name)
	if !ok {
		return fmt.Errorf("builder %s: %w", name, ErrNotFound)
	}
	for _, v := range m.versions {
		if v.builder == b.ID {
			return fmt.Errorf("builder %s is referenced by service versions: %w", name, ErrConflict)
		}
	}
	delete(m.builders, b.ID)
	return nil
}

func (m *Memory) builderByName(name string) (entity.Builder, bool) {
	for _, b := range m.builders {
		if b.Name == name {
			return b, true
		}
	}
	return entity.Builder{}, false
}

// =============================================================================
// APPLICATION
// =============================================================================

func (m *Memory) CreateApplication(ctx context.Context, a *entity.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[a.Tenant.ID]; !ok {
		return fmt.Errorf("tenant %s: %w", a.Tenant.Name, ErrNotFound)
	}
	for _, row := range m.applications {
		if row.tenant == a.Tenant.ID && row.name == a.Name {
			return fmt.Errorf("application %s: %w", a.Name, ErrConflict)
		}
	}
	a.ID = uuid.New()
	m.applications[a.ID] = applicationRow{
		id:              a.ID,
		name:            a.Name,
		tenant:          a.Tenant.ID,
		classUnit:       a.ClassUnit,
		functionalGroup: a.FunctionalGroup,
	}
	return nil
}

func (m *Memory) ApplicationByName(ctx context.Context, tenant, name string) (*entity.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenantByName(tenant)
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenant, ErrNotFound)
	}
	for _, row := range m.applications {
		if row.tenant == t.ID && row.name == name {
			app := m.application(row)
			return &app, nil
		}
	}
	return nil, fmt.Errorf("application %s: %w", name, ErrNotFound)
}

func (m *Memory) application(row applicationRow) entity.Application {
	return entity.Application{
		ID:              row.id,
		Name:            row.name,
		Tenant:          m.tenants[row.tenant],
		ClassUnit:       row.classUnit,
		FunctionalGroup: row.functionalGroup,
	}
}

// =============================================================================
// SERVICE
// =============================================================================

func (m *Memory) CreateService(ctx context.Context, s *entity.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applications[s.Application.ID]; !ok {
		return fmt.Errorf("application %s: %w", s.Application.Name, ErrNotFound)
	}
	if m.serviceNameTaken(s.Application.ID, s.Name, uuid.Nil) {
		return fmt.Errorf("service %s: %w", s.Name, ErrConflict)
	}
	s.ID = uuid.New()
	m.services[s.ID] = serviceRowOf(s)
	return nil
}

func (m *Memory) UpdateService(ctx context.Context, s *entity.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[s.ID]; !ok {
		return fmt.Errorf("service %s: %w", s.ID, ErrNotFound)
	}
	if _, ok := m.applications[s.Application.ID]; !ok {
		return fmt.Errorf("application %s: %w", s.Application.Name, ErrNotFound)
	}
	if m.serviceNameTaken(s.Application.ID, s.Name, s.ID) {
		return fmt.Errorf("service %s: %w", s.Name, ErrConflict)
	}
	m.services[s.ID] = serviceRowOf(s)
	return nil
}

func (m *Memory) ServiceByName(ctx context.Context, tenant, app, name string) (*entity.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenantByName(tenant)
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenant, ErrNotFound)
	}
	var appID uuid.UUID
	for _, row := range m.applications {
		if row.tenant == t.ID && row.name == app {
			appID = row.id
			break
		}
	}
	if appID == uuid.Nil {
		return nil, fmt.Errorf("application %s: %w", app, ErrNotFound)
	}

	key := entity.NormalizeServiceName(name)
	for _, row := range m.services {
		if row.application == appID && row.name == key {
			svc := m.service(row)
			return &svc, nil
		}
	}
	return nil, fmt.Errorf("service %s: %w", name, ErrNotFound)
}

func (m *Memory) serviceNameTaken(appID uuid.UUID, name string, except uuid.UUID) bool {
	for _, row := range m.services {
		if row.application == appID && row.name == name && row.id != except {
			return true
		}
	}
	return false
}

func (m *Memory) service(row serviceRow) entity.Service {
	return entity.Service{
		ID:           row.id,
		Name:         row.name,
		OriginalName: row.originalName,
		Application:  m.application(m.applications[row.application]),
		DefaultRepo:  row.defaultRepo,
	}
}

func serviceRowOf(s *entity.Service) serviceRow {
	return serviceRow{
		id:           s.ID,
		name:         s.Name,
		originalName: s.OriginalName,
		application:  s.Application.ID,
		defaultRepo:  s.DefaultRepo,
	}
}

// =============================================================================
// REPO REFERENCE
// =============================================================================

func (m *Memory) CreateRepoReference(ctx context.Context, r *entity.RepoReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findRepoReference(r.Repo, r.Kind, r.Reference); ok {
		return fmt.Errorf("repo reference %s@%s: %w", r.Repo, r.Reference, ErrConflict)
	}
	r.ID = uuid.New()
	m.repoRefs[r.ID] = *r
	return nil
}

func (m *Memory) FindRepoReference(ctx context.Context, repo string, kind entity.RepoReferenceKind, reference string) (*entity.RepoReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.findRepoReference(repo, kind, reference)
	if !ok {
		return nil, fmt.Errorf("repo reference %s@%s: %w", repo, reference, ErrNotFound)
	}
	return &r, nil
}

func (m *Memory) findRepoReference(repo string, kind entity.RepoReferenceKind, reference string) (entity.RepoReference, bool) {
	for _, r := range m.repoRefs {
		if r.Repo == repo && r.Kind == kind && r.Reference == reference {
			return r, true
		}
	}
	return entity.RepoReference{}, false
}

// =============================================================================
// SERVICE VERSION
// =============================================================================

func (m *Memory) CreateServiceVersion(ctx context.Context, v *entity.ServiceVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionRefs(v); err != nil {
		return err
	}
	if m.versionTaken(v.Service.ID, v.Version, uuid.Nil) {
		return fmt.Errorf("service version %s: %w", v.Version, ErrConflict)
	}
	v.ID = uuid.New()
	m.versions[v.ID] = versionRowOf(v)
	return nil
}

func (m *Memory) UpdateServiceVersion(ctx context.Context, v *entity.ServiceVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.versions[v.ID]; !ok {
		return fmt.Errorf("service version %s: %w", v.ID, ErrNotFound)
	}
	if err := m.checkVersionRefs(v); err != nil {
		return err
	}
	if m.versionTaken(v.Service.ID, v.Version, v.ID) {
		return fmt.Errorf("service version %s: %w", v.Version, ErrConflict)
	}
	m.versions[v.ID] = versionRowOf(v)
	return nil
}

func (m *Memory) ServiceVersion(ctx context.Context, serviceID uuid.UUID, version string) (*entity.ServiceVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.versions {
		if row.service == serviceID && row.version == version {
			v := m.serviceVersion(row)
			return &v, nil
		}
	}
	return nil, fmt.Errorf("service version %s: %w", version, ErrNotFound)
}

func (m *Memory) ServiceVersions(ctx context.Context, serviceID uuid.UUID) ([]entity.ServiceVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []entity.ServiceVersion
	for _, row := range m.versions {
		if row.service == serviceID {
			out = append(out, m.serviceVersion(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) checkVersionRefs(v *entity.ServiceVersion) error {
	if _, ok := m.services[v.Service.ID]; !ok {
		return fmt.Errorf("service %s: %w", v.Service.Name, ErrNotFound)
	}
	if _, ok := m.repoRefs[v.RepoRef.ID]; !ok {
		return fmt.Errorf("repo reference %s: %w", v.RepoRef.Reference, ErrNotFound)
	}
	if _, ok := m.builders[v.Builder.ID]; !ok {
		return fmt.Errorf("builder %s: %w", v.Builder.Name, ErrNotFound)
	}
	return nil
}

func (m *Memory) versionTaken(serviceID uuid.UUID, version string, except uuid.UUID) bool {
	for _, row := range m.versions {
		if row.service == serviceID && row.version == version && row.id != except {
			return true
		}
	}
	return false
}

func (m *Memory) serviceVersion(row versionRow) entity.ServiceVersion {
	return entity.ServiceVersion{
		ID:      row.id,
		Version: row.version,
		Service: m.service(m.services[row.service]),
		RepoRef: m.repoRefs[row.repoRef],
		Builder: m.builders[row.builder],
	}
}

func versionRowOf(v *entity.ServiceVersion) versionRow {
	return versionRow{
		id:      v.ID,
		version: v.Version,
		service: v.Service.ID,
		repoRef: v.RepoRef.ID,
		builder: v.Builder.ID,
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (m *Memory) Close() {}
