// Package action implements the business operation behind every command.
//
// Each action validates its request, resolves entities through the store and
// returns the resulting entity as JSON. Failures are reported as
// *command.AppCommandError values:
//   - InvalidRequest when the request lacks mandatory attributes
//   - NotFound when a referenced entity does not exist
//   - Create, Update or Destroy when the write fails
//   - InvalidResponse when the entity cannot be serialized
package action

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/dispatcher"
	"github.com/o008/registry/coreengine/entity"
	"github.com/o008/registry/coreengine/request"
	"github.com/o008/registry/coreengine/store"
)

// Logger is the logging interface used by actions.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Service implements dispatcher.Actions on top of a store.Store.
type Service struct {
	store  store.Store
	logger Logger
}

var _ dispatcher.Actions = (*Service)(nil)

// NewService creates the action set.
func NewService(st store.Store, logger Logger) *Service {
	return &Service{store: st, logger: logger}
}

// =============================================================================
// TENANT
// =============================================================================

// CreateTenant creates a tenant from name and coexisting.
func (s *Service) CreateTenant(ctx context.Context, req request.Tenant) (command.Value, error) {
	if err := req.ValidCreate(); err != nil {
		return nil, command.NewInvalidRequestError("create action: %v", err)
	}

	t := entity.NewTenant(*req.Name, *req.Coexisting)
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, command.NewCreateError("create action: %v", err)
	}
	s.info("tenant_created", "tenant_id", t.ID.String(), "name", t.Name)
	return encode(t)
}

// GetTenant returns the tenant with the requested name.
func (s *Service) GetTenant(ctx context.Context, req request.Tenant) (command.Value, error) {
	if err := req.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("get action: %v", err)
	}

	t, err := s.store.TenantByName(ctx, *req.Name)
	if err != nil {
		return nil, command.NewNotFoundError("get action: %v", err)
	}
	return encode(t)
}

// =============================================================================
// BUILDER
// =============================================================================

// CreateBuilder creates a builder; every attribute is mandatory.
func (s *Service) CreateBuilder(ctx context.Context, req request.Builder) (command.Value, error) {
	if err := req.ValidCreate(); err != nil {
		return nil, command.NewInvalidRequestError("create action: %v", err)
	}

	b := entity.NewBuilder(*req.Name, *req.Active, *req.BuildCommand)
	if err := s.store.CreateBuilder(ctx, b); err != nil {
		return nil, command.NewCreateError("create action: %v", err)
	}
	s.info("builder_created", "builder_id", b.ID.String(), "name", b.Name)
	return encode(b)
}

// GetBuilder returns the builder with the requested name.
func (s *Service) GetBuilder(ctx context.Context, req request.Builder) (command.Value, error) {
	if err := req.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("get action: %v", err)
	}

	b, err := s.store.BuilderByName(ctx, *req.Name)
	if err != nil {
		return nil, command.NewNotFoundError("get action: %v", err)
	}
	return encode(b)
}

// DeleteBuilder removes a builder and returns its name. A builder still
// referenced by a service version cannot be deleted.
func (s *Service) DeleteBuilder(ctx context.Context, req request.Builder) (command.Value, error) {
	if err := req.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("delete action: %v", err)
	}

	b, err := s.store.BuilderByName(ctx, *req.Name)
	if err != nil {
		return nil, command.NewNotFoundError("delete action: builder %s", *req.Name)
	}
	if err := s.store.DeleteBuilder(ctx, b.Name); err != nil {
		return nil, command.NewDestroyError("delete action: %v", err)
	}
	s.info("builder_deleted", "builder_id", b.ID.String(), "name", b.Name)
	return encode(b.Name)
}

// =============================================================================
// APPLICATION
// =============================================================================

// CreateApplication creates an application under an existing tenant.
func (s *Service) CreateApplication(ctx context.Context, req request.Application) (command.Value, error) {
	if err := req.ValidCreate(); err != nil {
		return nil, command.NewInvalidRequestError("create action: %v", err)
	}

	t, err := s.store.TenantByName(ctx, *req.Tenant.Name)
	if err != nil {
		return nil, command.NewNotFoundError("create action: %v", err)
	}

	app := entity.NewApplication(*req.Name, *t, *req.ClassUnit, *req.FunctionalGroup)
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, command.NewCreateError("create action: %v", err)
	}
	s.info("application_created", "application_id", app.ID.String(), "name", app.Name, "tenant", t.Name)
	return encode(app)
}

// GetApplication returns the application with the requested name and tenant.
func (s *Service) GetApplication(ctx context.Context, req request.Application) (command.Value, error) {
	if err := req.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("get action: %v", err)
	}

	app, err := s.application(ctx, &req)
	if err != nil {
		return nil, command.NewNotFoundError("get action: %v", err)
	}
	return encode(app)
}

func (s *Service) application(ctx context.Context, req *request.Application) (*entity.Application, error) {
	return s.store.ApplicationByName(ctx, *req.Tenant.Name, *req.Name)
}

// =============================================================================
// SERVICE
// =============================================================================

// CreateService creates a service under an existing application.
func (s *Service) CreateService(ctx context.Context, req request.Service) (command.Value, error) {
	if err := req.ValidCreate(); err != nil {
		return nil, command.NewInvalidRequestError("create action: %v", err)
	}

	app, err := s.application(ctx, req.Application)
	if err != nil {
		return nil, command.NewNotFoundError("create action: %v", err)
	}

	srv := entity.NewService(*req.Name, *app, *req.DefaultRepo)
	if err := s.store.CreateService(ctx, srv); err != nil {
		return nil, command.NewCreateError("create action: %v", err)
	}
	s.info("service_created", "service_id", srv.ID.String(), "name", srv.Name, "application", app.Name)
	return encode(srv)
}

// GetService returns the service identified by name, application and tenant.
func (s *Service) GetService(ctx context.Context, req request.Service) (command.Value, error) {
	if err := req.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("get action: %v", err)
	}

	srv, err := s.service(ctx, &req)
	if err != nil {
		return nil, command.NewNotFoundError("get action: %v", err)
	}
	return encode(srv)
}

// GetServiceVersions returns the service with its versions listed.
func (s *Service) GetServiceVersions(ctx context.Context, req request.Service) (command.Value, error) {
	if err := req.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("get action: %v", err)
	}

	srv, err := s.service(ctx, &req)
	if err != nil {
		return nil, command.NewNotFoundError("get action: %v", err)
	}

	versions, err := s.store.ServiceVersions(ctx, srv.ID)
	if err != nil {
		// The service itself is still a valid answer.
		s.warn("service_versions_unavailable", "service_id", srv.ID.String(), "error", err.Error())
	}
	srv.Versions = make([]entity.VersionSummary, 0, len(versions))
	for i := range versions {
		srv.Versions = append(srv.Versions, versions[i].Summary())
	}
	return encode(srv)
}

// UpdateService applies the attributes present in req to the service
// identified by source.
func (s *Service) UpdateService(ctx context.Context, source, req request.Service) (command.Value, error) {
	if err := source.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("update action: %v", err)
	}
	if err := req.ValidUpdate(); err != nil {
		return nil, command.NewInvalidRequestError("update action: %v", err)
	}

	srv, err := s.service(ctx, &source)
	if err != nil {
		return nil, command.NewNotFoundError("update action: %v", err)
	}

	if req.Application != nil {
		app, err := s.application(ctx, req.Application)
		if err != nil {
			return nil, command.NewNotFoundError("update action: %v", err)
		}
		srv.Application = *app
	}
	if req.Name != nil {
		srv.Rename(*req.Name)
	}
	if req.DefaultRepo != nil {
		srv.DefaultRepo = *req.DefaultRepo
	}

	if err := s.store.UpdateService(ctx, srv); err != nil {
		return nil, command.NewUpdateError("update action: %v", err)
	}
	s.info("service_updated", "service_id", srv.ID.String(), "name", srv.Name)
	return encode(srv)
}

// PersistService updates the service identified by source when it exists.
// Otherwise it creates one from source's name and application and req's
// default repo.
func (s *Service) PersistService(ctx context.Context, source, req request.Service) (command.Value, error) {
	if s.serviceExists(ctx, &source) {
		return s.UpdateService(ctx, source, req)
	}
	return s.CreateService(ctx, request.Service{
		Name:        source.Name,
		Application: source.Application,
		DefaultRepo: req.DefaultRepo,
	})
}

func (s *Service) service(ctx context.Context, req *request.Service) (*entity.Service, error) {
	app := req.Application
	return s.store.ServiceByName(ctx, *app.Tenant.Name, *app.Name, *req.Name)
}

func (s *Service) serviceExists(ctx context.Context, req *request.Service) bool {
	if req.ValidGet() != nil {
		return false
	}
	_, err := s.service(ctx, req)
	return err == nil
}

// =============================================================================
// SERVICE VERSION
// =============================================================================

// CreateServiceVersion creates a version of an existing service built by an
// existing builder. The repo reference is created when it is not known yet.
func (s *Service) CreateServiceVersion(ctx context.Context, req request.ServiceVersion) (command.Value, error) {
	if err := req.ValidCreate(); err != nil {
		return nil, command.NewInvalidRequestError("create action: %v", err)
	}

	srv, err := s.service(ctx, req.Service)
	if err != nil {
		return nil, command.NewNotFoundError("create action service: %v", err)
	}
	b, err := s.store.BuilderByName(ctx, *req.Builder.Name)
	if err != nil {
		return nil, command.NewNotFoundError("create action builder: %v", err)
	}
	rr, err := s.repoReferenceOrCreate(ctx, req.RepoRef)
	if err != nil {
		return nil, command.NewCreateError("create action: %v", err)
	}

	sv := entity.NewServiceVersion(*req.Version, *srv, *rr, *b)
	if err := s.store.CreateServiceVersion(ctx, sv); err != nil {
		return nil, command.NewCreateError("create action: %v", err)
	}
	s.info("service_version_created", "service_version_id", sv.ID.String(), "service", srv.Name, "version", sv.Version)
	return encode(sv)
}

// PersistServiceVersion updates the version identified by source when it
// exists. Otherwise it creates one from source's version and service and
// req's repo reference and builder.
func (s *Service) PersistServiceVersion(ctx context.Context, source, req request.ServiceVersion) (command.Value, error) {
	if sv, ok := s.serviceVersion(ctx, &source); ok {
		return s.updateServiceVersion(ctx, sv, source, req)
	}
	return s.CreateServiceVersion(ctx, request.ServiceVersion{
		Version: source.Version,
		Service: source.Service,
		RepoRef: req.RepoRef,
		Builder: req.Builder,
	})
}

func (s *Service) updateServiceVersion(ctx context.Context, sv *entity.ServiceVersion, source, req request.ServiceVersion) (command.Value, error) {
	if err := source.ValidGet(); err != nil {
		return nil, command.NewInvalidRequestError("update action: %v", err)
	}
	if err := req.ValidUpdate(); err != nil {
		return nil, command.NewInvalidRequestError("update action: %v", err)
	}

	if req.Service != nil {
		srv, err := s.service(ctx, req.Service)
		if err != nil {
			return nil, command.NewNotFoundError("update action: %v", err)
		}
		sv.Service = *srv
	}
	if req.RepoRef != nil {
		rr, err := s.store.FindRepoReference(ctx, *req.RepoRef.Repo, *req.RepoRef.Kind, *req.RepoRef.Reference)
		if err != nil {
			return nil, command.NewNotFoundError("update action: %v", err)
		}
		sv.RepoRef = *rr
	}
	if req.Builder != nil {
		b, err := s.store.BuilderByName(ctx, *req.Builder.Name)
		if err != nil {
			return nil, command.NewNotFoundError("update action: %v", err)
		}
		sv.Builder = *b
	}
	if req.Version != nil {
		sv.Version = *req.Version
	}

	if err := s.store.UpdateServiceVersion(ctx, sv); err != nil {
		return nil, command.NewUpdateError("update action: %v", err)
	}
	s.info("service_version_updated", "service_version_id", sv.ID.String(), "version", sv.Version)
	return encode(sv)
}

func (s *Service) serviceVersion(ctx context.Context, req *request.ServiceVersion) (*entity.ServiceVersion, bool) {
	if req.ValidGet() != nil {
		return nil, false
	}
	srv, err := s.service(ctx, req.Service)
	if err != nil {
		return nil, false
	}
	sv, err := s.store.ServiceVersion(ctx, srv.ID, *req.Version)
	if err != nil {
		return nil, false
	}
	return sv, true
}

func (s *Service) repoReferenceOrCreate(ctx context.Context, req *request.RepoReference) (*entity.RepoReference, error) {
	rr, err := s.store.FindRepoReference(ctx, *req.Repo, *req.Kind, *req.Reference)
	if err == nil {
		return rr, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rr = entity.NewRepoReference(*req.Repo, *req.Kind, *req.Reference)
	if err := s.store.CreateRepoReference(ctx, rr); err != nil {
		return nil, err
	}
	s.info("repo_reference_created", "repo_reference_id", rr.ID.String(), "repo", rr.Repo, "kind", string(rr.Kind))
	return rr, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func encode(v any) (command.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, command.NewInvalidResponseError("%v", err)
	}
	return raw, nil
}

func (s *Service) info(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Info(msg, keysAndValues...)
	}
}

func (s *Service) warn(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, keysAndValues...)
	}
}
