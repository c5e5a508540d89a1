// Package request defines the request DTOs carried by commands and their
// structural validation.
//
// Every field is optional on the wire. Which fields are required depends on
// the operation, so each DTO exposes ValidCreate, ValidGet and (where
// updates exist) ValidUpdate.
package request

import (
	"github.com/o008/registry/coreengine/entity"
)

// Tenant identifies or describes a tenant.
type Tenant struct {
	Name       *string `json:"name,omitempty"`
	Coexisting *bool   `json:"coexisting,omitempty"`
}

// Builder identifies or describes a builder.
type Builder struct {
	Name         *string `json:"name,omitempty"`
	Active       *bool   `json:"active,omitempty"`
	BuildCommand *string `json:"build_command,omitempty"`
}

// Application identifies or describes an application.
type Application struct {
	Name            *string `json:"name,omitempty"`
	Tenant          *Tenant `json:"tenant,omitempty"`
	ClassUnit       *string `json:"class_unit,omitempty"`
	FunctionalGroup *string `json:"functional_group,omitempty"`
}

// Service identifies or describes a service.
type Service struct {
	Name        *string      `json:"name,omitempty"`
	Application *Application `json:"application,omitempty"`
	DefaultRepo *string      `json:"default_repo,omitempty"`
}

// RepoReference identifies or describes a repository reference.
type RepoReference struct {
	Repo      *string                   `json:"repo,omitempty"`
	Kind      *entity.RepoReferenceKind `json:"kind,omitempty"`
	Reference *string                   `json:"reference,omitempty"`
}

// ServiceVersion identifies or describes a service version.
type ServiceVersion struct {
	Version *string        `json:"version,omitempty"`
	Service *Service       `json:"service,omitempty"`
	RepoRef *RepoReference `json:"repo_ref,omitempty"`
	Builder *Builder       `json:"builder,omitempty"`
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Kind returns a pointer to k.
func Kind(k entity.RepoReferenceKind) *entity.RepoReferenceKind { return &k }

// GetTenant builds a lookup request for a tenant.
func GetTenant(name string) Tenant {
	return Tenant{Name: String(name)}
}

// GetBuilder builds a lookup request for a builder.
func GetBuilder(name string) Builder {
	return Builder{Name: String(name)}
}

// GetApplication builds a lookup request for an application of a tenant.
func GetApplication(name, tenant string) Application {
	t := GetTenant(tenant)
	return Application{Name: String(name), Tenant: &t}
}

// GetService builds a lookup request for a service.
func GetService(name, app, tenant string) Service {
	a := GetApplication(app, tenant)
	return Service{Name: String(name), Application: &a}
}

// GetServiceVersion builds a lookup request for a service version.
func GetServiceVersion(version, service, app, tenant string) ServiceVersion {
	s := GetService(service, app, tenant)
	return ServiceVersion{Version: String(version), Service: &s}
}

// GetRepoReference builds a lookup request for a repository reference.
func GetRepoReference(repo string, kind entity.RepoReferenceKind, reference string) RepoReference {
	return RepoReference{Repo: String(repo), Kind: Kind(kind), Reference: String(reference)}
}
