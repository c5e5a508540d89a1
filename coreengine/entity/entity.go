// Package entity defines the persisted deployment-metadata entities.
//
// Entities nest their parents (an Application carries its Tenant, a Service
// its Application, and so on) so that a single JSON document describes the
// whole ownership chain. The id is serialized as "_id".
package entity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Tenant is the top-level owner of applications.
type Tenant struct {
	ID         uuid.UUID `json:"_id"`
	Name       string    `json:"name"`
	Coexisting bool      `json:"coexisting"`
}

// NewTenant creates an unsaved Tenant.
func NewTenant(name string, coexisting bool) *Tenant {
	return &Tenant{Name: name, Coexisting: coexisting}
}

// Builder describes how service versions are built.
type Builder struct {
	ID           uuid.UUID `json:"_id"`
	Name         string    `json:"name"`
	Active       bool      `json:"active"`
	BuildCommand string    `json:"build_command"`
}

// NewBuilder creates an unsaved Builder.
func NewBuilder(name string, active bool, buildCommand string) *Builder {
	return &Builder{Name: name, Active: active, BuildCommand: buildCommand}
}

// Application groups services under a tenant.
type Application struct {
	ID              uuid.UUID `json:"_id"`
	Name            string    `json:"name"`
	Tenant          Tenant    `json:"tenant"`
	ClassUnit       string    `json:"class_unit"`
	FunctionalGroup string    `json:"functional_group"`
}

// NewApplication creates an unsaved Application owned by tenant.
func NewApplication(name string, tenant Tenant, classUnit, functionalGroup string) *Application {
	return &Application{
		Name:            name,
		Tenant:          tenant,
		ClassUnit:       classUnit,
		FunctionalGroup: functionalGroup,
	}
}

// Service is a deployable unit of an application.
// Name is the lower-cased lookup key; OriginalName keeps the caller's spelling.
type Service struct {
	ID           uuid.UUID        `json:"_id"`
	Name         string           `json:"name"`
	OriginalName string           `json:"original_name"`
	Application  Application      `json:"application"`
	DefaultRepo  string           `json:"default_repo"`
	Versions     []VersionSummary `json:"versions,omitempty"`
}

// NewService creates an unsaved Service.
func NewService(name string, app Application, defaultRepo string) *Service {
	s := &Service{Application: app, DefaultRepo: defaultRepo}
	s.Rename(name)
	return s
}

// Rename sets both the lookup name and the original spelling.
func (s *Service) Rename(name string) {
	s.Name = NormalizeServiceName(name)
	s.OriginalName = name
}

// NormalizeServiceName returns the lookup key for a service name.
func NormalizeServiceName(name string) string {
	return strings.ToLower(name)
}

// RepoReferenceKind is the kind of VCS reference a version is built from.
type RepoReferenceKind string

const (
	RepoReferenceTag    RepoReferenceKind = "Tag"
	RepoReferenceBranch RepoReferenceKind = "Branch"
	RepoReferenceCommit RepoReferenceKind = "Commit"
)

// ParseRepoReferenceKind parses one of Tag, Branch or Commit.
func ParseRepoReferenceKind(s string) (RepoReferenceKind, error) {
	switch k := RepoReferenceKind(s); k {
	case RepoReferenceTag, RepoReferenceBranch, RepoReferenceCommit:
		return k, nil
	default:
		return "", fmt.Errorf("unknown repo reference kind %q", s)
	}
}

// UnmarshalText rejects unknown kinds.
func (k *RepoReferenceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRepoReferenceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RepoReference points at a tag, branch or commit of a repository.
type RepoReference struct {
	ID        uuid.UUID         `json:"_id"`
	Repo      string            `json:"repo"`
	Kind      RepoReferenceKind `json:"kind"`
	Reference string            `json:"reference"`
}

// NewRepoReference creates an unsaved RepoReference.
func NewRepoReference(repo string, kind RepoReferenceKind, reference string) *RepoReference {
	return &RepoReference{Repo: repo, Kind: kind, Reference: reference}
}

// ServiceVersion is a built version of a service.
type ServiceVersion struct {
	ID      uuid.UUID     `json:"_id"`
	Version string        `json:"version"`
	Service Service       `json:"service"`
	RepoRef RepoReference `json:"repo_ref"`
	Builder Builder       `json:"builder"`
}

// NewServiceVersion creates an unsaved ServiceVersion.
func NewServiceVersion(version string, service Service, repoRef RepoReference, builder Builder) *ServiceVersion {
	return &ServiceVersion{
		Version: version,
		Service: service,
		RepoRef: repoRef,
		Builder: builder,
	}
}

// Summary drops the owning service, which is implied when listed under it.
func (v *ServiceVersion) Summary() VersionSummary {
	return VersionSummary{
		ID:      v.ID,
		Version: v.Version,
		RepoRef: v.RepoRef,
		Builder: v.Builder,
	}
}

// VersionSummary is a ServiceVersion listed under its Service.
type VersionSummary struct {
	ID      uuid.UUID     `json:"_id"`
	Version string        `json:"version"`
	RepoRef RepoReference `json:"repo_ref"`
	Builder Builder       `json:"builder"`
}
