package request

import (
	"errors"
	"fmt"
)

// ErrMissingAttribute matches every *ValidationError.
var ErrMissingAttribute = errors.New("missing attribute")

// ValidationError reports a request that lacks attributes required by the
// operation.
type ValidationError struct {
	Type   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Type, e.Reason)
}

// Is matches ErrMissingAttribute.
func (e *ValidationError) Is(target error) bool {
	return target == ErrMissingAttribute
}

func missing(typeName, reason string) error {
	return &ValidationError{Type: typeName, Reason: reason}
}

const (
	tenantType         = "TenantRequest"
	builderType        = "BuilderRequest"
	applicationType    = "ApplicationRequest"
	serviceType        = "ServiceRequest"
	repoReferenceType  = "RepoReferenceRequest"
	serviceVersionType = "ServiceVersionRequest"
)

// =============================================================================
// TENANT
// =============================================================================

// ValidCreate requires name and coexisting.
func (r *Tenant) ValidCreate() error {
	if r == nil || r.Name == nil || r.Coexisting == nil {
		return missing(tenantType, "name and coexisting are mandatory")
	}
	return nil
}

// ValidGet requires name.
func (r *Tenant) ValidGet() error {
	if r == nil || r.Name == nil {
		return missing(tenantType, "name is mandatory")
	}
	return nil
}

// =============================================================================
// BUILDER
// =============================================================================

// ValidCreate requires every attribute.
func (r *Builder) ValidCreate() error {
	if r == nil || r.Name == nil || r.Active == nil || r.BuildCommand == nil {
		return missing(builderType, "all attributes are mandatory")
	}
	return nil
}

// ValidGet requires name.
func (r *Builder) ValidGet() error {
	if r == nil || r.Name == nil {
		return missing(builderType, "name is mandatory")
	}
	return nil
}

// =============================================================================
// APPLICATION
// =============================================================================

// ValidCreate requires every attribute and a tenant valid for lookup.
func (r *Application) ValidCreate() error {
	if r == nil || r.Name == nil || r.Tenant == nil || r.ClassUnit == nil || r.FunctionalGroup == nil {
		return missing(applicationType, "all attributes are mandatory")
	}
	return r.Tenant.ValidGet()
}

// ValidGet requires name and a tenant valid for lookup.
func (r *Application) ValidGet() error {
	if r == nil || r.Name == nil || r.Tenant == nil {
		return missing(applicationType, "name and tenant are mandatory")
	}
	return r.Tenant.ValidGet()
}

// ValidUpdate requires at least one attribute; a tenant must be valid for lookup.
func (r *Application) ValidUpdate() error {
	if r == nil || (r.Name == nil && r.Tenant == nil && r.ClassUnit == nil && r.FunctionalGroup == nil) {
		return missing(applicationType, "at least one attribute is mandatory")
	}
	if r.Tenant != nil {
		return r.Tenant.ValidGet()
	}
	return nil
}

// =============================================================================
// SERVICE
// =============================================================================

// ValidCreate requires every attribute and an application valid for lookup.
func (r *Service) ValidCreate() error {
	if r == nil || r.Name == nil || r.Application == nil || r.DefaultRepo == nil {
		return missing(serviceType, "all attributes are mandatory")
	}
	return r.Application.ValidGet()
}

// ValidGet requires name and an application valid for lookup.
func (r *Service) ValidGet() error {
	if r == nil || r.Name == nil || r.Application == nil {
		return missing(serviceType, "name and application are mandatory")
	}
	return r.Application.ValidGet()
}

// ValidUpdate requires at least one attribute; an application must be valid
// for lookup.
func (r *Service) ValidUpdate() error {
	if r == nil || (r.Name == nil && r.Application == nil && r.DefaultRepo == nil) {
		return missing(serviceType, "at least one attribute is mandatory")
	}
	if r.Application != nil {
		return r.Application.ValidGet()
	}
	return nil
}

// =============================================================================
// REPO REFERENCE
// =============================================================================

// ValidCreate requires every attribute.
func (r *RepoReference) ValidCreate() error {
	if r == nil || r.Repo == nil || r.Kind == nil || r.Reference == nil {
		return missing(repoReferenceType, "all attributes are mandatory")
	}
	return nil
}

// ValidGet requires every attribute.
func (r *RepoReference) ValidGet() error {
	if r == nil || r.Repo == nil || r.Kind == nil || r.Reference == nil {
		return missing(repoReferenceType, "repo, kind and reference are mandatory")
	}
	return nil
}

// ValidUpdate requires at least one attribute.
func (r *RepoReference) ValidUpdate() error {
	if r == nil || (r.Repo == nil && r.Kind == nil && r.Reference == nil) {
		return missing(repoReferenceType, "at least one attribute is mandatory")
	}
	return nil
}

// =============================================================================
// SERVICE VERSION
// =============================================================================

// ValidCreate requires every attribute, each valid for lookup.
func (r *ServiceVersion) ValidCreate() error {
	if r == nil || r.Version == nil || r.Service == nil || r.RepoRef == nil || r.Builder == nil {
		return missing(serviceVersionType, "all attributes are mandatory")
	}
	if err := r.Service.ValidGet(); err != nil {
		return err
	}
	if err := r.RepoRef.ValidGet(); err != nil {
		return err
	}
	return r.Builder.ValidGet()
}

// ValidGet requires version and a service valid for lookup.
func (r *ServiceVersion) ValidGet() error {
	if r == nil || r.Version == nil || r.Service == nil {
		return missing(serviceVersionType, "version and service are mandatory")
	}
	return r.Service.ValidGet()
}

// ValidUpdate requires at least one attribute; each present reference must be
// valid for lookup.
func (r *ServiceVersion) ValidUpdate() error {
	if r == nil || (r.Version == nil && r.Service == nil && r.RepoRef == nil && r.Builder == nil) {
		return missing(serviceVersionType, "at least one attribute is mandatory")
	}
	if r.Service != nil {
		if err := r.Service.ValidGet(); err != nil {
			return err
		}
	}
	if r.RepoRef != nil {
		if err := r.RepoRef.ValidGet(); err != nil {
			return err
		}
	}
	if r.Builder != nil {
		return r.Builder.ValidGet()
	}
	return nil
}
