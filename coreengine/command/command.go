// Package command defines the closed set of commands the dispatcher routes
// and the responses it produces.
//
// DispatchCommand is either an AppCommand (a business verb carrying request
// DTOs) or an InternalCommand (a control signal). AppCommand is sealed: only
// the types in this package implement it, so a type switch over it can be
// checked for completeness.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/o008/registry/coreengine/request"
)

// Value is a serialized entity returned by an action.
type Value = json.RawMessage

// =============================================================================
// APP COMMANDS
// =============================================================================

// AppCommand is a business verb.
type AppCommand interface {
	// Name returns the kebab-case verb, used in logs, metrics and the CLI.
	Name() string
	appCommand()
}

type (
	CreateBuilder struct{ Request request.Builder }
	GetBuilder    struct{ Request request.Builder }
	DeleteBuilder struct{ Request request.Builder }

	CreateTenant struct{ Request request.Tenant }
	GetTenant    struct{ Request request.Tenant }

	CreateApplication struct{ Request request.Application }
	GetApplication    struct{ Request request.Application }

	CreateService      struct{ Request request.Service }
	GetService         struct{ Request request.Service }
	GetServiceVersions struct{ Request request.Service }
	// UpdateService applies Request to the service identified by Source.
	UpdateService struct{ Source, Request request.Service }
	// PersistService updates Source when it exists and creates it otherwise.
	PersistService struct{ Source, Request request.Service }

	CreateServiceVersion struct{ Request request.ServiceVersion }
	// PersistServiceVersion updates Source when it exists and creates it otherwise.
	PersistServiceVersion struct{ Source, Request request.ServiceVersion }
)

func (CreateBuilder) Name() string         { return "create-builder" }
func (GetBuilder) Name() string            { return "get-builder" }
func (DeleteBuilder) Name() string         { return "delete-builder" }
func (CreateTenant) Name() string          { return "create-tenant" }
func (GetTenant) Name() string             { return "get-tenant" }
func (CreateApplication) Name() string     { return "create-application" }
func (GetApplication) Name() string        { return "get-application" }
func (CreateService) Name() string         { return "create-service" }
func (GetService) Name() string            { return "get-service" }
func (GetServiceVersions) Name() string    { return "get-service-versions" }
func (UpdateService) Name() string         { return "update-service" }
func (PersistService) Name() string        { return "persist-service" }
func (CreateServiceVersion) Name() string  { return "create-service-version" }
func (PersistServiceVersion) Name() string { return "persist-service-version" }

func (CreateBuilder) appCommand()         {}
func (GetBuilder) appCommand()            {}
func (DeleteBuilder) appCommand()         {}
func (CreateTenant) appCommand()          {}
func (GetTenant) appCommand()             {}
func (CreateApplication) appCommand()     {}
func (GetApplication) appCommand()        {}
func (CreateService) appCommand()         {}
func (GetService) appCommand()            {}
func (GetServiceVersions) appCommand()    {}
func (UpdateService) appCommand()         {}
func (PersistService) appCommand()        {}
func (CreateServiceVersion) appCommand()  {}
func (PersistServiceVersion) appCommand() {}

// AppCommands returns a zero value of every AppCommand variant.
func AppCommands() []AppCommand {
	return []AppCommand{
		CreateBuilder{}, GetBuilder{}, DeleteBuilder{},
		CreateTenant{}, GetTenant{},
		CreateApplication{}, GetApplication{},
		CreateService{}, GetService{}, GetServiceVersions{}, UpdateService{}, PersistService{},
		CreateServiceVersion{}, PersistServiceVersion{},
	}
}

// =============================================================================
// INTERNAL COMMANDS
// =============================================================================

// InternalCommand is a control signal.
type InternalCommand string

const (
	// Quit asks every poller and queue to stop. It carries no payload.
	Quit InternalCommand = "quit"
)

// =============================================================================
// DISPATCH COMMAND
// =============================================================================

// DispatchCommand is App(AppCommand) or Internal(InternalCommand).
// Exactly one variant is set; the zero value is neither and is rejected by
// the dispatcher.
type DispatchCommand struct {
	app      AppCommand
	internal InternalCommand
}

// App wraps a business command.
func App(cmd AppCommand) DispatchCommand {
	return DispatchCommand{app: cmd}
}

// Internal wraps a control command.
func Internal(cmd InternalCommand) DispatchCommand {
	return DispatchCommand{internal: cmd}
}

// AsApp returns the business command, if any.
func (c DispatchCommand) AsApp() (AppCommand, bool) {
	return c.app, c.app != nil
}

// AsInternal returns the control command, if any.
func (c DispatchCommand) AsInternal() (InternalCommand, bool) {
	return c.internal, c.app == nil && c.internal != ""
}

// IsQuit reports whether c is Internal(Quit).
func (c DispatchCommand) IsQuit() bool {
	ic, ok := c.AsInternal()
	return ok && ic == Quit
}

// Name returns the verb or control signal name.
func (c DispatchCommand) Name() string {
	if c.app != nil {
		return c.app.Name()
	}
	if c.internal != "" {
		return string(c.internal)
	}
	return "invalid"
}

func (c DispatchCommand) String() string {
	if c.app != nil {
		return fmt.Sprintf("App(%s)", c.app.Name())
	}
	return fmt.Sprintf("Internal(%s)", c.internal)
}

// =============================================================================
// RESPONSES
// =============================================================================

// Result is the outcome of dispatching an AppCommand.
type Result struct {
	Value Value
	Err   error
}

// OK wraps a successful value.
func OK(v Value) Result { return Result{Value: v} }

// Fail wraps an error.
func Fail(err error) Result { return Result{Err: err} }

// IsOK reports whether the result carries no error.
func (r Result) IsOK() bool { return r.Err == nil }

// DispatchResponse is App(Result) or Internal(InternalCommand). It lets the
// response bus carry control signals without confusing them with results.
type DispatchResponse struct {
	result   *Result
	internal InternalCommand
}

// AppResponse wraps a dispatch result.
func AppResponse(r Result) DispatchResponse {
	return DispatchResponse{result: &r}
}

// InternalResponse wraps a control signal.
func InternalResponse(cmd InternalCommand) DispatchResponse {
	return DispatchResponse{internal: cmd}
}

// AsApp returns the dispatch result, if any.
func (r DispatchResponse) AsApp() (Result, bool) {
	if r.result == nil {
		return Result{}, false
	}
	return *r.result, true
}

// AsInternal returns the control signal, if any.
func (r DispatchResponse) AsInternal() (InternalCommand, bool) {
	return r.internal, r.result == nil && r.internal != ""
}
