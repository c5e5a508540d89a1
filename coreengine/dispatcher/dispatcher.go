// Package dispatcher routes commands to the action that implements them.
//
// Routing is a type switch over the sealed command.AppCommand set; Actions
// has one method per variant, so an implementation that compiles handles
// every verb. The dispatcher performs no I/O and no validation of its own.
package dispatcher

import (
	"context"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/request"
)

// Actions performs the domain operation behind each AppCommand.
type Actions interface {
	CreateBuilder(ctx context.Context, req request.Builder) (command.Value, error)
	GetBuilder(ctx context.Context, req request.Builder) (command.Value, error)
	DeleteBuilder(ctx context.Context, req request.Builder) (command.Value, error)

	CreateTenant(ctx context.Context, req request.Tenant) (command.Value, error)
	GetTenant(ctx context.Context, req request.Tenant) (command.Value, error)

	CreateApplication(ctx context.Context, req request.Application) (command.Value, error)
	GetApplication(ctx context.Context, req request.Application) (command.Value, error)

	CreateService(ctx context.Context, req request.Service) (command.Value, error)
	GetService(ctx context.Context, req request.Service) (command.Value, error)
	GetServiceVersions(ctx context.Context, req request.Service) (command.Value, error)
	UpdateService(ctx context.Context, source, req request.Service) (command.Value, error)
	PersistService(ctx context.Context, source, req request.Service) (command.Value, error)

	CreateServiceVersion(ctx context.Context, req request.ServiceVersion) (command.Value, error)
	PersistServiceVersion(ctx context.Context, source, req request.ServiceVersion) (command.Value, error)
}

// Dispatcher maps DispatchCommands onto Actions through a middleware chain.
type Dispatcher struct {
	actions    Actions
	middleware []Middleware
}

// New creates a Dispatcher. Middleware runs Before in registration order and
// After in reverse order.
func New(actions Actions, middleware ...Middleware) *Dispatcher {
	return &Dispatcher{actions: actions, middleware: middleware}
}

// Use appends middleware to the chain.
func (d *Dispatcher) Use(mw ...Middleware) {
	d.middleware = append(d.middleware, mw...)
}

// Dispatch routes cmd and returns the action's value or error.
// Internal(Quit) yields a terminate error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.DispatchCommand) (command.Value, error) {
	ran := 0
	var err error
	for _, mw := range d.middleware {
		var next context.Context
		next, err = mw.Before(ctx, cmd)
		if err != nil {
			break
		}
		ctx = next
		ran++
	}

	var value command.Value
	if err == nil {
		value, err = d.route(ctx, cmd)
	}

	for i := ran - 1; i >= 0; i-- {
		value, err = d.middleware[i].After(ctx, cmd, value, err)
	}
	return value, err
}

// Handle is Dispatch folded into a Result.
func (d *Dispatcher) Handle(ctx context.Context, cmd command.DispatchCommand) command.Result {
	value, err := d.Dispatch(ctx, cmd)
	if err != nil {
		return command.Fail(err)
	}
	return command.OK(value)
}

func (d *Dispatcher) route(ctx context.Context, cmd command.DispatchCommand) (command.Value, error) {
	if ic, ok := cmd.AsInternal(); ok {
		if ic == command.Quit {
			return nil, command.NewTerminateError("")
		}
		return nil, command.NewInvalidRequestError("unknown internal command %q", ic)
	}

	app, ok := cmd.AsApp()
	if !ok {
		return nil, command.NewInvalidRequestError("empty dispatch command")
	}

	switch c := app.(type) {
	case command.CreateBuilder:
		return d.actions.CreateBuilder(ctx, c.Request)
	case command.GetBuilder:
		return d.actions.GetBuilder(ctx, c.Request)
	case command.DeleteBuilder:
		return d.actions.DeleteBuilder(ctx, c.Request)
	case command.CreateTenant:
		return d.actions.CreateTenant(ctx, c.Request)
	case command.GetTenant:
		return d.actions.GetTenant(ctx, c.Request)
	case command.CreateApplication:
		return d.actions.CreateApplication(ctx, c.Request)
	case command.GetApplication:
		return d.actions.GetApplication(ctx, c.Request)
	case command.CreateService:
		return d.actions.CreateService(ctx, c.Request)
	case command.GetService:
		return d.actions.GetService(ctx, c.Request)
	case command.GetServiceVersions:
		return d.actions.GetServiceVersions(ctx, c.Request)
	case command.UpdateService:
		return d.actions.UpdateService(ctx, c.Source, c.Request)
	case command.PersistService:
		return d.actions.PersistService(ctx, c.Source, c.Request)
	case command.CreateServiceVersion:
		return d.actions.CreateServiceVersion(ctx, c.Request)
	case command.PersistServiceVersion:
		return d.actions.PersistServiceVersion(ctx, c.Source, c.Request)
	default:
		return nil, command.NewInvalidRequestError("unhandled command %s", app.Name())
	}
}
