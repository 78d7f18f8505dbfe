// Package formengine wires the form registry, the dependency resolver, the
// derivation and validation engines and the submission coordinator into one
// entry point. Callers open a session per form screen, feed it edits and
// hand it to a coordinator on submit.
package formengine

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-formengine/pkg/derive"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/registry"
	"github.com/goliatone/go-formengine/pkg/resolver"
	"github.com/goliatone/go-formengine/pkg/session"
	"github.com/goliatone/go-formengine/pkg/submission"
	"github.com/goliatone/go-formengine/pkg/validation"
)

// FormKind aliases model.FormKind for callers that only import the facade.
type FormKind = model.FormKind

// Values aliases model.Values.
type Values = model.Values

// Session aliases session.Session.
type Session = session.Session

// Registered form kinds.
const (
	FormKindSportsComplex = model.FormKindSportsComplex
	FormKindYouthHouse    = model.FormKindYouthHouse
	FormKindInvestment    = model.FormKindInvestment
	FormKindSignup        = model.FormKindSignup
)

// Option customises an Engine.
type Option func(*Engine)

// WithRegistry replaces the embedded form registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine holds the stateless components shared by all sessions.
type Engine struct {
	registry  *registry.Registry
	resolver  *resolver.Resolver
	deriver   *derive.Engine
	validator *validation.Engine
	logger    *slog.Logger
}

// New builds an engine over the embedded registry unless WithRegistry
// supplies one. A broken registry is a configuration error.
func New(options ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	if e.registry == nil {
		reg, err := registry.Default()
		if err != nil {
			return nil, err
		}
		e.registry = reg
	}
	e.resolver = resolver.New(resolver.WithLogger(e.logger.WithGroup("resolver")))
	e.deriver = derive.New()
	e.validator = validation.New(
		validation.WithResolver(e.resolver),
		validation.WithLogger(e.logger.WithGroup("validation")),
	)
	return e, nil
}

// Registry returns the form registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Kinds lists the registered forms.
func (e *Engine) Kinds() []FormKind {
	return e.registry.Kinds()
}

// FieldSpec returns the declaration of key in form kind.
func (e *Engine) FieldSpec(kind FormKind, key string) (model.FieldSpec, error) {
	return e.registry.FieldSpec(kind, key)
}

// Open starts a session for kind with every field at its default.
func (e *Engine) Open(kind FormKind, options ...session.Option) (*Session, error) {
	schema, err := e.registry.Schema(kind)
	if err != nil {
		return nil, err
	}
	opts := append([]session.Option{
		session.WithResolver(e.resolver),
		session.WithDeriver(e.deriver),
		session.WithValidator(e.validator),
		session.WithLogger(e.logger.WithGroup("session")),
	}, options...)
	return session.New(schema, opts...)
}

// Coordinator builds a submission coordinator around transport.
func (e *Engine) Coordinator(transport submission.Transport, options ...submission.Option) (*submission.Coordinator, error) {
	opts := append([]submission.Option{submission.WithLogger(e.logger.WithGroup("submission"))}, options...)
	return submission.New(transport, opts...)
}

// Submit is a convenience for one-off submissions outside a long-lived
// coordinator.
func (e *Engine) Submit(ctx context.Context, sess *Session, transport submission.Transport, options ...submission.Option) (submission.Outcome, error) {
	coord, err := e.Coordinator(transport, options...)
	if err != nil {
		return submission.Outcome{}, err
	}
	return coord.Submit(ctx, sess)
}
