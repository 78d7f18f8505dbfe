// Package session holds the FormSession aggregate: the live values of one
// form, its visible field set, derived values, the last validation result and
// the submission guard. A session is created when a form is opened and
// discarded with it; nothing is persisted.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formengine/pkg/derive"
	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/resolver"
	"github.com/goliatone/go-formengine/pkg/validation"
)

// Phase is the submission state of a session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseInvalid    Phase = "invalid"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseFailed     Phase = "failed"
)

// Option customises a Session.
type Option func(*Session)

// WithResolver shares a resolver between sessions.
func WithResolver(r *resolver.Resolver) Option {
	return func(s *Session) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithDeriver sets the derivation engine.
func WithDeriver(d *derive.Engine) Option {
	return func(s *Session) {
		if d != nil {
			s.deriver = d
		}
	}
}

// WithValidator sets the validation engine.
func WithValidator(v *validation.Engine) Option {
	return func(s *Session) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithValues seeds the session with initial values, for example a draft the
// caller kept around. Unknown keys are ignored and hidden fields are reset.
func WithValues(values model.Values) Option {
	return func(s *Session) {
		s.values = values.Clone()
	}
}

// Session is safe for concurrent use; every method runs under one mutex.
type Session struct {
	id        uuid.UUID
	schema    *model.Schema
	resolver  *resolver.Resolver
	deriver   *derive.Engine
	validator *validation.Engine
	logger    *slog.Logger

	mu         sync.Mutex
	values     model.Values
	visible    []string
	derived    map[string]int
	errors     validation.ErrorMap
	validated  bool
	submitting bool
	phase      Phase
}

// New opens a session over schema with every field at its default.
func New(schema *model.Schema, options ...Option) (*Session, error) {
	if schema == nil {
		return nil, &model.ConfigurationError{Reason: "session requires a schema"}
	}
	s := &Session{
		id:     uuid.New(),
		schema: schema,
		logger: slog.Default().WithGroup("session"),
		errors: validation.ErrorMap{},
		phase:  PhaseIdle,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolver.New(resolver.WithLogger(s.logger))
	}
	if s.deriver == nil {
		s.deriver = derive.New()
	}
	if s.validator == nil {
		s.validator = validation.New(validation.WithResolver(s.resolver), validation.WithLogger(s.logger))
	}

	result := s.resolver.Settle(schema, s.values)
	s.apply(result)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Kind returns the form kind.
func (s *Session) Kind() model.FormKind { return s.schema.Kind() }

// Schema returns the schema the session was opened with.
func (s *Session) Schema() *model.Schema { return s.schema }

// Set applies a user edit: the resolver cascades resets, derived fields are
// recomputed and the error map is pruned to the visible fields. Once the
// form has been validated (a submit was attempted) every edit re-validates
// the whole form so fixed fields clear their error immediately.
//
// Unknown keys and derived keys are configuration errors.
func (s *Session) Set(key string, value any) error {
	field, err := s.schema.MustField(key)
	if err != nil {
		return err
	}
	if field.IsDerived() {
		return &model.ConfigurationError{Kind: s.schema.Kind(), Key: key, Reason: "derived fields are read-only"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.resolver.Resolve(s.schema, s.values, key, value)
	s.apply(result)
	if s.validated {
		s.errors = s.validator.Validate(s.schema, s.values)
	}
	s.logger.Debug("field changed", "session", s.id, "form", s.schema.Kind(), "field", key, "visible", len(s.visible), "errors", len(s.errors))
	return nil
}

// apply stores a resolve result, overwrites derived fields and drops errors
// for fields that are no longer visible. Callers hold mu (or own s).
func (s *Session) apply(result resolver.Result) {
	s.values = result.Values
	s.visible = result.Visible
	s.derived = s.deriver.Derive(s.schema, s.values)
	for key, value := range s.derived {
		s.values[key] = value
	}

	visible := make(map[string]struct{}, len(s.visible))
	for _, key := range s.visible {
		visible[key] = struct{}{}
	}
	for key := range s.errors {
		if _, ok := visible[key]; !ok {
			delete(s.errors, key)
		}
	}
}

// Validate runs the validation engine, stores the result and switches the
// session to re-validate on every later edit.
func (s *Session) Validate() validation.ErrorMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = s.validator.Validate(s.schema, s.values)
	s.validated = true
	return copyErrors(s.errors)
}

// Value returns the current value of key.
func (s *Session) Value(key string) (any, error) {
	if _, err := s.schema.MustField(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

// Values returns a copy of all values, derived fields included.
func (s *Session) Values() model.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Visible returns the visible keys in schema order.
func (s *Session) Visible() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visible...)
}

// IsVisible reports whether key is currently visible.
func (s *Session) IsVisible(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, candidate := range s.visible {
		if candidate == key {
			return true
		}
	}
	return false
}

// Derived returns the derived values.
func (s *Session) Derived() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.derived))
	for key, value := range s.derived {
		out[key] = value
	}
	return out
}

// Options returns the enum options currently offered for key.
func (s *Session) Options(key string) ([]string, error) {
	if _, err := s.schema.MustField(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Options(s.schema, s.values, key), nil
}

// Required returns the visible keys that currently carry a required rule.
func (s *Session) Required() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Required(s.schema, s.values)
}

// Errors returns a copy of the last validation result.
func (s *Session) Errors() validation.ErrorMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyErrors(s.errors)
}

// IsSubmitting reports whether a submission is in flight.
func (s *Session) IsSubmitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Phase returns the submission phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase records a phase transition that does not touch the submission
// guard (validating, invalid).
func (s *Session) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// BeginSubmit raises the submission guard. It returns false when a
// submission is already in flight.
func (s *Session) BeginSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return false
	}
	s.submitting = true
	s.phase = PhaseSubmitting
	return true
}

// FinishSubmit clears the submission guard and records the final phase.
func (s *Session) FinishSubmit(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	s.phase = phase
}

// Snapshot is an immutable copy of the session state at one instant.
type Snapshot struct {
	SessionID  uuid.UUID
	Schema     *model.Schema
	Values     model.Values
	Visible    []string
	Derived    map[string]int
	CapturedAt time.Time
}

// Snapshot captures the current state. Later edits do not affect it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	derived := make(map[string]int, len(s.derived))
	for key, value := range s.derived {
		derived[key] = value
	}
	return Snapshot{
		SessionID:  s.id,
		Schema:     s.schema,
		Values:     s.values.Clone(),
		Visible:    append([]string(nil), s.visible...),
		Derived:    derived,
		CapturedAt: time.Now(),
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.schema.Kind())
}

func copyErrors(in validation.ErrorMap) validation.ErrorMap {
	out := make(validation.ErrorMap, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
