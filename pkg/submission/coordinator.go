// Package submission validates a form session, captures its payload and hands
// it to a transport. It owns the submit state machine:
//
//	idle → validating → invalid → idle
//	idle → validating → submitting → submitted | failed → idle
//
// While a submission is in flight the session keeps accepting edits, but a
// second submit returns the pending one instead of calling the transport
// again.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/session"
)

// Receipt is what a transport reports after accepting a payload.
type Receipt struct {
	Status    int
	Reference string
	Message   string
}

// Transport delivers payloads. Implementations own timeouts.
type Transport interface {
	SubmitForm(ctx context.Context, payload Payload) (Receipt, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, payload Payload) (Receipt, error)

// SubmitForm calls f.
func (f TransportFunc) SubmitForm(ctx context.Context, payload Payload) (Receipt, error) {
	return f(ctx, payload)
}

// Navigator is told about successful submissions, typically to move the user
// to a confirmation screen.
type Navigator interface {
	Navigate(ctx context.Context, outcome Outcome) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, outcome Outcome) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Outcome describes a successful submission.
type Outcome struct {
	SubmissionID uuid.UUID
	SessionID    uuid.UUID
	Kind         model.FormKind
	Payload      Payload
	Receipt      Receipt
}

// Observer is notified of every phase change, in order.
type Observer func(sessionID uuid.UUID, phase session.Phase)

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithNavigator sets the navigator called after a successful submission.
func WithNavigator(n Navigator) Option {
	return func(c *Coordinator) {
		c.navigator = n
	}
}

// WithPayloadBuilder replaces the default payload builder.
func WithPayloadBuilder(b *PayloadBuilder) Option {
	return func(c *Coordinator) {
		if b != nil {
			c.builder = b
		}
	}
}

// WithObserver registers a phase observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator runs submissions for any number of sessions.
type Coordinator struct {
	transport Transport
	navigator Navigator
	builder   *PayloadBuilder
	observers []Observer
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*Pending
}

// New constructs a Coordinator around transport.
func New(transport Transport, options ...Option) (*Coordinator, error) {
	if transport == nil {
		return nil, errors.New("submission: transport is required")
	}
	c := &Coordinator{
		transport: transport,
		builder:   NewPayloadBuilder(),
		logger:    slog.Default().WithGroup("submission"),
		pending:   make(map[uuid.UUID]*Pending),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// Pending is an in-flight or finished submission.
type Pending struct {
	id      uuid.UUID
	done    chan struct{}
	outcome Outcome
	err     error
}

func newPending(id uuid.UUID) *Pending {
	return &Pending{id: id, done: make(chan struct{})}
}

func (p *Pending) finish(outcome Outcome, err error) {
	p.outcome, p.err = outcome, err
	close(p.done)
}

// ID returns the submission identifier.
func (p *Pending) ID() uuid.UUID { return p.id }

// Done is closed once the outcome is known.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the submission finishes or ctx ends. Cancelling ctx does
// not stop the submission.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Submit starts a submission and waits for it.
func (c *Coordinator) Submit(ctx context.Context, sess *session.Session) (Outcome, error) {
	return c.Start(ctx, sess).Wait(ctx)
}

// Start validates sess and, when valid, sends a snapshot of its visible
// values on a background goroutine. Invalid sessions yield an already
// finished Pending carrying a *ValidationFailure. Calling Start again while a
// submission for sess is in flight returns that same Pending.
func (c *Coordinator) Start(ctx context.Context, sess *session.Session) *Pending {
	ctx, span := tracer.Start(ctx, "Coordinator.Start", trace.WithAttributes(
		attribute.String("form.kind", string(sess.Kind())),
		attribute.String("session.id", sess.ID().String()),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[sess.ID()]; ok {
		span.AddEvent("already submitting")
		c.logger.DebugContext(ctx, "submit ignored, already in flight", "session", sess.ID(), "submission", p.id)
		return p
	}

	c.transition(sess, session.PhaseValidating)
	errs := sess.Validate()
	if !errs.Valid() {
		c.transition(sess, session.PhaseInvalid)
		c.transition(sess, session.PhaseIdle)
		failure := &ValidationFailure{Errors: errs}
		span.SetAttributes(attribute.Int("validation.errors", len(errs)))
		c.logger.InfoContext(ctx, "submission blocked by validation", "session", sess.ID(), "form", sess.Kind(), "fields", errs.Keys())
		p := newPending(uuid.Nil)
		p.finish(Outcome{}, failure)
		return p
	}

	payload := c.builder.Build(sess.Snapshot())
	if !sess.BeginSubmit() {
		// Guard raised outside this coordinator.
		p := newPending(payload.SubmissionID)
		p.finish(Outcome{}, &TransportError{Op: "submit", Message: "a submission is already in progress"})
		return p
	}
	c.notify(sess, session.PhaseSubmitting)

	p := newPending(payload.SubmissionID)
	c.pending[sess.ID()] = p
	span.SetAttributes(attribute.String("submission.id", payload.SubmissionID.String()))

	go c.run(context.WithoutCancel(ctx), sess, p, payload)
	return p
}

func (c *Coordinator) run(ctx context.Context, sess *session.Session, p *Pending, payload Payload) {
	ctx, span := tracer.Start(ctx, "Coordinator.run", trace.WithAttributes(
		attribute.String("submission.id", payload.SubmissionID.String()),
	))
	defer span.End()

	receipt, err := c.transport.SubmitForm(ctx, payload)
	if err != nil {
		transportErr := asTransportError("submit", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, transportErr.Message)
		c.logger.WarnContext(ctx, "submission failed", "session", sess.ID(), "submission", payload.SubmissionID, "error", err)
		c.complete(sess, session.PhaseFailed, session.PhaseIdle)
		p.finish(Outcome{}, transportErr)
		return
	}

	outcome := Outcome{
		SubmissionID: payload.SubmissionID,
		SessionID:    sess.ID(),
		Kind:         payload.Kind,
		Payload:      payload,
		Receipt:      receipt,
	}
	c.complete(sess, session.PhaseSubmitted)
	c.logger.InfoContext(ctx, "submission accepted", "session", sess.ID(), "submission", payload.SubmissionID, "reference", receipt.Reference)

	if c.navigator != nil {
		if navErr := c.navigator.Navigate(ctx, outcome); navErr != nil {
			span.RecordError(navErr)
			c.logger.ErrorContext(ctx, "navigation after submission failed", "submission", payload.SubmissionID, "error", navErr)
		}
	}
	p.finish(outcome, nil)
}

// complete walks the closing phases, lowers the session guard and forgets
// the pending submission under one lock so a concurrent Start sees either
// all of it or none.
func (c *Coordinator) complete(sess *session.Session, phases ...session.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, sess.ID())
	for _, phase := range phases {
		sess.FinishSubmit(phase)
		c.notify(sess, phase)
	}
}

func (c *Coordinator) transition(sess *session.Session, phase session.Phase) {
	sess.SetPhase(phase)
	c.notify(sess, phase)
}

func (c *Coordinator) notify(sess *session.Session, phase session.Phase) {
	c.logger.Debug("phase", "session", sess.ID(), "phase", phase)
	for _, observer := range c.observers {
		observer(sess.ID(), phase)
	}
}
