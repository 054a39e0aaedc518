package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/obs"
	"tasktrack.dev/internal/stream"
)

const tracerName = "tasktrack.dev/internal/tasks"

// Manager enforces the task state machine: completed tasks are frozen, only
// the assignee completes, only the creator or an admin deletes.
type Manager struct {
	store  Store
	now    func() time.Time
	tracer trace.Tracer
	events Publisher
}

// Publisher receives an event after every successful change.
type Publisher interface {
	Publish(stream.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(stream.Event) {}

// Option configures Manager.
type Option func(*Manager)

// WithClock overrides the time source used for completion stamps.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithPublisher forwards lifecycle events, typically to a stream.Broker.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.events = p
		}
	}
}

// NewManager constructs a Manager over store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("task store is required")
	}
	m := &Manager{
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
		events: nopPublisher{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateInput is the client supplied part of a new task.
type CreateInput struct {
	Title       string
	Description string
	AssignedTo  *string
}

// Update is a partial edit. Nil fields are left alone.
type Update struct {
	Title       *string
	Description *string
	Status      *string
	AssignedTo  *string
}

func (u Update) empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.AssignedTo == nil
}

// Create stores a new open task owned by p. Without an assignee the creator
// is assigned.
func (m *Manager) Create(ctx context.Context, p auth.Principal, in CreateInput) (_ *Task, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Create")
	defer func() { endSpan(span, err) }()

	if p.ID == "" {
		return nil, auth.ErrUnauthorized
	}
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return nil, fmt.Errorf("%w: title and description are required", ErrInvalidInput)
	}
	assignee := p.ID
	if in.AssignedTo != nil {
		if v := strings.TrimSpace(*in.AssignedTo); v != "" {
			assignee = v
		}
	}

	t := &Task{
		Title:       title,
		Description: description,
		Status:      StatusOpen,
		CreatedBy:   p.ID,
		AssignedTo:  assignee,
	}
	if err := m.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", t.ID))
	obs.RecordTaskTransition("create", "ok")
	m.publish(stream.TaskCreated, p, t)
	return t, nil
}

// Update applies upd to the task. Completed tasks reject every edit. Moving
// into completed is reserved to the assignee and stamps completed_at in the
// same write.
func (m *Manager) Update(ctx context.Context, p auth.Principal, id string, upd Update) (_ *Task, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Update", trace.WithAttributes(attribute.String("task.id", id)))
	defer func() { endSpan(span, err) }()

	if p.ID == "" {
		return nil, auth.ErrUnauthorized
	}
	if upd.empty() {
		return nil, fmt.Errorf("%w: no updatable fields provided", ErrInvalidInput)
	}

	task, err := m.store.FindTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Completed() {
		obs.RecordTaskTransition("update", "terminal")
		return nil, ErrTerminalState
	}
	ch, err := normalizeUpdate(upd)
	if err != nil {
		return nil, err
	}

	if ch.Status != nil && *ch.Status == StatusCompleted {
		if !auth.CanCompleteTask(p, task.Ref()) {
			obs.RecordTaskTransition("complete", "forbidden")
			return nil, fmt.Errorf("%w: only the assigned user can mark task as completed", ErrForbidden)
		}
		now := m.now().UTC()
		ch.CompletedAt = &now
		// The store re-checks the assignee in the same write.
		assignee := task.AssignedTo
		ch.ExpectAssignee = &assignee
	}

	updated, err := m.store.UpdateTask(ctx, id, ch)
	if err != nil {
		switch {
		case errors.Is(err, ErrTerminalState):
			// Someone completed it between our read and write.
			obs.RecordTaskTransition("update", "raced")
		case errors.Is(err, ErrForbidden):
			// Reassigned between our read and write.
			obs.RecordTaskTransition("complete", "raced")
		}
		return nil, err
	}
	if ch.CompletedAt != nil {
		obs.RecordTaskTransition("complete", "ok")
		m.publish(stream.TaskCompleted, p, updated)
	} else {
		obs.RecordTaskTransition("update", "ok")
		m.publish(stream.TaskUpdated, p, updated)
	}
	return updated, nil
}

func normalizeUpdate(upd Update) (Changes, error) {
	var ch Changes
	trimmed := func(field string, v *string) (*string, error) {
		if v == nil {
			return nil, nil
		}
		s := strings.TrimSpace(*v)
		if s == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, field)
		}
		return &s, nil
	}
	var err error
	if ch.Title, err = trimmed("title", upd.Title); err != nil {
		return Changes{}, err
	}
	if ch.Description, err = trimmed("description", upd.Description); err != nil {
		return Changes{}, err
	}
	if ch.Status, err = trimmed("status", upd.Status); err != nil {
		return Changes{}, err
	}
	if ch.AssignedTo, err = trimmed("assigned_to", upd.AssignedTo); err != nil {
		return Changes{}, err
	}
	return ch, nil
}

// Delete removes the task and its comments. Allowed for the creator or an admin
// regardless of status.
func (m *Manager) Delete(ctx context.Context, p auth.Principal, id string) (err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.Delete", trace.WithAttributes(attribute.String("task.id", id)))
	defer func() { endSpan(span, err) }()

	if p.ID == "" {
		return auth.ErrUnauthorized
	}
	task, err := m.store.FindTask(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanDeleteTask(p, task.Ref()) {
		obs.RecordTaskTransition("delete", "forbidden")
		return fmt.Errorf("%w: only admin or task creator can delete task", ErrForbidden)
	}
	if err := m.store.DeleteTaskCascade(ctx, id); err != nil {
		return err
	}
	obs.RecordTaskTransition("delete", "ok")
	m.events.Publish(stream.Event{Type: stream.TaskDeleted, TaskID: id, ActorID: p.ID, At: m.now().UTC()})
	return nil
}

// List returns every task with its people and comments, newest first.
func (m *Manager) List(ctx context.Context) (_ []TaskWithRelations, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.List")
	defer func() { endSpan(span, err) }()

	items, err := m.store.ListTasksWithRelations(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []TaskWithRelations{}
	}
	return items, nil
}

// AddComment appends a comment by p to an existing task.
func (m *Manager) AddComment(ctx context.Context, p auth.Principal, taskID, text string) (_ *Comment, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.AddComment", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer func() { endSpan(span, err) }()

	if p.ID == "" {
		return nil, auth.ErrUnauthorized
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment is required", ErrInvalidInput)
	}
	if _, err := m.store.FindTask(ctx, taskID); err != nil {
		return nil, err
	}
	c := &Comment{
		TaskID:  taskID,
		UserID:  p.ID,
		Comment: text,
	}
	if err := m.store.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	m.events.Publish(stream.Event{
		Type:      stream.CommentCreated,
		TaskID:    taskID,
		ActorID:   p.ID,
		CommentID: c.ID,
		At:        m.now().UTC(),
	})
	return c, nil
}

// ListComments returns the task's comments oldest first.
func (m *Manager) ListComments(ctx context.Context, taskID string) (_ []CommentWithAuthor, err error) {
	ctx, span := m.tracer.Start(ctx, "tasks.ListComments", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer func() { endSpan(span, err) }()

	if _, err := m.store.FindTask(ctx, taskID); err != nil {
		return nil, err
	}
	items, err := m.store.ListComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []CommentWithAuthor{}
	}
	return items, nil
}

func (m *Manager) publish(kind string, p auth.Principal, t *Task) {
	m.events.Publish(stream.Event{
		Type:       kind,
		TaskID:     t.ID,
		ActorID:    p.ID,
		Status:     t.Status,
		AssignedTo: t.AssignedTo,
		At:         m.now().UTC(),
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
