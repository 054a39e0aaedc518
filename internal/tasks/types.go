package tasks

import (
	"errors"
	"time"

	"tasktrack.dev/internal/auth"
)

var (
	ErrNotFound     = errors.New("tasks: not found")
	ErrInvalidInput = errors.New("tasks: invalid input")
	ErrForbidden    = errors.New("tasks: forbidden")
	// ErrTerminalState is returned for any edit of a completed task.
	ErrTerminalState = errors.New("tasks: completed tasks cannot be edited")
)

// Well-known statuses. Any other non-empty string is accepted as an open state.
const (
	StatusOpen       = "open"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Task is a unit of work owned by its creator.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	AssignedTo  string     `json:"assigned_to"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Completed reports whether the task reached its terminal state.
func (t *Task) Completed() bool {
	return t.Status == StatusCompleted
}

// Ref exposes the ownership fields to the authorization policy.
func (t *Task) Ref() auth.TaskRef {
	return auth.TaskRef{CreatedBy: t.CreatedBy, AssignedTo: t.AssignedTo}
}

// Comment is immutable once created and removed together with its task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the public slice of an account embedded in listings.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TaskWithRelations is a task joined with its people and comments.
type TaskWithRelations struct {
	Task
	Assignee *UserSummary `json:"assignedTo"`
	Creator  *UserSummary `json:"createdBy"`
	Comments []Comment    `json:"comments"`
}

// CommentWithAuthor is a comment joined with its author.
type CommentWithAuthor struct {
	Comment
	User *UserSummary `json:"user"`
}

// Changes is the store-level patch. Nil fields are left alone.
type Changes struct {
	Title       *string
	Description *string
	Status      *string
	AssignedTo  *string
	CompletedAt *time.Time
	// ExpectAssignee, when set, makes the write fail with ErrForbidden unless
	// the stored assignee still matches.
	ExpectAssignee *string
}
