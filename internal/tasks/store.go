package tasks

import "context"

// Store describes persistence operations required by the task manager.
type Store interface {
	// CreateTask inserts t, filling ID and timestamps. Returns ErrInvalidInput
	// when a referenced account does not exist.
	CreateTask(ctx context.Context, t *Task) error
	FindTask(ctx context.Context, id string) (*Task, error)
	// UpdateTask applies ch only while the task is not completed, in a single
	// atomic step. Returns ErrTerminalState when the guard fails, ErrForbidden
	// when ch.ExpectAssignee no longer matches and ErrNotFound when the task
	// is gone.
	UpdateTask(ctx context.Context, id string, ch Changes) (*Task, error)
	// DeleteTaskCascade removes the task and all its comments, all or nothing.
	DeleteTaskCascade(ctx context.Context, id string) error
	ListTasksWithRelations(ctx context.Context) ([]TaskWithRelations, error)

	CreateComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, taskID string) ([]CommentWithAuthor, error)
}
