package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tasktrack.dev/internal/ids"
	"tasktrack.dev/internal/tasks"
)

const taskColumns = `id, title, description, status, created_by, assigned_to, completed_at, created_at, updated_at`

const commentTaskFK = "task_comments_task_id_fkey"

func scanTask(row rowScanner, extra ...any) (*tasks.Task, error) {
	var (
		t         tasks.Task
		completed sql.NullTime
	)
	dest := append([]any{&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatedBy, &t.AssignedTo, &completed, &t.CreatedAt, &t.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if completed.Valid {
		at := completed.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *tasks.Task) error {
	id := ids.New()
	err := s.db.QueryRowContext(ctx, `
		insert into tasks (id, title, description, status, created_by, assigned_to, completed_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, id, t.Title, t.Description, t.Status, t.CreatedBy, t.AssignedTo, nullTime(t.CompletedAt)).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: referenced user does not exist", tasks.ErrInvalidInput)
		}
		return err
	}
	t.ID = id
	return nil
}

func (s *Store) FindTask(ctx context.Context, id string) (*tasks.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `select `+taskColumns+` from tasks where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tasks.ErrNotFound
	}
	return t, err
}

// UpdateTask folds the completed guard into the write so concurrent edits
// serialize on the row lock and the first completion wins. A completion also
// requires the row to still be assigned to ch.ExpectAssignee.
func (s *Store) UpdateTask(ctx context.Context, id string, ch tasks.Changes) (*tasks.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `
		update tasks set
			title = coalesce($2, title),
			description = coalesce($3, description),
			status = coalesce($4, status),
			assigned_to = coalesce($5, assigned_to),
			completed_at = coalesce($6, completed_at),
			updated_at = now()
		where id = $1 and status <> 'completed'
			and ($7::text is null or assigned_to = $7)
		returning `+taskColumns,
		id, nullString(ch.Title), nullString(ch.Description), nullString(ch.Status), nullString(ch.AssignedTo), nullTime(ch.CompletedAt), nullString(ch.ExpectAssignee)))
	if err == nil {
		return t, nil
	}
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return nil, fmt.Errorf("%w: assigned user does not exist", tasks.ErrInvalidInput)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var status, assignee string
	err = s.db.QueryRowContext(ctx, `select status, assigned_to from tasks where id = $1`, id).Scan(&status, &assignee)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, tasks.ErrNotFound
	case err != nil:
		return nil, err
	case status == tasks.StatusCompleted:
		return nil, tasks.ErrTerminalState
	case ch.ExpectAssignee != nil && assignee != *ch.ExpectAssignee:
		return nil, fmt.Errorf("%w: only the assigned user can mark task as completed", tasks.ErrForbidden)
	}
	return nil, fmt.Errorf("update task %s: guard failed on a row that changed concurrently", id)
}

func (s *Store) DeleteTaskCascade(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `select id from tasks where id = $1 for update`, id).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tasks.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from task_comments where task_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from tasks where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListTasksWithRelations(ctx context.Context) ([]tasks.TaskWithRelations, error) {
	rows, err := s.db.QueryContext(ctx, `
		select t.id, t.title, t.description, t.status, t.created_by, t.assigned_to, t.completed_at, t.created_at, t.updated_at,
		       c.id, c.email, c.name, a.id, a.email, a.name
		from tasks t
		left join users c on c.id = t.created_by
		left join users a on a.id = t.assigned_to
		order by t.created_at desc, t.id desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []tasks.TaskWithRelations{}
	index := map[string]int{}
	for rows.Next() {
		var creator, assignee summaryColumns
		t, err := scanTask(rows, &creator.id, &creator.email, &creator.name, &assignee.id, &assignee.email, &assignee.name)
		if err != nil {
			return nil, err
		}
		index[t.ID] = len(result)
		result = append(result, tasks.TaskWithRelations{
			Task:     *t,
			Creator:  creator.summary(),
			Assignee: assignee.summary(),
			Comments: []tasks.Comment{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	crows, err := s.db.QueryContext(ctx, `
		select id, task_id, user_id, comment, created_at
		from task_comments
		order by created_at asc, id asc
	`)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c tasks.Comment
		if err := crows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Comment, &c.CreatedAt); err != nil {
			return nil, err
		}
		// Comments of tasks created after the first query are skipped.
		if i, ok := index[c.TaskID]; ok {
			result[i].Comments = append(result[i].Comments, c)
		}
	}
	return result, crows.Err()
}

func (s *Store) CreateComment(ctx context.Context, c *tasks.Comment) error {
	id := ids.New()
	err := s.db.QueryRowContext(ctx, `
		insert into task_comments (id, task_id, user_id, comment)
		values ($1, $2, $3, $4)
		returning created_at
	`, id, c.TaskID, c.UserID, c.Comment).Scan(&c.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			if pgErr.ConstraintName == commentTaskFK {
				return tasks.ErrNotFound
			}
			return fmt.Errorf("%w: author does not exist", tasks.ErrInvalidInput)
		}
		return err
	}
	c.ID = id
	return nil
}

func (s *Store) ListComments(ctx context.Context, taskID string) ([]tasks.CommentWithAuthor, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.task_id, c.user_id, c.comment, c.created_at, u.id, u.email, u.name
		from task_comments c
		left join users u on u.id = c.user_id
		where c.task_id = $1
		order by c.created_at asc, c.id asc
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []tasks.CommentWithAuthor{}
	for rows.Next() {
		var (
			c      tasks.Comment
			author summaryColumns
		)
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Comment, &c.CreatedAt, &author.id, &author.email, &author.name); err != nil {
			return nil, err
		}
		result = append(result, tasks.CommentWithAuthor{Comment: c, User: author.summary()})
	}
	return result, rows.Err()
}

type summaryColumns struct {
	id, email, name sql.NullString
}

func (c summaryColumns) summary() *tasks.UserSummary {
	if !c.id.Valid {
		return nil
	}
	return &tasks.UserSummary{ID: c.id.String, Email: c.email.String, Name: c.name.String}
}
