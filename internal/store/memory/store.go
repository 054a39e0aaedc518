// Package memory keeps accounts, tokens, tasks and comments in process memory.
// It backs local development and the HTTP tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/ids"
	"tasktrack.dev/internal/tasks"
)

// Store implements auth.Store and tasks.Store with in-process concurrency safety.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	accounts map[string]*auth.Account
	byEmail  map[string]string // email -> account id
	tokens   map[string]*auth.TokenRecord
	byToken  map[string]string // refresh token -> account id
	tasks    map[string]*tasks.Task
	comments map[string][]tasks.Comment // task id -> comments in insertion order
}

var (
	_ auth.Store  = (*Store)(nil)
	_ tasks.Store = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		accounts: make(map[string]*auth.Account),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]*auth.TokenRecord),
		byToken:  make(map[string]string),
		tasks:    make(map[string]*tasks.Task),
		comments: make(map[string][]tasks.Comment),
	}
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// --- accounts ---

func (s *Store) CreateAccount(ctx context.Context, acc *auth.Account) error {
	if acc == nil {
		return fmt.Errorf("%w: account is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[acc.Email]; ok {
		return auth.ErrConflict
	}
	now := s.stamp()
	acc.ID = ids.New()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	cp := *acc
	s.accounts[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	return nil
}

func (s *Store) FindAccountByID(ctx context.Context, id string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

// ListAccounts returns newest accounts first.
func (s *Store) ListAccounts(ctx context.Context, filter auth.AccountFilter) ([]*auth.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*auth.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		if filter.Status != "" && acc.Status != filter.Status {
			continue
		}
		cp := *acc
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*auth.Account{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status auth.Status) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	acc.Status = status
	acc.UpdatedAt = s.stamp()
	out := *acc
	return &out, nil
}

// --- refresh token slots ---

func (s *Store) CreateTokenRecord(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.tokens[accountID]; ok {
		return auth.ErrConflict
	}
	now := s.stamp()
	s.tokens[accountID] = &auth.TokenRecord{AccountID: accountID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *Store) FindTokenRecord(ctx context.Context, accountID string) (*auth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[accountID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *Store) FindTokenByRefresh(ctx context.Context, refreshToken string) (*auth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[refreshToken]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyRecord(s.tokens[id]), nil
}

// SetRefreshToken creates the record when it is missing.
func (s *Store) SetRefreshToken(ctx context.Context, accountID, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return auth.ErrNotFound
	}
	if owner, ok := s.byToken[refreshToken]; ok && owner != accountID {
		return auth.ErrConflict
	}
	now := s.stamp()
	rec, ok := s.tokens[accountID]
	if !ok {
		rec = &auth.TokenRecord{AccountID: accountID, CreatedAt: now}
		s.tokens[accountID] = rec
	}
	s.replaceToken(rec, refreshToken, now)
	return nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, accountID, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[accountID]
	if !ok || rec.RefreshToken == nil || *rec.RefreshToken != current {
		return auth.ErrNotFound
	}
	if _, taken := s.byToken[next]; taken {
		return auth.ErrConflict
	}
	s.replaceToken(rec, next, s.stamp())
	return nil
}

// replaceToken must be called with mu held.
func (s *Store) replaceToken(rec *auth.TokenRecord, token string, now time.Time) {
	if rec.RefreshToken != nil {
		delete(s.byToken, *rec.RefreshToken)
	}
	t := token
	rec.RefreshToken = &t
	rec.UpdatedAt = now
	s.byToken[token] = rec.AccountID
}

func copyRecord(rec *auth.TokenRecord) *auth.TokenRecord {
	out := *rec
	if rec.RefreshToken != nil {
		t := *rec.RefreshToken
		out.RefreshToken = &t
	}
	return &out
}

// --- tasks ---

func (s *Store) CreateTask(ctx context.Context, t *tasks.Task) error {
	if t == nil {
		return fmt.Errorf("%w: task is required", tasks.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[t.CreatedBy]; !ok {
		return fmt.Errorf("%w: creator does not exist", tasks.ErrInvalidInput)
	}
	if _, ok := s.accounts[t.AssignedTo]; !ok {
		return fmt.Errorf("%w: assigned user does not exist", tasks.ErrInvalidInput)
	}
	now := s.stamp()
	t.ID = ids.New()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tasks[t.ID] = copyTask(t)
	return nil
}

func (s *Store) FindTask(ctx context.Context, id string) (*tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, tasks.ErrNotFound
	}
	return copyTask(t), nil
}

// UpdateTask checks the completed and assignee guards and applies the patch
// under one lock.
func (s *Store) UpdateTask(ctx context.Context, id string, ch tasks.Changes) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, tasks.ErrNotFound
	}
	if t.Completed() {
		return nil, tasks.ErrTerminalState
	}
	if ch.ExpectAssignee != nil && t.AssignedTo != *ch.ExpectAssignee {
		return nil, fmt.Errorf("%w: only the assigned user can mark task as completed", tasks.ErrForbidden)
	}
	if ch.AssignedTo != nil {
		if _, ok := s.accounts[*ch.AssignedTo]; !ok {
			return nil, fmt.Errorf("%w: assigned user does not exist", tasks.ErrInvalidInput)
		}
	}
	if ch.Title != nil {
		t.Title = *ch.Title
	}
	if ch.Description != nil {
		t.Description = *ch.Description
	}
	if ch.Status != nil {
		t.Status = *ch.Status
	}
	if ch.AssignedTo != nil {
		t.AssignedTo = *ch.AssignedTo
	}
	if ch.CompletedAt != nil {
		at := *ch.CompletedAt
		t.CompletedAt = &at
	}
	t.UpdatedAt = s.stamp()
	return copyTask(t), nil
}

func (s *Store) DeleteTaskCascade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return tasks.ErrNotFound
	}
	delete(s.comments, id)
	delete(s.tasks, id)
	return nil
}

// ListTasksWithRelations returns newest tasks first with comments oldest first.
func (s *Store) ListTasksWithRelations(ctx context.Context) ([]tasks.TaskWithRelations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tasks.TaskWithRelations, 0, len(s.tasks))
	for _, t := range s.tasks {
		comments := make([]tasks.Comment, len(s.comments[t.ID]))
		copy(comments, s.comments[t.ID])
		out = append(out, tasks.TaskWithRelations{
			Task:     *copyTask(t),
			Assignee: s.summary(t.AssignedTo),
			Creator:  s.summary(t.CreatedBy),
			Comments: comments,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateComment(ctx context.Context, c *tasks.Comment) error {
	if c == nil {
		return fmt.Errorf("%w: comment is required", tasks.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[c.TaskID]; !ok {
		return tasks.ErrNotFound
	}
	if _, ok := s.accounts[c.UserID]; !ok {
		return fmt.Errorf("%w: author does not exist", tasks.ErrInvalidInput)
	}
	c.ID = ids.New()
	c.CreatedAt = s.stamp()
	s.comments[c.TaskID] = append(s.comments[c.TaskID], *c)
	return nil
}

func (s *Store) ListComments(ctx context.Context, taskID string) ([]tasks.CommentWithAuthor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.comments[taskID]
	out := make([]tasks.CommentWithAuthor, 0, len(src))
	for _, c := range src {
		out = append(out, tasks.CommentWithAuthor{Comment: c, User: s.summary(c.UserID)})
	}
	return out, nil
}

// summary must be called with mu held.
func (s *Store) summary(accountID string) *tasks.UserSummary {
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil
	}
	return &tasks.UserSummary{ID: acc.ID, Email: acc.Email, Name: acc.Name}
}

func copyTask(t *tasks.Task) *tasks.Task {
	out := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
