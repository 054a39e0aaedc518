package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasktrack.dev/internal/audit"
	"tasktrack.dev/internal/ids"
	"tasktrack.dev/internal/tasks"
)

// The created_by and user_id fields are accepted for older clients and
// ignored: the authenticated principal always wins.

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	AssignedTo  *string         `json:"assigned_to"`
	CreatedBy   json.RawMessage `json:"created_by,omitempty"`
}

type updateTaskRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	AssignedTo  *string         `json:"assigned_to"`
	UserID      json.RawMessage `json:"user_id,omitempty"`
}

type commentRequest struct {
	Comment string          `json:"comment"`
	UserID  json.RawMessage `json:"user_id,omitempty"`
}

type deleteTaskResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}

// taskID reads the path id. Malformed ids cannot name a task, so they 404.
func taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "task not found")
		return "", false
	}
	return id, true
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	task, err := a.tasks.Create(r.Context(), p, tasks.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		a.handleTaskError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.created", map[string]any{
		"task_id":     task.ID,
		"assigned_to": task.AssignedTo,
	})
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	items, err := a.tasks.List(r.Context())
	if err != nil {
		a.handleTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	task, err := a.tasks.Update(r.Context(), p, id, tasks.Update{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		a.handleTaskError(w, r, err)
		return
	}
	event := "task.updated"
	if task.Completed() {
		event = "task.completed"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
	})
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := a.tasks.Delete(r.Context(), p, id); err != nil {
		a.handleTaskError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.deleted", map[string]any{"task_id": id})
	writeJSON(w, http.StatusOK, deleteTaskResponse{
		Message: "Task and related comments deleted",
		TaskID:  id,
	})
}

func (a *API) handleAddComment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.tasks.AddComment(r.Context(), p, id, req.Comment)
	if err != nil {
		a.handleTaskError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "task.commented", map[string]any{
		"task_id":    id,
		"comment_id": c.ID,
	})
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	items, err := a.tasks.ListComments(r.Context(), id)
	if err != nil {
		a.handleTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
