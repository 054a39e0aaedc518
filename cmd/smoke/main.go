// Command smoke drives a running tasktrack API through the full task
// lifecycle and exits non-zero on the first unexpected response.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tasktrack.dev/internal/obs"
)

type client struct {
	base  string
	http  *http.Client
	token string
}

func (c *client) call(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: got %d want %d: %s", method, path, resp.StatusCode, want, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *client) as(token string) *client {
	cp := *c
	cp.token = token
	return &cp
}

type session struct {
	ID    string
	Token string
}

func (c *client) signup(ctx context.Context, email string) (session, error) {
	creds := map[string]string{"email": email, "password": "smoke-pass", "name": "Smoke"}
	if err := c.call(ctx, http.MethodPost, "/api/auth/register", creds, http.StatusOK, nil); err != nil {
		return session{}, err
	}
	var res struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	delete(creds, "name")
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", creds, http.StatusOK, &res); err != nil {
		return session{}, err
	}
	return session{ID: res.User.ID, Token: res.Token}, nil
}

func run(ctx context.Context, c *client) (string, error) {
	tag := uuid.NewString()[:8]
	creator, err := c.signup(ctx, "creator-"+tag+"@smoke.test")
	if err != nil {
		return "", err
	}
	assignee, err := c.signup(ctx, "assignee-"+tag+"@smoke.test")
	if err != nil {
		return "", err
	}

	var task struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	body := map[string]any{"title": "smoke " + tag, "description": "created by smoke", "assigned_to": assignee.ID}
	if err := c.as(creator.Token).call(ctx, http.MethodPost, "/api/tasks", body, http.StatusCreated, &task); err != nil {
		return "", err
	}
	path := "/api/tasks/" + task.ID

	done := map[string]string{"status": "completed"}
	if err := c.as(creator.Token).call(ctx, http.MethodPut, path, done, http.StatusForbidden, nil); err != nil {
		return "", err
	}
	if err := c.as(assignee.Token).call(ctx, http.MethodPost, path+"/comments", map[string]string{"comment": "on it"}, http.StatusCreated, nil); err != nil {
		return "", err
	}
	if err := c.as(assignee.Token).call(ctx, http.MethodPut, path, done, http.StatusOK, &task); err != nil {
		return "", err
	}
	if task.Status != "completed" {
		return "", fmt.Errorf("unexpected status after completion: %q", task.Status)
	}
	if err := c.as(assignee.Token).call(ctx, http.MethodPut, path, map[string]string{"title": "late edit"}, http.StatusConflict, nil); err != nil {
		return "", err
	}
	if err := c.as(creator.Token).call(ctx, http.MethodDelete, path, nil, http.StatusOK, nil); err != nil {
		return "", err
	}
	if err := c.as(creator.Token).call(ctx, http.MethodGet, path+"/comments", nil, http.StatusNotFound, nil); err != nil {
		return "", err
	}
	return task.ID, nil
}

func main() {
	log := obs.Logger()
	base := os.Getenv("TASKTRACK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 5 * time.Second}}
	taskID, err := run(ctx, c)
	if err != nil {
		log.WithError(err).WithField("base", base).Fatal("smoke test failed")
	}
	log.WithFields(logrus.Fields{"base": base, "task_id": taskID}).Info("smoke test passed")
}
