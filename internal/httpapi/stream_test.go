package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack.dev/internal/stream"
)

func TestStreamDisabled(t *testing.T) {
	c := newTestAPI(t)
	_, token, _ := c.signup("s@example.com")

	rr := c.as(token).get("/api/tasks/events")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStreamRequiresAuth(t *testing.T) {
	c, _ := newStreamingAPI(t)
	assert.Equal(t, http.StatusUnauthorized, c.get("/api/tasks/events").Code)
}

func TestStreamDeliversTaskEvents(t *testing.T) {
	c, broker := newStreamingAPI(t)
	_, token, _ := c.signup("watcher@example.com")

	srv := httptest.NewServer(c.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/tasks/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": stream started\n", first)
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	rr := c.as(token).post("/api/tasks", map[string]string{"title": "T", "description": "D"})
	require.Equal(t, http.StatusCreated, rr.Code)
	taskID := decode[taskBody](t, rr).ID

	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	assert.Equal(t, "event: "+stream.TaskCreated, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
	assert.Contains(t, lines[1], taskID)
}
