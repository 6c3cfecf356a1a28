package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gewnthar/areasync/logging"
	"github.com/gewnthar/areasync/models"
	"github.com/gewnthar/areasync/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type stubCheckpoints struct {
	cp  *models.ProgressCheckpoint
	err error
}

func (c stubCheckpoints) Load() (*models.ProgressCheckpoint, error) { return c.cp, c.err }

func newServer(t *testing.T, db Pinger, cps CheckpointReader) *httptest.Server {
	t.Helper()
	h := NewStatusHandler(db, services.NewProgress(), cps, logging.Discard())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"ok", nil, http.StatusOK, "ok"},
		{"db down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, stubPinger{tt.err}, stubCheckpoints{})
			resp, err := http.Get(srv.URL + "/api/health")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.body, body["status"])
		})
	}
}

func TestHealth_RejectsPost(t *testing.T) {
	srv := newServer(t, stubPinger{}, stubCheckpoints{})
	resp, err := http.Post(srv.URL+"/api/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestProgress(t *testing.T) {
	cp := &models.ProgressCheckpoint{Level: 1, LastID: "110000", Path: "北京市", Timestamp: 1714552200}
	srv := newServer(t, stubPinger{}, stubCheckpoints{cp: cp})

	resp, err := http.Get(srv.URL + "/api/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap models.ProgressSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.Running)
	assert.Zero(t, snap.TotalProcessed)
	assert.Equal(t, "00:00:00", snap.Elapsed)
	require.NotNil(t, snap.Checkpoint)
	assert.Equal(t, *cp, *snap.Checkpoint)
}

func TestProgress_CheckpointError(t *testing.T) {
	srv := newServer(t, stubPinger{}, stubCheckpoints{err: errors.New("corrupt")})

	resp, err := http.Get(srv.URL + "/api/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "corrupt")
}
