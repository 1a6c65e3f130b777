package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goethite/gostint-tui/internal/mockbackend"
)

func TestGostintJobs(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	clients := newClients(t, url)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		backend.AddJob(fmt.Sprintf("j%02d", i), "success", "play", "alpine", base.Add(time.Duration(i)*time.Minute))
	}
	backend.AddJob("busy", "running", "play", "alpine", base.Add(-time.Hour))

	t.Run("list newest first", func(t *testing.T) {
		page, err := clients.Gostint.ListJobs(ctx, testRoot, 0)
		require.NoError(t, err)
		assert.Equal(t, 13, page.Total)
		require.Len(t, page.Data, PageSize)
		assert.Equal(t, "j11", page.Data[0].ID)

		page, err = clients.Gostint.ListJobs(ctx, testRoot, 10)
		require.NoError(t, err)
		require.Len(t, page.Data, 3)
		assert.Equal(t, "busy", page.Data[2].ID)
	})

	t.Run("negative skip is clamped", func(t *testing.T) {
		_, err := clients.Gostint.ListJobs(ctx, testRoot, -10)
		require.NoError(t, err)
		reqs := backend.Requests()
		assert.Equal(t, "skip=0", reqs[len(reqs)-1].Query)
	})

	t.Run("get", func(t *testing.T) {
		job, err := clients.Gostint.GetJob(ctx, testRoot, "busy")
		require.NoError(t, err)
		assert.Equal(t, StatusRunning, job.Status)

		_, err = clients.Gostint.GetJob(ctx, testRoot, "missing")
		var herr *HTTPError
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	})

	t.Run("kill", func(t *testing.T) {
		resp, err := clients.Gostint.KillJob(ctx, testRoot, "busy")
		require.NoError(t, err)
		assert.True(t, resp.KillRequested)
		assert.Equal(t, "/v1/api/job/kill/busy", lastRequest(backend).Path)
	})

	t.Run("delete", func(t *testing.T) {
		err := clients.Gostint.DeleteJob(ctx, testRoot, "busy")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "running/stopping")

		require.NoError(t, clients.Gostint.DeleteJob(ctx, testRoot, "j00"))
		page, err := clients.Gostint.ListJobs(ctx, testRoot, 0)
		require.NoError(t, err)
		assert.Equal(t, 12, page.Total)
	})

	t.Run("ids are required", func(t *testing.T) {
		_, err := clients.Gostint.GetJob(ctx, testRoot, "")
		assert.Error(t, err)
		assert.Error(t, clients.Gostint.DeleteJob(ctx, testRoot, ""))
		_, err = clients.Gostint.KillJob(ctx, testRoot, "")
		assert.Error(t, err)
	})

	t.Run("request headers", func(t *testing.T) {
		r := lastRequest(backend)
		assert.Equal(t, testRoot, r.AuthToken)
		assert.Empty(t, r.VaultToken)
	})
}

func lastRequest(b *mockbackend.Backend) mockbackend.Request {
	reqs := b.Requests()
	return reqs[len(reqs)-1]
}

func TestGostintPermissionDenied(t *testing.T) {
	_, url := newBackend(t, mockbackend.Options{})
	clients := newClients(t, url)

	_, err := clients.Gostint.ListJobs(context.Background(), "expired", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Contains(t, err.Error(), "403")
}

func TestGostintListErrorField(t *testing.T) {
	body := `{"error":"Error making API request.\n\nCode: 403. Errors:\n\n* permission denied"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skip") == "1" {
			body = `{"error":"mongo unavailable"}`
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewGostintClient(srv.URL, GostintOptions{})
	_, err := client.ListJobs(context.Background(), "api", 0)
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	_, err = client.ListJobs(context.Background(), "api", 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPermissionDenied))
	assert.Equal(t, "mongo unavailable", err.Error())
}

func TestGostintOpenEndpoints(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	backend.AddJob("q1", "queued", "play", "alpine", time.Now())
	client := NewGostintClient(url, GostintOptions{RateLimit: 100})
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "active", health["state"])
	assert.Equal(t, "1", health["queued_jobs"])

	info, err := client.VaultInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, url, info.Preferred())

	for _, r := range backend.Requests() {
		assert.Empty(t, r.AuthToken)
	}
}

func TestSubmitJobRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	_, err := NewGostintClient(srv.URL, GostintOptions{}).SubmitJob(context.Background(), "api", JobWrapper{})
	assert.ErrorContains(t, err, "missing job id")
}
