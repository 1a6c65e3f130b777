package tui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goethite/gostint-tui/internal/mockbackend"
)

func gostintRequests(reqs []mockbackend.Request) []mockbackend.Request {
	var out []mockbackend.Request
	for _, r := range reqs {
		if strings.HasPrefix(r.Path, "/v1/api/") {
			out = append(out, r)
		}
	}
	return out
}

func TestSubmit(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	clients := newClients(t, url)
	sub := NewSubmitter(clients.Vault, clients.Gostint, nil)

	result, err := sub.Submit(context.Background(), testSession(url), sampleSpec(), DefaultRole)
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	assert.NotEmpty(t, result.Job.ID)
	assert.Equal(t, StatusQueued, result.Job.Status)
	assert.Equal(t, []string{
		"create-api-token",
		"approle-secret-id",
		"wrap-secret-id",
		"encrypt-job",
		"create-cubby-token",
		"write-cubbyhole",
		"submit-job",
	}, result.Steps)

	reqs := backend.Requests()
	paths := make([]string, 0, len(reqs))
	for _, r := range reqs {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{
		"/v1/auth/token/create",
		"/v1/auth/approle/role/gostint-role/secret-id",
		"/v1/sys/wrapping/wrap",
		"/v1/transit/encrypt/gostint-role",
		"/v1/auth/token/create",
		"/v1/cubbyhole/job",
		"/v1/api/job",
	}, paths)

	t.Run("token scoping", func(t *testing.T) {
		var apiReq, cubbyReq map[string]any
		require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &apiReq))
		require.NoError(t, json.Unmarshal([]byte(reqs[4].Body), &cubbyReq))

		assert.Equal(t, []any{"default"}, apiReq["policies"])
		assert.EqualValues(t, 1, apiReq["num_uses"])
		assert.Equal(t, "gostint_ui", apiReq["display_name"])
		assert.EqualValues(t, 2, cubbyReq["num_uses"])
		assert.Equal(t, "300s", reqs[2].WrapTTL)
	})

	t.Run("primary credential only goes to vault", func(t *testing.T) {
		for _, r := range reqs[:5] {
			assert.Equal(t, testRoot, r.VaultToken, r.Path)
		}
		assert.NotEqual(t, testRoot, reqs[5].VaultToken, "cubbyhole is written with its own token")

		post := reqs[6]
		assert.NotEqual(t, testRoot, post.AuthToken)
		assert.NotContains(t, post.Body, `"`+testRoot+`"`)
		assert.Empty(t, post.VaultToken)

		var wrapper JobWrapper
		require.NoError(t, json.Unmarshal([]byte(post.Body), &wrapper))
		assert.Equal(t, "play", wrapper.QName)
		assert.Equal(t, CubbyholePath, wrapper.CubbyPath)
		assert.Equal(t, reqs[5].VaultToken, wrapper.CubbyToken)
		assert.NotEmpty(t, wrapper.WrapSecretID)
	})

	t.Run("encrypted payload is the job request", func(t *testing.T) {
		var body struct {
			Plaintext string `json:"plaintext"`
		}
		require.NoError(t, json.Unmarshal([]byte(reqs[3].Body), &body))
		raw, err := base64.StdEncoding.DecodeString(body.Plaintext)
		require.NoError(t, err)

		var job map[string]any
		require.NoError(t, json.Unmarshal(raw, &job))
		assert.Equal(t, []any{"echo", "hi"}, job["run"])
		assert.Equal(t, []any{"A=1"}, job["env_vars"])
		assert.Equal(t, []any{"db@secret/db"}, job["secret_refs"])
		assert.Equal(t, "alpine:3.19", job["container_image"])
	})
}

func TestSubmitStopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		step   string
		method string
		path   string
		nth    int
		status int
	}{
		{"create-api-token", "", "/v1/auth/token/create", 1, http.StatusForbidden},
		{"approle-secret-id", "", "/v1/auth/approle/", 0, http.StatusBadRequest},
		{"wrap-secret-id", "", "/v1/sys/wrapping/wrap", 0, http.StatusServiceUnavailable},
		{"encrypt-job", "", "/v1/transit/encrypt/", 0, http.StatusForbidden},
		{"create-cubby-token", "", "/v1/auth/token/create", 2, http.StatusForbidden},
		{"write-cubbyhole", "", "/v1/cubbyhole/", 0, http.StatusInternalServerError},
		{"submit-job", http.MethodPost, "/v1/api/job", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			backend, url := newBackend(t, mockbackend.Options{})
			backend.FailNth(tt.method, tt.path, tt.nth, tt.status)
			clients := newClients(t, url)

			_, err := NewSubmitter(clients.Vault, clients.Gostint, nil).
				Submit(context.Background(), testSession(url), sampleSpec(), DefaultRole)
			require.Error(t, err)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.step, stepErr.Step)

			var herr *HTTPError
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, tt.status, herr.StatusCode)
			assert.Contains(t, err.Error(), http.StatusText(tt.status))

			if tt.step != "submit-job" {
				assert.Empty(t, gostintRequests(backend.Requests()), "no job may reach gostint")
			}
		})
	}
}

func TestSubmitRejectsBeforeCallingOut(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	clients := newClients(t, url)
	sub := NewSubmitter(clients.Vault, clients.Gostint, nil)
	ctx := context.Background()

	_, err := sub.Submit(ctx, Session{}, sampleSpec(), DefaultRole)
	assert.Error(t, err)

	_, err = sub.Submit(ctx, testSession(url), sampleSpec(), " ")
	assert.ErrorContains(t, err, "AppRole")

	bad := sampleSpec()
	bad.ContainerImage = ""
	_, err = sub.Submit(ctx, testSession(url), bad, DefaultRole)
	assert.True(t, errors.Is(err, ErrInvalidJob))

	assert.Empty(t, backend.Requests())
}

func TestSubmitUnknownRole(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	clients := newClients(t, url)

	_, err := NewSubmitter(clients.Vault, clients.Gostint, nil).
		Submit(context.Background(), testSession(url), sampleSpec(), "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approle-secret-id")
	assert.Contains(t, err.Error(), "400")
	assert.Empty(t, gostintRequests(backend.Requests()))
}
