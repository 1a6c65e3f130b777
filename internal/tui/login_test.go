package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goethite/gostint-tui/internal/mockbackend"
)

func TestLogin(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	auth := &Authenticator{Options: ConnectOptions{Timeout: 5 * time.Second}}

	sess, clients, err := auth.Login(context.Background(), " t1 ", Backends{GostintURL: url + "/", VaultURL: url})
	require.NoError(t, err)
	require.NotNil(t, clients)

	assert.True(t, sess.Valid())
	assert.Equal(t, testRoot, sess.Token)
	assert.NotEqual(t, testRoot, sess.APIToken)
	assert.Equal(t, url, sess.Backends.GostintURL)
	assert.False(t, sess.Since.IsZero())

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/v1/auth/token/lookup-self", reqs[0].Path)
	assert.Equal(t, "/v1/auth/token/create", reqs[1].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(reqs[1].Body), &body))
	assert.Equal(t, []any{"default"}, body["policies"])
	assert.Equal(t, "1h", body["ttl"])

	t.Run("session token lists jobs", func(t *testing.T) {
		backend.AddJob("j1", "success", "play", "alpine", time.Now())
		page, err := clients.Gostint.ListJobs(context.Background(), sess.APIToken, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
	})
}

func TestLoginDiscoversVault(t *testing.T) {
	backend, url := newBackend(t, mockbackend.Options{})
	auth := &Authenticator{}

	sess, clients, err := auth.Login(context.Background(), testRoot, Backends{GostintURL: url})
	require.NoError(t, err)
	assert.Equal(t, url, sess.Backends.VaultURL)
	assert.Equal(t, url, clients.Vault.Address())
	assert.Equal(t, "/v1/api/vault/info", backend.Requests()[0].Path)
}

func TestLoginFailures(t *testing.T) {
	_, url := newBackend(t, mockbackend.Options{})
	auth := &Authenticator{}
	ctx := context.Background()

	tests := []struct {
		name     string
		token    string
		backends Backends
		contains string
	}{
		{"missing token", "  ", Backends{GostintURL: url, VaultURL: url}, "token is required"},
		{"missing gostint", testRoot, Backends{VaultURL: url}, "gostint URL is required"},
		{"rejected token", "nope", Backends{GostintURL: url, VaultURL: url}, "403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, clients, err := auth.Login(ctx, tt.token, tt.backends)
			require.Error(t, err)
			assert.Nil(t, clients)

			var loginErr *LoginError
			assert.True(t, errors.As(err, &loginErr))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	t.Run("rejected token reads as permission denied", func(t *testing.T) {
		_, _, err := auth.Login(ctx, "nope", Backends{GostintURL: url, VaultURL: url})
		assert.True(t, errors.Is(err, ErrPermissionDenied))
	})
}

func TestLoginErrorsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":null,"errors":["token expired"]}`))
	}))
	defer srv.Close()

	_, _, err := (&Authenticator{}).Login(context.Background(), testRoot, Backends{GostintURL: srv.URL, VaultURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestDiscoverVaultPrefersExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"vault_addr":"http://vault:8200","vault_external_addr":"https://vault.example.com/"}`))
	}))
	defer srv.Close()

	addr, err := DiscoverVault(context.Background(), NewGostintClient(srv.URL, GostintOptions{}))
	require.NoError(t, err)
	assert.Equal(t, "https://vault.example.com", addr)
}
