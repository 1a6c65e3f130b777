package mockbackend

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct {
	t   *testing.T
	url string
}

func newServer(t *testing.T, opts Options) (*Backend, *client) {
	t.Helper()
	b := New(opts)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, &client{t: t, url: srv.URL}
}

func (c *client) do(method, path string, headers map[string]string, body any) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, c.url+path, rd)
	require.NoError(c.t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func vault(token string) map[string]string { return map[string]string{"X-Vault-Token": token} }
func gostint(token string) map[string]string { return map[string]string{"X-Auth-Token": token} }

func (c *client) createToken(parent string, uses int) string {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/v1/auth/token/create", vault(parent), map[string]any{
		"policies": []string{"default"}, "ttl": "1h", "num_uses": uses, "display_name": "test",
	})
	require.Equal(c.t, http.StatusOK, status)
	return body["auth"].(map[string]any)["client_token"].(string)
}

func TestDefaultRootToken(t *testing.T) {
	_, c := newServer(t, Options{})

	status, body := c.do(http.MethodGet, "/v1/auth/token/lookup-self", vault(DefaultRootToken), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "root", body["data"].(map[string]any)["display_name"])

	status, body = c.do(http.MethodGet, "/v1/auth/token/lookup-self", vault("nope"), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, []any{"permission denied"}, body["errors"])
}

func TestTokenUsesAreCounted(t *testing.T) {
	_, c := newServer(t, Options{RootToken: "t1"})
	tok := c.createToken("t1", 2)

	for i := 0; i < 2; i++ {
		status, _ := c.do(http.MethodGet, "/v1/auth/token/lookup-self", vault(tok), nil)
		assert.Equal(t, http.StatusOK, status, "use %d", i+1)
	}
	status, _ := c.do(http.MethodGet, "/v1/auth/token/lookup-self", vault(tok), nil)
	assert.Equal(t, http.StatusForbidden, status)

	unlimited := c.createToken("t1", 0)
	for i := 0; i < 5; i++ {
		status, _ := c.do(http.MethodGet, "/v1/api/job/", gostint(unlimited), nil)
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestGostintAuth(t *testing.T) {
	_, c := newServer(t, Options{})

	status, body := c.do(http.MethodGet, "/v1/api/job/", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing X-Auth-Token", body["error"])

	status, body = c.do(http.MethodGet, "/v1/api/job/", gostint("stale"), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body["error"], "Code: 403")
}

func TestFailureInjection(t *testing.T) {
	b, c := newServer(t, Options{})
	b.Fail(http.MethodPost, "/v1/sys/wrapping", http.StatusServiceUnavailable)

	status, body := c.do(http.MethodPost, "/v1/sys/wrapping/wrap", vault(DefaultRootToken), map[string]any{"a": 1})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, []any{"injected failure"}, body["errors"])

	// other methods and paths are unaffected
	status, _ = c.do(http.MethodGet, "/v1/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	reqs := b.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/v1/sys/wrapping/wrap", reqs[0].Path)
	assert.Equal(t, DefaultRootToken, reqs[0].VaultToken)
	assert.JSONEq(t, `{"a":1}`, reqs[0].Body)
}

func TestFailNth(t *testing.T) {
	b, c := newServer(t, Options{})
	b.FailNth("", "/v1/auth/token/create", 2, http.StatusForbidden)

	c.createToken(DefaultRootToken, 1)
	status, body := c.do(http.MethodPost, "/v1/auth/token/create", vault(DefaultRootToken), map[string]any{"ttl": "1h"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, []any{"injected failure"}, body["errors"])
	c.createToken(DefaultRootToken, 1)
}

func TestListOrderAndPaging(t *testing.T) {
	b, c := newServer(t, Options{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		b.AddJob(string(rune('a'+i)), "success", "play", "alpine", base.Add(time.Duration(i)*time.Minute))
	}
	tok := c.createToken(DefaultRootToken, 0)

	status, body := c.do(http.MethodGet, "/v1/api/job/", gostint(tok), nil)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].([]any)
	require.Len(t, data, 10)
	assert.Equal(t, "l", data[0].(map[string]any)["_id"])
	assert.EqualValues(t, 12, body["total"])

	status, body = c.do(http.MethodGet, "/v1/api/job/?skip=10", gostint(tok), nil)
	require.Equal(t, http.StatusOK, status)
	data = body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "a", data[1].(map[string]any)["_id"])
}

func TestDeleteRefusesRunningJobs(t *testing.T) {
	b, c := newServer(t, Options{})
	b.AddJob("busy", "running", "play", "alpine", time.Now())
	b.AddJob("done", "failed", "play", "alpine", time.Now())
	tok := c.createToken(DefaultRootToken, 0)

	status, body := c.do(http.MethodDelete, "/v1/api/job/busy", gostint(tok), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "running/stopping")

	status, _ = c.do(http.MethodDelete, "/v1/api/job/done", gostint(tok), nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/v1/api/job/done", gostint(tok), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAutoAdvance(t *testing.T) {
	tests := []struct {
		name  string
		kill  bool
		final string
		rc    float64
	}{
		{name: "runs to success", final: "success"},
		{name: "kill ends failed", kill: true, final: "failed", rc: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c := newServer(t, Options{AutoAdvance: true})
			b.AddJob("j1", "queued", "play", "alpine", time.Now())
			tok := c.createToken(DefaultRootToken, 0)

			_, body := c.do(http.MethodGet, "/v1/api/job/j1", gostint(tok), nil)
			assert.Equal(t, "running", body["status"])

			if tt.kill {
				status, body := c.do(http.MethodPost, "/v1/api/job/kill/j1", gostint(tok), nil)
				require.Equal(t, http.StatusOK, status)
				assert.Equal(t, true, body["kill_requested"])
			}

			_, body = c.do(http.MethodGet, "/v1/api/job/j1", gostint(tok), nil)
			assert.Equal(t, tt.final, body["status"])
			assert.Equal(t, tt.rc, body["return_code"])
		})
	}
}

// TestSubmitFlow walks the full credential chain by hand: the job reaches
// gostint only through the wrapped secret id and the cubbyhole token.
func TestSubmitFlow(t *testing.T) {
	b, c := newServer(t, Options{AutoAdvance: true})
	root := vault(DefaultRootToken)

	status, body := c.do(http.MethodPost, "/v1/auth/approle/role/gostint-role/secret-id", root, nil)
	require.Equal(t, http.StatusOK, status)
	secret := body["data"]

	status, _ = c.do(http.MethodPost, "/v1/sys/wrapping/wrap", root, secret)
	require.Equal(t, http.StatusBadRequest, status, "wrap needs a TTL")
	headers := map[string]string{"X-Vault-Token": DefaultRootToken, "X-Vault-Wrap-TTL": "300s"}
	status, body = c.do(http.MethodPost, "/v1/sys/wrapping/wrap", headers, secret)
	require.Equal(t, http.StatusOK, status)
	wrapInfo := body["wrap_info"].(map[string]any)
	assert.EqualValues(t, 300, wrapInfo["ttl"])

	payload := base64.StdEncoding.EncodeToString([]byte(`{"container_image":"alpine","run":["echo","hi"]}`))
	status, body = c.do(http.MethodPost, "/v1/transit/encrypt/gostint-role", root, map[string]any{"plaintext": payload})
	require.Equal(t, http.StatusOK, status)
	ciphertext := body["data"].(map[string]any)["ciphertext"].(string)

	cubby := c.createToken(DefaultRootToken, 2)
	status, _ = c.do(http.MethodPost, "/v1/cubbyhole/job", vault(cubby), map[string]any{"payload": ciphertext})
	require.Equal(t, http.StatusNoContent, status)

	api := c.createToken(DefaultRootToken, 0)
	status, body = c.do(http.MethodPost, "/v1/api/job/", gostint(api), map[string]any{
		"qname": "PLAY", "cubby_token": cubby, "cubby_path": "cubbyhole/job", "wrap_secret_id": wrapInfo["token"],
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "play", body["qname"])
	id := body["_id"].(string)

	// the wrapping token and the cubbyhole token are both spent
	status, _ = c.do(http.MethodGet, "/v1/cubbyhole/job", vault(cubby), nil)
	assert.Equal(t, http.StatusForbidden, status)

	for _, want := range []string{"running", "success"} {
		_, body = c.do(http.MethodGet, "/v1/api/job/"+id, gostint(api), nil)
		assert.Equal(t, want, body["status"])
	}
	assert.Equal(t, "echo hi\n", body["output"])
	assert.NotEmpty(t, b.Requests())
}

func TestUnknownRole(t *testing.T) {
	_, c := newServer(t, Options{Roles: []string{"other"}})
	status, body := c.do(http.MethodPost, "/v1/auth/approle/role/gostint-role/secret-id", vault(DefaultRootToken), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["errors"].([]any)[0], "does not exist")
}
