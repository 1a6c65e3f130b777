// Package mockbackend serves the slice of the vault and gostint HTTP APIs
// that gostint-tui uses, from memory, on a single router. It backs the
// package tests and the `gostint-tui mock` demo server.
package mockbackend

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRootToken = "root"

// Request is one recorded call, as the backend saw it.
type Request struct {
	Method     string
	Path       string
	Query      string
	VaultToken string
	AuthToken  string
	WrapTTL    string
	Body       string
}

type Options struct {
	RootToken string
	Roles     []string
	// AutoAdvance moves a job one status forward each time it is fetched.
	AutoAdvance bool
	Logger      *zap.Logger
}

type token struct {
	policies    []string
	displayName string
	ttl         time.Duration
	usesLeft    int // -1 means unlimited
}

type job struct {
	ID             string    `json:"_id"`
	Status         string    `json:"status"`
	QName          string    `json:"qname"`
	ContainerImage string    `json:"container_image"`
	Submitted      time.Time `json:"submitted"`
	Started        time.Time `json:"started"`
	Ended          time.Time `json:"ended"`
	Output         string    `json:"output"`
	ReturnCode     int       `json:"return_code"`
	KillRequested  bool      `json:"kill_requested"`

	run []string
}

type failure struct {
	method string
	prefix string
	status int
	nth    int // 0 fails every match
	seen   int
}

type Backend struct {
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	tokens    map[string]*token
	cubbyhole map[string]map[string]map[string]any
	wrapped   map[string]map[string]any
	jobs      map[string]*job
	requests  []Request
	failures  []failure
}

func New(opts Options) *Backend {
	if opts.RootToken == "" {
		opts.RootToken = DefaultRootToken
	}
	if len(opts.Roles) == 0 {
		opts.Roles = []string{"gostint-role"}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	b := &Backend{
		opts:      opts,
		log:       log,
		tokens:    map[string]*token{},
		cubbyhole: map[string]map[string]map[string]any{},
		wrapped:   map[string]map[string]any{},
		jobs:      map[string]*job{},
	}
	b.tokens[opts.RootToken] = &token{policies: []string{"root"}, displayName: "root", usesLeft: -1}
	return b
}

// Fail makes every request matching method and path prefix answer status.
// An empty method matches any method.
func (b *Backend) Fail(method, pathPrefix string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, failure{method: method, prefix: pathPrefix, status: status})
}

// FailNth is Fail for the nth matching request only, counting from 1.
func (b *Backend) FailNth(method, pathPrefix string, nth, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, failure{method: method, prefix: pathPrefix, status: status, nth: nth})
}

// Requests returns a copy of everything recorded so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// AddJob seeds a job, for list and detail tests.
func (b *Backend) AddJob(id, status, qname, image string, submitted time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[id] = &job{ID: id, Status: status, QName: qname, ContainerImage: image, Submitted: submitted}
}

func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, b.record, b.inject)

	writes := func(pattern string, h http.HandlerFunc) {
		// the vault client writes with PUT, curl and the browser with POST
		r.Put(pattern, h)
		r.Post(pattern, h)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(b.vaultAuth)
			r.Get("/auth/token/lookup-self", b.lookupSelf)
			writes("/auth/token/create", b.createToken)
			writes("/auth/approle/role/{role}/secret-id", b.secretID)
			writes("/sys/wrapping/wrap", b.wrap)
			writes("/transit/encrypt/{key}", b.encrypt)
			writes("/cubbyhole/*", b.cubbyWrite)
			r.Get("/cubbyhole/*", b.cubbyRead)
		})

		r.Get("/api/vault/info", b.vaultInfo)
		r.Get("/api/health", b.health)
		r.Route("/api/job", func(r chi.Router) {
			r.Use(b.gostintAuth)
			r.Post("/", b.postJob)
			r.Get("/", b.listJobs)
			r.Get("/{jobID}", b.getJob)
			r.Delete("/{jobID}", b.deleteJob)
			r.Post("/kill/{jobID}", b.killJob)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func vaultErrors(w http.ResponseWriter, status int, msgs ...string) {
	writeJSON(w, status, map[string][]string{"errors": msgs})
}

func gostintError(w http.ResponseWriter, status int, statusText, msg string) {
	writeJSON(w, status, map[string]string{"status": statusText, "error": msg})
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(raw)))

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Query:      r.URL.RawQuery,
			VaultToken: r.Header.Get("X-Vault-Token"),
			AuthToken:  r.Header.Get("X-Auth-Token"),
			WrapTTL:    r.Header.Get("X-Vault-Wrap-TTL"),
			Body:       string(raw),
		})
		b.mu.Unlock()

		b.log.Debug("mock request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		status := 0
		for i := range b.failures {
			f := &b.failures[i]
			if (f.method != "" && f.method != r.Method) || !strings.HasPrefix(r.URL.Path, f.prefix) {
				continue
			}
			f.seen++
			if f.nth == 0 || f.seen == f.nth {
				status = f.status
				break
			}
		}
		b.mu.Unlock()

		if status != 0 {
			vaultErrors(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// useToken consumes one use of a token; false when it is unknown or spent.
func (b *Backend) useToken(id string) (*token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tokens[id]
	if !ok {
		return nil, false
	}
	if t.usesLeft == 0 {
		delete(b.tokens, id)
		return nil, false
	}
	if t.usesLeft > 0 {
		t.usesLeft--
		if t.usesLeft == 0 {
			delete(b.tokens, id)
		}
	}
	return t, true
}

type tokenCtxKey struct{}

func (b *Backend) vaultAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Vault-Token")
		t, ok := b.useToken(id)
		if !ok {
			vaultErrors(w, http.StatusForbidden, "permission denied")
			return
		}
		next.ServeHTTP(w, r.WithContext(withToken(r.Context(), id, t)))
	})
}

func (b *Backend) gostintAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Auth-Token")
		if id == "" {
			gostintError(w, http.StatusBadRequest, "Invalid request.", "Missing X-Auth-Token")
			return
		}
		if _, ok := b.useToken(id); !ok {
			gostintError(w, http.StatusForbidden, "Permission denied.",
				fmt.Sprintf("Error making API request.\n\nURL: GET %s/v1/auth/token/lookup-self\nCode: 403. Errors:\n\n* permission denied", baseURL(r)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func decodeBody(r *http.Request) map[string]any {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func (b *Backend) lookupSelf(w http.ResponseWriter, r *http.Request) {
	_, t := tokenFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"display_name": t.displayName,
			"policies":     t.policies,
			"ttl":          int(t.ttl.Seconds()),
			"path":         "auth/token/create",
		},
		"errors": nil,
	})
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (b *Backend) createToken(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	ttl, _ := time.ParseDuration(fmt.Sprint(body["ttl"]))
	uses := -1
	if n, ok := body["num_uses"].(float64); ok && n > 0 {
		uses = int(n)
	}
	name, _ := body["display_name"].(string)
	t := &token{policies: stringList(body["policies"]), displayName: "token-" + name, ttl: ttl, usesLeft: uses}

	id := "s." + uuid.NewString()
	b.mu.Lock()
	b.tokens[id] = t
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"client_token":   id,
			"policies":       t.policies,
			"lease_duration": int(ttl.Seconds()),
			"renewable":      true,
		},
	})
}

func (b *Backend) secretID(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	known := false
	for _, name := range b.opts.Roles {
		known = known || name == role
	}
	if !known {
		vaultErrors(w, http.StatusBadRequest, fmt.Sprintf("role %q does not exist", role))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"secret_id":          uuid.NewString(),
			"secret_id_accessor": uuid.NewString(),
		},
	})
}

func (b *Backend) wrap(w http.ResponseWriter, r *http.Request) {
	ttl := r.Header.Get("X-Vault-Wrap-TTL")
	if ttl == "" {
		vaultErrors(w, http.StatusBadRequest, "wrap TTL required")
		return
	}
	data := decodeBody(r)
	id := "s." + uuid.NewString()
	b.mu.Lock()
	b.wrapped[id] = data
	b.mu.Unlock()

	d, _ := time.ParseDuration(ttl)
	writeJSON(w, http.StatusOK, map[string]any{
		"wrap_info": map[string]any{
			"token":         id,
			"ttl":           int(d.Seconds()),
			"creation_path": "sys/wrapping/wrap",
			"creation_time": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// encrypt is not encryption; it only tags the plaintext so gostint's side of
// the mock can get it back.
func (b *Backend) encrypt(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	plaintext, _ := body["plaintext"].(string)
	if _, err := base64.StdEncoding.DecodeString(plaintext); err != nil || plaintext == "" {
		vaultErrors(w, http.StatusBadRequest, "plaintext must be base64")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"ciphertext": "vault:v1:" + plaintext},
	})
}

func (b *Backend) cubbyWrite(w http.ResponseWriter, r *http.Request) {
	id, _ := tokenFrom(r.Context())
	path := chi.URLParam(r, "*")
	data := decodeBody(r)

	b.mu.Lock()
	if b.cubbyhole[id] == nil {
		b.cubbyhole[id] = map[string]map[string]any{}
	}
	b.cubbyhole[id][path] = data
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) cubbyRead(w http.ResponseWriter, r *http.Request) {
	id, _ := tokenFrom(r.Context())
	data, ok := b.readCubby(id, chi.URLParam(r, "*"))
	if !ok {
		vaultErrors(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (b *Backend) readCubby(tokenID, path string) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.cubbyhole[tokenID][path]
	return data, ok
}

func (b *Backend) vaultInfo(w http.ResponseWriter, r *http.Request) {
	addr := baseURL(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"vault_addr":          addr,
		"vault_external_addr": addr,
	})
}

func (b *Backend) health(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	counts := map[string]int{}
	for _, j := range b.jobs {
		counts[j.Status]++
	}
	total := len(b.jobs)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"state":        "active",
		"all_jobs":     fmt.Sprint(total),
		"queued_jobs":  fmt.Sprint(counts["queued"]),
		"running_jobs": fmt.Sprint(counts["running"]),
	})
}

type jobWrapper struct {
	QName        string `json:"qname"`
	CubbyToken   string `json:"cubby_token"`
	CubbyPath    string `json:"cubby_path"`
	WrapSecretID string `json:"wrap_secret_id"`
}

type jobPayload struct {
	ContainerImage string   `json:"container_image"`
	Run            []string `json:"run"`
}

func (b *Backend) postJob(w http.ResponseWriter, r *http.Request) {
	var wrapper jobWrapper
	if err := json.NewDecoder(r.Body).Decode(&wrapper); err != nil {
		gostintError(w, http.StatusBadRequest, "Invalid job request.", err.Error())
		return
	}
	if wrapper.WrapSecretID == "" {
		gostintError(w, http.StatusBadRequest, "Invalid job request.", "AppRole SecretID's Wrapping Token must be present in the job request")
		return
	}
	b.mu.Lock()
	_, wrappedOK := b.wrapped[wrapper.WrapSecretID]
	delete(b.wrapped, wrapper.WrapSecretID)
	b.mu.Unlock()
	if !wrappedOK {
		gostintError(w, http.StatusBadRequest, "Invalid job request.", "wrapping token is not valid")
		return
	}

	if _, ok := b.useToken(wrapper.CubbyToken); !ok {
		gostintError(w, http.StatusInternalServerError, "Internal Error.", "POSSIBLE SECURITY/INTERCEPTION ALERT!!! Failed to read cubbyhole from vault")
		return
	}
	data, ok := b.readCubby(wrapper.CubbyToken, strings.TrimPrefix(wrapper.CubbyPath, "cubbyhole/"))
	if !ok {
		gostintError(w, http.StatusInternalServerError, "Internal Error.", "cubbyhole is empty")
		return
	}
	ciphertext, _ := data["payload"].(string)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, "vault:v1:"))
	var payload jobPayload
	if err == nil {
		err = json.Unmarshal(raw, &payload)
	}
	if err != nil {
		gostintError(w, http.StatusInternalServerError, "Internal Error.", "failed to decrypt job payload")
		return
	}

	j := &job{
		ID:             strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Status:         "queued",
		QName:          strings.ToLower(wrapper.QName),
		ContainerImage: payload.ContainerImage,
		Submitted:      time.Now().UTC(),
		run:            payload.Run,
	}
	b.mu.Lock()
	b.jobs[j.ID] = j
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"_id": j.ID, "status": j.Status, "qname": j.QName})
}

func (b *Backend) listJobs(w http.ResponseWriter, r *http.Request) {
	skip := 0
	_, _ = fmt.Sscan(r.URL.Query().Get("skip"), &skip)
	if skip < 0 {
		skip = 0
	}

	b.mu.Lock()
	all := make([]job, 0, len(b.jobs))
	for _, j := range b.jobs {
		all = append(all, *j)
	}
	b.mu.Unlock()

	sort.Slice(all, func(i, k int) bool {
		if all[i].Submitted.Equal(all[k].Submitted) {
			return all[i].ID < all[k].ID
		}
		return all[i].Submitted.After(all[k].Submitted)
	})

	page := []job{}
	if skip < len(all) {
		end := skip + 10
		if end > len(all) {
			end = len(all)
		}
		page = all[skip:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  page,
		"skip":  skip,
		"limit": 10,
		"total": len(all),
	})
}

func (b *Backend) advance(j *job) {
	now := time.Now().UTC()
	switch j.Status {
	case "queued":
		j.Status = "running"
		j.Started = now
	case "running", "stopping":
		j.Ended = now
		if j.KillRequested {
			j.Status = "failed"
			j.ReturnCode = -1
			j.Output = "killed"
			return
		}
		j.Status = "success"
		j.Output = strings.Join(j.run, " ") + "\n"
	}
}

func (b *Backend) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	b.mu.Lock()
	j, ok := b.jobs[id]
	var snapshot job
	if ok {
		if b.opts.AutoAdvance {
			b.advance(j)
		}
		snapshot = *j
	}
	b.mu.Unlock()

	if !ok {
		gostintError(w, http.StatusNotFound, "Not Found.", "not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (b *Backend) deleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok {
		gostintError(w, http.StatusNotFound, "Not Found.", "not found")
		return
	}
	if j.Status == "running" || j.Status == "stopping" {
		gostintError(w, http.StatusBadRequest, "Invalid job request.", "Cannot delete a running/stopping job")
		return
	}
	delete(b.jobs, id)
	writeJSON(w, http.StatusOK, map[string]string{"_id": id})
}

func (b *Backend) killJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok {
		gostintError(w, http.StatusNotFound, "Not Found.", "not found")
		return
	}
	j.KillRequested = true
	writeJSON(w, http.StatusOK, map[string]any{
		"_id":            j.ID,
		"container_id":   "",
		"status":         j.Status,
		"kill_requested": true,
	})
}
