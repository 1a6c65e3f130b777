package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const authTokenHeader = "X-Auth-Token"

// JobWrapper is all gostint ever receives for a submission: references to
// the cubbyhole and the wrapped secret id, never the job itself.
type JobWrapper struct {
	QName        string `json:"qname"`
	CubbyToken   string `json:"cubby_token"`
	CubbyPath    string `json:"cubby_path"`
	WrapSecretID string `json:"wrap_secret_id"`
}

type SubmitResponse struct {
	ID     string    `json:"_id"`
	Status JobStatus `json:"status"`
	QName  string    `json:"qname"`
}

type JobResult struct {
	ID             string    `json:"_id"`
	Status         JobStatus `json:"status"`
	NodeUUID       string    `json:"node_uuid"`
	QName          string    `json:"qname"`
	ContainerImage string    `json:"container_image"`
	Submitted      time.Time `json:"submitted"`
	Started        time.Time `json:"started"`
	Ended          time.Time `json:"ended"`
	Output         string    `json:"output"`
	Stderr         string    `json:"stderr"`
	ReturnCode     int       `json:"return_code"`
	Tty            bool      `json:"tty"`
}

type JobPage struct {
	Data  []JobResult `json:"data"`
	Skip  int         `json:"skip"`
	Limit int         `json:"limit"`
	Total int         `json:"total"`
	Error string      `json:"error,omitempty"`
}

type KillResponse struct {
	ID            string    `json:"_id"`
	ContainerID   string    `json:"container_id"`
	Status        JobStatus `json:"status"`
	KillRequested bool      `json:"kill_requested"`
}

type VaultInfo struct {
	VaultAddr         string `json:"vault_addr"`
	VaultExternalAddr string `json:"vault_external_addr"`
}

// Preferred returns the address a client outside the cluster should use.
func (v VaultInfo) Preferred() string {
	if v.VaultExternalAddr != "" {
		return v.VaultExternalAddr
	}
	return v.VaultAddr
}

type GostintOptions struct {
	Timeout   time.Duration
	RateLimit float64
}

type GostintClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewGostintClient(baseURL string, opts GostintOptions) *GostintClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	c := &GostintClient{
		baseURL: NormalizeBaseURL(baseURL),
		http:    &http.Client{Timeout: opts.Timeout},
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

func (c *GostintClient) BaseURL() string {
	return c.baseURL
}

func (c *GostintClient) do(ctx context.Context, method, path, token string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	headers := map[string]string{"X-Request-Id": uuid.NewString()}
	if token != "" {
		headers[authTokenHeader] = token
	}
	return doJSON(ctx, c.http, method, joinURL(c.baseURL, path), headers, body, out)
}

func (c *GostintClient) SubmitJob(ctx context.Context, apiToken string, wrapper JobWrapper) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "v1/api/job", apiToken, wrapper, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.New("invalid API response from v1/api/job: missing job id")
	}
	return &resp, nil
}

func (c *GostintClient) ListJobs(ctx context.Context, apiToken string, skip int) (*JobPage, error) {
	if skip < 0 {
		skip = 0
	}
	var page JobPage
	path := "v1/api/job?" + url.Values{"skip": {fmt.Sprint(skip)}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, apiToken, nil, &page); err != nil {
		return nil, err
	}
	if page.Error != "" {
		if isPermissionDeniedText(page.Error) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, page.Error)
		}
		return nil, errors.New(page.Error)
	}
	return &page, nil
}

func (c *GostintClient) GetJob(ctx context.Context, apiToken, id string) (*JobResult, error) {
	if id == "" {
		return nil, errors.New("job id is required")
	}
	var job JobResult
	if err := c.do(ctx, http.MethodGet, "v1/api/job/"+url.PathEscape(id), apiToken, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *GostintClient) DeleteJob(ctx context.Context, apiToken, id string) error {
	if id == "" {
		return errors.New("job id is required")
	}
	return c.do(ctx, http.MethodDelete, "v1/api/job/"+url.PathEscape(id), apiToken, nil, nil)
}

func (c *GostintClient) KillJob(ctx context.Context, apiToken, id string) (*KillResponse, error) {
	if id == "" {
		return nil, errors.New("job id is required")
	}
	var resp KillResponse
	if err := c.do(ctx, http.MethodPost, "v1/api/job/kill/"+url.PathEscape(id), apiToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VaultInfo asks gostint which vault it trusts; no credentials required.
func (c *GostintClient) VaultInfo(ctx context.Context) (*VaultInfo, error) {
	var info VaultInfo
	if err := c.do(ctx, http.MethodGet, "v1/api/vault/info", "", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *GostintClient) Health(ctx context.Context) (map[string]string, error) {
	health := map[string]string{}
	if err := c.do(ctx, http.MethodGet, "v1/api/health", "", nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}
