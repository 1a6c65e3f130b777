package tui

import (
	"context"
	"time"
)

// SecretsBackend is the part of vault the client needs.
type SecretsBackend interface {
	CreateToken(ctx context.Context, token string, req TokenRequest) (string, error)
	AppRoleSecretID(ctx context.Context, token, role string) (map[string]any, error)
	Wrap(ctx context.Context, token string, data map[string]any, ttl time.Duration) (string, error)
	TransitEncrypt(ctx context.Context, token, key, plaintextB64 string) (string, error)
	CubbyholeWrite(ctx context.Context, token, path, payload string) error
	LookupSelf(ctx context.Context, token string) (*TokenInfo, error)
}

// JobBackend is the gostint job API.
type JobBackend interface {
	SubmitJob(ctx context.Context, apiToken string, wrapper JobWrapper) (*SubmitResponse, error)
	ListJobs(ctx context.Context, apiToken string, skip int) (*JobPage, error)
	GetJob(ctx context.Context, apiToken, id string) (*JobResult, error)
	DeleteJob(ctx context.Context, apiToken, id string) error
	KillJob(ctx context.Context, apiToken, id string) (*KillResponse, error)
}

type ConnectOptions struct {
	Timeout   time.Duration
	RateLimit float64
}

// Clients is bound to one Backends value; a new login builds new clients.
type Clients struct {
	Vault   *VaultClient
	Gostint *GostintClient
}

func Connect(b Backends, opts ConnectOptions) (*Clients, error) {
	vault, err := NewVaultClient(b.VaultURL, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return &Clients{
		Vault:   vault,
		Gostint: NewGostintClient(b.GostintURL, GostintOptions{Timeout: opts.Timeout, RateLimit: opts.RateLimit}),
	}, nil
}
