package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

const vaultTokenHeader = "X-Vault-Token"

// TokenRequest describes a child token minted from the caller's credential.
type TokenRequest struct {
	Policies    []string
	TTL         string
	NumUses     int
	DisplayName string
}

type TokenInfo struct {
	DisplayName string
	Policies    []string
	TTL         time.Duration
	Path        string
}

type lookupSelfResponse struct {
	Data   map[string]any `json:"data"`
	Errors []string       `json:"errors"`
}

// VaultClient wraps the vault API client. The token is chosen per call so a
// single client serves the primary credential and the short lived tokens.
type VaultClient struct {
	base *api.Client
}

func NewVaultClient(address string, timeout time.Duration) (*VaultClient, error) {
	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		return nil, cfg.Error
	}
	cfg.Address = NormalizeBaseURL(address)
	cfg.MaxRetries = 0
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.ClearToken()
	return &VaultClient{base: client}, nil
}

func (v *VaultClient) Address() string {
	return v.base.Address()
}

func (v *VaultClient) withToken(token string) (*api.Client, error) {
	c, err := v.base.Clone()
	if err != nil {
		return nil, err
	}
	c.SetToken(token)
	return c, nil
}

// vaultError turns a vault API response error into an *HTTPError so callers
// see one error shape for both backends.
func vaultError(err error) error {
	var re *api.ResponseError
	if errors.As(err, &re) {
		return &HTTPError{
			Method:     re.HTTPMethod,
			URL:        re.URL,
			StatusCode: re.StatusCode,
			Status:     http.StatusText(re.StatusCode),
			Detail:     strings.Join(re.Errors, "; "),
		}
	}
	return err
}

func (v *VaultClient) CreateToken(ctx context.Context, token string, req TokenRequest) (string, error) {
	c, err := v.withToken(token)
	if err != nil {
		return "", err
	}
	secret, err := c.Auth().Token().CreateWithContext(ctx, &api.TokenCreateRequest{
		Policies:    req.Policies,
		TTL:         req.TTL,
		NumUses:     req.NumUses,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return "", vaultError(err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return "", errors.New("vault returned no client token")
	}
	return secret.Auth.ClientToken, nil
}

// AppRoleSecretID returns the raw data block of a freshly generated secret
// id, which is what gets wrapped afterwards.
func (v *VaultClient) AppRoleSecretID(ctx context.Context, token, role string) (map[string]any, error) {
	c, err := v.withToken(token)
	if err != nil {
		return nil, err
	}
	secret, err := c.Logical().WriteWithContext(ctx, fmt.Sprintf("auth/approle/role/%s/secret-id", role), nil)
	if err != nil {
		return nil, vaultError(err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault returned no secret id for role %q", role)
	}
	return secret.Data, nil
}

func (v *VaultClient) Wrap(ctx context.Context, token string, data map[string]any, ttl time.Duration) (string, error) {
	c, err := v.withToken(token)
	if err != nil {
		return "", err
	}
	wrapTTL := fmt.Sprintf("%ds", int(ttl.Seconds()))
	c.SetWrappingLookupFunc(func(operation, path string) string {
		if strings.TrimPrefix(path, "/v1/") == "sys/wrapping/wrap" {
			return wrapTTL
		}
		return ""
	})

	secret, err := c.Logical().WriteWithContext(ctx, "sys/wrapping/wrap", data)
	if err != nil {
		return "", vaultError(err)
	}
	if secret == nil || secret.WrapInfo == nil || secret.WrapInfo.Token == "" {
		return "", errors.New("vault returned no wrapping token")
	}
	return secret.WrapInfo.Token, nil
}

func (v *VaultClient) TransitEncrypt(ctx context.Context, token, key, plaintextB64 string) (string, error) {
	c, err := v.withToken(token)
	if err != nil {
		return "", err
	}
	secret, err := c.Logical().WriteWithContext(ctx, "transit/encrypt/"+key, map[string]any{
		"plaintext": plaintextB64,
	})
	if err != nil {
		return "", vaultError(err)
	}
	if secret == nil || secret.Data == nil {
		return "", errors.New("vault returned no ciphertext")
	}
	ciphertext, _ := secret.Data["ciphertext"].(string)
	if ciphertext == "" {
		return "", errors.New("vault returned no ciphertext")
	}
	return ciphertext, nil
}

func (v *VaultClient) CubbyholeWrite(ctx context.Context, token, path, payload string) error {
	c, err := v.withToken(token)
	if err != nil {
		return err
	}
	if _, err := c.Logical().WriteWithContext(ctx, path, map[string]any{"payload": payload}); err != nil {
		return vaultError(err)
	}
	return nil
}

// LookupSelf validates a credential. Transport failures, any non-200 status
// and a populated errors list are all reported as errors.
func (v *VaultClient) LookupSelf(ctx context.Context, token string) (*TokenInfo, error) {
	c, err := v.withToken(token)
	if err != nil {
		return nil, err
	}
	resp, err := c.Logical().ReadRawWithContext(ctx, "auth/token/lookup-self")
	if err != nil && resp == nil {
		return nil, err
	}
	defer resp.Body.Close()

	url := joinURL(v.base.Address(), "v1/auth/token/lookup-self")
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{
			Method:     http.MethodGet,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
	}

	var body lookupSelfResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", url, err)
	}
	if len(body.Errors) > 0 {
		return nil, errors.New(strings.Join(body.Errors, "; "))
	}
	if body.Data == nil {
		return nil, fmt.Errorf("invalid response from %s: missing data", url)
	}
	return tokenInfoFromData(body.Data), nil
}

func tokenInfoFromData(data map[string]any) *TokenInfo {
	info := &TokenInfo{}
	info.DisplayName, _ = data["display_name"].(string)
	info.Path, _ = data["path"].(string)
	if ttl, ok := data["ttl"].(float64); ok {
		info.TTL = time.Duration(ttl) * time.Second
	}
	if policies, ok := data["policies"].([]any); ok {
		for _, p := range policies {
			if s, ok := p.(string); ok {
				info.Policies = append(info.Policies, s)
			}
		}
	}
	return info
}
