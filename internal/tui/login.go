package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sessionTokenRequest is the token used for listing and inspecting jobs for
// the rest of the session.
var sessionTokenRequest = TokenRequest{
	Policies:    []string{"default"},
	TTL:         "1h",
	DisplayName: "gostint_tui_session",
}

type LoginError struct {
	Err error
}

func (e *LoginError) Error() string {
	return "login failed: " + e.Err.Error()
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

type Authenticator struct {
	Options ConnectOptions
	Logger  *zap.Logger
}

// DiscoverVault asks gostint for the vault address when none is configured.
func DiscoverVault(ctx context.Context, gostint *GostintClient) (string, error) {
	info, err := gostint.VaultInfo(ctx)
	if err != nil {
		return "", err
	}
	addr := NormalizeBaseURL(info.Preferred())
	if addr == "" {
		return "", errors.New("gostint did not report a vault address")
	}
	return addr, nil
}

// Login checks the credential with vault, mints the session token and
// returns the session together with clients bound to its backends.
func (a *Authenticator) Login(ctx context.Context, token string, b Backends) (Session, *Clients, error) {
	log := a.Logger
	if log == nil {
		log = zap.NewNop()
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, nil, &LoginError{Err: errors.New("a vault token is required")}
	}
	b.GostintURL = NormalizeBaseURL(b.GostintURL)
	if b.GostintURL == "" {
		return Session{}, nil, &LoginError{Err: errors.New("gostint URL is required")}
	}

	if NormalizeBaseURL(b.VaultURL) == "" {
		addr, err := DiscoverVault(ctx, NewGostintClient(b.GostintURL, GostintOptions{Timeout: a.Options.Timeout}))
		if err != nil {
			return Session{}, nil, &LoginError{Err: fmt.Errorf("vault discovery: %w", err)}
		}
		log.Info("Discovered vault address", zap.String("vault", addr))
		b.VaultURL = addr
	}
	b.VaultURL = NormalizeBaseURL(b.VaultURL)

	clients, err := Connect(b, a.Options)
	if err != nil {
		return Session{}, nil, &LoginError{Err: err}
	}

	info, err := clients.Vault.LookupSelf(ctx, token)
	if err != nil {
		log.Warn("Token lookup failed", zap.String("vault", b.VaultURL), zap.Error(err))
		return Session{}, nil, &LoginError{Err: err}
	}

	apiToken, err := clients.Vault.CreateToken(ctx, token, sessionTokenRequest)
	if err != nil {
		return Session{}, nil, &LoginError{Err: err}
	}

	sess := Session{
		Token:    token,
		APIToken: apiToken,
		Backends: b,
		Since:    time.Now(),
	}
	log.Info("Logged in",
		zap.String("display_name", info.DisplayName),
		zap.Strings("policies", info.Policies),
		zap.Any("session", sess.Redacted()))
	return sess, clients, nil
}
