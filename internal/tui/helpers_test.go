package tui

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goethite/gostint-tui/internal/mockbackend"
)

const testRoot = "t1"

func newBackend(t *testing.T, opts mockbackend.Options) (*mockbackend.Backend, string) {
	t.Helper()
	if opts.RootToken == "" {
		opts.RootToken = testRoot
	}
	b := mockbackend.New(opts)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv.URL
}

func newClients(t *testing.T, url string) *Clients {
	t.Helper()
	clients, err := Connect(Backends{GostintURL: url, VaultURL: url}, ConnectOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return clients
}

func testSession(url string) Session {
	return Session{
		Token:    testRoot,
		APIToken: testRoot,
		Backends: Backends{GostintURL: url, VaultURL: url},
	}
}

func sampleSpec() JobSpec {
	return JobSpec{
		QName:          "play",
		ContainerImage: "alpine:3.19",
		Run:            "echo hi",
		EnvVars:        KVList{{Key: "A", Val: "1"}},
		SecretRefs:     KVList{{Key: "db", Val: "secret/db"}},
	}
}
