package ui

import (
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/goethite/gostint-tui/internal/mockbackend"
	"github.com/goethite/gostint-tui/internal/tui"
)

const testRoot = "t1"

func newBackend(t *testing.T, opts mockbackend.Options) (*mockbackend.Backend, string) {
	t.Helper()
	opts.RootToken = testRoot
	b := mockbackend.New(opts)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv.URL
}

// collect runs cmd and any batch it expands to. Ticks in these tests use
// millisecond intervals so this returns quickly.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func find[T tea.Msg](msgs []tea.Msg) (T, bool) {
	for _, msg := range msgs {
		if m, ok := msg.(T); ok {
			return m, true
		}
	}
	var zero T
	return zero, false
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	ctrlS = tea.KeyMsg{Type: tea.KeyCtrlS}
)

func sampleSpec() tui.JobSpec {
	return tui.JobSpec{
		QName:          "play",
		ContainerImage: "alpine:3.19",
		Run:            "echo hi",
		EnvVars:        tui.KVList{{Key: "A", Val: "1"}},
	}
}

func fastOptions(url string) Options {
	return Options{
		Backends:     tui.Backends{GostintURL: url, VaultURL: url},
		Role:         tui.DefaultRole,
		ListRefresh:  time.Millisecond,
		PollInterval: time.Millisecond,
		Connect:      tui.ConnectOptions{Timeout: 5 * time.Second},
	}
}
