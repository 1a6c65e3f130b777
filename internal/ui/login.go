package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/goethite/gostint-tui/internal/tui"
)

const (
	loginToken = iota
	loginGostint
	loginVault
	loginFieldCount
)

// LoginRequestedMsg carries what was typed; the shell performs the login.
type LoginRequestedMsg struct {
	Token    string
	Backends tui.Backends
}

type loginFinishedMsg struct {
	sess    tui.Session
	clients *tui.Clients
	err     error
}

type LoginForm struct {
	inputs [loginFieldCount]textinput.Model
	focus  int
	busy   bool
	err    string
}

func NewLoginForm(b tui.Backends) LoginForm {
	var l LoginForm
	l.inputs[loginToken] = newInput("vault token", 512)
	l.inputs[loginToken].EchoMode = textinput.EchoPassword
	l.inputs[loginToken].EchoCharacter = '•'
	l.inputs[loginGostint] = newInput("https://127.0.0.1:3232", 512)
	l.inputs[loginGostint].SetValue(b.GostintURL)
	l.inputs[loginVault] = newInput("(ask gostint)", 512)
	l.inputs[loginVault].SetValue(b.VaultURL)
	l.setFocus(loginToken)
	return l
}

func (l *LoginForm) setFocus(i int) {
	l.focus = i
	for j := range l.inputs {
		if j == i {
			l.inputs[j].Focus()
		} else {
			l.inputs[j].Blur()
		}
	}
}

// Reset clears the credential, keeps the addresses and shows reason.
func (l *LoginForm) Reset(reason string) {
	l.inputs[loginToken].SetValue("")
	l.busy = false
	l.err = reason
	l.setFocus(loginToken)
}

func (l LoginForm) Backends() tui.Backends {
	return tui.Backends{
		GostintURL: strings.TrimSpace(l.inputs[loginGostint].Value()),
		VaultURL:   strings.TrimSpace(l.inputs[loginVault].Value()),
	}
}

func (l *LoginForm) submit() tea.Cmd {
	if l.busy {
		return nil
	}
	token := strings.TrimSpace(l.inputs[loginToken].Value())
	if token == "" {
		l.err = "A vault token is required."
		l.setFocus(loginToken)
		return nil
	}
	l.err = ""
	l.busy = true
	req := LoginRequestedMsg{Token: token, Backends: l.Backends()}
	return func() tea.Msg { return req }
}

func (l LoginForm) Update(msg tea.Msg) (LoginForm, tea.Cmd) {
	cmd := l.update(msg)
	return l, cmd
}

func (l *LoginForm) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loginFinishedMsg:
		l.busy = false
		if msg.err != nil {
			l.err = msg.err.Error()
			return nil
		}
		l.inputs[loginToken].SetValue("")
		return nil

	case tea.KeyMsg:
		if l.busy {
			return nil
		}
		switch {
		case key.Matches(msg, keys.Submit):
			return l.submit()
		case key.Matches(msg, keys.Select):
			if l.focus == loginFieldCount-1 {
				return l.submit()
			}
			l.setFocus(l.focus + 1)
			return nil
		case msg.Type == tea.KeyTab, msg.Type == tea.KeyDown:
			l.setFocus((l.focus + 1) % loginFieldCount)
			return nil
		case msg.Type == tea.KeyShiftTab, msg.Type == tea.KeyUp:
			l.setFocus((l.focus - 1 + loginFieldCount) % loginFieldCount)
			return nil
		}
		var cmd tea.Cmd
		l.inputs[l.focus], cmd = l.inputs[l.focus].Update(msg)
		return cmd
	}
	return nil
}

func (l LoginForm) View(spin string) string {
	names := [loginFieldCount]string{"Vault token", "Gostint URL", "Vault URL"}
	lines := []string{titleStyle.Render("Login"), ""}
	for i, in := range l.inputs {
		lines = append(lines, fmt.Sprintf("%-16s %s", label(names[i], l.focus == i), in.View()))
	}
	lines = append(lines, "")
	switch {
	case l.busy:
		lines = append(lines, spin+" Checking token with vault...")
	case l.err != "":
		lines = append(lines, errorStyle.Render(l.err))
	default:
		lines = append(lines, mutedStyle.Render("enter to log in. Leave the vault URL empty to ask gostint for it."))
	}
	return strings.Join(lines, "\n")
}
