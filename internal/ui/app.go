// Package ui is the interactive terminal front end: a login screen and a
// main screen with the job form, the results pane and a console.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/goethite/gostint-tui/internal/tui"
)

type screen string

const (
	screenLogin screen = "login"
	screenMain  screen = "main"
)

type focusPane int

const (
	focusForm focusPane = iota
	focusResults
	focusConsole
	paneCount
)

type Options struct {
	Backends     tui.Backends
	Role         string
	ListRefresh  time.Duration
	PollInterval time.Duration
	Connect      tui.ConnectOptions
	// ProfilePath, when set, is read at start and written after login and
	// after each submission. It never holds a token.
	ProfilePath string
	Logger      *zap.Logger
}

// Model is the shell. It owns the session; every pane gets it passed in.
type Model struct {
	opts Options
	log  *zap.Logger
	auth *tui.Authenticator

	screen    screen
	sess      tui.Session
	clients   *tui.Clients
	submitter *tui.Submitter

	width  int
	height int
	focus  focusPane

	login   LoginForm
	form    ActionForm
	results Results
	console viewport.Model
	help    help.Model
	spinner spinner.Model

	logs []string
}

func nowStamp() string {
	return time.Now().Format("15:04:05")
}

func withTimestamp(s string) string {
	return fmt.Sprintf("[%s] %s", nowStamp(), s)
}

func New(opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	profile := &tui.Profile{}
	if opts.ProfilePath != "" {
		p, err := tui.LoadProfile(opts.ProfilePath)
		if err != nil {
			log.Warn("Failed to read profile", zap.String("path", opts.ProfilePath), zap.Error(err))
		} else {
			profile = p
		}
	}

	backends := opts.Backends
	if profile.GostintURL != "" {
		backends.GostintURL = profile.GostintURL
	}
	if profile.VaultURL != "" {
		backends.VaultURL = profile.VaultURL
	}
	role := opts.Role
	if profile.Role != "" {
		role = profile.Role
	}

	sp := spinner.New()
	sp.Spinner = spinner.Line

	v := viewport.New(40, 6)
	m := Model{
		opts:    opts,
		log:     log,
		auth:    &tui.Authenticator{Options: opts.Connect, Logger: log},
		screen:  screenLogin,
		login:   NewLoginForm(backends),
		form:    NewActionForm(FormDefaults{Image: profile.Image, QName: profile.QName, Role: role}),
		results: NewResults(opts.ListRefresh, opts.PollInterval),
		console: v,
		help:    help.New(),
		spinner: sp,
	}
	m.appendLog("Enter a vault token to log in.")
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Screen() string {
	return string(m.screen)
}

func (m Model) Session() tui.Session {
	return m.sess
}

func (m Model) Logs() []string {
	return m.logs
}

func (m *Model) appendLog(line string) {
	atBottom := m.console.AtBottom()
	m.logs = append(m.logs, withTimestamp(line))
	m.console.SetContent(strings.Join(m.logs, "\n"))
	if atBottom {
		m.console.GotoBottom()
	}
}

func loginCmd(auth *tui.Authenticator, token string, b tui.Backends) tea.Cmd {
	return func() tea.Msg {
		sess, clients, err := auth.Login(context.Background(), token, b)
		return loginFinishedMsg{sess: sess, clients: clients, err: err}
	}
}

func submitCmd(sub *tui.Submitter, sess tui.Session, spec tui.JobSpec, role string) tea.Cmd {
	return func() tea.Msg {
		result, err := sub.Submit(context.Background(), sess, spec, role)
		return SubmitFinishedMsg{Result: result, Err: err}
	}
}

func (m *Model) saveProfile() {
	if m.opts.ProfilePath == "" {
		return
	}
	typed := m.login.Backends()
	p := tui.Profile{
		GostintURL: typed.GostintURL,
		VaultURL:   typed.VaultURL,
		Role:       m.form.Role(),
		QName:      m.form.QName(),
		Image:      m.form.Image(),
	}
	if err := tui.SaveProfile(m.opts.ProfilePath, p); err != nil {
		m.log.Warn("Failed to save profile", zap.String("path", m.opts.ProfilePath), zap.Error(err))
	}
}

// logout drops the session and its clients and returns to the login screen.
func (m *Model) logout(reason string) {
	m.results.Stop()
	m.sess = tui.Session{}
	m.clients = nil
	m.submitter = nil
	m.screen = screenLogin
	m.login.Reset(reason)
	m.appendLog(reason)
}

func (m *Model) setFocus(f focusPane) {
	m.focus = f
	if f == focusResults {
		m.results.Focus()
	} else {
		m.results.Blur()
	}
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}

	headerH := 3
	footerH := 2
	consoleH := 8
	mainH := m.height - headerH - footerH - consoleH
	if mainH < 16 {
		mainH = 16
	}

	leftW := clamp(int(float64(m.width)*0.42), 56, 90)
	if leftW > m.width-40 {
		leftW = max(40, m.width-40)
	}
	rightW := max(40, m.width-leftW-1)

	m.form.SetWidth(leftW - 4)
	m.results.SetSize(rightW-4, mainH-2)
	m.console.Width = m.width - 4
	m.console.Height = consoleH - 3
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.update(msg)
	return m, cmd
}

func (m *Model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return nil

	case LoginRequestedMsg:
		m.appendLog("Logging in...")
		return loginCmd(m.auth, msg.Token, msg.Backends)

	case loginFinishedMsg:
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		if msg.err != nil {
			m.appendLog("Login failed: " + msg.err.Error())
			return cmd
		}
		m.sess = msg.sess
		m.clients = msg.clients
		m.submitter = tui.NewSubmitter(msg.clients.Vault, msg.clients.Gostint, m.log)
		m.screen = screenMain
		m.setFocus(focusForm)
		m.saveProfile()
		m.appendLog(fmt.Sprintf("Logged in to %s (vault %s).", m.sess.Backends.GostintURL, m.sess.Backends.VaultURL))
		return tea.Batch(cmd, m.results.Start(m.sess, m.clients.Gostint))

	case SubmitRequestedMsg:
		if !m.sess.Valid() || m.submitter == nil {
			var cmd tea.Cmd
			m.form, cmd = m.form.Update(SubmitFinishedMsg{Err: errors.New("no active session")})
			return cmd
		}
		if w := m.form.Warning(); w != "" {
			m.appendLog("Content not attached: " + w)
		}
		m.appendLog(fmt.Sprintf("Submitting %s...", strings.TrimSpace(msg.Spec.ContainerImage)))
		return submitCmd(m.submitter, m.sess, msg.Spec, msg.Role)

	case SubmitFinishedMsg:
		var cmd tea.Cmd
		m.form, cmd = m.form.Update(msg)
		if msg.Err != nil {
			m.appendLog("Submission failed: " + msg.Err.Error())
			return cmd
		}
		if msg.Result != nil && msg.Result.Job != nil {
			m.appendLog(fmt.Sprintf("Job %s %s.", msg.Result.Job.ID, msg.Result.Job.Status))
		}
		m.saveProfile()
		return cmd

	case JobSubmittedMsg:
		refresh := m.results.Refresh()
		follow := m.results.Select(msg.ID)
		return tea.Batch(refresh, follow)

	case KVMutationMsg:
		var cmd tea.Cmd
		m.form, cmd = m.form.Update(msg)
		return cmd

	case SessionExpiredMsg:
		m.log.Info("Session rejected by gostint", zap.Error(msg.Err))
		m.logout("Session expired. Log in again.")
		return nil

	case listTickMsg, pollTickMsg, jobsLoadedMsg, jobLoadedMsg, jobDeletedMsg, jobKilledMsg:
		m.logResult(msg)
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return nil
}

func (m *Model) logResult(msg tea.Msg) {
	switch msg := msg.(type) {
	case jobDeletedMsg:
		if msg.err == nil {
			m.appendLog("Deleted job " + msg.id + ".")
		}
	case jobKilledMsg:
		if msg.err == nil {
			m.appendLog("Kill requested for job " + msg.id + ".")
		}
	case jobLoadedMsg:
		if msg.err == nil && msg.gen == m.results.pollGen && msg.id == m.results.pollID && msg.job.Status.IsTerminal() {
			if prev := m.results.Job(); prev == nil || !prev.Status.IsTerminal() {
				m.appendLog(fmt.Sprintf("Job %s finished: %s (rc %d).", msg.id, msg.job.Status, msg.job.ReturnCode))
			}
		}
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, keys.Quit) {
		m.results.Stop()
		return tea.Quit
	}

	if m.screen == screenLogin {
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, keys.Logout):
		m.logout("Logged out.")
		return nil
	case key.Matches(msg, keys.NextPane):
		m.setFocus((m.focus + 1) % paneCount)
		return nil
	}

	switch m.focus {
	case focusConsole:
		switch {
		case key.Matches(msg, keys.Up):
			m.console.LineUp(1)
		case key.Matches(msg, keys.Down):
			m.console.LineDown(1)
		case key.Matches(msg, keys.Top):
			m.console.GotoTop()
		case key.Matches(msg, keys.Bottom):
			m.console.GotoBottom()
		case key.Matches(msg, keys.Clear):
			m.logs = []string{withTimestamp("Console cleared.")}
			m.console.SetContent(strings.Join(m.logs, "\n"))
			m.console.GotoBottom()
		}
		return nil
	case focusResults:
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return cmd
	default:
		var cmd tea.Cmd
		m.form, cmd = m.form.Update(msg)
		return cmd
	}
}

func (m Model) headerView() string {
	state := "logged out"
	if m.sess.Valid() {
		state = "since " + m.sess.Since.Local().Format("15:04:05")
	}
	if m.login.busy || m.form.Busy() {
		state += " • busy"
	}
	b := m.sess.Backends
	if m.screen == screenLogin {
		b = m.login.Backends()
	}
	vault := b.VaultURL
	if vault == "" {
		vault = "(discover)"
	}
	head := lipgloss.NewStyle().Bold(true).Render("GOSTINT TUI")
	sub := mutedStyle.Render(fmt.Sprintf("gostint=%s  vault=%s  session=%s", b.GostintURL, vault, state))
	return lipgloss.JoinVertical(lipgloss.Left, head, sub)
}

func (m Model) loginView() string {
	panel := paneStyle(true).Padding(1, 2)
	lines := []string{m.login.View(m.spinner.View()), ""}
	start := len(m.logs) - 8
	if start < 0 {
		start = 0
	}
	lines = append(lines, m.logs[start:]...)
	return panel.Width(max(50, m.width-2)).Render(strings.Join(lines, "\n"))
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.screen == screenLogin {
		return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.loginView(), m.help.View(keys))
	}

	formPane := paneStyle(m.focus == focusForm).Render(m.form.View())
	resultsPane := paneStyle(m.focus == focusResults).Render(m.results.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, formPane, resultsPane)

	consoleHeader := "Console"
	if m.form.Busy() {
		consoleHeader = fmt.Sprintf("%s %s", m.spinner.View(), consoleHeader)
	}
	consoleBody := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(consoleHeader),
		m.console.View(),
	)
	consolePane := paneStyle(m.focus == focusConsole).Width(m.width - 2).Render(consoleBody)

	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), body, consolePane, m.help.View(keys))
}

// Run starts the program on the alternate screen and blocks until quit.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
