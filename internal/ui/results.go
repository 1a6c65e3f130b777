package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/goethite/gostint-tui/internal/tui"
)

// SessionExpiredMsg is sent when gostint rejects the session token. The
// shell drops the session and goes back to login.
type SessionExpiredMsg struct {
	Err error
}

type jobsLoadedMsg struct {
	skip int
	page *tui.JobPage
	err  error
}

// jobLoadedMsg carries the poll generation of the fetch, so a response
// that was in flight when the job was selected again is dropped.
type jobLoadedMsg struct {
	gen int
	id  string
	job *tui.JobResult
	err error
}

type jobDeletedMsg struct {
	id  string
	err error
}

type jobKilledMsg struct {
	id   string
	resp *tui.KillResponse
	err  error
}

// listTickMsg and pollTickMsg carry the generation that scheduled them; a
// tick from an older generation is dropped, which is how timers stop.
type listTickMsg struct{ gen int }

type pollTickMsg struct {
	gen int
	id  string
}

// Results lists jobs page by page and follows one selected job.
type Results struct {
	jobs     tui.JobBackend
	apiToken string
	refresh  time.Duration
	poll     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	listGen int
	pollGen int
	running bool

	table  table.Model
	detail viewport.Model
	pager  tui.Pager
	rows   []tui.JobResult

	pollID      string
	job         *tui.JobResult
	loading     bool
	err         string
	notice      string
	lastRefresh time.Time
}

func NewResults(refresh, poll time.Duration) Results {
	if refresh <= 0 {
		refresh = 10 * time.Second
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}

	widths := []int{24, 10, 13, 24, 19, 19, 19, 11}
	cols := make([]table.Column, len(tui.ResultColumns))
	for i, title := range tui.ResultColumns {
		cols[i] = table.Column{Title: title, Width: widths[i]}
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(tui.PageSize+1))

	return Results{
		refresh: refresh,
		poll:    poll,
		table:   t,
		detail:  viewport.New(60, 8),
	}
}

// Start binds the pane to a session and starts the refresh timer.
func (r *Results) Start(sess tui.Session, jobs tui.JobBackend) tea.Cmd {
	r.Stop()
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.jobs = jobs
	r.apiToken = sess.APIToken
	r.running = true
	r.pager = tui.Pager{}
	r.rows = nil
	r.job = nil
	r.pollID = ""
	r.err, r.notice = "", ""
	r.table.SetRows(nil)
	r.detail.SetContent("")
	return tea.Batch(r.fetchPage(), r.listTick())
}

// Stop invalidates both timers and cancels requests still in flight.
func (r *Results) Stop() {
	r.listGen++
	r.pollGen++
	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r Results) Running() bool {
	return r.running
}

func (r Results) Rows() []tui.JobResult {
	return r.rows
}

func (r Results) Pager() tui.Pager {
	return r.pager
}

func (r Results) Job() *tui.JobResult {
	return r.job
}

func (r Results) Err() string {
	return r.err
}

// Refresh reloads the current page now, outside the timer.
func (r *Results) Refresh() tea.Cmd {
	if !r.running {
		return nil
	}
	r.loading = true
	return r.fetchPage()
}

// Select shows one job and polls it until it finishes. Selecting another
// job replaces the previous poll.
func (r *Results) Select(id string) tea.Cmd {
	if !r.running || id == "" {
		return nil
	}
	r.pollGen++
	r.pollID = id
	if r.job != nil && r.job.ID != id {
		r.job = nil
		r.detail.SetContent("")
	}
	return r.fetchJob(id)
}

func (r Results) fetchPage() tea.Cmd {
	ctx, jobs, token, skip := r.ctx, r.jobs, r.apiToken, r.pager.Skip
	return func() tea.Msg {
		page, err := jobs.ListJobs(ctx, token, skip)
		return jobsLoadedMsg{skip: skip, page: page, err: err}
	}
}

func (r Results) fetchJob(id string) tea.Cmd {
	ctx, jobs, token, gen := r.ctx, r.jobs, r.apiToken, r.pollGen
	return func() tea.Msg {
		job, err := jobs.GetJob(ctx, token, id)
		return jobLoadedMsg{gen: gen, id: id, job: job, err: err}
	}
}

func (r Results) listTick() tea.Cmd {
	gen := r.listGen
	return tea.Tick(r.refresh, func(time.Time) tea.Msg { return listTickMsg{gen: gen} })
}

func (r Results) pollTick() tea.Cmd {
	gen, id := r.pollGen, r.pollID
	return tea.Tick(r.poll, func(time.Time) tea.Msg { return pollTickMsg{gen: gen, id: id} })
}

func (r Results) selectedID() string {
	i := r.table.Cursor()
	if i < 0 || i >= len(r.rows) {
		return ""
	}
	return r.rows[i].ID
}

// handleErr applies the error policy: a rejected session ends it, anything
// else is shown and the data on screen stays.
func (r *Results) handleErr(err error) tea.Cmd {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, tui.ErrPermissionDenied) {
		r.Stop()
		return func() tea.Msg { return SessionExpiredMsg{Err: err} }
	}
	r.err = err.Error()
	return nil
}

func (r *Results) setRows(rows []tui.JobResult) {
	r.rows = rows
	tableRows := make([]table.Row, 0, len(rows))
	for _, job := range rows {
		tableRows = append(tableRows, table.Row(job.Cells()))
	}
	r.table.SetRows(tableRows)
	if r.table.Cursor() >= len(rows) {
		r.table.SetCursor(max(0, len(rows)-1))
	}
}

func (r Results) Update(msg tea.Msg) (Results, tea.Cmd) {
	cmd := r.update(msg)
	return r, cmd
}

func (r *Results) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case listTickMsg:
		if msg.gen != r.listGen || !r.running {
			return nil
		}
		return tea.Batch(r.fetchPage(), r.listTick())

	case pollTickMsg:
		if msg.gen != r.pollGen || msg.id != r.pollID || !r.running {
			return nil
		}
		return r.fetchJob(msg.id)

	case jobsLoadedMsg:
		if !r.running {
			return nil
		}
		r.loading = false
		if msg.err != nil {
			return r.handleErr(msg.err)
		}
		if msg.skip != r.pager.Skip {
			return nil
		}
		r.err = ""
		r.pager.Total = msg.page.Total
		r.lastRefresh = time.Now()
		r.setRows(msg.page.Data)
		// the page shrank under us, e.g. its last row was deleted
		if last := (r.pager.Pages() - 1) * tui.PageSize; r.pager.Skip > last {
			r.pager.Skip = last
			return r.Refresh()
		}
		return nil

	case jobLoadedMsg:
		if !r.running || msg.gen != r.pollGen || msg.id != r.pollID {
			return nil
		}
		if msg.err != nil {
			return r.handleErr(msg.err)
		}
		r.job = msg.job
		r.renderDetail()
		if msg.job.Status.IsTerminal() {
			return nil
		}
		return r.pollTick()

	case jobDeletedMsg:
		if msg.err != nil {
			return r.handleErr(msg.err)
		}
		r.notice = "Deleted job " + msg.id
		if r.pollID == msg.id {
			r.pollGen++
			r.pollID = ""
			r.job = nil
			r.detail.SetContent("")
		}
		return r.Refresh()

	case jobKilledMsg:
		if msg.err != nil {
			return r.handleErr(msg.err)
		}
		r.notice = fmt.Sprintf("Kill requested for job %s (%s)", msg.id, msg.resp.Status)
		return tea.Batch(r.Refresh(), r.Select(msg.id))

	case tea.KeyMsg:
		if !r.running {
			return nil
		}
		switch {
		case key.Matches(msg, keys.PrevPage):
			r.pager = r.pager.Prev()
			return r.Refresh()
		case key.Matches(msg, keys.NextPage):
			next := r.pager.Next()
			if next == r.pager {
				return nil
			}
			r.pager = next
			return r.Refresh()
		case key.Matches(msg, keys.Refresh):
			return r.Refresh()
		case key.Matches(msg, keys.Select):
			return r.Select(r.selectedID())
		case key.Matches(msg, keys.Delete):
			return r.deleteSelected()
		case key.Matches(msg, keys.Kill):
			return r.killSelected()
		}

		var cmd tea.Cmd
		r.table, cmd = r.table.Update(msg)
		return cmd
	}
	return nil
}

func (r *Results) deleteSelected() tea.Cmd {
	id := r.selectedID()
	if id == "" {
		return nil
	}
	r.err, r.notice = "", ""
	ctx, jobs, token := r.ctx, r.jobs, r.apiToken
	return func() tea.Msg {
		return jobDeletedMsg{id: id, err: jobs.DeleteJob(ctx, token, id)}
	}
}

func (r *Results) killSelected() tea.Cmd {
	id := r.selectedID()
	if id == "" {
		return nil
	}
	r.err, r.notice = "", ""
	ctx, jobs, token := r.ctx, r.jobs, r.apiToken
	return func() tea.Msg {
		resp, err := jobs.KillJob(ctx, token, id)
		return jobKilledMsg{id: id, resp: resp, err: err}
	}
}

func (r *Results) renderDetail() {
	j := r.job
	if j == nil {
		r.detail.SetContent("")
		return
	}
	cells := j.Cells()
	lines := make([]string, 0, len(cells)+4)
	for i, title := range tui.ResultColumns {
		lines = append(lines, fmt.Sprintf("%-12s %s", title+":", cells[i]))
	}
	if j.NodeUUID != "" {
		lines = append(lines, fmt.Sprintf("%-12s %s", "Node:", j.NodeUUID))
	}
	lines = append(lines, "", titleStyle.Render("Output"), j.Output)
	if j.Stderr != "" {
		lines = append(lines, titleStyle.Render("Stderr"), j.Stderr)
	}
	r.detail.SetContent(strings.Join(lines, "\n"))
}

func (r *Results) SetSize(width, height int) {
	tableH := tui.PageSize + 1
	r.table.SetWidth(width)
	r.table.SetHeight(tableH)
	r.detail.Width = width
	r.detail.Height = max(3, height-tableH-4)
}

func (r *Results) Focus() {
	r.table.Focus()
}

func (r *Results) Blur() {
	r.table.Blur()
}

func (r Results) View() string {
	status := fmt.Sprintf("page %d/%d  total %d", r.pager.Page(), r.pager.Pages(), r.pager.Total)
	if !r.lastRefresh.IsZero() {
		status += "  refreshed " + r.lastRefresh.Format("15:04:05")
	}
	if r.loading {
		status += "  loading..."
	}

	lines := []string{
		titleStyle.Render("Results") + "  " + mutedStyle.Render(status),
		r.table.View(),
	}
	if r.err != "" {
		lines = append(lines, errorStyle.Render(r.err))
	} else if r.notice != "" {
		lines = append(lines, okStyle.Render(r.notice))
	}
	if r.job != nil {
		head := fmt.Sprintf("Job %s", r.job.ID)
		if !r.job.Status.IsTerminal() {
			head += mutedStyle.Render(fmt.Sprintf("  polling every %s", r.poll))
		}
		lines = append(lines, titleStyle.Render(head), r.detail.View())
	}
	return strings.Join(lines, "\n")
}
