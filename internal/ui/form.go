package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/goethite/gostint-tui/internal/tui"
)

type formField int

const (
	fieldImage formField = iota
	fieldPull
	fieldRun
	fieldEntrypoint
	fieldWorkdir
	fieldQName
	fieldRole
	fieldContent
	fieldEnv
	fieldSecrets
	fieldSecretType
	fieldContinue
	fieldSubmit
	fieldCount
)

const (
	targetEnv     = "env"
	targetSecrets = "secrets"
)

// SubmitRequestedMsg asks the owner, which holds the session, to run the
// submission.
type SubmitRequestedMsg struct {
	Spec tui.JobSpec
	Role string
}

type SubmitFinishedMsg struct {
	Result *tui.SubmitResult
	Err    error
}

// JobSubmittedMsg tells the results pane which job to follow.
type JobSubmittedMsg struct {
	ID string
}

type FormDefaults struct {
	Image string
	QName string
	Role  string
}

// ActionForm collects one job. The env and secret lists live here; the
// editors only report mutations.
type ActionForm struct {
	inputs [fieldCount]textinput.Model
	focus  formField

	pull           int
	secretType     int
	contOnWarnings bool

	env            tui.KVList
	secrets        tui.KVList
	envEditor      KVEntry
	secretsEditor  KVEntry
	content        string
	contentPath    string
	contentWarning string

	busy    bool
	err     string
	lastJob string
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.Prompt = ""
	in.CharLimit = limit
	return in
}

func NewActionForm(d FormDefaults) ActionForm {
	f := ActionForm{
		envEditor:     NewKVEntry("Environment", targetEnv, "NAME", "value"),
		secretsEditor: NewKVEntry("Secret refs", targetSecrets, "ref", "secret/path@field"),
	}
	f.inputs[fieldImage] = newInput("alpine:latest", 512)
	f.inputs[fieldRun] = newInput(`sh -c "echo hello"`, 4096)
	f.inputs[fieldEntrypoint] = newInput("(image default)", 1024)
	f.inputs[fieldWorkdir] = newInput("(image default)", 512)
	f.inputs[fieldQName] = newInput("(default queue)", 128)
	f.inputs[fieldRole] = newInput(tui.DefaultRole, 128)
	f.inputs[fieldContent] = newInput("path/to/content.tar.gz", 1024)

	f.inputs[fieldImage].SetValue(d.Image)
	f.inputs[fieldQName].SetValue(d.QName)
	role := d.Role
	if role == "" {
		role = tui.DefaultRole
	}
	f.inputs[fieldRole].SetValue(role)

	f.setFocus(fieldImage, true)
	return f
}

func isTextField(field formField) bool {
	switch field {
	case fieldImage, fieldRun, fieldEntrypoint, fieldWorkdir, fieldQName, fieldRole, fieldContent:
		return true
	}
	return false
}

func (f *ActionForm) editor(field formField) *KVEntry {
	switch field {
	case fieldEnv:
		return &f.envEditor
	case fieldSecrets:
		return &f.secretsEditor
	}
	return nil
}

func (f *ActionForm) setFocus(field formField, forward bool) {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	f.envEditor.Blur()
	f.secretsEditor.Blur()

	f.focus = field
	if isTextField(field) {
		f.inputs[field].Focus()
	}
	if e := f.editor(field); e != nil {
		if forward {
			e.FocusFirst()
		} else {
			e.FocusLast()
		}
	}
}

func (f *ActionForm) move(forward bool) {
	if e := f.editor(f.focus); e != nil {
		stayed := e.Prev
		if forward {
			stayed = e.Next
		}
		if stayed() {
			return
		}
	}

	leaving := f.focus
	step := 1
	if !forward {
		step = -1
	}
	f.setFocus((f.focus+formField(step)+fieldCount)%fieldCount, forward)
	if leaving == fieldContent {
		f.loadContent(false)
	}
}

// loadContent reads the content file. Anything that is not gzip leaves the
// job content empty and keeps the reason on show. Unless force is set, a
// path that was already read is not read again.
func (f *ActionForm) loadContent(force bool) {
	path := strings.TrimSpace(f.inputs[fieldContent].Value())
	if !force && path == f.contentPath && (f.content != "" || f.contentWarning != "") {
		return
	}
	f.contentPath = path
	f.content, f.contentWarning = "", ""
	if path == "" {
		return
	}
	content, err := tui.LoadContent(path)
	if err != nil {
		f.contentWarning = err.Error()
		return
	}
	f.content = content
}

// Spec captures the form as it stands. The result is never changed later.
func (f ActionForm) Spec() tui.JobSpec {
	return tui.JobSpec{
		QName:           f.inputs[fieldQName].Value(),
		ContainerImage:  f.inputs[fieldImage].Value(),
		ImagePullPolicy: tui.PullPolicies[f.pull],
		Content:         f.content,
		EntryPoint:      f.inputs[fieldEntrypoint].Value(),
		Run:             f.inputs[fieldRun].Value(),
		WorkingDir:      f.inputs[fieldWorkdir].Value(),
		EnvVars:         append(tui.KVList(nil), f.env...),
		SecretRefs:      append(tui.KVList(nil), f.secrets...),
		SecretFileType:  tui.SecretFileTypes[f.secretType],
		ContOnWarnings:  f.contOnWarnings,
	}
}

func (f ActionForm) Role() string {
	return strings.TrimSpace(f.inputs[fieldRole].Value())
}

func (f ActionForm) QName() string {
	return strings.TrimSpace(f.inputs[fieldQName].Value())
}

func (f ActionForm) Image() string {
	return strings.TrimSpace(f.inputs[fieldImage].Value())
}

func (f ActionForm) Err() string {
	return f.err
}

func (f ActionForm) Warning() string {
	return f.contentWarning
}

func (f ActionForm) Busy() bool {
	return f.busy
}

func (f *ActionForm) submit() tea.Cmd {
	if f.busy {
		return nil
	}
	f.err = ""
	f.loadContent(true)
	spec := f.Spec()
	role := f.Role()
	f.busy = true
	return func() tea.Msg {
		return SubmitRequestedMsg{Spec: spec, Role: role}
	}
}

func (f *ActionForm) applyMutation(msg KVMutationMsg) {
	var err error
	switch msg.Target {
	case targetEnv:
		if f.env, err = f.env.Apply(msg.Mutation); err == nil {
			f.envEditor.SetItems(f.env)
		}
	case targetSecrets:
		if f.secrets, err = f.secrets.Apply(msg.Mutation); err == nil {
			f.secretsEditor.SetItems(f.secrets)
		}
	}
	if err != nil {
		f.err = err.Error()
	}
}

func (f ActionForm) Update(msg tea.Msg) (ActionForm, tea.Cmd) {
	cmd := f.update(msg)
	return f, cmd
}

func (f *ActionForm) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case KVMutationMsg:
		f.applyMutation(msg)
		return nil

	case SubmitFinishedMsg:
		f.busy = false
		if msg.Err != nil {
			f.err = msg.Err.Error()
			return nil
		}
		if msg.Result == nil || msg.Result.Job == nil {
			return nil
		}
		id := msg.Result.Job.ID
		f.lastJob = id
		return func() tea.Msg { return JobSubmittedMsg{ID: id} }

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Submit):
			return f.submit()
		case msg.Type == tea.KeyTab:
			f.move(true)
			return nil
		case msg.Type == tea.KeyShiftTab:
			f.move(false)
			return nil
		}

		if e := f.editor(f.focus); e != nil {
			var cmd tea.Cmd
			*e, cmd = e.Update(msg)
			return cmd
		}

		switch f.focus {
		case fieldPull, fieldSecretType, fieldContinue:
			if key.Matches(msg, keys.Toggle) {
				f.toggle(f.focus, msg.String() != "left")
			} else if key.Matches(msg, keys.Select) {
				f.move(true)
			}
			return nil
		case fieldSubmit:
			if key.Matches(msg, keys.Select) {
				return f.submit()
			}
			return nil
		}

		if key.Matches(msg, keys.Select) {
			f.move(true)
			return nil
		}
		var cmd tea.Cmd
		f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
		return cmd
	}
	return nil
}

func cycle(i, n int, forward bool) int {
	if forward {
		return (i + 1) % n
	}
	return (i - 1 + n) % n
}

func (f *ActionForm) toggle(field formField, forward bool) {
	switch field {
	case fieldPull:
		f.pull = cycle(f.pull, len(tui.PullPolicies), forward)
	case fieldSecretType:
		f.secretType = cycle(f.secretType, len(tui.SecretFileTypes), forward)
	case fieldContinue:
		f.contOnWarnings = !f.contOnWarnings
	}
}

func (f *ActionForm) SetWidth(w int) {
	inputW := max(10, w-22)
	for i := range f.inputs {
		f.inputs[i].Width = inputW
	}
	f.envEditor.keyInput.Width = max(6, inputW/3)
	f.envEditor.valInput.Width = max(6, inputW/2)
	f.secretsEditor.keyInput.Width = max(6, inputW/3)
	f.secretsEditor.valInput.Width = max(6, inputW/2)
}

func (f ActionForm) View() string {
	row := func(field formField, name, value string) string {
		return fmt.Sprintf("%-20s %s", label(name, f.focus == field), value)
	}
	choice := func(options []string, selected int) string {
		parts := make([]string, len(options))
		for i, o := range options {
			if i == selected {
				parts[i] = okStyle.Render("(•) " + o)
			} else {
				parts[i] = mutedStyle.Render("( ) " + o)
			}
		}
		return strings.Join(parts, "  ")
	}

	lines := []string{
		titleStyle.Render("Run action"),
		row(fieldImage, "Image", f.inputs[fieldImage].View()),
		row(fieldPull, "Pull policy", choice(tui.PullPolicies, f.pull)),
		row(fieldRun, "Run", f.inputs[fieldRun].View()),
		row(fieldEntrypoint, "Entrypoint", f.inputs[fieldEntrypoint].View()),
		row(fieldWorkdir, "Working dir", f.inputs[fieldWorkdir].View()),
		row(fieldQName, "Queue", f.inputs[fieldQName].View()),
		row(fieldRole, "AppRole", f.inputs[fieldRole].View()),
		row(fieldContent, "Content", f.inputs[fieldContent].View()),
	}
	if f.contentWarning != "" {
		lines = append(lines, "    "+warnStyle.Render(f.contentWarning))
	} else if summary := tui.ContentSummary(f.content); summary != "" {
		lines = append(lines, "    "+mutedStyle.Render(summary))
	}

	lines = append(lines,
		f.envEditor.View("="),
		f.secretsEditor.View("@"),
		row(fieldSecretType, "Secret file", choice(tui.SecretFileTypes, f.secretType)),
	)
	cont := "[ ] continue on warnings"
	if f.contOnWarnings {
		cont = "[x] continue on warnings"
	}
	lines = append(lines, row(fieldContinue, "Warnings", cont))

	button := "[ Submit ]"
	if f.busy {
		button = "[ Submitting... ]"
	}
	lines = append(lines, "", label(button, f.focus == fieldSubmit))
	if f.err != "" {
		lines = append(lines, errorStyle.Render(f.err))
	}
	if f.lastJob != "" {
		lines = append(lines, okStyle.Render("Submitted job "+f.lastJob))
	}
	return strings.Join(lines, "\n")
}
