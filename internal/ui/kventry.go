package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/goethite/gostint-tui/internal/tui"
)

type kvFocus int

const (
	kvBlurred kvFocus = iota
	kvFocusKey
	kvFocusVal
	kvFocusRows
)

// KVMutationMsg reports an intended change to the list named Target. The
// editor never applies it itself; the owner does and pushes the result back
// with SetItems.
type KVMutationMsg struct {
	Target   string
	Mutation tui.KVMutation
}

// KVEntry edits an ordered list of key/value pairs.
type KVEntry struct {
	Title  string
	Target string

	keyInput textinput.Model
	valInput textinput.Model
	items    tui.KVList
	cursor   int
	focus    kvFocus
}

func NewKVEntry(title, target, keyHint, valHint string) KVEntry {
	k := textinput.New()
	k.Placeholder = keyHint
	k.Prompt = ""
	k.CharLimit = 256
	v := textinput.New()
	v.Placeholder = valHint
	v.Prompt = ""
	v.CharLimit = 1024
	return KVEntry{Title: title, Target: target, keyInput: k, valInput: v}
}

func (e KVEntry) Items() tui.KVList {
	return e.items
}

func (e *KVEntry) SetItems(items tui.KVList) {
	e.items = items
	e.cursor = clamp(e.cursor, 0, max(0, len(items)-1))
	if len(items) == 0 && e.focus == kvFocusRows {
		e.FocusFirst()
	}
}

// Staged returns the pending pair typed into the inputs.
func (e KVEntry) Staged() tui.KV {
	return tui.KV{Key: strings.TrimSpace(e.keyInput.Value()), Val: strings.TrimSpace(e.valInput.Value())}
}

// CanAdd is false while either staged field is empty; Add is inert then.
func (e KVEntry) CanAdd() bool {
	return e.Staged().Complete()
}

func (e KVEntry) Focused() bool {
	return e.focus != kvBlurred
}

func (e *KVEntry) FocusFirst() {
	e.setFocus(kvFocusKey)
}

func (e *KVEntry) FocusLast() {
	if len(e.items) > 0 {
		e.setFocus(kvFocusRows)
		return
	}
	e.setFocus(kvFocusVal)
}

func (e *KVEntry) Blur() {
	e.setFocus(kvBlurred)
}

func (e *KVEntry) setFocus(f kvFocus) {
	e.focus = f
	e.keyInput.Blur()
	e.valInput.Blur()
	switch f {
	case kvFocusKey:
		e.keyInput.Focus()
	case kvFocusVal:
		e.valInput.Focus()
	}
}

// Next moves focus forward inside the editor. It returns false when focus
// leaves the editor.
func (e *KVEntry) Next() bool {
	switch e.focus {
	case kvFocusKey:
		e.setFocus(kvFocusVal)
		return true
	case kvFocusVal:
		if len(e.items) > 0 {
			e.setFocus(kvFocusRows)
			return true
		}
	}
	e.Blur()
	return false
}

func (e *KVEntry) Prev() bool {
	switch e.focus {
	case kvFocusRows:
		e.setFocus(kvFocusVal)
		return true
	case kvFocusVal:
		e.setFocus(kvFocusKey)
		return true
	}
	e.Blur()
	return false
}

func (e KVEntry) mutation(m tui.KVMutation) tea.Cmd {
	target := e.Target
	return func() tea.Msg {
		return KVMutationMsg{Target: target, Mutation: m}
	}
}

func (e KVEntry) Update(msg tea.Msg) (KVEntry, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || e.focus == kvBlurred {
		return e, nil
	}

	if e.focus == kvFocusRows {
		switch {
		case key.Matches(keyMsg, keys.Up):
			e.cursor = clamp(e.cursor-1, 0, max(0, len(e.items)-1))
		case key.Matches(keyMsg, keys.Down):
			e.cursor = clamp(e.cursor+1, 0, max(0, len(e.items)-1))
		case key.Matches(keyMsg, keys.Delete), keyMsg.Type == tea.KeyBackspace:
			if e.cursor < len(e.items) {
				return e, e.mutation(tui.KVDelete{Index: e.cursor})
			}
		}
		return e, nil
	}

	if key.Matches(keyMsg, keys.Select) {
		if !e.CanAdd() {
			return e, nil
		}
		pair := e.Staged()
		e.keyInput.SetValue("")
		e.valInput.SetValue("")
		e.setFocus(kvFocusKey)
		return e, e.mutation(tui.KVAdd{Pair: pair})
	}

	var cmd tea.Cmd
	if e.focus == kvFocusKey {
		e.keyInput, cmd = e.keyInput.Update(msg)
	} else {
		e.valInput, cmd = e.valInput.Update(msg)
	}
	return e, cmd
}

func (e KVEntry) View(sep string) string {
	lines := []string{label(e.Title, e.Focused())}

	addHint := mutedStyle.Render("[enter] add")
	if !e.CanAdd() {
		addHint = mutedStyle.Render("[add disabled]")
	}
	lines = append(lines, fmt.Sprintf("    %s %s %s  %s", e.keyInput.View(), sep, e.valInput.View(), addHint))

	for i, kv := range e.items {
		row := fmt.Sprintf("    %s%s%s", kv.Key, sep, kv.Val)
		if e.focus == kvFocusRows && i == e.cursor {
			row = focusedLabel.Render(fmt.Sprintf("  › %s%s%s  [x] delete", kv.Key, sep, kv.Val))
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}
