package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	NextPane key.Binding
	Field    key.Binding
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	Submit   key.Binding
	Select   key.Binding
	PrevPage key.Binding
	NextPage key.Binding
	Refresh  key.Binding
	Delete   key.Binding
	Kill     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Clear    key.Binding
	Logout   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPane, k.Submit, k.Logout, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextPane, k.Field, k.Toggle, k.Submit},
		{k.Up, k.Down, k.Select, k.Refresh},
		{k.PrevPage, k.NextPage, k.Delete, k.Kill},
		{k.Top, k.Bottom, k.Clear, k.Logout, k.Quit},
	}
}

var keys = keyMap{
	NextPane: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next pane")),
	Field:    key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "next field")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle:   key.NewBinding(key.WithKeys(" ", "left", "right"), key.WithHelp("space", "toggle")),
	Submit:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "submit")),
	Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select/add")),
	PrevPage: key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p", "prev page")),
	NextPage: key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n", "next page")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Delete:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "delete")),
	Kill:     key.NewBinding(key.WithKeys("K"), key.WithHelp("K", "kill job")),
	Top:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "console top")),
	Bottom:   key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "console bottom")),
	Clear:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear console")),
	Logout:   key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "logout")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}
