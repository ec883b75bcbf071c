package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines keyboard shortcuts for the dashboard
type KeyMap struct {
	Quit key.Binding
	Help key.Binding

	Up   key.Binding
	Down key.Binding

	Refresh    key.Binding
	ToggleRank key.Binding
	NextAsset  key.Binding
	NextChain  key.Binding
	ClearScope key.Binding
	ToggleLogs key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ToggleRank: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "risk/raw rank"),
		),
		NextAsset: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "cycle asset"),
		),
		NextChain: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cycle chain"),
		),
		ClearScope: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filters"),
		),
		ToggleLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle logs"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.ToggleRank, k.NextAsset, k.NextChain, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Refresh, k.ToggleRank, k.ToggleLogs},
		{k.NextAsset, k.NextChain, k.ClearScope},
		{k.Help, k.Quit},
	}
}
