// Package keymap defines the build watcher key bindings.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the watcher bindings.
type KeyMap struct {
	// Quit stops watching and cancels the build.
	Quit key.Binding

	// Refresh polls the build status immediately.
	Refresh key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "cancel build"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Quit}
}
