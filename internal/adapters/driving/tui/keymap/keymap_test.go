package keymap

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()

	assert.ElementsMatch(t, []string{"q", "ctrl+c", "esc"}, km.Quit.Keys())
	assert.Equal(t, []string{"r"}, km.Refresh.Keys())
	assert.Equal(t, "cancel build", km.Quit.Help().Desc)
}

func TestKeyMap_Matches(t *testing.T) {
	km := DefaultKeyMap()

	tests := []struct {
		name    string
		msg     tea.KeyMsg
		quit    bool
		refresh bool
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true, false},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true, false},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true, false},
		{"r", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}, false, true},
		{"x", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.quit, key.Matches(tt.msg, km.Quit))
			assert.Equal(t, tt.refresh, key.Matches(tt.msg, km.Refresh))
		})
	}
}

func TestKeyMap_ShortHelp(t *testing.T) {
	km := DefaultKeyMap()
	help := km.ShortHelp()

	assert.Len(t, help, 2)
	assert.Equal(t, km.Quit.Keys(), help[1].Keys())
}
