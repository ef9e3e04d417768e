package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTheme_AccentsAreDistinct(t *testing.T) {
	theme := DefaultTheme()

	accents := []lipgloss.Color{theme.Primary, theme.Secondary, theme.Success, theme.Warning, theme.Error}
	seen := make(map[lipgloss.Color]bool)
	for _, c := range accents {
		assert.NotEmpty(t, string(c))
		assert.False(t, seen[c], "duplicate accent %s", c)
		seen[c] = true
	}
}

func TestNewStyles(t *testing.T) {
	theme := DefaultTheme()
	s := NewStyles(theme)
	require.NotNil(t, s)
	assert.Equal(t, theme, s.Theme())

	assert.Equal(t, theme.Success, s.StageDone.GetForeground())
	assert.Equal(t, theme.Secondary, s.StageActive.GetForeground())
	assert.True(t, s.Error.GetBold())
}

func TestNewStyles_NilTheme(t *testing.T) {
	s := NewStyles(nil)
	require.NotNil(t, s.Theme())
	assert.Equal(t, DefaultTheme().Primary, s.Theme().Primary)
}

func TestStyles_Render(t *testing.T) {
	s := DefaultStyles()
	assert.Contains(t, s.Title.Render("Building"), "Building")
	assert.Contains(t, s.Box.Render("x"), "x")
}
