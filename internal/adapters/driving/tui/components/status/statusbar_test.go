package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/styles"
)

func TestNewBar(t *testing.T) {
	bar := NewBar(styles.DefaultStyles(), keymap.DefaultKeyMap())
	require.NotNil(t, bar)
	assert.Equal(t, 80, bar.Width())
}

func TestNewBar_NilArgs(t *testing.T) {
	bar := NewBar(nil, nil)
	assert.NotNil(t, bar.styles)
	assert.NotNil(t, bar.keymap)
}

func TestBar_View(t *testing.T) {
	bar := NewBar(nil, nil)
	bar.SetWidth(120)
	bar.SetElapsed(83*time.Second + 400*time.Millisecond)
	bar.SetCounts(12, 48, 0)

	view := bar.View()
	assert.Contains(t, view, "1m23s")
	assert.Contains(t, view, "12 docs")
	assert.Contains(t, view, "48 chunks")
	assert.NotContains(t, view, "degraded")
	assert.Contains(t, view, "q: cancel build")
	assert.Contains(t, view, "r: refresh")
}

func TestBar_ViewDegraded(t *testing.T) {
	bar := NewBar(nil, nil)
	bar.SetCounts(1, 10, 3)
	assert.Contains(t, bar.View(), "3 degraded")
}

func TestBar_SetWidthIgnoresNonPositive(t *testing.T) {
	bar := NewBar(nil, nil)
	bar.SetWidth(0)
	assert.Equal(t, 80, bar.Width())
	bar.SetWidth(40)
	assert.Equal(t, 40, bar.Width())
}

func TestBar_NarrowWidthStillRenders(t *testing.T) {
	bar := NewBar(nil, nil)
	bar.SetWidth(10)
	assert.NotEmpty(t, bar.View())
}
