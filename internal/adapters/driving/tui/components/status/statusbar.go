// Package status renders the build watcher's footer.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui/styles"
)

// Bar shows elapsed time and pipeline counters on the left and key hints
// on the right.
type Bar struct {
	styles *styles.Styles
	keymap *keymap.KeyMap

	elapsed   time.Duration
	documents int
	chunks    int
	degraded  int
	width     int
}

// NewBar creates a status bar. Nil arguments take the defaults.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &Bar{styles: s, keymap: km, width: 80}
}

// SetCounts updates the pipeline counters.
func (b *Bar) SetCounts(documents, chunks, degraded int) {
	b.documents, b.chunks, b.degraded = documents, chunks, degraded
}

// SetElapsed updates the elapsed build time.
func (b *Bar) SetElapsed(d time.Duration) {
	b.elapsed = d
}

// SetWidth sets the rendered width.
func (b *Bar) SetWidth(width int) {
	if width > 0 {
		b.width = width
	}
}

// Width returns the rendered width.
func (b *Bar) Width() int {
	return b.width
}

// View renders the bar.
func (b *Bar) View() string {
	left := b.renderLeft()
	right := b.renderRight()

	padding := b.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return b.styles.StatusBar.Width(b.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (b *Bar) renderLeft() string {
	parts := []string{
		b.elapsed.Truncate(time.Second).String(),
		fmt.Sprintf("%d docs", b.documents),
		fmt.Sprintf("%d chunks", b.chunks),
	}
	left := strings.Join(parts, " · ")
	if b.degraded > 0 {
		left += " · " + b.styles.Warning.Render(fmt.Sprintf("%d degraded", b.degraded))
	}
	return left
}

func (b *Bar) renderRight() string {
	bindings := b.keymap.ShortHelp()
	hints := make([]string, 0, len(bindings))
	for _, k := range bindings {
		h := k.Help()
		hints = append(hints, h.Key+": "+h.Desc)
	}
	return strings.Join(hints, " | ")
}
