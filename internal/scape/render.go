package scape

import (
	"io"
	"strings"

	"heist/internal/grid"
)

// Render draws the board as ASCII: # wall, A alarm, D gem, X trap, E exit,
// T thief, G guard. Later layers win on shared tiles.
func (h *Heist) Render(w io.Writer) error {
	rows := make([][]byte, h.grid.Height())
	for r := range rows {
		rows[r] = []byte(strings.Repeat(".", h.grid.Width()))
	}
	paint := func(p grid.Pos, c byte) {
		if h.grid.InBounds(p) {
			rows[p.Row][p.Col] = c
		}
	}
	for _, p := range h.grid.Walls() {
		paint(p, '#')
	}
	for _, p := range h.grid.Alarms() {
		paint(p, 'A')
	}
	for _, p := range h.gemTiles() {
		paint(p, 'D')
	}
	for _, p := range h.trapTiles() {
		paint(p, 'X')
	}
	paint(h.exit, 'E')
	paint(h.thief, 'T')
	paint(h.guard, 'G')

	var b strings.Builder
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = string(c)
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
