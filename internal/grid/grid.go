package grid

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidGrid = errors.New("invalid grid")

// Pos is a (row, col) tile coordinate, 0-indexed from the top-left corner.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Unknown marks a position an observer cannot see.
var Unknown = Pos{Row: -1, Col: -1}

func At(row, col int) Pos {
	return Pos{Row: row, Col: col}
}

func (p Pos) Add(d Pos) Pos {
	return Pos{Row: p.Row + d.Row, Col: p.Col + d.Col}
}

func (p Pos) Less(o Pos) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Col < o.Col
}

func (p Pos) String() string {
	if p == Unknown {
		return "?"
	}
	return fmt.Sprintf("%d,%d", p.Row, p.Col)
}

func Manhattan(a, b Pos) int {
	return abs(a.Row-b.Row) + abs(a.Col-b.Col)
}

// SortPositions orders positions row-major in place and returns the slice.
func SortPositions(ps []Pos) []Pos {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
	return ps
}

// Grid is the static geometry of a board. It is never mutated after New.
type Grid struct {
	height  int
	width   int
	walls   map[Pos]struct{}
	alarms  map[Pos]struct{}
	corners []Pos
}

func New(height, width int, walls, alarms, corners []Pos) (*Grid, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be > 0, got %dx%d", ErrInvalidGrid, height, width)
	}
	g := &Grid{
		height: height,
		width:  width,
		walls:  make(map[Pos]struct{}, len(walls)),
		alarms: make(map[Pos]struct{}, len(alarms)),
	}
	for _, w := range walls {
		if !g.InBounds(w) {
			return nil, fmt.Errorf("%w: wall %s out of bounds", ErrInvalidGrid, w)
		}
		g.walls[w] = struct{}{}
	}
	for _, a := range alarms {
		if !g.InBounds(a) {
			return nil, fmt.Errorf("%w: alarm %s out of bounds", ErrInvalidGrid, a)
		}
		if g.IsWall(a) {
			return nil, fmt.Errorf("%w: alarm %s overlaps a wall", ErrInvalidGrid, a)
		}
		g.alarms[a] = struct{}{}
	}
	seen := make(map[Pos]struct{}, len(corners))
	for _, c := range corners {
		if !g.InBounds(c) {
			return nil, fmt.Errorf("%w: corner %s out of bounds", ErrInvalidGrid, c)
		}
		if g.IsWall(c) {
			return nil, fmt.Errorf("%w: corner %s overlaps a wall", ErrInvalidGrid, c)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: duplicate corner %s", ErrInvalidGrid, c)
		}
		seen[c] = struct{}{}
		g.corners = append(g.corners, c)
	}
	return g, nil
}

// Default returns the 6x6 heist board.
func Default() *Grid {
	g, err := New(6, 6,
		[]Pos{{1, 2}, {2, 3}, {3, 1}, {4, 4}},
		[]Pos{{2, 2}, {3, 3}},
		[]Pos{{0, 0}, {0, 5}, {5, 0}, {5, 5}},
	)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Grid) Height() int { return g.height }
func (g *Grid) Width() int  { return g.width }

func (g *Grid) InBounds(p Pos) bool {
	return p.Row >= 0 && p.Row < g.height && p.Col >= 0 && p.Col < g.width
}

func (g *Grid) IsWall(p Pos) bool {
	_, ok := g.walls[p]
	return ok
}

func (g *Grid) IsAlarm(p Pos) bool {
	_, ok := g.alarms[p]
	return ok
}

func (g *Grid) IsPassable(p Pos) bool {
	return g.InBounds(p) && !g.IsWall(p)
}

func (g *Grid) IsCorner(p Pos) bool {
	for _, c := range g.corners {
		if c == p {
			return true
		}
	}
	return false
}

func (g *Grid) Corners() []Pos {
	return append([]Pos(nil), g.corners...)
}

func (g *Grid) Walls() []Pos {
	return sortedKeys(g.walls)
}

func (g *Grid) Alarms() []Pos {
	return sortedKeys(g.alarms)
}

// Tiles lists every in-bounds tile in row-major order.
func (g *Grid) Tiles() []Pos {
	out := make([]Pos, 0, g.height*g.width)
	for r := 0; r < g.height; r++ {
		for c := 0; c < g.width; c++ {
			out = append(out, Pos{Row: r, Col: c})
		}
	}
	return out
}

var neighborDeltas = [4]Pos{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Neighbors yields passable 4-connected neighbors in up, down, left, right order.
func (g *Grid) Neighbors(p Pos) []Pos {
	out := make([]Pos, 0, 4)
	for _, d := range neighborDeltas {
		n := p.Add(d)
		if g.IsPassable(n) {
			out = append(out, n)
		}
	}
	return out
}

func sortedKeys(set map[Pos]struct{}) []Pos {
	out := make([]Pos, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return SortPositions(out)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
