package trap

import (
	"heist/internal/grid"
	"heist/internal/pathfind"
)

const (
	collectWeight = 1
	escapeWeight  = 2
)

// View is the slice of world state the advisor reads.
type View struct {
	Thief     grid.Pos
	Exit      grid.Pos
	Gems      []grid.Pos
	Collected []grid.Pos
	Traps     []grid.Pos
}

// Score is a tile and its aggregate interception weight.
type Score struct {
	Tile  grid.Pos
	Value int
}

// Scores weighs every tile on the thief's shortest route to each active gem by 1
// and every tile on each gem's (active or collected) shortest route to the exit
// by 2. Start tiles are never scored. Entries are returned in first-scored order.
func Scores(g *grid.Grid, v View) []Score {
	index := make(map[grid.Pos]int)
	var out []Score
	add := func(path []grid.Pos, weight int) {
		if len(path) < 2 {
			return
		}
		for _, tile := range path[1:] {
			i, ok := index[tile]
			if !ok {
				i = len(out)
				index[tile] = i
				out = append(out, Score{Tile: tile})
			}
			out[i].Value += weight
		}
	}

	for _, gem := range v.Gems {
		add(pathfind.ShortestPath(g, v.Thief, gem, nil), collectWeight)
	}
	sources := make([]grid.Pos, 0, len(v.Gems)+len(v.Collected))
	sources = append(sources, v.Gems...)
	sources = append(sources, v.Collected...)
	for _, gem := range sources {
		add(pathfind.ShortestPath(g, gem, v.Exit, nil), escapeWeight)
	}
	return out
}

// BestTile returns the highest scoring tile that is passable, not an alarm and
// not already trapped. Ties go to the tile scored first.
func BestTile(g *grid.Grid, v View) (grid.Pos, bool) {
	trapped := make(map[grid.Pos]struct{}, len(v.Traps))
	for _, t := range v.Traps {
		trapped[t] = struct{}{}
	}

	var (
		best  grid.Pos
		score int
		found bool
	)
	for _, s := range Scores(g, v) {
		if !g.IsPassable(s.Tile) || g.IsAlarm(s.Tile) {
			continue
		}
		if _, ok := trapped[s.Tile]; ok {
			continue
		}
		if !found || s.Value > score {
			best, score, found = s.Tile, s.Value, true
		}
	}
	return best, found
}
