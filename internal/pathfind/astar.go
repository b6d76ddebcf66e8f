package pathfind

import (
	"container/heap"

	"heist/internal/grid"
)

// ShortestPath runs A* with a Manhattan heuristic over the 4-connected passable
// tiles of g, additionally avoiding any tile in blocked. The result runs from
// start to goal inclusive, or is nil when goal is unreachable.
//
// Frontier ties are broken by lower cost-so-far, then by row-major position,
// so equal-length routes resolve the same way on every call.
func ShortestPath(g *grid.Grid, start, goal grid.Pos, blocked map[grid.Pos]struct{}) []grid.Pos {
	if !open(g, start, blocked) || !open(g, goal, blocked) {
		return nil
	}

	frontier := &nodeHeap{}
	heap.Push(frontier, node{pos: start, parent: start, g: 0, f: grid.Manhattan(start, goal)})
	cameFrom := make(map[grid.Pos]grid.Pos)
	closed := make(map[grid.Pos]struct{})
	seq := 0

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(node)
		if _, done := closed[current.pos]; done {
			continue
		}
		closed[current.pos] = struct{}{}
		cameFrom[current.pos] = current.parent
		if current.pos == goal {
			return reconstruct(cameFrom, start, goal)
		}
		for _, next := range g.Neighbors(current.pos) {
			if _, done := closed[next]; done {
				continue
			}
			if _, skip := blocked[next]; skip {
				continue
			}
			seq++
			cost := current.g + 1
			heap.Push(frontier, node{
				pos:    next,
				parent: current.pos,
				g:      cost,
				f:      cost + grid.Manhattan(next, goal),
				seq:    seq,
			})
		}
	}
	return nil
}

// Distance is the length in steps of the shortest path, or -1 when unreachable.
func Distance(g *grid.Grid, start, goal grid.Pos, blocked map[grid.Pos]struct{}) int {
	path := ShortestPath(g, start, goal, blocked)
	if path == nil {
		return -1
	}
	return len(path) - 1
}

func open(g *grid.Grid, p grid.Pos, blocked map[grid.Pos]struct{}) bool {
	if !g.IsPassable(p) {
		return false
	}
	_, skip := blocked[p]
	return !skip
}

func reconstruct(cameFrom map[grid.Pos]grid.Pos, start, goal grid.Pos) []grid.Pos {
	path := []grid.Pos{goal}
	for at := goal; at != start; {
		at = cameFrom[at]
		path = append(path, at)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type node struct {
	pos    grid.Pos
	parent grid.Pos
	g      int
	f      int
	seq    int
}

type nodeHeap []node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.g != b.g {
		return a.g < b.g
	}
	if a.pos != b.pos {
		return a.pos.Less(b.pos)
	}
	return a.seq < b.seq
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(node)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
