package scape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"heist/internal/grid"
)

var ErrBadKey = errors.New("malformed observation key")

// Observation is the full world view: thief, guard, sorted gems, sorted traps,
// alarm flag and exit. Masked views carry grid.Unknown in Thief.
type Observation struct {
	Thief grid.Pos   `json:"thief"`
	Guard grid.Pos   `json:"guard"`
	Gems  []grid.Pos `json:"gems"`
	Traps []grid.Pos `json:"traps"`
	Alarm bool       `json:"alarm"`
	Exit  grid.Pos   `json:"exit"`
}

func (o Observation) ThiefKnown() bool {
	return o.Thief != grid.Unknown
}

// Key is the hashable projection used to index value tables.
func (o Observation) Key() string {
	var b strings.Builder
	b.Grow(48)
	b.WriteString("T")
	b.WriteString(o.Thief.String())
	b.WriteString("|G")
	b.WriteString(o.Guard.String())
	for _, g := range o.Gems {
		b.WriteString("|D")
		b.WriteString(g.String())
	}
	for _, t := range o.Traps {
		b.WriteString("|X")
		b.WriteString(t.String())
	}
	if o.Alarm {
		b.WriteString("|A1")
	} else {
		b.WriteString("|A0")
	}
	b.WriteString("|E")
	b.WriteString(o.Exit.String())
	return b.String()
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (Observation, error) {
	var (
		o            Observation
		seenT, seenG bool
		seenA, seenE bool
	)
	for _, field := range strings.Split(key, "|") {
		if field == "" {
			return Observation{}, fmt.Errorf("%w: empty field in %q", ErrBadKey, key)
		}
		tag, body := field[0], field[1:]
		switch tag {
		case 'A':
			if body != "0" && body != "1" {
				return Observation{}, fmt.Errorf("%w: alarm %q", ErrBadKey, body)
			}
			o.Alarm = body == "1"
			seenA = true
			continue
		case 'T', 'G', 'D', 'X', 'E':
		default:
			return Observation{}, fmt.Errorf("%w: tag %q", ErrBadKey, string(tag))
		}
		p, err := parsePos(body)
		if err != nil {
			return Observation{}, fmt.Errorf("%w: %v", ErrBadKey, err)
		}
		switch tag {
		case 'T':
			o.Thief, seenT = p, true
		case 'G':
			o.Guard, seenG = p, true
		case 'D':
			o.Gems = append(o.Gems, p)
		case 'X':
			o.Traps = append(o.Traps, p)
		case 'E':
			o.Exit, seenE = p, true
		}
	}
	if !seenT || !seenG || !seenA || !seenE {
		return Observation{}, fmt.Errorf("%w: missing fields in %q", ErrBadKey, key)
	}
	return o, nil
}

func parsePos(s string) (grid.Pos, error) {
	if s == "?" {
		return grid.Unknown, nil
	}
	r, c, ok := strings.Cut(s, ",")
	if !ok {
		return grid.Pos{}, fmt.Errorf("position %q", s)
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return grid.Pos{}, fmt.Errorf("row %q", r)
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return grid.Pos{}, fmt.Errorf("col %q", c)
	}
	return grid.At(row, col), nil
}

func (o Observation) clone() Observation {
	o.Gems = append([]grid.Pos(nil), o.Gems...)
	o.Traps = append([]grid.Pos(nil), o.Traps...)
	return o
}
