package game

import (
	"fmt"
	"math/rand"
	"strings"
)

// FieldStatus is what is known about one cell of the opponent's grid.
type FieldStatus int

const (
	FieldUnknown FieldStatus = iota
	FieldWater
	FieldShip
	FieldSunk
)

// String implements fmt.Stringer.
func (s FieldStatus) String() string {
	switch s {
	case FieldUnknown:
		return "Unknown"
	case FieldWater:
		return "Water"
	case FieldShip:
		return "Ship"
	case FieldSunk:
		return "Sunk"
	default:
		return "Invalid"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s FieldStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// follows reports whether s may replace prev. A cell only moves from
// unknown to water or ship, and from ship to sunk.
func (s FieldStatus) follows(prev FieldStatus) bool {
	switch prev {
	case FieldUnknown:
		return true
	case FieldShip:
		return s == FieldShip || s == FieldSunk
	default:
		return s == prev
	}
}

// OpponentGrid tracks what is known about the opponent's board and picks
// the next cell to attack.
type OpponentGrid struct {
	size  int
	field [][]FieldStatus
	rng   *rand.Rand
}

// NewOpponentGrid creates a grid of the given size with every cell unknown.
func NewOpponentGrid(size int, rng *rand.Rand) *OpponentGrid {
	field := make([][]FieldStatus, size)
	for y := range field {
		field[y] = make([]FieldStatus, size)
	}
	return &OpponentGrid{size: size, field: field, rng: rng}
}

// Size returns the board size.
func (g *OpponentGrid) Size() int {
	return g.size
}

// Status returns the status of c. Cells off the board read as water.
func (g *OpponentGrid) Status(c Cell) FieldStatus {
	if !c.In(g.size) {
		return FieldWater
	}
	return g.field[c.Y][c.X]
}

// IsUnknown reports whether c is on the board and has not been attacked.
func (g *OpponentGrid) IsUnknown(c Cell) bool {
	return c.In(g.size) && g.field[c.Y][c.X] == FieldUnknown
}

// Record stores the outcome of an attack on c. A sunk outcome marks the
// whole run of ship cells through c as sunk.
func (g *OpponentGrid) Record(c Cell, s FieldStatus) error {
	if !c.In(g.size) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, c)
	}
	if s == FieldUnknown || s > FieldSunk {
		return fmt.Errorf("cannot record status %s", s)
	}
	if prev := g.field[c.Y][c.X]; !s.follows(prev) {
		return fmt.Errorf("%w: %s is %s, reported %s", ErrConflict, c, prev, s)
	}

	g.field[c.Y][c.X] = s
	if s != FieldSunk {
		return nil
	}
	for _, d := range []Cell{{-1, 0}, {0, -1}, {1, 0}, {0, 1}} {
		n := Cell{X: c.X + d.X, Y: c.Y + d.Y}
		for n.In(g.size) && g.field[n.Y][n.X] == FieldShip {
			g.field[n.Y][n.X] = FieldSunk
			n.X += d.X
			n.Y += d.Y
		}
	}
	return nil
}

// NextMove picks the cell to attack next.
//
// While an unsunk ship cell is known, the ship is followed along its axis
// and one of its open ends is returned. Otherwise a random unknown cell
// is chosen.
func (g *OpponentGrid) NextMove() (Cell, error) {
	if ship, ok := g.find(Cell{}, FieldShip); ok {
		return g.target(ship)
	}

	start := Cell{X: g.rng.Intn(g.size), Y: g.rng.Intn(g.size)}
	if c, ok := g.find(start, FieldUnknown); ok {
		return c, nil
	}
	return Cell{}, fmt.Errorf("%w: no unknown cell left but the game is not won", ErrIntegrity)
}

// find scans row by row from start, wrapping around, for the first cell
// with the given status.
func (g *OpponentGrid) find(start Cell, s FieldStatus) (Cell, bool) {
	total := g.size * g.size
	offset := start.Y*g.size + start.X
	for i := 0; i < total; i++ {
		idx := (offset + i) % total
		if g.field[idx/g.size][idx%g.size] == s {
			return Cell{X: idx % g.size, Y: idx / g.size}, true
		}
	}
	return Cell{}, false
}

func (g *OpponentGrid) target(ship Cell) (Cell, error) {
	end, dir := g.follow(ship, 1)
	if dir != DirectionSingle {
		if next := step(end, dir, 1); g.IsUnknown(next) {
			return next, nil
		}
		end, dir = g.follow(ship, -1)
		if next := step(end, dir, -1); g.IsUnknown(next) {
			return next, nil
		}
		return Cell{}, fmt.Errorf("%w: ship at %s has no unknown cell beyond its ends", ErrIntegrity, ship)
	}

	for _, d := range []Cell{{-1, 0}, {0, -1}, {1, 0}, {0, 1}} {
		if next := (Cell{X: ship.X + d.X, Y: ship.Y + d.Y}); g.IsUnknown(next) {
			return next, nil
		}
	}
	return Cell{}, fmt.Errorf("%w: unsunk ship at %s has no unknown neighbour", ErrIntegrity, ship)
}

// follow walks from c along contiguous ship cells, right then down for
// sign 1 and left then up for sign -1, and returns the last ship cell
// and the orientation found. If nothing is found in that sign the
// opposite side is only inspected for the orientation.
func (g *OpponentGrid) follow(c Cell, sign int) (Cell, Direction) {
	for _, dir := range []Direction{DirectionHorizontal, DirectionVertical} {
		if g.Status(step(c, dir, sign)) != FieldShip {
			continue
		}
		end := c
		for g.Status(step(end, dir, sign)) == FieldShip {
			end = step(end, dir, sign)
		}
		return end, dir
	}
	for _, dir := range []Direction{DirectionHorizontal, DirectionVertical} {
		if g.Status(step(c, dir, -sign)) == FieldShip {
			return c, dir
		}
	}
	return c, DirectionSingle
}

func step(c Cell, dir Direction, n int) Cell {
	switch dir {
	case DirectionHorizontal:
		c.X += n
	case DirectionVertical:
		c.Y += n
	}
	return c
}

// Snapshot returns a copy of the grid as rows.
func (g *OpponentGrid) Snapshot() [][]FieldStatus {
	rows := make([][]FieldStatus, g.size)
	for y := range rows {
		rows[y] = append([]FieldStatus(nil), g.field[y]...)
	}
	return rows
}

// String renders the grid: _ unknown, W water, X ship, S sunk.
func (g *OpponentGrid) String() string {
	return render(g.size, func(c Cell) string {
		switch g.field[c.Y][c.X] {
		case FieldWater:
			return "W"
		case FieldShip:
			return "X"
		case FieldSunk:
			return "S"
		default:
			return "_"
		}
	})
}
