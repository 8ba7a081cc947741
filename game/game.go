// Package game holds the board side of a battleship match: the level
// table, the player's own fleet and what is known about the opponent's
// grid.
package game

import (
	"errors"
	"fmt"

	"github.com/yookoala/netbattleship/protocol"
)

var (
	// ErrPlacement is returned when a fleet cannot be placed on a board.
	ErrPlacement = errors.New("fleet placement failed")

	// ErrIntegrity signals an impossible state of the opponent grid.
	ErrIntegrity = errors.New("opponent grid integrity violated")

	// ErrConflict is returned when a recorded outcome contradicts what
	// is already known about a cell.
	ErrConflict = errors.New("conflicting cell status")

	// ErrOutOfBounds is returned for a cell outside of the board.
	ErrOutOfBounds = errors.New("cell out of bounds")
)

// Cell is a zero based board coordinate.
type Cell struct {
	X, Y int
}

// String returns the wire form of the cell, e.g. "A1".
func (c Cell) String() string {
	return protocol.FormatCell(c.X, c.Y)
}

// In reports whether the cell lies on a board of the given size.
func (c Cell) In(size int) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < size && c.Y < size
}

// Touches reports whether the cells are equal or 4-neighbours.
func (c Cell) Touches(o Cell) bool {
	return abs(c.X-o.X)+abs(c.Y-o.Y) <= 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Direction of a ship, or the orientation of a run of hit cells.
type Direction int

const (
	DirectionSingle Direction = iota
	DirectionHorizontal
	DirectionVertical
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirectionSingle:
		return "Single"
	case DirectionHorizontal:
		return "Horizontal"
	case DirectionVertical:
		return "Vertical"
	default:
		return "Unknown"
	}
}

// Level describes the board size and fleet of one game level.
type Level struct {
	Number    int
	BoardSize int
	Ships     []int
}

// Levels is the level table shared by both peers. Level n is Levels[n-1].
var Levels = [protocol.NumberOfLevels]Level{
	{Number: 1, BoardSize: 14, Ships: []int{2, 2, 2, 2, 4, 6}},
	{Number: 2, BoardSize: 15, Ships: []int{2, 2, 2, 2, 2}},
	{Number: 3, BoardSize: 16, Ships: []int{2, 2, 2, 2, 4, 6}},
	{Number: 4, BoardSize: 17, Ships: []int{2, 2, 2, 2, 4, 6}},
	{Number: 5, BoardSize: 18, Ships: []int{2, 2, 2, 2, 6}},
	{Number: 6, BoardSize: 19, Ships: []int{2, 1, 7, 6}},
}

// LevelFor returns level n of the table.
func LevelFor(n int) (Level, error) {
	if n < 1 || n > len(Levels) {
		return Level{}, fmt.Errorf("level %d not in [1, %d]", n, len(Levels))
	}
	return Levels[n-1], nil
}

// EffectiveLevel is the level a match between the two requested levels
// is played at.
func EffectiveLevel(local, peer int) int {
	return min(local, peer)
}
