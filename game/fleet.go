package game

import (
	"bytes"
	"fmt"
	"math/rand"
	"text/tabwriter"
)

// placementAttempts bounds the rejection sampling for a single ship.
// placementRounds bounds how often the whole fleet is thrown away and
// placed again after one ship ran out of attempts.
const (
	placementAttempts = 10000
	placementRounds   = 32
)

// ShipCell is one cell occupied by a ship, with its own hit flag.
type ShipCell struct {
	Cell
	Hit bool
}

// Ship is a straight run of cells.
type Ship struct {
	Direction Direction
	Cells     []ShipCell
}

// NewShip creates a ship of the given length starting at the top-left cell.
func NewShip(start Cell, dir Direction, length int) (*Ship, error) {
	if length < 1 {
		return nil, fmt.Errorf("invalid ship length: %d", length)
	}
	if dir == DirectionSingle && length != 1 {
		return nil, fmt.Errorf("single cell ship with length %d", length)
	}

	s := &Ship{Direction: dir, Cells: make([]ShipCell, length)}
	for i := range s.Cells {
		c := start
		switch dir {
		case DirectionHorizontal:
			c.X += i
		case DirectionVertical:
			c.Y += i
		}
		s.Cells[i] = ShipCell{Cell: c}
	}
	return s, nil
}

// Len returns the number of cells of the ship.
func (s *Ship) Len() int {
	return len(s.Cells)
}

// Sunk reports whether every cell of the ship has been hit.
func (s *Ship) Sunk() bool {
	for _, c := range s.Cells {
		if !c.Hit {
			return false
		}
	}
	return true
}

// Occupies reports whether the ship lies on c.
func (s *Ship) Occupies(c Cell) bool {
	return s.index(c) >= 0
}

// Touches reports whether any cell of s equals or neighbours a cell of o.
func (s *Ship) Touches(o *Ship) bool {
	for _, a := range s.Cells {
		for _, b := range o.Cells {
			if a.Touches(b.Cell) {
				return true
			}
		}
	}
	return false
}

// In reports whether all cells are on a board of the given size.
func (s *Ship) In(size int) bool {
	for _, c := range s.Cells {
		if !c.In(size) {
			return false
		}
	}
	return true
}

func (s *Ship) index(c Cell) int {
	for i := range s.Cells {
		if s.Cells[i].Cell == c {
			return i
		}
	}
	return -1
}

func (s *Ship) String() string {
	return fmt.Sprintf("%d cell(s) at %s %s", s.Len(), s.Cells[0].Cell, s.Direction)
}

// Fleet is the player's own board: a set of ships on a square grid.
type Fleet struct {
	size  int
	ships []*Ship
}

// NewFleet creates an empty fleet on a board of the given size.
func NewFleet(size int) *Fleet {
	return &Fleet{size: size}
}

// Size returns the board size.
func (f *Fleet) Size() int {
	return f.size
}

// Ships returns the placed ships.
func (f *Fleet) Ships() []*Ship {
	return f.ships
}

// Suitable reports whether s fits on the board without touching any
// ship already placed.
func (f *Fleet) Suitable(s *Ship) bool {
	if !s.In(f.size) {
		return false
	}
	for _, placed := range f.ships {
		if placed.Touches(s) {
			return false
		}
	}
	return true
}

// Place adds s to the fleet.
func (f *Fleet) Place(s *Ship) error {
	if !f.Suitable(s) {
		return fmt.Errorf("%w: ship %s is not suitable", ErrPlacement, s)
	}
	f.ships = append(f.ships, s)
	return nil
}

// Generate replaces the fleet with randomly placed ships of the given
// lengths. No two ships share or neighbour a cell.
func (f *Fleet) Generate(rng *rand.Rand, lengths []int) error {
	for _, l := range lengths {
		if l < 1 || l > f.size {
			return fmt.Errorf("%w: ship of length %d on board of size %d", ErrPlacement, l, f.size)
		}
	}

	for round := 0; round < placementRounds; round++ {
		f.ships = f.ships[:0]
		if f.generateRound(rng, lengths) {
			return nil
		}
	}
	f.ships = nil
	return fmt.Errorf("%w: no placement for %v on board of size %d", ErrPlacement, lengths, f.size)
}

func (f *Fleet) generateRound(rng *rand.Rand, lengths []int) bool {
nextShip:
	for _, l := range lengths {
		for attempt := 0; attempt < placementAttempts; attempt++ {
			s := randomShip(rng, f.size, l)
			if f.Suitable(s) {
				f.ships = append(f.ships, s)
				continue nextShip
			}
		}
		return false
	}
	return true
}

func randomShip(rng *rand.Rand, size, length int) *Ship {
	dir := DirectionSingle
	if length > 1 {
		dir = DirectionHorizontal
		if rng.Intn(2) == 1 {
			dir = DirectionVertical
		}
	}

	maxX, maxY := size, size
	switch dir {
	case DirectionHorizontal:
		maxX = size - length + 1
	case DirectionVertical:
		maxY = size - length + 1
	}
	s, _ := NewShip(Cell{X: rng.Intn(maxX), Y: rng.Intn(maxY)}, dir, length)
	return s
}

// Resolve applies an incoming attack. It returns the ship on the cell,
// with the cell marked hit, or nil for water.
func (f *Fleet) Resolve(c Cell) *Ship {
	for _, s := range f.ships {
		if i := s.index(c); i >= 0 {
			s.Cells[i].Hit = true
			return s
		}
	}
	return nil
}

// AllSunk reports whether every ship of the fleet is sunk.
func (f *Fleet) AllSunk() bool {
	for _, s := range f.ships {
		if !s.Sunk() {
			return false
		}
	}
	return true
}

// Validate checks the spacing rule of the whole fleet.
func (f *Fleet) Validate() error {
	for i, s := range f.ships {
		if !s.In(f.size) {
			return fmt.Errorf("ship %s out of bounds", s)
		}
		for _, o := range f.ships[i+1:] {
			if s.Touches(o) {
				return fmt.Errorf("ships %s and %s touch", s, o)
			}
		}
	}
	return nil
}

// String renders the board: S ship, X hit, ~ water.
func (f *Fleet) String() string {
	return render(f.size, func(c Cell) string {
		for _, s := range f.ships {
			if i := s.index(c); i >= 0 {
				if s.Cells[i].Hit {
					return "X"
				}
				return "S"
			}
		}
		return "~"
	})
}

func render(size int, symbol func(Cell) string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 2, 0, 1, ' ', 0)

	fmt.Fprint(w, "\t")
	for x := 0; x < size; x++ {
		fmt.Fprintf(w, "%c\t", 'A'+x)
	}
	fmt.Fprint(w, "\n")
	for y := 0; y < size; y++ {
		fmt.Fprintf(w, "%d\t", y+1)
		for x := 0; x < size; x++ {
			fmt.Fprint(w, symbol(Cell{X: x, Y: y})+"\t")
		}
		fmt.Fprint(w, "\n")
	}
	w.Flush()
	return buf.String()
}

// OwnStatus is the state of one cell of the player's own board.
type OwnStatus int

const (
	OwnWater OwnStatus = iota
	OwnShip
	OwnHit
	OwnSunk
)

// String implements fmt.Stringer.
func (s OwnStatus) String() string {
	switch s {
	case OwnWater:
		return "water"
	case OwnShip:
		return "ship"
	case OwnHit:
		return "hit"
	case OwnSunk:
		return "sunk"
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (s OwnStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot returns the board as rows of cell states.
func (f *Fleet) Snapshot() [][]OwnStatus {
	rows := make([][]OwnStatus, f.size)
	for y := range rows {
		rows[y] = make([]OwnStatus, f.size)
	}
	for _, s := range f.ships {
		sunk := s.Sunk()
		for _, c := range s.Cells {
			if !c.In(f.size) {
				continue
			}
			switch {
			case sunk:
				rows[c.Y][c.X] = OwnSunk
			case c.Hit:
				rows[c.Y][c.X] = OwnHit
			default:
				rows[c.Y][c.X] = OwnShip
			}
		}
	}
	return rows
}
