package game_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/yookoala/netbattleship/game"
)

func TestOpponentGridRecord_Monotonic(t *testing.T) {
	g := game.NewOpponentGrid(5, rand.New(rand.NewSource(1)))
	a1 := game.Cell{X: 0, Y: 0}
	b1 := game.Cell{X: 1, Y: 0}

	if err := g.Record(a1, game.FieldWater); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := g.Record(a1, game.FieldShip); !errors.Is(err, game.ErrConflict) {
		t.Errorf("want ErrConflict for water to ship, have %v", err)
	}
	if want, have := game.FieldWater, g.Status(a1); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	if err := g.Record(b1, game.FieldShip); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := g.Record(b1, game.FieldWater); !errors.Is(err, game.ErrConflict) {
		t.Errorf("want ErrConflict for ship to water, have %v", err)
	}
	if err := g.Record(b1, game.FieldSunk); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := g.Record(b1, game.FieldShip); !errors.Is(err, game.ErrConflict) {
		t.Errorf("want ErrConflict for sunk to ship, have %v", err)
	}

	if err := g.Record(game.Cell{X: 5, Y: 0}, game.FieldWater); !errors.Is(err, game.ErrOutOfBounds) {
		t.Errorf("want ErrOutOfBounds, have %v", err)
	}
	if err := g.Record(game.Cell{X: 2, Y: 2}, game.FieldUnknown); err == nil {
		t.Errorf("expected error recording unknown")
	}
}

func TestOpponentGridRecord_SunkRun(t *testing.T) {
	g := game.NewOpponentGrid(6, rand.New(rand.NewSource(1)))
	g.Record(game.Cell{X: 0, Y: 1}, game.FieldWater)
	g.Record(game.Cell{X: 1, Y: 1}, game.FieldShip)
	g.Record(game.Cell{X: 2, Y: 1}, game.FieldShip)
	g.Record(game.Cell{X: 4, Y: 1}, game.FieldShip)
	if err := g.Record(game.Cell{X: 3, Y: 1}, game.FieldSunk); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	tests := []struct {
		c    game.Cell
		want game.FieldStatus
	}{
		{game.Cell{X: 0, Y: 1}, game.FieldWater},
		{game.Cell{X: 1, Y: 1}, game.FieldSunk},
		{game.Cell{X: 2, Y: 1}, game.FieldSunk},
		{game.Cell{X: 3, Y: 1}, game.FieldSunk},
		{game.Cell{X: 4, Y: 1}, game.FieldSunk},
		{game.Cell{X: 5, Y: 1}, game.FieldUnknown},
		{game.Cell{X: 3, Y: 0}, game.FieldUnknown},
	}
	for _, tt := range tests {
		if have := g.Status(tt.c); have != tt.want {
			t.Errorf("%s: want %s, have %s", tt.c, tt.want, have)
		}
	}
}

// attack applies the move to the fleet and records the outcome like a
// peer answering with HIT would.
func attack(t *testing.T, f *game.Fleet, g *game.OpponentGrid, c game.Cell) *game.Ship {
	t.Helper()
	s := f.Resolve(c)
	status := game.FieldWater
	if s != nil {
		status = game.FieldShip
		if s.Sunk() {
			status = game.FieldSunk
		}
	}
	if err := g.Record(c, status); err != nil {
		t.Fatalf("unexpected error recording %s: %s", c, err)
	}
	return s
}

func TestNextMove_HuntAndTarget(t *testing.T) {
	for length := 2; length <= 6; length++ {
		for _, dir := range []game.Direction{game.DirectionHorizontal, game.DirectionVertical} {
			f := game.NewFleet(10)
			ship, err := game.NewShip(game.Cell{X: 2, Y: 3}, dir, length)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			f.Place(ship)

			g := game.NewOpponentGrid(10, rand.New(rand.NewSource(int64(length))))

			// first hit somewhere in the middle of the ship
			attack(t, f, g, ship.Cells[length/2].Cell)

			calls := 0
			for !ship.Sunk() {
				c, err := g.NextMove()
				if err != nil {
					t.Fatalf("length %d %s: unexpected error: %s", length, dir, err)
				}
				if !g.IsUnknown(c) {
					t.Fatalf("length %d %s: NextMove returned known cell %s", length, dir, c)
				}
				attack(t, f, g, c)
				calls++
				if calls > length+3 {
					t.Fatalf("length %d %s: ship not sunk after %d moves\n%s", length, dir, calls, g)
				}
			}
		}
	}
}

func TestNextMove_WholeGame(t *testing.T) {
	for _, lvl := range game.Levels {
		for seed := int64(0); seed < 10; seed++ {
			rng := rand.New(rand.NewSource(seed))
			f := game.NewFleet(lvl.BoardSize)
			if err := f.Generate(rng, lvl.Ships); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			g := game.NewOpponentGrid(lvl.BoardSize, rng)

			for moves := 0; !f.AllSunk(); moves++ {
				if moves >= lvl.BoardSize*lvl.BoardSize {
					t.Fatalf("level %d seed %d: too many moves", lvl.Number, seed)
				}
				c, err := g.NextMove()
				if err != nil {
					t.Fatalf("level %d seed %d: unexpected error: %s\n%s", lvl.Number, seed, err, g)
				}
				if !g.IsUnknown(c) {
					t.Fatalf("level %d seed %d: NextMove returned known cell %s", lvl.Number, seed, c)
				}
				attack(t, f, g, c)
			}
		}
	}
}

func TestNextMove_Integrity(t *testing.T) {
	g := game.NewOpponentGrid(1, rand.New(rand.NewSource(1)))
	g.Record(game.Cell{}, game.FieldWater)
	if _, err := g.NextMove(); !errors.Is(err, game.ErrIntegrity) {
		t.Errorf("want ErrIntegrity on exhausted grid, have %v", err)
	}

	g = game.NewOpponentGrid(3, rand.New(rand.NewSource(1)))
	g.Record(game.Cell{X: 1, Y: 1}, game.FieldShip)
	for _, c := range []game.Cell{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 2}} {
		g.Record(c, game.FieldWater)
	}
	if _, err := g.NextMove(); !errors.Is(err, game.ErrIntegrity) {
		t.Errorf("want ErrIntegrity on enclosed ship cell, have %v", err)
	}
}
