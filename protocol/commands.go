package protocol

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// VersionCommand announces the implementation and supported protocol versions.
type VersionCommand struct {
	Implementation string
	Versions       []string
}

// NewVersion creates the VERSION command this implementation sends.
func NewVersion() VersionCommand {
	return VersionCommand{Implementation: Implementation, Versions: []string{Version}}
}

// Keyword implements Command.
func (c VersionCommand) Keyword() string { return KeywordVersion }

// Encode implements Command.
func (c VersionCommand) Encode() string {
	return KeywordVersion + " " + c.Implementation + " " + strings.Join(c.Versions, " ") + LineEnd
}

// Valid implements Command.
func (c VersionCommand) Valid() bool {
	if isBlank(c.Implementation) || len(c.Versions) == 0 {
		return false
	}
	for _, v := range c.Versions {
		if isBlank(v) {
			return false
		}
	}
	return true
}

// HasVersion reports whether v is one of the announced versions.
func (c VersionCommand) HasVersion(v string) bool {
	for _, have := range c.Versions {
		if have == v {
			return true
		}
	}
	return false
}

// IAMCommand carries the requested level and the short ASCII name.
type IAMCommand struct {
	Level int
	Name  string
}

// Keyword implements Command.
func (c IAMCommand) Keyword() string { return KeywordIAM }

// Encode implements Command.
func (c IAMCommand) Encode() string {
	return KeywordIAM + " " + strconv.Itoa(c.Level) + " " + c.Name + LineEnd
}

// Valid implements Command.
func (c IAMCommand) Valid() bool {
	if isBlank(c.Name) || utf8.RuneCountInString(c.Name) > MaxNameLength {
		return false
	}
	return c.Level >= 1 && c.Level <= NumberOfLevels
}

// IAMUCommand carries the full, untruncated player name.
type IAMUCommand struct {
	Name string
}

// Keyword implements Command.
func (c IAMUCommand) Keyword() string { return KeywordIAMU }

// Encode implements Command.
func (c IAMUCommand) Encode() string { return KeywordIAMU + " " + c.Name + LineEnd }

// Valid implements Command.
func (c IAMUCommand) Valid() bool { return !isBlank(c.Name) }

// CoinCommand carries one side's half of the coin flip.
type CoinCommand struct {
	Value string
}

// NewCoin creates a COIN command from a bit.
func NewCoin(bit int) CoinCommand {
	return CoinCommand{Value: strconv.Itoa(bit & 1)}
}

// Keyword implements Command.
func (c CoinCommand) Keyword() string { return KeywordCoin }

// Encode implements Command.
func (c CoinCommand) Encode() string { return KeywordCoin + " " + c.Value + LineEnd }

// Valid implements Command.
func (c CoinCommand) Valid() bool { return c.Value == "0" || c.Value == "1" }

// Bit returns the coin as an integer. Only meaningful when Valid.
func (c CoinCommand) Bit() int {
	if c.Value == "1" {
		return 1
	}
	return 0
}

// ShootCommand attacks the cell (X, Y), zero based.
type ShootCommand struct {
	X, Y int
}

// Keyword implements Command.
func (c ShootCommand) Keyword() string { return KeywordShoot }

// Encode implements Command.
func (c ShootCommand) Encode() string { return KeywordShoot + " " + FormatCell(c.X, c.Y) + LineEnd }

// Valid implements Command.
func (c ShootCommand) Valid() bool { return c.X >= 0 && c.Y >= 0 }

// HitCommand answers a SHOOT.
type HitCommand struct {
	X, Y   int
	Status HitStatus
}

// Keyword implements Command.
func (c HitCommand) Keyword() string { return KeywordHit }

// Encode implements Command.
func (c HitCommand) Encode() string {
	return KeywordHit + " " + FormatCell(c.X, c.Y) + " " + c.Status.Code() + LineEnd
}

// Valid implements Command.
func (c HitCommand) Valid() bool {
	return c.X >= 0 && c.Y >= 0 && c.Status != HitUnknown
}

// ChatCommand is a free text message.
type ChatCommand struct {
	Text string
}

// Keyword implements Command.
func (c ChatCommand) Keyword() string { return KeywordChat }

// Encode implements Command.
func (c ChatCommand) Encode() string { return KeywordChat + " " + c.Text + LineEnd }

// Valid implements Command.
func (c ChatCommand) Valid() bool { return true }

// WithdrawCommand resigns the game.
type WithdrawCommand struct{}

// Keyword implements Command.
func (c WithdrawCommand) Keyword() string { return KeywordWithdraw }

// Encode implements Command.
func (c WithdrawCommand) Encode() string { return KeywordWithdraw + LineEnd }

// Valid implements Command.
func (c WithdrawCommand) Valid() bool { return true }

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
