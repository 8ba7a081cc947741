// Package protocol implements the line based wire protocol spoken between
// two battleship peers.
//
// Every command is one line of UTF-8 text terminated by CRLF. A line starts
// with an upper case keyword, optionally followed by a single space and a
// payload. The codec is pure: it never touches a connection.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Version is the protocol version implemented by this package.
	Version = "1.1.0"

	// Implementation is the name we announce in our VERSION command.
	Implementation = "BandurasBattleShip"

	// NumberOfLevels is the highest level a peer may request in IAM.
	NumberOfLevels = 6

	// MaxNameLength is the maximum number of characters of an IAM name.
	MaxNameLength = 32

	// LineEnd terminates every encoded command.
	LineEnd = "\r\n"
)

// Command keywords.
const (
	KeywordVersion  = "VERSION"
	KeywordIAM      = "IAM"
	KeywordIAMU     = "IAMU"
	KeywordCoin     = "COIN"
	KeywordShoot    = "SHOOT"
	KeywordHit      = "HIT"
	KeywordChat     = "CHAT"
	KeywordWithdraw = "WITHDRAW"
)

// Command abstraction.
type Command interface {
	// Keyword returns the keyword the command starts with.
	Keyword() string

	// Encode returns the canonical wire form, including the trailing CRLF.
	Encode() string

	// Valid reports whether the command satisfies its validity rules.
	Valid() bool
}

// IsEssential reports whether an invalid command of the given kind
// must terminate the connection. IAMU and CHAT are optional.
func IsEssential(keyword string) bool {
	switch keyword {
	case KeywordVersion, KeywordIAM, KeywordCoin, KeywordShoot, KeywordHit, KeywordWithdraw:
		return true
	}
	return false
}

// HitStatus is the outcome reported in a HIT command.
type HitStatus int

const (
	HitUnknown HitStatus = iota
	HitWater
	HitHit
	HitSunk
	HitSunkAndVictory
)

// String implements fmt.Stringer.
func (s HitStatus) String() string {
	switch s {
	case HitWater:
		return "Water"
	case HitHit:
		return "Hit"
	case HitSunk:
		return "Sunk"
	case HitSunkAndVictory:
		return "SunkAndVictory"
	default:
		return "Unknown"
	}
}

// Code returns the wire code of the status.
func (s HitStatus) Code() string {
	switch s {
	case HitWater:
		return "0"
	case HitHit:
		return "1"
	case HitSunk:
		return "2"
	case HitSunkAndVictory:
		return "3"
	default:
		return "-1"
	}
}

// ParseHitStatus maps a wire code to a HitStatus. Unrecognised codes
// map to HitUnknown.
func ParseHitStatus(code string) HitStatus {
	switch code {
	case "0":
		return HitWater
	case "1":
		return HitHit
	case "2":
		return HitSunk
	case "3":
		return HitSunkAndVictory
	default:
		return HitUnknown
	}
}

// ColumnLetter returns the column letter of a zero based x coordinate.
func ColumnLetter(x int) string {
	return string(rune('A' + x))
}

// FormatCell renders zero based coordinates in wire form, e.g. (2, 4) is "C5".
func FormatCell(x, y int) string {
	return ColumnLetter(x) + strconv.Itoa(y+1)
}

// ParseCell parses a wire coordinate such as "C5" into zero based x and y.
func ParseCell(s string) (x, y int, err error) {
	if s == "" {
		return -1, -1, fmt.Errorf("%w: empty coordinate", ErrMalformed)
	}
	r := []rune(s)
	x = int(r[0] - 'A')
	row, err := strconv.Atoi(string(r[1:]))
	if err != nil {
		return -1, -1, fmt.Errorf("%w: coordinate %q has no row number", ErrMalformed, s)
	}
	return x, row - 1, nil
}

// SplitLine splits a line without its terminator into the keyword and
// everything after the first space.
func SplitLine(line string) (keyword, payload string) {
	keyword, payload, _ = strings.Cut(line, " ")
	return strings.TrimSpace(keyword), payload
}
