package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when a payload cannot be parsed at all.
	ErrMalformed = errors.New("malformed command")

	// ErrInvalidCommand is returned when an essential command decodes
	// to a value that is not valid. The connection must be terminated.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrUnknownCommand is returned for a keyword this package does not know.
	ErrUnknownCommand = errors.New("unknown command")
)

// Decoded is the result of decoding one line.
type Decoded struct {
	// Command is the decoded command.
	Command Command

	// Raw is the line as received, including its terminator.
	Raw string

	// NotWellStructured is set when re-encoding the command does not
	// reproduce Raw byte for byte. The command is still usable.
	NotWellStructured bool

	// Invalid is set when an optional command (IAMU, CHAT) failed its
	// validity check. The command is still reported.
	Invalid bool
}

// DecodeLine decodes a raw line as read from the connection. The line
// may or may not carry its terminator.
//
// Errors wrapping ErrMalformed or ErrInvalidCommand are fatal for the
// connection. ErrUnknownCommand is not.
func DecodeLine(raw string) (d Decoded, err error) {
	d.Raw = raw
	line := strings.TrimRight(raw, "\r\n")
	keyword, payload := SplitLine(line)

	d.Command, err = Decode(keyword, payload)
	if err != nil {
		return
	}

	if !d.Command.Valid() {
		if IsEssential(keyword) {
			err = fmt.Errorf("%w: %s", ErrInvalidCommand, keyword)
			return
		}
		d.Invalid = true
	}
	d.NotWellStructured = d.Command.Encode() != raw
	return
}

// Decode builds the command for keyword from its payload. It does not
// check validity.
func Decode(keyword, payload string) (Command, error) {
	switch keyword {
	case KeywordVersion:
		return decodeVersion(payload), nil
	case KeywordIAM:
		return decodeIAM(payload), nil
	case KeywordIAMU:
		return IAMUCommand{Name: strings.TrimSpace(payload)}, nil
	case KeywordCoin:
		return CoinCommand{Value: strings.TrimSpace(payload)}, nil
	case KeywordShoot:
		return decodeShoot(payload)
	case KeywordHit:
		return decodeHit(payload)
	case KeywordChat:
		return ChatCommand{Text: payload}, nil
	case KeywordWithdraw:
		if !isBlank(payload) {
			return nil, fmt.Errorf("%w: WITHDRAW carries a payload", ErrMalformed)
		}
		return WithdrawCommand{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, keyword)
}

func decodeVersion(payload string) VersionCommand {
	parts := strings.Split(payload, " ")
	c := VersionCommand{Implementation: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		c.Versions = append(c.Versions, strings.TrimSpace(p))
	}
	return c
}

func decodeIAM(payload string) IAMCommand {
	level, name, _ := strings.Cut(payload, " ")
	c := IAMCommand{Name: name}
	if n, err := strconv.Atoi(strings.TrimSpace(level)); err == nil {
		c.Level = n
	}
	return c
}

func decodeShoot(payload string) (Command, error) {
	x, y, err := ParseCell(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("SHOOT: %w", err)
	}
	return ShootCommand{X: x, Y: y}, nil
}

func decodeHit(payload string) (Command, error) {
	cell, status, _ := strings.Cut(strings.TrimSpace(payload), " ")
	x, y, err := ParseCell(cell)
	if err != nil {
		return nil, fmt.Errorf("HIT: %w", err)
	}
	return HitCommand{X: x, Y: y, Status: ParseHitStatus(strings.TrimSpace(status))}, nil
}
