package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/yookoala/netbattleship/game"
	"github.com/yookoala/netbattleship/protocol"
	"github.com/yookoala/netbattleship/session"
)

const help = `commands:
  C5, shoot C5   attack a cell
  auto           let the computer pick your attack
  chat <text>    send a chat line
  boards         show both boards
  withdraw       give up the game
`

type command struct {
	verb string
	cell game.Cell
	text string
}

var errEmpty = errors.New("empty command")

func parseCommand(line string) (cmd command, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errEmpty
	}
	verb, rest, _ := strings.Cut(line, " ")
	cmd.verb = strings.ToLower(verb)
	switch cmd.verb {
	case "auto", "boards", "withdraw", "help":
		return cmd, nil
	case "chat":
		cmd.text = rest
		return cmd, nil
	case "shoot":
	default:
		// a bare cell
		rest = line
		cmd.verb = "shoot"
	}
	x, y, err := protocol.ParseCell(strings.ToUpper(strings.TrimSpace(rest)))
	if err != nil {
		return command{}, fmt.Errorf("unknown command %q", line)
	}
	cmd.cell = game.Cell{X: x, Y: y}
	return cmd, nil
}

// runConsole reads commands from r until it is exhausted and applies
// them to the running game.
func runConsole(r io.Reader, w io.Writer, current func() *session.Session) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, err := parseCommand(scanner.Text())
		if errors.Is(err, errEmpty) {
			continue
		}
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		if cmd.verb == "help" {
			fmt.Fprint(w, help)
			continue
		}

		s := current()
		if s == nil {
			fmt.Fprintln(w, "no game running")
			continue
		}
		switch cmd.verb {
		case "shoot":
			s.Attack(cmd.cell)
		case "auto":
			s.AutoMove()
		case "chat":
			s.SendChat(cmd.text)
		case "boards":
			fmt.Fprintln(w, s)
		case "withdraw":
			s.Withdraw()
		}
	}
}

// parseAccept builds the accept predicate from a comma separated list
// of IP addresses and CIDR networks. An empty list accepts everyone.
func parseAccept(list string) (func(net.Addr) bool, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var nets []*net.IPNet
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			ip := net.ParseIP(item)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", item)
			}
			bits := 8 * len(ip.To4())
			if bits == 0 {
				bits = 8 * net.IPv6len
			}
			item = fmt.Sprintf("%s/%d", item, bits)
		}
		_, n, err := net.ParseCIDR(item)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", item, err)
		}
		nets = append(nets, n)
	}

	return func(addr net.Addr) bool {
		tcp, ok := addr.(*net.TCPAddr)
		if !ok {
			return false
		}
		for _, n := range nets {
			if n.Contains(tcp.IP) {
				return true
			}
		}
		return false
	}, nil
}
