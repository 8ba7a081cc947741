// Package comms moves protocol lines over a connection. A Channel wraps
// one connection to the peer, StartServer runs the accept loop.
package comms

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/yookoala/netbattleship/protocol"
)

// DefaultPort is the TCP port a game host listens on.
const DefaultPort = 51525

var (
	// ErrVersionMismatch is returned when the peer does not speak
	// protocol.Version.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrNullLine is returned when the stream ends while the channel is
	// still considered connected.
	ErrNullLine = errors.New("connection ended unexpectedly")

	// ErrDisconnected is returned when reading or writing a closed channel.
	ErrDisconnected = errors.New("channel disconnected")
)

// EventType identifies an Event.
type EventType int

const (
	EventReceived EventType = iota
	EventSent
	EventNotWellStructured
	EventOptionalInvalid
	EventUnknownCommand
	EventNullLine
	EventDisconnected
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventReceived:
		return "received"
	case EventSent:
		return "sent"
	case EventNotWellStructured:
		return "not well structured"
	case EventOptionalInvalid:
		return "optional command invalid"
	case EventUnknownCommand:
		return "unknown command"
	case EventNullLine:
		return "null line"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown event"
}

// Event reports something that happened on a Channel.
type Event struct {
	Type EventType

	// Command is set for received and sent commands and for the
	// warnings about them.
	Command protocol.Command

	// Line is the raw line, when there is one.
	Line string

	Err error
}

// EventHandler receives the events of a Channel.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc is an adapter to allow the use of ordinary functions as EventHandlers.
type EventHandlerFunc func(Event)

// HandleEvent calls f(e)
func (f EventHandlerFunc) HandleEvent(e Event) {
	f(e)
}

// Peer is what the peer told about itself.
type Peer struct {
	Implementation string
	Versions       []string
	Name           string
	FullName       string
	Level          int
}

// Channel reads and writes protocol lines on a connection.
//
// One goroutine may read while any number of goroutines write. Writes are
// serialised so lines never interleave.
type Channel struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader

	wlock sync.Mutex
	w     *bufio.Writer

	closed atomic.Bool

	handler EventHandler
	logger  *slog.Logger

	peerLock sync.RWMutex
	peer     Peer

	onClose func(*Channel)
}

// NewChannel creates a Channel on conn. A nil logger discards.
func NewChannel(conn io.ReadWriteCloser, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Channel{
		conn:   conn,
		r:      bufio.NewReader(conn),
		w:      bufio.NewWriter(conn),
		logger: logger,
	}
}

// OnEvent sets the handler for the channel events. It must be set before
// the channel is used.
func (c *Channel) OnEvent(h EventHandler) *Channel {
	c.handler = h
	return c
}

// OnClose sets a callback function to be called when the channel is closed.
func (c *Channel) OnClose(f func(*Channel)) *Channel {
	c.onClose = f
	return c
}

func (c *Channel) dispatch(e Event) {
	if c.handler != nil {
		c.handler.HandleEvent(e)
	}
}

// ReadCommand blocks until a line arrives and decodes it.
//
// A nil command with a nil error means the line was dropped with a
// warning event: unknown keyword or invalid optional command. Any
// error is fatal for the connection.
func (c *Channel) ReadCommand() (protocol.Command, error) {
	line, err := c.r.ReadString('\n')
	if line == "" && err != nil {
		if !c.IsConnected() {
			c.dispatch(Event{Type: EventDisconnected, Err: err})
			return nil, fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		c.dispatch(Event{Type: EventNullLine, Err: err})
		return nil, fmt.Errorf("%w: %w", ErrNullLine, err)
	}

	d, err := protocol.DecodeLine(line)
	if errors.Is(err, protocol.ErrUnknownCommand) {
		c.logger.Warn("unknown command", "line", protocol.Sanitize(line))
		c.dispatch(Event{Type: EventUnknownCommand, Line: line, Err: err})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot decode %q: %w", protocol.Sanitize(line), err)
	}

	c.logger.Debug("received", "line", protocol.Sanitize(line))
	c.dispatch(Event{Type: EventReceived, Command: d.Command, Line: line})
	if d.NotWellStructured {
		c.logger.Warn("command not well structured", "line", protocol.Sanitize(line))
		c.dispatch(Event{Type: EventNotWellStructured, Command: d.Command, Line: line})
	}
	if d.Invalid {
		c.logger.Warn("optional command invalid", "line", protocol.Sanitize(line))
		c.dispatch(Event{Type: EventOptionalInvalid, Command: d.Command, Line: line})
		return nil, nil
	}

	c.peerLock.Lock()
	defer c.peerLock.Unlock()
	switch cmd := d.Command.(type) {
	case protocol.VersionCommand:
		c.peer.Implementation = cmd.Implementation
		c.peer.Versions = cmd.Versions
		if !cmd.HasVersion(protocol.Version) {
			return cmd, fmt.Errorf("%w: peer speaks %v, want %s", ErrVersionMismatch, cmd.Versions, protocol.Version)
		}
	case protocol.IAMCommand:
		c.peer.Name = cmd.Name
		c.peer.Level = cmd.Level
	case protocol.IAMUCommand:
		c.peer.FullName = cmd.Name
	}
	return d.Command, nil
}

// Write sends the canonical encoding of cmd.
func (c *Channel) Write(cmd protocol.Command) error {
	if !c.IsConnected() {
		return ErrDisconnected
	}

	line := cmd.Encode()
	c.wlock.Lock()
	_, err := c.w.WriteString(line)
	if err == nil {
		err = c.w.Flush()
	}
	c.wlock.Unlock()
	if err != nil {
		return fmt.Errorf("cannot send %s: %w", cmd.Keyword(), err)
	}

	c.logger.Debug("sent", "line", protocol.Sanitize(line))
	c.dispatch(Event{Type: EventSent, Command: cmd, Line: line})
	return nil
}

// WriteVersion sends VERSION with this implementation and protocol version.
func (c *Channel) WriteVersion() error {
	return c.Write(protocol.NewVersion())
}

// WriteIAM sends IAM.
func (c *Channel) WriteIAM(level int, name string) error {
	return c.Write(protocol.IAMCommand{Level: level, Name: name})
}

// WriteIAMU sends IAMU.
func (c *Channel) WriteIAMU(name string) error {
	return c.Write(protocol.IAMUCommand{Name: name})
}

// WriteCoin sends COIN.
func (c *Channel) WriteCoin(bit int) error {
	return c.Write(protocol.NewCoin(bit))
}

// WriteShoot sends SHOOT.
func (c *Channel) WriteShoot(x, y int) error {
	return c.Write(protocol.ShootCommand{X: x, Y: y})
}

// WriteHit sends HIT.
func (c *Channel) WriteHit(x, y int, status protocol.HitStatus) error {
	return c.Write(protocol.HitCommand{X: x, Y: y, Status: status})
}

// WriteChat sends CHAT.
func (c *Channel) WriteChat(text string) error {
	return c.Write(protocol.ChatCommand{Text: text})
}

// WriteWithdraw sends WITHDRAW.
func (c *Channel) WriteWithdraw() error {
	return c.Write(protocol.WithdrawCommand{})
}

// Peer returns what the peer has announced so far. The strings are
// passed through protocol.Sanitize.
func (c *Channel) Peer() Peer {
	c.peerLock.RLock()
	defer c.peerLock.RUnlock()
	p := c.peer
	p.Implementation = protocol.Sanitize(p.Implementation)
	p.Name = protocol.Sanitize(p.Name)
	p.FullName = protocol.Sanitize(p.FullName)
	p.Versions = make([]string, len(c.peer.Versions))
	for i, v := range c.peer.Versions {
		p.Versions[i] = protocol.Sanitize(v)
	}
	return p
}

// PeerImplementation returns the implementation name from the peer's VERSION.
func (c *Channel) PeerImplementation() string {
	return c.Peer().Implementation
}

// PeerName returns the ASCII name from the peer's IAM.
func (c *Channel) PeerName() string {
	return c.Peer().Name
}

// PeerFullName returns the name from the peer's IAMU.
func (c *Channel) PeerFullName() string {
	return c.Peer().FullName
}

// PeerLevel returns the level from the peer's IAM.
func (c *Channel) PeerLevel() int {
	return c.Peer().Level
}

// IsConnected reports whether the channel has not been closed.
func (c *Channel) IsConnected() bool {
	return !c.closed.Load()
}

// Close closes the connection. Only the first call has an effect.
func (c *Channel) Close() (err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err = c.conn.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
	c.onClose = nil // remove reference to callback for gc
	return
}
