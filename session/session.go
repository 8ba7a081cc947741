package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yookoala/netbattleship/comms"
	"github.com/yookoala/netbattleship/game"
	"github.com/yookoala/netbattleship/protocol"
)

// inputBuffer is how many decoded commands may wait for the run loop.
const inputBuffer = 64

// Options configures a Session.
type Options struct {
	// Logger receives the session logs. Nil discards.
	Logger *slog.Logger

	// Rand draws the coin and drives placement and computer moves.
	// Nil seeds one from the clock.
	Rand *rand.Rand

	// Name is the full name of the local player.
	Name string

	// Level is the level the local player asks for, 1 to
	// protocol.NumberOfLevels.
	Level int

	// IsServer is set when the local side accepted the connection.
	IsServer bool

	Hooks Hooks
}

// Session is one game over one connection.
type Session struct {
	ch     *comms.Channel
	logger *slog.Logger
	hooks  Hooks

	// lock is the turn lock. It guards m and every send.
	lock sync.Mutex
	m    *Machine

	inputs  chan Input
	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	status EndStatus
	err    error
}

// New creates a session on conn. The session owns conn from now on.
func New(conn io.ReadWriteCloser, opts Options) (*Session, error) {
	if _, err := game.LevelFor(opts.Level); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		logger: opts.Logger,
		hooks:  opts.Hooks,
		inputs: make(chan Input, inputBuffer),
		cancel: func() {},
		done:   make(chan struct{}),
	}
	s.ch = comms.NewChannel(conn, opts.Logger).OnEvent(comms.EventHandlerFunc(s.handleEvent))
	s.m = NewMachine(Config{
		Name:     opts.Name,
		Level:    opts.Level,
		IsServer: opts.IsServer,
		Coin:     opts.Rand.Intn(2),
		Rand:     opts.Rand,
	})
	return s, nil
}

// Start sends the opening handshake and starts reading from the peer.
// The session ends when the game is over, or with ConnectionDisturbed
// when ctx is done first.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	ctx, cancel := context.WithCancel(ctx)

	s.lock.Lock()
	s.cancel = cancel
	s.lock.Unlock()

	// the peer may block on its own handshake until we read
	go s.readLoop(ctx)

	s.lock.Lock()
	pending := s.apply(s.m.Handle(Begin{}))
	s.lock.Unlock()
	s.run(pending)

	go s.runLoop(ctx)
	return nil
}

// readLoop reads commands until the channel fails.
func (s *Session) readLoop(ctx context.Context) {
	for {
		cmd, err := s.ch.ReadCommand()
		if err != nil {
			s.push(ctx, ReadFailed{Err: err})
			return
		}
		if cmd == nil {
			continue
		}
		if !s.push(ctx, Received{Command: cmd}) {
			return
		}
	}
}

func (s *Session) push(ctx context.Context, in Input) bool {
	select {
	case s.inputs <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

// runLoop feeds the machine with what readLoop decoded.
func (s *Session) runLoop(ctx context.Context) {
	for {
		select {
		case in := <-s.inputs:
			s.handle(in)
		case <-ctx.Done():
			s.lock.Lock()
			pending := s.stop(ConnectionDisturbed, ctx.Err())
			s.lock.Unlock()
			s.run(pending)
			return
		}
	}
}

// handle runs one input through the machine under the turn lock, then
// calls the hooks.
func (s *Session) handle(in Input) {
	s.lock.Lock()
	pending := s.apply(s.m.Handle(in))
	s.lock.Unlock()
	s.run(pending)
}

type hookCall struct {
	name string
	fn   func()
}

// apply carries out effects. It must be called with the turn lock held.
// The hooks to call once the lock is released are returned.
func (s *Session) apply(effects []Effect) (pending []hookCall) {
	for _, e := range effects {
		if s.stopped.Load() {
			return
		}
		switch e := e.(type) {
		case Send:
			if err := s.ch.Write(e.Command); err != nil {
				s.logger.Error("send failed", "keyword", e.Command.Keyword(), "error", err)
				pending = append(pending, s.apply(s.m.Handle(SendFailed{Command: e.Command, Err: err}))...)
			}
		case Log:
			s.logger.Log(context.Background(), e.Level, e.Msg, e.Args...)
		case Notify:
			if f := s.hooks.OnNotice; f != nil {
				n := e.Notice
				pending = append(pending, hookCall{"OnNotice", func() { f(n) }})
			}
		case TurnChanged:
			s.logger.Debug("turn changed", "state", e.State)
			if f := s.hooks.OnTurn; f != nil {
				state := e.State
				pending = append(pending, hookCall{"OnTurn", func() { f(state) }})
			}
		case BoardsChanged:
			if f := s.hooks.OnBoards; f != nil {
				b := s.m.Boards()
				pending = append(pending, hookCall{"OnBoards", func() { f(b) }})
			}
		case ChatReceived:
			if f := s.hooks.OnChat; f != nil {
				msg := e.Message
				pending = append(pending, hookCall{"OnChat", func() { f(msg) }})
			}
		case End:
			pending = append(pending, s.stop(e.Status, e.Err)...)
		}
	}
	return
}

// stop tears the session down once. It must be called with the turn
// lock held.
func (s *Session) stop(status EndStatus, err error) []hookCall {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	s.status, s.err = status, err
	if err != nil {
		s.logger.Info("game stopped", "status", status, "error", err)
	} else {
		s.logger.Info("game stopped", "status", status)
	}

	s.cancel()
	if cerr := s.ch.Close(); cerr != nil {
		s.logger.Error("the connection to the peer could not be closed", "error", cerr)
	}

	var pending []hookCall
	if f := s.hooks.OnEnd; f != nil {
		pending = append(pending, hookCall{"OnEnd", func() { f(status) }})
	}
	return append(pending, hookCall{"done", func() { close(s.done) }})
}

// run calls the hooks, recovering from panics one by one.
func (s *Session) run(pending []hookCall) {
	for _, h := range pending {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("hook panicked", "hook", h.name, "panic", fmt.Sprint(r))
				}
			}()
			h.fn()
		}()
	}
}

func (s *Session) handleEvent(e comms.Event) {
	var n Notice
	switch e.Type {
	case comms.EventNotWellStructured:
		n = Notice{
			Kind: NoticeNotWellStructured,
			Text: fmt.Sprintf("The %s command from the peer does not seem to be well structured.", e.Command.Keyword()),
		}
	case comms.EventOptionalInvalid:
		n = Notice{
			Kind: NoticeOptionalInvalid,
			Text: fmt.Sprintf("The %s command from the peer is invalid and was ignored.", e.Command.Keyword()),
		}
	case comms.EventUnknownCommand:
		n = Notice{Kind: NoticeUnknownCommand, Text: "Unknown command: " + protocol.Sanitize(e.Line), Err: e.Err}
	default:
		return
	}
	if f := s.hooks.OnNotice; f != nil {
		s.run([]hookCall{{"OnNotice", func() { f(n) }}})
	}
}

// Attack attacks a cell of the opponent. It is ignored unless it is the
// local player's turn and the cell is unknown.
func (s *Session) Attack(c game.Cell) {
	s.handle(AttackRequested{Cell: c})
}

// AutoMove lets the opponent model pick the next attack.
func (s *Session) AutoMove() {
	s.handle(AutoMoveRequested{})
}

// SendChat sends a chat line to the peer.
func (s *Session) SendChat(text string) {
	s.handle(ChatRequested{Text: text})
}

// Withdraw gives up the game.
func (s *Session) Withdraw() {
	s.handle(WithdrawRequested{})
}

// State returns the current turn state.
func (s *Session) State() TurnState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.m.State()
}

// Boards returns a snapshot of both boards.
func (s *Session) Boards() Boards {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.m.Boards()
}

// String renders both boards for debugging.
func (s *Session) String() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.m.Fleet() == nil {
		return "(no boards yet)"
	}
	return "own board:\n" + s.m.Fleet().String() + "\nopponent:\n" + s.m.Grid().String()
}

// Peer returns what the peer announced about itself.
func (s *Session) Peer() comms.Peer {
	return s.ch.Peer()
}

// Done is closed once the session has ended and OnEnd returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns how it ended.
func (s *Session) Wait() (EndStatus, error) {
	<-s.done
	return s.status, s.err
}

// Close ends the session with ConnectionDisturbed unless it already ended.
func (s *Session) Close() error {
	s.lock.Lock()
	pending := s.stop(ConnectionDisturbed, comms.ErrDisconnected)
	s.lock.Unlock()
	s.run(pending)
	return nil
}
