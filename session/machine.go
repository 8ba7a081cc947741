// Package session runs one battleship game against a peer: the
// handshake, the coin flip for the first move and the exchange of
// attacks until one fleet is sunk.
//
// The rules live in Machine, a transition function without I/O. Session
// feeds it with commands read from the connection and local requests,
// and carries out the effects it returns.
package session

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/yookoala/netbattleship/game"
	"github.com/yookoala/netbattleship/protocol"
)

// Input is something the machine reacts to.
type Input interface {
	input()
}

// Begin starts the handshake.
type Begin struct{}

// Received carries a command read from the peer.
type Received struct {
	Command protocol.Command
}

// ReadFailed reports that reading from the peer failed for good.
type ReadFailed struct {
	Err error
}

// SendFailed reports that sending a command returned by the machine
// failed.
type SendFailed struct {
	Command protocol.Command
	Err     error
}

// AttackRequested asks to attack a cell of the opponent.
type AttackRequested struct {
	Cell game.Cell
}

// AutoMoveRequested asks the opponent model to pick the attack.
type AutoMoveRequested struct{}

// ChatRequested asks to send a chat line.
type ChatRequested struct {
	Text string
}

// WithdrawRequested asks to give up the game.
type WithdrawRequested struct{}

func (Begin) input()             {}
func (Received) input()          {}
func (ReadFailed) input()        {}
func (SendFailed) input()        {}
func (AttackRequested) input()   {}
func (AutoMoveRequested) input() {}
func (ChatRequested) input()     {}
func (WithdrawRequested) input() {}

// Effect is an action the machine asks its caller to carry out, in order.
type Effect interface {
	effect()
}

// Send writes a command to the peer. If it fails the caller reports
// SendFailed back to the machine.
type Send struct {
	Command protocol.Command
}

// Log writes a log record.
type Log struct {
	Level slog.Level
	Msg   string
	Args  []any
}

// Notify passes a notice to the player.
type Notify struct {
	Notice Notice
}

// TurnChanged reports the new turn state.
type TurnChanged struct {
	State TurnState
}

// BoardsChanged reports that one of the boards changed.
type BoardsChanged struct{}

// ChatReceived passes a chat line to the player.
type ChatReceived struct {
	Message ChatMessage
}

// End ends the session.
type End struct {
	Status EndStatus
	Err    error
}

func (Send) effect()          {}
func (Log) effect()           {}
func (Notify) effect()        {}
func (TurnChanged) effect()   {}
func (BoardsChanged) effect() {}
func (ChatReceived) effect()  {}
func (End) effect()           {}

// Config configures a Machine.
type Config struct {
	// Name is the full name of the local player.
	Name string

	// Level is the level the local player asks for.
	Level int

	// IsServer is set when the local side accepted the connection.
	IsServer bool

	// Coin is the local coin, 0 or 1.
	Coin int

	// Rand drives fleet placement and the opponent model.
	Rand *rand.Rand
}

// Machine holds the game state and computes transitions. It is not safe
// for concurrent use.
type Machine struct {
	cfg   Config
	state TurnState

	level int
	fleet *game.Fleet
	grid  *game.OpponentGrid

	lastShot   game.Cell
	beforeShot TurnState

	peerName     string
	peerFullName string
}

// NewMachine creates a machine in state NotReady.
func NewMachine(cfg Config) *Machine {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	return &Machine{cfg: cfg}
}

// State returns the current turn state.
func (m *Machine) State() TurnState {
	return m.state
}

// Level returns the effective level, or 0 before the peer's IAM.
func (m *Machine) Level() int {
	return m.level
}

// Fleet returns the own board, nil before the peer's IAM.
func (m *Machine) Fleet() *game.Fleet {
	return m.fleet
}

// Grid returns the opponent model, nil before the peer's IAM.
func (m *Machine) Grid() *game.OpponentGrid {
	return m.grid
}

// PeerName is the peer's full name if known, else its IAM name.
func (m *Machine) PeerName() string {
	if m.peerFullName != "" {
		return m.peerFullName
	}
	return m.peerName
}

// Boards returns a snapshot of both boards.
func (m *Machine) Boards() Boards {
	b := Boards{Level: m.level}
	if m.fleet != nil {
		b.Size = m.fleet.Size()
		b.Own = m.fleet.Snapshot()
	}
	if m.grid != nil {
		b.Opponent = m.grid.Snapshot()
	}
	return b
}

// Handle applies in and returns the effects to carry out.
func (m *Machine) Handle(in Input) []Effect {
	if m.state == Stopped {
		return nil
	}

	switch in := in.(type) {
	case Begin:
		return m.begin()
	case Received:
		return m.receive(in.Command)
	case ReadFailed:
		return m.readFailed(in.Err)
	case SendFailed:
		return m.sendFailed(in)
	case AttackRequested:
		return m.attack(in.Cell)
	case AutoMoveRequested:
		return m.autoMove()
	case ChatRequested:
		return m.chat(in.Text)
	case WithdrawRequested:
		return m.end(SelfWithdrew, nil, Send{Command: protocol.WithdrawCommand{}})
	}
	return []Effect{Log{Level: slog.LevelError, Msg: "unknown input", Args: []any{"input", fmt.Sprintf("%T", in)}}}
}

func (m *Machine) turn(s TurnState) Effect {
	m.state = s
	return TurnChanged{State: s}
}

func (m *Machine) end(status EndStatus, err error, before ...Effect) []Effect {
	m.state = Stopped
	return append(before, End{Status: status, Err: err})
}

// fail ends the session for an error, as a failed preparation while the
// handshake is running.
func (m *Machine) fail(err error) []Effect {
	if m.state.Ready() {
		return m.end(ConnectionDisturbed, err)
	}
	return m.end(PreparationFailed, err)
}

func (m *Machine) begin() []Effect {
	if m.state != NotReady {
		return []Effect{Log{Level: slog.LevelWarn, Msg: "game already initialized", Args: []any{"state", m.state}}}
	}
	if _, err := game.LevelFor(m.cfg.Level); err != nil {
		return m.fail(err)
	}

	short := protocol.ASCIIName(m.cfg.Name)
	if short == "" {
		short = "Player"
	}
	return []Effect{
		Log{Level: slog.LevelDebug, Msg: "handshake started", Args: []any{"coin", m.cfg.Coin, "server", m.cfg.IsServer}},
		Send{Command: protocol.NewVersion()},
		Send{Command: protocol.IAMCommand{Level: m.cfg.Level, Name: short}},
		Send{Command: protocol.IAMUCommand{Name: m.cfg.Name}},
		m.turn(HandshakePhase1),
	}
}

func (m *Machine) receive(cmd protocol.Command) []Effect {
	switch cmd := cmd.(type) {
	case protocol.VersionCommand:
		return []Effect{Log{Level: slog.LevelDebug, Msg: "peer version", Args: []any{
			"implementation", protocol.Sanitize(cmd.Implementation), "versions", cmd.Versions,
		}}}
	case protocol.IAMCommand:
		return m.prepare(cmd)
	case protocol.IAMUCommand:
		m.peerFullName = protocol.Sanitize(cmd.Name)
		if m.peerFullName == m.peerName {
			return nil
		}
		return []Effect{Notify{Notice: Notice{
			Kind: NoticePeerJoined,
			Text: m.peerFullName + " (peer) has joined the game.",
		}}}
	case protocol.CoinCommand:
		return m.start(cmd)
	case protocol.ShootCommand:
		return m.receiveAttack(game.Cell{X: cmd.X, Y: cmd.Y})
	case protocol.HitCommand:
		return m.receiveAnswer(cmd)
	case protocol.ChatCommand:
		if !m.state.Ready() {
			return []Effect{Log{Level: slog.LevelDebug, Msg: "chat dropped, game not ready"}}
		}
		return []Effect{ChatReceived{Message: ChatMessage{
			From: m.PeerName(),
			Text: protocol.Sanitize(cmd.Text),
		}}}
	case protocol.WithdrawCommand:
		return m.end(PeerWithdrew, nil, Log{Level: slog.LevelInfo, Msg: "peer withdrew"})
	}
	return []Effect{Log{Level: slog.LevelWarn, Msg: "unhandled command", Args: []any{"keyword", cmd.Keyword()}}}
}

// prepare handles the peer's IAM: agree on the level, place the fleet
// and send the coin.
func (m *Machine) prepare(cmd protocol.IAMCommand) []Effect {
	if m.state != HandshakePhase1 {
		return []Effect{Log{Level: slog.LevelWarn, Msg: "game already prepared, IAM ignored", Args: []any{"state", m.state}}}
	}
	m.peerName = protocol.Sanitize(cmd.Name)

	lvl, err := game.LevelFor(game.EffectiveLevel(m.cfg.Level, cmd.Level))
	if err != nil {
		return m.fail(fmt.Errorf("cannot agree on level: %w", err))
	}
	fleet := game.NewFleet(lvl.BoardSize)
	if err := fleet.Generate(m.cfg.Rand, lvl.Ships); err != nil {
		return m.fail(err)
	}
	m.level = lvl.Number
	m.fleet = fleet
	m.grid = game.NewOpponentGrid(lvl.BoardSize, m.cfg.Rand)

	return []Effect{
		Log{Level: slog.LevelInfo, Msg: "game prepared", Args: []any{"level", lvl.Number, "size", lvl.BoardSize, "peer", m.peerName}},
		Notify{Notice: Notice{Kind: NoticePeerJoined, Text: m.peerName + " (peer) has joined the game."}},
		Send{Command: protocol.NewCoin(m.cfg.Coin)},
		BoardsChanged{},
		m.turn(HandshakePhase2),
	}
}

// Starter reports whether the local side moves first. Each side draws
// one bit; the connection acceptor starts iff the bits differ.
func Starter(isServer bool, localCoin, peerCoin int) bool {
	return isServer == (peerCoin^localCoin == 1)
}

func (m *Machine) start(cmd protocol.CoinCommand) []Effect {
	if m.state != HandshakePhase2 {
		return []Effect{Log{Level: slog.LevelError, Msg: "game started before it was prepared, COIN ignored", Args: []any{"state", m.state}}}
	}
	peerCoin, err := strconv.Atoi(cmd.Value)
	if err != nil {
		return m.fail(fmt.Errorf("peer coin %q: %w", cmd.Value, err))
	}

	first := YourTurnFirst
	if Starter(m.cfg.IsServer, m.cfg.Coin, peerCoin) {
		first = MyTurnFirst
	}
	return []Effect{
		Log{Level: slog.LevelInfo, Msg: "game started", Args: []any{"first", first}},
		m.turn(first),
	}
}

func (m *Machine) notReady(action string) []Effect {
	return []Effect{
		Log{Level: slog.LevelInfo, Msg: "not ready to " + action, Args: []any{"state", m.state}},
		Notify{Notice: Notice{
			Kind: NoticeNotReady,
			Text: "The game is not ready yet. Please try again in a few moments.",
			Err:  ErrNotReady,
		}},
	}
}

func (m *Machine) attack(c game.Cell) []Effect {
	if !m.state.Ready() {
		return m.notReady("attack")
	}
	if !m.state.IsMyTurn() {
		return []Effect{Log{Level: slog.LevelDebug, Msg: "not our turn, attack ignored", Args: []any{"cell", c}}}
	}
	if !m.grid.IsUnknown(c) {
		return []Effect{Log{Level: slog.LevelInfo, Msg: "cell already attacked or off the board", Args: []any{"cell", c}}}
	}

	m.beforeShot = m.state
	m.lastShot = c
	return []Effect{
		Log{Level: slog.LevelInfo, Msg: "attack opponent", Args: []any{"cell", c}},
		m.turn(WaitingForReplyAfterHit),
		Send{Command: protocol.ShootCommand{X: c.X, Y: c.Y}},
	}
}

func (m *Machine) autoMove() []Effect {
	if !m.state.Ready() {
		return m.notReady("play a computer move")
	}
	if !m.state.IsMyTurn() {
		return []Effect{Log{Level: slog.LevelDebug, Msg: "not our turn, computer move ignored"}}
	}
	c, err := m.grid.NextMove()
	if err != nil {
		return m.end(ConnectionDisturbed, err, Log{
			Level: slog.LevelError,
			Msg:   "failed to calculate computer move",
			Args:  []any{"error", err, "grid", "\n" + m.grid.String()},
		})
	}
	return append([]Effect{Log{Level: slog.LevelDebug, Msg: "computer move", Args: []any{"cell", c}}}, m.attack(c)...)
}

// receiveAttack handles SHOOT from the peer.
func (m *Machine) receiveAttack(c game.Cell) []Effect {
	if !m.state.Ready() {
		return []Effect{Log{Level: slog.LevelDebug, Msg: "SHOOT dropped, game not ready", Args: []any{"cell", c}}}
	}
	if !m.state.IsYourTurn() {
		return []Effect{
			Log{Level: slog.LevelWarn, Msg: "peer attacks out of turn", Args: []any{"cell", c, "state", m.state}},
			Notify{Notice: Notice{Kind: NoticeOutOfTurn, Text: "The opponent tried to attack out of turn. The command is ignored."}},
		}
	}

	ship := m.fleet.Resolve(c)
	switch {
	case ship == nil:
		return []Effect{
			Send{Command: protocol.HitCommand{X: c.X, Y: c.Y, Status: protocol.HitWater}},
			BoardsChanged{},
			m.turn(MyTurn),
		}
	case ship.Sunk() && m.fleet.AllSunk():
		return m.end(Lost, nil,
			Send{Command: protocol.HitCommand{X: c.X, Y: c.Y, Status: protocol.HitSunkAndVictory}},
			BoardsChanged{},
		)
	case ship.Sunk():
		return []Effect{
			Send{Command: protocol.HitCommand{X: c.X, Y: c.Y, Status: protocol.HitSunk}},
			BoardsChanged{},
			m.turn(YourTurnAfterHit),
		}
	default:
		return []Effect{
			Send{Command: protocol.HitCommand{X: c.X, Y: c.Y, Status: protocol.HitHit}},
			BoardsChanged{},
			m.turn(YourTurnAfterHit),
		}
	}
}

// receiveAnswer handles HIT, the peer's answer to our SHOOT.
func (m *Machine) receiveAnswer(cmd protocol.HitCommand) []Effect {
	c := game.Cell{X: cmd.X, Y: cmd.Y}
	if !m.state.Ready() {
		return []Effect{Log{Level: slog.LevelDebug, Msg: "HIT dropped, game not ready", Args: []any{"cell", c}}}
	}
	if m.state != WaitingForReplyAfterHit {
		return []Effect{
			Log{Level: slog.LevelWarn, Msg: "peer answered an attack we did not make", Args: []any{"cell", c, "state", m.state}},
			Notify{Notice: Notice{Kind: NoticeOutOfTurn, Text: "The peer answered an attack we never made. The command is ignored."}},
		}
	}

	var effects []Effect
	if c != m.lastShot {
		// trust the peer to keep the game going
		effects = append(effects,
			Log{Level: slog.LevelError, Msg: "peer answered for another cell", Args: []any{"shot", m.lastShot, "hit", c}},
			Notify{Notice: Notice{
				Kind: NoticeHitMismatch,
				Text: fmt.Sprintf("We attacked %s but the opponent answered for %s. The opponent's answer is used.", m.lastShot, c),
			}},
		)
	}

	var field game.FieldStatus
	switch cmd.Status {
	case protocol.HitWater:
		field = game.FieldWater
	case protocol.HitHit:
		field = game.FieldShip
	case protocol.HitSunk, protocol.HitSunkAndVictory:
		field = game.FieldSunk
	default:
		return append(effects,
			Log{Level: slog.LevelError, Msg: "attacked cell has an unknown status", Args: []any{"cell", c}},
			Notify{Notice: Notice{Kind: NoticeInvalidStatus, Text: "The opponent answered with an unknown status."}},
		)
	}
	if err := m.grid.Record(c, field); err != nil {
		effects = append(effects, Log{Level: slog.LevelWarn, Msg: "cannot record answer", Args: []any{"error", err}})
	}
	effects = append(effects, BoardsChanged{})

	switch cmd.Status {
	case protocol.HitWater:
		return append(effects, m.turn(YourTurn))
	case protocol.HitSunkAndVictory:
		return m.end(Won, nil, effects...)
	default:
		return append(effects, m.turn(MyTurnAfterHit))
	}
}

func (m *Machine) chat(text string) []Effect {
	if !m.state.Ready() {
		return m.notReady("chat")
	}
	return []Effect{
		Send{Command: protocol.ChatCommand{Text: text}},
		ChatReceived{Message: ChatMessage{From: m.cfg.Name, Text: text, Local: true}},
	}
}

func (m *Machine) readFailed(err error) []Effect {
	return m.fail(err)
}

func (m *Machine) sendFailed(in SendFailed) []Effect {
	if _, ok := in.Command.(protocol.ShootCommand); ok && m.state == WaitingForReplyAfterHit {
		// the peer never got the shot, so it is still our turn
		return []Effect{
			Log{Level: slog.LevelError, Msg: "error when sending the attack", Args: []any{"error", in.Err}},
			Notify{Notice: Notice{
				Kind: NoticeSendFailed,
				Text: "The attack could not be sent. Please try again.",
				Err:  in.Err,
			}},
			m.turn(m.beforeShot),
		}
	}
	return m.fail(fmt.Errorf("cannot send %s: %w", in.Command.Keyword(), in.Err))
}
