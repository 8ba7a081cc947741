package session

import (
	"errors"

	"github.com/yookoala/netbattleship/game"
)

// ErrNotReady is carried by the notice raised when a move is requested
// before the game is ready.
var ErrNotReady = errors.New("game not ready")

// TurnState is the single source of truth for whose move it is.
type TurnState int

const (
	NotReady TurnState = iota
	HandshakePhase1
	HandshakePhase2
	MyTurnFirst
	YourTurnFirst
	MyTurn
	MyTurnAfterHit
	WaitingForReplyAfterHit
	YourTurn
	YourTurnAfterHit
	Stopped
)

var turnStateNames = map[TurnState]string{
	NotReady:                "NotReady",
	HandshakePhase1:         "HandshakePhase1",
	HandshakePhase2:         "HandshakePhase2",
	MyTurnFirst:             "MyTurnFirst",
	YourTurnFirst:           "YourTurnFirst",
	MyTurn:                  "MyTurn",
	MyTurnAfterHit:          "MyTurnAfterHit",
	WaitingForReplyAfterHit: "WaitingForReplyAfterHit",
	YourTurn:                "YourTurn",
	YourTurnAfterHit:        "YourTurnAfterHit",
	Stopped:                 "Stopped",
}

// String implements fmt.Stringer.
func (s TurnState) String() string {
	if name, ok := turnStateNames[s]; ok {
		return name
	}
	return "Invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (s TurnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsMyTurn reports whether the local player may attack.
func (s TurnState) IsMyTurn() bool {
	return s == MyTurnFirst || s == MyTurn || s == MyTurnAfterHit
}

// IsYourTurn reports whether the peer may attack.
func (s TurnState) IsYourTurn() bool {
	return s == YourTurnFirst || s == YourTurn || s == YourTurnAfterHit
}

// Ready reports whether the handshake is complete and the game running.
func (s TurnState) Ready() bool {
	return s.IsMyTurn() || s.IsYourTurn() || s == WaitingForReplyAfterHit
}

// EndStatus tells how a session ended.
type EndStatus int

const (
	Won EndStatus = iota + 1
	Lost
	SelfWithdrew
	PeerWithdrew
	ConnectionDisturbed
	PreparationFailed
)

// String implements fmt.Stringer.
func (s EndStatus) String() string {
	switch s {
	case Won:
		return "Won"
	case Lost:
		return "Lost"
	case SelfWithdrew:
		return "SelfWithdrew"
	case PeerWithdrew:
		return "PeerWithdrew"
	case ConnectionDisturbed:
		return "ConnectionDisturbed"
	case PreparationFailed:
		return "PreparationFailed"
	}
	return "Running"
}

// MarshalText implements encoding.TextMarshaler.
func (s EndStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NoticeKind classifies a Notice.
type NoticeKind int

const (
	NoticeNotReady NoticeKind = iota
	NoticePeerJoined
	NoticeNotWellStructured
	NoticeOptionalInvalid
	NoticeUnknownCommand
	NoticeOutOfTurn
	NoticeHitMismatch
	NoticeInvalidStatus
	NoticeSendFailed
)

// String implements fmt.Stringer.
func (k NoticeKind) String() string {
	switch k {
	case NoticeNotReady:
		return "not ready"
	case NoticePeerJoined:
		return "peer joined"
	case NoticeNotWellStructured:
		return "not well structured"
	case NoticeOptionalInvalid:
		return "optional command invalid"
	case NoticeUnknownCommand:
		return "unknown command"
	case NoticeOutOfTurn:
		return "out of turn"
	case NoticeHitMismatch:
		return "hit mismatch"
	case NoticeInvalidStatus:
		return "invalid status"
	case NoticeSendFailed:
		return "send failed"
	}
	return "unknown notice"
}

// MarshalText implements encoding.TextMarshaler.
func (k NoticeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Notice is a message for the player about something that did not end
// the game.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
	Err  error      `json:"-"`
}

// ChatMessage is a chat line, received or sent.
type ChatMessage struct {
	From  string `json:"from"`
	Text  string `json:"text"`
	Local bool   `json:"local"`
}

// Boards is a snapshot of both boards.
type Boards struct {
	Level    int                  `json:"level"`
	Size     int                  `json:"size"`
	Own      [][]game.OwnStatus   `json:"own"`
	Opponent [][]game.FieldStatus `json:"opponent"`
}

// Hooks are the callbacks of a session. Any of them may be nil. They are
// called without the session lock held, and a panic in one of them is
// recovered and logged.
type Hooks struct {
	OnEnd    func(EndStatus)
	OnTurn   func(TurnState)
	OnBoards func(Boards)
	OnChat   func(ChatMessage)
	OnNotice func(Notice)
}
