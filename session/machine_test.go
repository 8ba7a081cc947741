package session_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/yookoala/netbattleship/game"
	"github.com/yookoala/netbattleship/protocol"
	"github.com/yookoala/netbattleship/session"
)

func newMachine(isServer bool, coin int) *session.Machine {
	return session.NewMachine(session.Config{
		Name:     "Jürgen",
		Level:    1,
		IsServer: isServer,
		Coin:     coin,
		Rand:     rand.New(rand.NewSource(7)),
	})
}

// readyMachine runs the handshake against a peer named Bob.
func readyMachine(t *testing.T, isServer bool, coin, peerCoin int) *session.Machine {
	t.Helper()
	m := newMachine(isServer, coin)
	m.Handle(session.Begin{})
	m.Handle(session.Received{Command: protocol.IAMCommand{Level: 3, Name: "Bob"}})
	m.Handle(session.Received{Command: protocol.NewCoin(peerCoin)})
	if !m.State().Ready() {
		t.Fatalf("machine not ready after handshake: %s", m.State())
	}
	return m
}

// ownWater returns a cell of the own board without a ship.
func ownWater(m *session.Machine) game.Cell {
	own := m.Boards().Own
	for y := range own {
		for x := range own[y] {
			if own[y][x] == game.OwnWater {
				return game.Cell{X: x, Y: y}
			}
		}
	}
	panic("no water on the board")
}

func sent(effects []session.Effect) (cmds []protocol.Command) {
	for _, e := range effects {
		if s, ok := e.(session.Send); ok {
			cmds = append(cmds, s.Command)
		}
	}
	return
}

func ended(effects []session.Effect) (session.EndStatus, bool) {
	for _, e := range effects {
		if end, ok := e.(session.End); ok {
			return end.Status, true
		}
	}
	return 0, false
}

func notices(effects []session.Effect) (kinds []session.NoticeKind) {
	for _, e := range effects {
		if n, ok := e.(session.Notify); ok {
			kinds = append(kinds, n.Notice.Kind)
		}
	}
	return
}

func TestMachine_Handshake(t *testing.T) {
	m := newMachine(false, 0)

	effects := m.Handle(session.Begin{})
	cmds := sent(effects)
	if want, have := 3, len(cmds); want != have {
		t.Fatalf("want %d commands, have %d", want, have)
	}
	if want, have := "VERSION BandurasBattleShip 1.1.0\r\n", cmds[0].Encode(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
	if want, have := "IAM 1 Jurgen\r\n", cmds[1].Encode(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
	if want, have := "IAMU Jürgen\r\n", cmds[2].Encode(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
	if want, have := session.HandshakePhase1, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	effects = m.Handle(session.Received{Command: protocol.IAMCommand{Level: 5, Name: "Bob"}})
	if want, have := session.HandshakePhase2, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
	cmds = sent(effects)
	if len(cmds) != 1 || cmds[0].Keyword() != protocol.KeywordCoin {
		t.Errorf("expected COIN to be sent, have %v", cmds)
	}
	if want, have := 1, m.Level(); want != have {
		t.Errorf("want effective level %d, have %d", want, have)
	}
	if want, have := 14, m.Fleet().Size(); want != have {
		t.Errorf("want board size %d, have %d", want, have)
	}
	if err := m.Fleet().Validate(); err != nil {
		t.Errorf("invalid fleet: %s", err)
	}

	m.Handle(session.Received{Command: protocol.IAMUCommand{Name: "Bobby Tables"}})
	if want, have := "Bobby Tables", m.PeerName(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}

	// local 0, peer 1, connecting side: the peer starts
	m.Handle(session.Received{Command: protocol.NewCoin(1)})
	if want, have := session.YourTurnFirst, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
}

func TestStarter_Fairness(t *testing.T) {
	for serverCoin := 0; serverCoin < 2; serverCoin++ {
		for clientCoin := 0; clientCoin < 2; clientCoin++ {
			server := readyMachine(t, true, serverCoin, clientCoin)
			client := readyMachine(t, false, clientCoin, serverCoin)

			serverFirst := server.State() == session.MyTurnFirst
			clientFirst := client.State() == session.MyTurnFirst
			if serverFirst == clientFirst {
				t.Errorf("coins %d/%d: exactly one side must start, server %s client %s",
					serverCoin, clientCoin, server.State(), client.State())
			}
			if want, have := serverCoin != clientCoin, serverFirst; want != have {
				t.Errorf("coins %d/%d: want server first %v, have %v", serverCoin, clientCoin, want, have)
			}
		}
	}

	for _, isServer := range []bool{true, false} {
		for local := 0; local < 2; local++ {
			for peer := 0; peer < 2; peer++ {
				if session.Starter(isServer, local, peer) == session.Starter(!isServer, peer, local) {
					t.Errorf("both or neither side start for %v %d %d", isServer, local, peer)
				}
			}
		}
	}
}

func TestMachine_Attack(t *testing.T) {
	m := readyMachine(t, true, 0, 1)
	if want, have := session.MyTurnFirst, m.State(); want != have {
		t.Fatalf("want %s, have %s", want, have)
	}

	a1 := game.Cell{X: 0, Y: 0}
	cmds := sent(m.Handle(session.AttackRequested{Cell: a1}))
	if len(cmds) != 1 || cmds[0].Encode() != "SHOOT A1\r\n" {
		t.Fatalf("expected SHOOT A1, have %v", cmds)
	}
	if want, have := session.WaitingForReplyAfterHit, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	// no second shot while waiting
	if cmds := sent(m.Handle(session.AttackRequested{Cell: game.Cell{X: 1, Y: 0}})); len(cmds) != 0 {
		t.Errorf("unexpected commands while waiting: %v", cmds)
	}

	m.Handle(session.Received{Command: protocol.HitCommand{X: 0, Y: 0, Status: protocol.HitHit}})
	if want, have := session.MyTurnAfterHit, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
	if want, have := game.FieldShip, m.Grid().Status(a1); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	// known cells are not attacked again
	if cmds := sent(m.Handle(session.AttackRequested{Cell: a1})); len(cmds) != 0 {
		t.Errorf("unexpected commands for known cell: %v", cmds)
	}
	if want, have := session.MyTurnAfterHit, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	m.Handle(session.AttackRequested{Cell: game.Cell{X: 1, Y: 0}})
	m.Handle(session.Received{Command: protocol.HitCommand{X: 1, Y: 0, Status: protocol.HitSunk}})
	if want, have := game.FieldSunk, m.Grid().Status(a1); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	m.Handle(session.AttackRequested{Cell: game.Cell{X: 5, Y: 5}})
	m.Handle(session.Received{Command: protocol.HitCommand{X: 5, Y: 5, Status: protocol.HitWater}})
	if want, have := session.YourTurn, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}

	water := ownWater(m)
	m.Handle(session.Received{Command: protocol.ShootCommand{X: water.X, Y: water.Y}})
	if want, have := session.MyTurn, m.State(); want != have {
		t.Fatalf("want %s, have %s", want, have)
	}
	m.Handle(session.AttackRequested{Cell: game.Cell{X: 7, Y: 7}})
	effects := m.Handle(session.Received{Command: protocol.HitCommand{X: 7, Y: 7, Status: protocol.HitSunkAndVictory}})
	if status, ok := ended(effects); !ok || status != session.Won {
		t.Errorf("want end %s, have %s (%v)", session.Won, status, ok)
	}
	if want, have := session.Stopped, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
}

func TestMachine_ShootSendFailed(t *testing.T) {
	m := readyMachine(t, true, 1, 0)
	m.Handle(session.AttackRequested{Cell: game.Cell{X: 2, Y: 2}})

	effects := m.Handle(session.SendFailed{Command: protocol.ShootCommand{X: 2, Y: 2}, Err: errors.New("broken pipe")})
	if _, ok := ended(effects); ok {
		t.Errorf("failed shot must not end the game")
	}
	if want, have := session.MyTurnFirst, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
	if !m.Grid().IsUnknown(game.Cell{X: 2, Y: 2}) {
		t.Errorf("cell must stay unknown")
	}

	// any other failed send is fatal
	effects = m.Handle(session.SendFailed{Command: protocol.ChatCommand{Text: "hi"}, Err: errors.New("broken pipe")})
	if status, ok := ended(effects); !ok || status != session.ConnectionDisturbed {
		t.Errorf("want end %s, have %s (%v)", session.ConnectionDisturbed, status, ok)
	}
}

func TestMachine_HitMismatch(t *testing.T) {
	m := readyMachine(t, true, 1, 0)
	m.Handle(session.AttackRequested{Cell: game.Cell{X: 2, Y: 2}})

	effects := m.Handle(session.Received{Command: protocol.HitCommand{X: 3, Y: 3, Status: protocol.HitWater}})
	kinds := notices(effects)
	if len(kinds) != 1 || kinds[0] != session.NoticeHitMismatch {
		t.Errorf("expected hit mismatch notice, have %v", kinds)
	}
	if want, have := game.FieldWater, m.Grid().Status(game.Cell{X: 3, Y: 3}); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
	if want, have := session.YourTurn, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
}

func TestMachine_OutOfTurn(t *testing.T) {
	m := readyMachine(t, true, 1, 0)

	effects := m.Handle(session.Received{Command: protocol.ShootCommand{X: 0, Y: 0}})
	if cmds := sent(effects); len(cmds) != 0 {
		t.Errorf("out of turn SHOOT must not be answered, have %v", cmds)
	}
	if kinds := notices(effects); len(kinds) != 1 || kinds[0] != session.NoticeOutOfTurn {
		t.Errorf("expected out of turn notice, have %v", kinds)
	}

	effects = m.Handle(session.Received{Command: protocol.HitCommand{X: 0, Y: 0, Status: protocol.HitWater}})
	if kinds := notices(effects); len(kinds) != 1 || kinds[0] != session.NoticeOutOfTurn {
		t.Errorf("expected out of turn notice, have %v", kinds)
	}
	if want, have := session.MyTurnFirst, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
}

func TestMachine_ReceiveAttack(t *testing.T) {
	m := readyMachine(t, true, 0, 0)
	if want, have := session.YourTurnFirst, m.State(); want != have {
		t.Fatalf("want %s, have %s", want, have)
	}

	ships := m.Fleet().Ships()
	water := ownWater(m)

	for i, ship := range ships {
		for j, c := range ship.Cells {
			effects := m.Handle(session.Received{Command: protocol.ShootCommand{X: c.X, Y: c.Y}})
			cmds := sent(effects)
			if len(cmds) != 1 {
				t.Fatalf("expected one HIT, have %v", cmds)
			}
			hit := cmds[0].(protocol.HitCommand)

			lastCell := j == len(ship.Cells)-1
			switch {
			case lastCell && i == len(ships)-1:
				if want, have := protocol.HitSunkAndVictory, hit.Status; want != have {
					t.Errorf("want %s, have %s", want, have)
				}
				if status, ok := ended(effects); !ok || status != session.Lost {
					t.Errorf("want end %s, have %s (%v)", session.Lost, status, ok)
				}
			case lastCell:
				if want, have := protocol.HitSunk, hit.Status; want != have {
					t.Errorf("want %s, have %s", want, have)
				}
			default:
				if want, have := protocol.HitHit, hit.Status; want != have {
					t.Errorf("want %s, have %s", want, have)
				}
			}
			if i == 0 && j == 0 {
				if want, have := session.YourTurnAfterHit, m.State(); want != have {
					t.Errorf("want %s, have %s", want, have)
				}
				// a miss hands over the turn
				cmds := sent(m.Handle(session.Received{Command: protocol.ShootCommand{X: water.X, Y: water.Y}}))
				if len(cmds) != 1 || cmds[0].(protocol.HitCommand).Status != protocol.HitWater {
					t.Fatalf("expected HIT water, have %v", cmds)
				}
				if want, have := session.MyTurn, m.State(); want != have {
					t.Fatalf("want %s, have %s", want, have)
				}
				m.Handle(session.AttackRequested{Cell: game.Cell{X: 0, Y: 0}})
				m.Handle(session.Received{Command: protocol.HitCommand{X: 0, Y: 0, Status: protocol.HitWater}})
			}
		}
	}
}

func TestMachine_NotReady(t *testing.T) {
	m := newMachine(true, 0)
	m.Handle(session.Begin{})

	effects := m.Handle(session.AttackRequested{Cell: game.Cell{}})
	if kinds := notices(effects); len(kinds) != 1 || kinds[0] != session.NoticeNotReady {
		t.Errorf("expected not ready notice, have %v", kinds)
	}
	effects = m.Handle(session.Received{Command: protocol.ChatCommand{Text: "too early"}})
	for _, e := range effects {
		if _, ok := e.(session.ChatReceived); ok {
			t.Errorf("chat must be dropped before the game is ready")
		}
	}

	// a fatal read error during the handshake
	effects = m.Handle(session.ReadFailed{Err: protocol.ErrInvalidCommand})
	if status, ok := ended(effects); !ok || status != session.PreparationFailed {
		t.Errorf("want end %s, have %s (%v)", session.PreparationFailed, status, ok)
	}
	if effects := m.Handle(session.WithdrawRequested{}); len(effects) != 0 {
		t.Errorf("stopped machine must not react, have %v", effects)
	}
}

func TestMachine_Withdraw(t *testing.T) {
	m := readyMachine(t, true, 0, 1)
	effects := m.Handle(session.WithdrawRequested{})
	cmds := sent(effects)
	if len(cmds) != 1 || cmds[0].Encode() != "WITHDRAW\r\n" {
		t.Errorf("expected WITHDRAW, have %v", cmds)
	}
	if status, ok := ended(effects); !ok || status != session.SelfWithdrew {
		t.Errorf("want end %s, have %s (%v)", session.SelfWithdrew, status, ok)
	}

	m = readyMachine(t, true, 0, 1)
	effects = m.Handle(session.Received{Command: protocol.WithdrawCommand{}})
	if status, ok := ended(effects); !ok || status != session.PeerWithdrew {
		t.Errorf("want end %s, have %s (%v)", session.PeerWithdrew, status, ok)
	}
}

func TestMachine_AutoMoveIntegrity(t *testing.T) {
	m := readyMachine(t, true, 0, 1)
	if want, have := session.MyTurnFirst, m.State(); want != have {
		t.Fatalf("want %s, have %s", want, have)
	}

	// a ship cell enclosed by water leaves the opponent model nowhere to go
	grid := m.Grid()
	grid.Record(game.Cell{X: 5, Y: 5}, game.FieldShip)
	for _, c := range []game.Cell{{X: 4, Y: 5}, {X: 5, Y: 4}, {X: 6, Y: 5}, {X: 5, Y: 6}} {
		grid.Record(c, game.FieldWater)
	}

	effects := m.Handle(session.AutoMoveRequested{})
	status, ok := ended(effects)
	if !ok {
		t.Fatalf("expected the session to end")
	}
	if want, have := session.ConnectionDisturbed, status; want != have {
		t.Errorf("want %s, have %s", want, have)
	}
	if cmds := sent(effects); len(cmds) != 0 {
		t.Errorf("unexpected commands sent: %v", cmds)
	}
	if want, have := session.Stopped, m.State(); want != have {
		t.Errorf("want %s, have %s", want, have)
	}
	for _, e := range effects {
		if end, ok := e.(session.End); ok && !errors.Is(end.Err, game.ErrIntegrity) {
			t.Errorf("want %s, have %v", game.ErrIntegrity, end.Err)
		}
	}
}
