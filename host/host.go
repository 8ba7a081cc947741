// Package host runs games for the local player: it listens for or dials
// a peer and keeps at most one session alive at a time.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/yookoala/netbattleship/comms"
	"github.com/yookoala/netbattleship/game"
	"github.com/yookoala/netbattleship/protocol"
	"github.com/yookoala/netbattleship/session"
)

// ErrGameRunning is returned when a game is started while another one
// is still running.
var ErrGameRunning = errors.New("a game is already running")

// Options configures a Host.
type Options struct {
	// Logger receives the logs of the host and its sessions. Nil discards.
	Logger *slog.Logger

	// Rand is shared by all sessions. Nil seeds one from the clock.
	Rand *rand.Rand

	// Name is the full name of the local player.
	Name string

	// Level is the selected level. It must not exceed MaxLevel.
	Level int

	// MaxLevel is the highest level unlocked so far. Zero means Level.
	MaxLevel int

	// Accept decides whether an incoming connection gets a game. Nil
	// accepts everyone.
	Accept func(net.Addr) bool

	// Hooks are passed to every session.
	Hooks session.Hooks
}

// Host holds the local player's settings and the current game.
type Host struct {
	opts   Options
	logger *slog.Logger

	lock     sync.Mutex
	current  *session.Session
	listener net.Listener
	level    int
	maxLevel int

	// rand.Rand is not safe for concurrent use
	randLock sync.Mutex
}

// New creates a Host.
func New(opts Options) (*Host, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Accept == nil {
		opts.Accept = func(net.Addr) bool { return true }
	}
	if opts.MaxLevel == 0 {
		opts.MaxLevel = opts.Level
	}
	if _, err := game.LevelFor(opts.MaxLevel); err != nil {
		return nil, fmt.Errorf("max level: %w", err)
	}

	h := &Host{
		opts:     opts,
		logger:   opts.Logger,
		maxLevel: opts.MaxLevel,
	}
	if err := h.SetLevel(opts.Level); err != nil {
		return nil, err
	}
	return h, nil
}

// Level returns the selected level.
func (h *Host) Level() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.level
}

// MaxLevel returns the highest unlocked level.
func (h *Host) MaxLevel() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.maxLevel
}

// SetLevel selects the level for the next game.
func (h *Host) SetLevel(n int) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if n < 1 || n > h.maxLevel {
		return fmt.Errorf("level %d not unlocked, choose 1 to %d", n, h.maxLevel)
	}
	h.level = n
	return nil
}

// Current returns the running game, or nil.
func (h *Host) Current() *session.Session {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.current
}

// Listen starts accepting peers on address in the background. An empty
// address listens on comms.DefaultPort on all interfaces. The accept
// loop stops when ctx is done, when StopListening is called or when a
// game starts.
func (h *Host) Listen(ctx context.Context, address string) error {
	if address == "" {
		address = ":" + strconv.Itoa(comms.DefaultPort)
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	if h.current != nil {
		return ErrGameRunning
	}
	if h.listener != nil {
		return fmt.Errorf("already listening on %s", h.listener.Addr())
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", address, err)
	}
	h.listener = l

	// games outlive the accept loop, so they run on the caller's ctx
	gameCtx := ctx
	handler := comms.ConnHandlerFunc(func(connCtx context.Context, conn net.Conn) error {
		return h.handleConn(gameCtx, connCtx, conn)
	})
	ctx = comms.WithLogger(ctx, h.logger)
	go func() {
		if err := comms.StartServer(ctx, l, handler); err != nil {
			h.logger.Error("accept loop failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the address the host listens on, or nil.
func (h *Host) Addr() net.Addr {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// StopListening stops the accept loop.
func (h *Host) StopListening() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.stopListening()
}

func (h *Host) stopListening() error {
	if h.listener == nil {
		return nil
	}
	err := h.listener.Close()
	h.listener = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (h *Host) handleConn(gameCtx, connCtx context.Context, conn net.Conn) error {
	logger := comms.GetLogger(connCtx)
	if !h.opts.Accept(conn.RemoteAddr()) {
		logger.Info("connection denied", "remote", conn.RemoteAddr().String())
		return conn.Close()
	}
	if _, err := h.StartGame(gameCtx, conn, true); err != nil {
		return fmt.Errorf("cannot start game with %s: %w", conn.RemoteAddr(), err)
	}
	return nil
}

// Dial connects to a peer and starts a game. An address without a port
// uses comms.DefaultPort.
func (h *Host) Dial(ctx context.Context, address string) (*session.Session, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(comms.DefaultPort))
	}
	if h.Current() != nil {
		return nil, ErrGameRunning
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", address, err)
	}
	return h.StartGame(ctx, conn, false)
}

// StartGame starts a game on conn. The accept loop is stopped first. If
// another game is running conn is closed and ErrGameRunning returned.
func (h *Host) StartGame(ctx context.Context, conn io.ReadWriteCloser, isServer bool) (*session.Session, error) {
	h.lock.Lock()
	if h.current != nil {
		h.lock.Unlock()
		conn.Close()
		return nil, ErrGameRunning
	}
	if err := h.stopListening(); err != nil {
		h.logger.Warn("cannot stop listening", "error", err)
	}

	logger := h.logger
	if nc, ok := conn.(net.Conn); ok {
		logger = logger.With("peer", nc.RemoteAddr().String())
	}

	var s *session.Session
	level := h.level
	hooks := h.opts.Hooks
	onEnd := hooks.OnEnd
	hooks.OnEnd = func(status session.EndStatus) {
		h.finish(s, level, status)
		if onEnd != nil {
			onEnd(status)
		}
	}

	h.randLock.Lock()
	seed := h.opts.Rand.Int63()
	h.randLock.Unlock()

	s, err := session.New(conn, session.Options{
		Logger:   logger,
		Rand:     rand.New(rand.NewSource(seed)),
		Name:     h.opts.Name,
		Level:    level,
		IsServer: isServer,
		Hooks:    hooks,
	})
	if err != nil {
		h.lock.Unlock()
		conn.Close()
		return nil, err
	}
	h.current = s
	h.lock.Unlock()

	logger.Info("game starting", "level", level, "server", isServer)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// finish releases the finished game and unlocks the next level after a
// win or a withdrawal of the peer.
func (h *Host) finish(s *session.Session, level int, status session.EndStatus) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.current == s {
		h.current = nil
	}
	if status != session.Won && status != session.PeerWithdrew {
		return
	}
	if next := min(level+1, protocol.NumberOfLevels); next > h.maxLevel {
		h.maxLevel = next
		h.logger.Info("level unlocked", "level", next)
	}
}
