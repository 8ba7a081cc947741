// Package observer pushes the events of a game to websocket clients, so
// a board renderer can run in another process or in a browser.
//
// Clients connect to /ws and receive one JSON Event per message. The
// latest turn, boards and end events are replayed to every new client
// and served as a JSON object on /state.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yookoala/netbattleship/session"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

// ErrSlowSubscriber is reported for a subscriber dropped because its
// queue was full.
var ErrSlowSubscriber = errors.New("subscriber too slow")

// Hub fans events out to the websocket subscribers.
type Hub struct {
	logger   *slog.Logger
	subs     *subscriberSet
	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// lock orders publishing against replays to new subscribers.
	lock sync.Mutex
	seq  uint64
	last map[string]Event
}

// NewHub creates a Hub. A nil logger discards.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Hub{
		logger: logger,
		subs:   newSubscriberSet(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		last: make(map[string]Event),
	}
	h.subs.OnAdd(func(s *subscriber) {
		h.logger.Info("observer joined", "observer", s.id)
	})
	h.subs.OnRemove(func(s *subscriber) {
		h.logger.Info("observer left", "observer", s.id)
	})
	return h
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	return h.subs.Len()
}

// Publish sends an event to all subscribers. Subscribers that cannot
// keep up are dropped and reported in the returned error.
func (h *Hub) Publish(typ string, data any) error {
	e, err := NewEvent(typ, data)
	if err != nil {
		return err
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	h.seq++
	e.Seq = h.seq
	switch typ {
	case TypeTurn, TypeBoards, TypeEnd:
		h.last[typ] = e
	}

	var errs []error
	var slow []string
	h.subs.Map(func(s *subscriber) {
		select {
		case s.send <- e:
		default:
			slow = append(slow, s.id)
			errs = append(errs, fmt.Errorf("observer %s: %w", s.id, ErrSlowSubscriber))
		}
	})
	for _, id := range slow {
		h.subs.Remove(id)
	}
	return errors.Join(errs...)
}

// State returns the latest turn, boards and end events by type.
func (h *Hub) State() map[string]Event {
	h.lock.Lock()
	defer h.lock.Unlock()
	state := make(map[string]Event, len(h.last))
	for k, v := range h.last {
		state[k] = v
	}
	return state
}

// replay returns the latest events in publishing order. It must be
// called with the lock held.
func (h *Hub) replay() []Event {
	events := make([]Event, 0, len(h.last))
	for _, e := range h.last {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events
}

// Hooks returns session hooks that publish every event and then call
// the hooks in next.
func (h *Hub) Hooks(next session.Hooks) session.Hooks {
	publish := func(typ string, data any) {
		if err := h.Publish(typ, data); err != nil {
			h.logger.Warn("cannot publish event", "type", typ, "error", err)
		}
	}
	return session.Hooks{
		OnEnd: func(s session.EndStatus) {
			publish(TypeEnd, endData{Status: s.String()})
			if next.OnEnd != nil {
				next.OnEnd(s)
			}
		},
		OnTurn: func(s session.TurnState) {
			publish(TypeTurn, turnData{State: s.String(), MyTurn: s.IsMyTurn()})
			if next.OnTurn != nil {
				next.OnTurn(s)
			}
		},
		OnBoards: func(b session.Boards) {
			publish(TypeBoards, b)
			if next.OnBoards != nil {
				next.OnBoards(b)
			}
		},
		OnChat: func(m session.ChatMessage) {
			publish(TypeChat, m)
			if next.OnChat != nil {
				next.OnChat(m)
			}
		},
		OnNotice: func(n session.Notice) {
			data := noticeData{Kind: n.Kind.String(), Text: n.Text}
			if n.Err != nil {
				data.Error = n.Err.Error()
			}
			publish(TypeNotice, data)
			if next.OnNotice != nil {
				next.OnNotice(n)
			}
		},
	}
}

// Handler returns the HTTP handler serving /ws and /state.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/state", h.serveState)
	return mux
}

func (h *Hub) serveState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.State()); err != nil {
		h.logger.Warn("cannot write state", "error", err)
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has answered the request already
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &subscriber{
		id:   fmt.Sprintf("%s#%d", r.RemoteAddr, h.nextID.Add(1)),
		send: make(chan Event, sendBuffer),
	}
	h.lock.Lock()
	if err := h.subs.Add(s); err != nil {
		h.lock.Unlock()
		h.logger.Error("cannot add observer", "error", err)
		conn.Close()
		return
	}
	for _, e := range h.replay() {
		s.send <- e
	}
	h.lock.Unlock()

	go h.writeLoop(conn, s)
	h.readLoop(conn, s)
}

// readLoop discards what the client sends until it goes away.
func (h *Hub) readLoop(conn *websocket.Conn, s *subscriber) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.subs.Remove(s.id)
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, s *subscriber) {
	defer conn.Close()
	for e := range s.send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			h.logger.Debug("cannot write to observer", "observer", s.id, "error", err)
			h.subs.Remove(s.id)
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close disconnects all subscribers.
func (h *Hub) Close() error {
	for _, id := range h.subs.IDs() {
		h.subs.Remove(id)
	}
	return nil
}

// ListenAndServe serves Handler on addr until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		err := errors.Join(srv.Shutdown(shutdownCtx), h.Close())
		if err != nil {
			h.logger.Warn("observer shutdown", "error", err)
		}
	}()

	h.logger.Info("observer listening", "address", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
