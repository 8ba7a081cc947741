package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/yookoala/netbattleship/comms"
	"github.com/yookoala/netbattleship/host"
	"github.com/yookoala/netbattleship/observer"
	"github.com/yookoala/netbattleship/session"
)

// quitter withdraws from the running game before cancelling everything.
type quitter struct {
	h      *host.Host
	cancel context.CancelFunc
}

func (q quitter) Close() error {
	if s := q.h.Current(); s != nil {
		s.Withdraw()
	}
	q.cancel()
	return nil
}

func main() {
	listen := flag.String("listen", "", "wait for a peer on this address, e.g. :51525")
	connect := flag.String("connect", "", "connect to a peer at host[:port]")
	name := flag.String("name", "Player", "your name")
	level := flag.Int("level", 1, "level to play, 1 to 6")
	auto := flag.Bool("auto", false, "let the computer play your moves")
	autoDelay := flag.Duration("auto-delay", 500*time.Millisecond, "pause before each computer move")
	observe := flag.String("observe", "", "serve the websocket event feed on this address, e.g. :8080")
	levelStr := flag.String("log-level", "info", "debug|info|warn|error")
	accept := flag.String("accept", "", "comma separated addresses or networks allowed to connect, empty allows all")
	flag.Parse()

	lvl := slog.LevelInfo
	switch strings.ToLower(*levelStr) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	if (*listen == "") == (*connect == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -listen and -connect is required")
		flag.Usage()
		os.Exit(2)
	}
	acceptFn, err := parseAccept(*accept)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var h *host.Host
	ended := make(chan session.EndStatus, 1)
	hooks := session.Hooks{
		OnEnd: func(s session.EndStatus) {
			ended <- s
		},
		OnTurn: func(state session.TurnState) {
			if !state.IsMyTurn() {
				return
			}
			if !*auto {
				fmt.Println("Your turn. Type a cell like C5, or help.")
				return
			}
			go func() {
				time.Sleep(*autoDelay)
				if s := h.Current(); s != nil {
					s.AutoMove()
				}
			}()
		},
		OnChat: func(m session.ChatMessage) {
			if !m.Local {
				fmt.Printf("<%s> %s\n", m.From, m.Text)
			}
		},
		OnNotice: func(n session.Notice) {
			logger.Info(n.Text, "notice", n.Kind)
		},
	}

	if *observe != "" {
		hub := observer.NewHub(logger.With("component", "observer"))
		hooks = hub.Hooks(hooks)
		go func() {
			if err := hub.ListenAndServe(ctx, *observe); err != nil {
				logger.Error("observer failed", "error", err)
			}
		}()
	}

	h, err = host.New(host.Options{
		Logger: logger,
		Name:   *name,
		Level:  *level,
		Accept: acceptFn,
		Hooks:  hooks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	stop := comms.CloseOnSignal(quitter{h: h, cancel: cancel}, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		err = h.Listen(ctx, *listen)
		if err == nil {
			fmt.Printf("Waiting for a peer on %s\n", h.Addr())
		}
	} else {
		_, err = h.Dial(ctx, *connect)
	}
	if err != nil {
		logger.Error("cannot start", "error", err)
		os.Exit(1)
	}

	go runConsole(os.Stdin, os.Stdout, h.Current)

	select {
	case status := <-ended:
		fmt.Printf("Game over: %s\n", status)
	case <-ctx.Done():
		select {
		case status := <-ended:
			fmt.Printf("Game over: %s\n", status)
		case <-time.After(time.Second):
		}
	}
}
