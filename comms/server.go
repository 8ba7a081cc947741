package comms

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"net"
	"time"
)

// newConnIDs allocates IDs to tag accepted connections in the logs.
func newConnIDs(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		maxInt := int(^uint(0) >> 1)
		for id := 1; true; id++ {
			hash := sha1.New()
			hash.Write([]byte(fmt.Sprintf("%d.%d", id, time.Now().UnixMicro())))
			select {
			case ch <- fmt.Sprintf("%x", hash.Sum(nil))[0:12]:
			case <-ctx.Done():
				return
			}
			if id == maxInt {
				id = 0
			}
		}
	}()
	return ch
}

// ConnHandler handles an accepted connection.
type ConnHandler interface {
	HandleConn(ctx context.Context, conn net.Conn) error
}

// ConnHandlerFunc is an adapter to allow the use of ordinary functions as ConnHandlers.
type ConnHandlerFunc func(ctx context.Context, conn net.Conn) error

// HandleConn calls f(ctx, conn)
func (f ConnHandlerFunc) HandleConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// StartServer accepts connections on listener and hands each one to ch in
// its own goroutine. It returns nil once the listener is closed, either
// by the caller or because ctx is done.
//
// The logger is taken from ctx, see WithLogger.
func StartServer(ctx context.Context, listener net.Listener, ch ConnHandler) error {
	defer listener.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger := GetLogger(ctx)
	logger.Info("start listening", "address", listener.Addr().String())
	connIDs := newConnIDs(ctx)
	for {
		conn, err := listener.Accept()
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) || errors.Is(err, net.ErrClosed) {
				logger.Info("socket closed, quit")
				return nil
			}
			logger.Error("socket error", "error", err)
			return err
		}

		id := <-connIDs
		logger.Info("accepted connection", "conn", id, "remote", conn.RemoteAddr().String())
		go func(ctx context.Context, conn net.Conn) {
			if err := ch.HandleConn(ctx, conn); err != nil {
				GetLogger(ctx).Warn("connection handler failed", "error", err)
			}
		}(WithConnID(ctx, id), conn)
	}
}
