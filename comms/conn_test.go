package comms_test

import (
	"io"
	"sync"
)

type dummyConn struct {
	in   chan<- []byte
	out  <-chan []byte
	term chan bool
	once *sync.Once

	buf []byte
}

// NewDummyConns returns two connected in-memory connections. Closing
// either one ends both.
func NewDummyConns(size int) (serverConn, clientConn io.ReadWriteCloser) {
	chanServerToClient := make(chan []byte, size)
	chanClientToServer := make(chan []byte, size)
	term := make(chan bool)
	once := &sync.Once{}

	serverDummyConn := &dummyConn{
		in:   chanServerToClient,
		out:  chanClientToServer,
		term: term,
		once: once,
	}

	clientDummyConn := &dummyConn{
		in:   chanClientToServer,
		out:  chanServerToClient,
		term: term,
		once: once,
	}

	return serverDummyConn, clientDummyConn
}

func (c *dummyConn) Read(p []byte) (n int, err error) {
	if len(c.buf) > 0 {
		n = copy(p, c.buf)
		c.buf = c.buf[n:]
		return
	}

	select {
	case <-c.term:
		// terminated, but deliver what was written before
		select {
		case b := <-c.out:
			return c.take(p, b), nil
		default:
			return 0, io.EOF
		}

	case b := <-c.out:
		return c.take(p, b), nil
	}
}

func (c *dummyConn) take(p, b []byte) int {
	n := copy(p, b)
	c.buf = b[n:]
	return n
}

func (c *dummyConn) Write(p []byte) (n int, err error) {
	// the writer may reuse p once Write returns
	b := append([]byte(nil), p...)
	select {
	case <-c.term:
		// terminated
		return 0, io.EOF
	case c.in <- b:
		return len(p), nil
	}
}

func (c *dummyConn) Close() error {
	c.once.Do(func() {
		close(c.term)
	})
	return nil
}
