package comms

import (
	"io"
	"os"
	"os/signal"
	"sync"
)

// CloseOnSignal closes the Closer when one of the specified OS signals is
// sent to the process. The returned function stops waiting for the
// signals without closing.
func CloseOnSignal(cl io.Closer, sig ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, sig...)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cl.Close()
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
