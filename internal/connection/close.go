package connection

import (
	"io"
	"time"
)

// Close releases resources without a graceful drain. It requests
// shutdown, closes the socket immediately (which aborts any goroutine
// blocked on a deadline-less read or write with a "closed connection"
// transport error so it can exit), then joins both goroutines. Calling
// Close on an already-closed connection is a no-op (spec.md §8).
func (c *Conn) Close() error {
	var err error
	c.closeOne.Do(func() {
		c.SetState(StateExitAsked)
		err = c.raw.Close()
		if c.EngineState() == EngineStarted {
			c.wg.Wait()
			c.stateMu.Lock()
			c.engine = EngineStopped
			c.stateMu.Unlock()
		}
		c.leaveAllPools()
	})
	return err
}

// WaitClose performs the graceful drain spec.md §4.1 describes:
// shutdown-write, then read-until-EOF on the socket, then close, then join
// threads and release resources. Because the sender goroutine is
// responsible for putting the shutdown sentinel on the wire, WaitClose
// asks it to do so and waits for both goroutines to finish before
// touching the socket directly; a bounded drain deadline guards against a
// peer that never half-closes its own side.
func (c *Conn) WaitClose() error {
	var err error
	c.closeOne.Do(func() {
		c.SetState(StateExitAsked)

		if c.EngineState() == EngineStarted {
			done := make(chan struct{})
			go func() {
				c.wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				// Peer never responds; force the socket closed to unblock
				// whichever goroutine is still waiting on I/O.
				c.raw.Close()
				<-done
			}
			c.stateMu.Lock()
			c.engine = EngineStopped
			c.stateMu.Unlock()
		}

		if tcp, ok := c.raw.(interface{ CloseWrite() error }); ok {
			tcp.CloseWrite()
		}

		drainDeadline := time.Now().Add(2 * time.Second)
		c.raw.SetReadDeadline(drainDeadline)
		io.Copy(io.Discard, c.raw)

		c.leaveAllPools()
		err = c.raw.Close()
	})
	return err
}
