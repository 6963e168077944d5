package connection

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/buffer"
)

// StartEngine spawns the sender and receiver goroutines. Idempotent to
// repeated calls: a second start returns ErrAlreadyStarted (spec.md §4.1,
// §8: "engine start is once per connection lifetime").
func (c *Conn) StartEngine() error {
	c.stateMu.Lock()
	if c.engine == EngineStarted || c.state == StateExitAsked || c.state == StateExited || c.state == StateError {
		c.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	c.engine = EngineStarted
	c.stateMu.Unlock()

	c.wg.Add(2)
	go c.senderLoop()
	go c.receiverLoop()
	return nil
}

// StopEngine requests shutdown and waits for both goroutines to exit.
func (c *Conn) StopEngine() error {
	c.stateMu.Lock()
	if c.engine != EngineStarted {
		c.stateMu.Unlock()
		return ErrNotStarted
	}
	c.stateMu.Unlock()

	c.SetState(StateExitAsked)
	c.wg.Wait()

	c.stateMu.Lock()
	c.engine = EngineStopped
	c.stateMu.Unlock()
	return nil
}

// EnqueueSend moves buf into the send queue (ownership transfers). Fails
// with ErrQueueFull if a send-queue limit is set and exceeded, or
// ErrInvalidArg if buf is empty. Posts the sender semaphore on success
// (spec.md §4.1).
func (c *Conn) EnqueueSend(buf *buffer.Buffer) error {
	if buf == nil || buf.Empty() {
		return ErrInvalidArg
	}

	c.sendMu.Lock()
	if c.tunables.SendQueueLimit > 0 && len(c.sendQueue) >= c.tunables.SendQueueLimit {
		c.sendMu.Unlock()
		return ErrQueueFull
	}
	c.sendQueue = append(c.sendQueue, buf)
	c.sendMu.Unlock()

	c.wakeSender()
	return nil
}

// TryReceive returns the oldest received byte-buffer, or nil if none is
// pending. Non-blocking.
func (c *Conn) TryReceive() *buffer.Buffer {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if len(c.recvQueue) == 0 {
		return nil
	}
	b := c.recvQueue[0]
	c.recvQueue = c.recvQueue[1:]
	return b
}

// WaitReceive polls TryReceive at pollInterval until success, the state
// leaves StateRun, or timeout elapses. timeout<=0 disables the deadline
// (spec.md §4.1).
func (c *Conn) WaitReceive(pollInterval, timeout time.Duration) *buffer.Buffer {
	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		if b := c.TryReceive(); b != nil {
			return b
		}
		if c.State() != StateRun {
			return c.TryReceive()
		}
		if hasDeadline && time.Now().After(deadline) {
			return nil
		}
		time.Sleep(pollInterval)
	}
}

// popSend pops the front of the send queue, or nil if empty.
func (c *Conn) popSend() *buffer.Buffer {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if len(c.sendQueue) == 0 {
		return nil
	}
	b := c.sendQueue[0]
	c.sendQueue = c.sendQueue[1:]
	return b
}

// pushReceive appends to the tail of the receive queue.
func (c *Conn) pushReceive(b *buffer.Buffer) {
	c.recvMu.Lock()
	c.recvQueue = append(c.recvQueue, b)
	c.recvMu.Unlock()
}

// senderLoop implements spec.md §4.1's five-step sender algorithm.
func (c *Conn) senderLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.senderWake:
		case <-time.After(c.tunables.SendQueueIdlePoll):
		}

		state := c.State()
		switch state {
		case StateError, StateExited:
			return
		case StateExitAsked:
			c.sendShutdownSentinel()
			c.stateMu.Lock()
			c.state = StateExited
			c.stateMu.Unlock()
			return
		case StatePause:
			continue
		}

		buf := c.popSend()
		if buf == nil {
			continue
		}

		if err := c.transmitFrame(uint32(state), buf); err != nil {
			c.setErrorState(err)
			return
		}

		if c.tunables.SendQueueConsecutive > 0 {
			time.Sleep(c.tunables.SendQueueConsecutive)
		}
	}
}

func (c *Conn) sendShutdownSentinel() {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], shutdownSentinel)
	if c.tunables.SendTimeout > 0 {
		c.raw.SetWriteDeadline(time.Now().Add(c.tunables.SendTimeout))
	}
	writeFull(c.raw, hdr[:])
}

func (c *Conn) transmitFrame(stateWord uint32, payload *buffer.Buffer) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], stateWord)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(payload.Written()))

	if c.tunables.SendTimeout > 0 {
		c.raw.SetWriteDeadline(time.Now().Add(c.tunables.SendTimeout))
	}
	if err := writeFull(c.raw, hdr[:]); err != nil {
		return err
	}
	if err := writeFull(c.raw, payload.Bytes()); err != nil {
		return err
	}
	return nil
}

// receiverLoop implements spec.md §4.1's four-step receiver algorithm.
func (c *Conn) receiverLoop() {
	defer c.wg.Done()

	for {
		state := c.State()
		switch state {
		case StateExitAsked, StateExited:
			return
		case StateError:
			return
		case StatePause:
			time.Sleep(c.tunables.PauseWait)
			continue
		}

		if c.tunables.ReceiveTimeout > 0 {
			c.raw.SetReadDeadline(time.Now().Add(c.tunables.ReceiveTimeout))
		}

		var hdr [4]byte
		if err := readFull(c.raw, hdr[:]); err != nil {
			if isTimeout(err) {
				continue
			}
			if c.State() == StateExitAsked || c.State() == StateExited {
				// Our own Close/WaitClose closed the socket to unblock this
				// read; that is expected shutdown, not a transport failure.
				return
			}
			c.setErrorState(classifyReadErr(err, 0))
			return
		}
		stateWord := binary.BigEndian.Uint32(hdr[:])
		if stateWord == shutdownSentinel {
			c.SetState(StateExitAsked)
			return
		}

		var lenBuf [4]byte
		if err := readFull(c.raw, lenBuf[:]); err != nil {
			c.setErrorState(classifyReadErr(err, 0))
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n == 0 {
			c.setErrorState(&ProtocolError{Reason: "zero-length payload read prohibited"})
			return
		}

		payload := make([]byte, n)
		if err := readFull(c.raw, payload); err != nil {
			c.setErrorState(classifyReadErr(err, int(n)))
			return
		}

		c.pushReceive(buffer.New(payload))

		if c.tunables.ReceiveQueueLimit > 0 {
			c.recvMu.Lock()
			for len(c.recvQueue) > c.tunables.ReceiveQueueLimit {
				c.recvQueue = c.recvQueue[1:]
			}
			c.recvMu.Unlock()
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classifyReadErr(err error, wanted int) *TransportError {
	if errors.Is(err, io.EOF) {
		if wanted > 0 {
			return &TransportError{Kind: TransportShortRead, Err: err}
		}
		return &TransportError{Kind: TransportDisconnected, Err: err}
	}
	if isConnReset(err) {
		return &TransportError{Kind: TransportResetByPeer, Err: err}
	}
	return &TransportError{Kind: TransportOther, Err: err}
}

func isConnReset(err error) bool {
	return errors.Is(err, net.ErrClosed) || containsAny(err, "reset by peer", "not connected", "broken pipe")
}

func containsAny(err error, substrs ...string) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, sub := range substrs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// writeFull loops over partial writes until p is fully transmitted, or a
// fatal error occurs (spec.md §4.1: "partial writes are re-tried until
// complete").
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return &TransportError{Kind: TransportShortWrite, Err: io.ErrShortWrite}
		}
		p = p[n:]
	}
	return nil
}

// readFull loops over partial reads until exactly len(p) bytes have been
// read. Reads of length 0 are prohibited by the caller before invoking
// this (spec.md §4.1's read/write discipline).
func readFull(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	return err
}
