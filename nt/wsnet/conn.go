// Package wsnet carries client.Session over WebSocket.
// Conn is one connection, Client reconnects until Close.
package wsnet

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/ntsync/helpers"
	"github.com/temoto/ntsync/helpers/atomic_clock"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt/client"
)

const Subprotocol = "v4.1.networktables.first.wpi.edu"

var (
	ErrClosing       = fmt.Errorf("websocket client is closing")
	ErrSendQueueFull = fmt.Errorf("websocket send queue full")
)

// Handler receives frames, now is receive time in atomic_clock micros.
// client.Session implements it.
type Handler interface {
	OnText(b []byte)
	OnBinary(now int64, b []byte)
}

type frame struct {
	typ int // websocket.TextMessage or BinaryMessage
	b   []byte
}

// Conn implements client.Transport over one websocket connection.
// Writes are batched until Flush, then queued to writer goroutine.
type Conn struct {
	alive   *alive.Alive
	closed  uint32
	reason  helpers.AtomicError
	ws      *websocket.Conn
	log     *log2.Log
	h       Handler
	timeout time.Duration

	mu     sync.Mutex
	batch  []frame
	sendq  chan []frame // one item per Flush
	unsent int32        // atomic, batches queued or being written

	lastFlush atomic_clock.Clock
	lastRecv  atomic_clock.Clock
}

var _ client.Transport = &Conn{}

func newConn(ws *websocket.Conn, h Handler, log *log2.Log, queue int, timeout time.Duration) *Conn {
	if queue <= 0 {
		queue = 1
	}
	return &Conn{
		alive:   alive.NewAlive(),
		ws:      ws,
		h:       h,
		log:     log,
		timeout: timeout,
		sendq:   make(chan []frame, queue),
	}
}

// start reader and writer
func (c *Conn) start() {
	if !c.alive.Add(2) {
		return
	}
	go c.reader()
	go c.writer()
}

// Ready reports send queue has space.
func (c *Conn) Ready() bool {
	return c.alive.IsRunning() && len(c.sendq) < cap(c.sendq)
}

func (c *Conn) WriteText(b []byte) error   { return c.add(websocket.TextMessage, b) }
func (c *Conn) WriteBinary(b []byte) error { return c.add(websocket.BinaryMessage, b) }

func (c *Conn) add(typ int, b []byte) error {
	if !c.alive.IsRunning() {
		return ErrClosing
	}
	c.mu.Lock()
	c.batch = append(c.batch, frame{typ: typ, b: b})
	c.mu.Unlock()
	return nil
}

// Flush moves batched frames into send queue. Full queue kills connection,
// Session checks Ready before writing so this means writer is stuck.
func (c *Conn) Flush() error {
	c.mu.Lock()
	batch := c.batch
	c.batch = nil
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	atomic.AddInt32(&c.unsent, 1)
	select {
	case c.sendq <- batch:
		return nil
	case <-c.alive.StopChan():
		atomic.AddInt32(&c.unsent, -1)
		return ErrClosing
	default:
		atomic.AddInt32(&c.unsent, -1)
		return c.die(ErrSendQueueFull)
	}
}

func (c *Conn) Disconnect(reason string) {
	_ = c.die(errors.New(reason))
}

func (c *Conn) LastFlushTime() int64    { return c.lastFlush.Micros() }
func (c *Conn) LastReceivedTime() int64 { return c.lastRecv.Micros() }

// Done is closed after reader and writer exit.
func (c *Conn) Done() <-chan struct{} { return c.alive.WaitChan() }

// Err returns reason of connection end.
func (c *Conn) Err() error {
	err, _ := c.reason.Load()
	return err
}

// drain waits until writer sent all queued frames or timeout.
func (c *Conn) drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for atomic.LoadInt32(&c.unsent) != 0 && c.alive.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

// die stores first reason, sends close frame with it and closes socket.
func (c *Conn) die(e error) error {
	if e == nil {
		e = ErrClosing
	}
	c.reason.StoreOnce(e)
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return e
	}
	c.alive.Stop()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, truncateReason(e.Error()))
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.timeout)); err != nil {
		c.log.Debugf("close frame: %v", err)
	}
	_ = c.ws.Close()
	return e
}

// Close frame payload is limited to 125 bytes including 2 bytes of code.
func truncateReason(s string) string {
	const max = 123
	if len(s) > max {
		return s[:max]
	}
	return s
}

func (c *Conn) reader() {
	defer c.alive.Done()
	for {
		if c.timeout != 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.timeout))
		}
		typ, b, err := c.ws.ReadMessage()
		if !c.alive.IsRunning() {
			return
		}
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Infof("server closed connection: %v", err)
			}
			_ = c.die(errors.Annotate(err, "receive"))
			return
		}
		c.lastRecv.SetNow()
		switch typ {
		case websocket.TextMessage:
			c.h.OnText(b)
		case websocket.BinaryMessage:
			c.h.OnBinary(c.lastRecv.Micros(), b)
		}
	}
}

func (c *Conn) writer() {
	defer c.alive.Done()
	stopch := c.alive.StopChan()
	for {
		select {
		case batch := <-c.sendq:
			for _, f := range batch {
				if c.timeout != 0 {
					_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
				}
				if err := c.ws.WriteMessage(f.typ, f.b); err != nil {
					_ = c.die(errors.Annotate(err, "send"))
					return
				}
			}
			c.lastFlush.SetNow()
			atomic.AddInt32(&c.unsent, -1)

		case <-stopch:
			return
		}
	}
}
