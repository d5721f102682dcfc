package wsnet

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/ntsync/helpers"
	"github.com/temoto/ntsync/helpers/atomic_clock"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/client"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultRetryDelay     = time.Second
	DefaultSendQueue      = 64
	maxRetryDelay         = 30 * time.Second
)

type Options struct {
	URL            string
	Header         http.Header
	Log            *log2.Log
	NetworkTimeout time.Duration
	RetryDelay     time.Duration // first delay after failed connect, grows up to 30s
	SendQueue      int
	// OnConnect runs after each successful connect and initial send.
	OnConnect func()
}

// Client drives Session over reconnecting websocket.
// - NewClient returns only configuration errors, network IO is done in background
// - Session.SendTick on Session.Period() and shortly after Session.Pending()
// - Session.Disconnected after each connection end
// - Unlimited reconnect attempts with backoff until Close()
type Client struct {
	sync.Mutex

	alive   *alive.Alive
	backoff helpers.Backoff
	current *Conn
	dialer  websocket.Dialer
	opt     Options
	s       *client.Session
}

func NewClient(s *client.Session, opt Options) (*Client, error) {
	if s == nil {
		return nil, errors.NotValidf("code error wsnet.NewClient session=nil")
	}
	if u, err := url.ParseRequestURI(opt.URL); err != nil {
		return nil, errors.Annotatef(err, "config error websocket URL=%s", opt.URL)
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.NotValidf("config error websocket URL=%s scheme", opt.URL)
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.RetryDelay == 0 {
		opt.RetryDelay = DefaultRetryDelay
	}
	if opt.SendQueue == 0 {
		opt.SendQueue = DefaultSendQueue
	}
	c := &Client{
		alive: alive.NewAlive(),
		backoff: helpers.Backoff{
			Min: opt.RetryDelay,
			Max: maxRetryDelay,
			K:   2,
		},
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opt.NetworkTimeout,
			Subprotocols:     []string{Subprotocol},
		},
		opt: opt,
		s:   s,
	}
	c.alive.Add(1)
	go c.worker()
	return c, nil
}

// Close sends queued values with final tick, closes connection and waits for worker.
func (c *Client) Close() error {
	c.alive.Stop()
	c.alive.Wait()
	return c.s.Close()
}

// Connected reports current connection is alive.
func (c *Client) Connected() bool {
	c.Lock()
	defer c.Unlock()
	return c.current != nil && c.current.alive.IsRunning()
}

func (c *Client) dial(ctx context.Context) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opt.NetworkTimeout)
	defer cancel()
	ws, resp, err := c.dialer.DialContext(ctx, c.opt.URL, c.opt.Header)
	if err != nil {
		if resp != nil {
			err = errors.Annotatef(err, "status=%s", resp.Status)
		}
		return nil, errors.Annotatef(err, "dial url=%s", c.opt.URL)
	}
	if p := ws.Subprotocol(); p != Subprotocol {
		_ = ws.Close()
		return nil, errors.NotSupportedf("server subprotocol=%q", p)
	}
	return newConn(ws, c.s, c.opt.Log, c.opt.SendQueue, c.opt.NetworkTimeout), nil
}

func (c *Client) worker() {
	defer c.alive.Done()
	stopch := c.alive.StopChan()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopch
		cancel()
	}()

	for c.alive.IsRunning() {
		if delay := c.backoff.DelayBefore(); delay != 0 {
			c.opt.Log.Debugf("wait reconnect delay=%v", delay)
			select {
			case <-time.After(delay):
			case <-stopch:
				return
			}
		}

		conn, err := c.dial(ctx)
		c.backoff.Update(err == nil)
		if err != nil {
			if c.alive.IsRunning() {
				c.opt.Log.Errorf("connect: %v", err)
			}
			continue
		}
		c.opt.Log.Infof("connected url=%s", c.opt.URL)
		c.Lock()
		c.current = conn
		c.Unlock()
		conn.start()
		if err = c.s.Connected(conn, atomic_clock.Source()); err != nil {
			_ = conn.die(err)
			<-conn.Done()
			return
		}
		if c.opt.OnConnect != nil {
			c.opt.OnConnect()
		}

		stopped := c.drive(conn)
		<-conn.Done()
		c.Lock()
		c.current = nil
		c.Unlock()
		reason := errors.Cause(conn.Err())
		if reason == nil {
			reason = ErrClosing
		}
		c.s.Disconnected(reason.Error())
		if stopped {
			return
		}
	}
}

// drive ticks session until connection ends or client stops.
// Returns true when client stops.
func (c *Client) drive(conn *Conn) bool {
	stopch := c.alive.StopChan()
	period := c.s.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	// control messages are rate limited, so pending kick is served a bit later
	var kickch <-chan time.Time
	for {
		select {
		case <-ticker.C:
			c.s.SendTick(atomic_clock.Source(), false)
			if p := c.s.Period(); p != period {
				period = p
				ticker.Reset(period)
			}

		case <-c.s.Pending():
			if kickch == nil {
				kickch = time.After(nt.MinPeriodMs * time.Millisecond)
			}

		case <-kickch:
			kickch = nil
			c.s.SendTick(atomic_clock.Source(), false)
			if p := c.s.Period(); p != period {
				period = p
				ticker.Reset(period)
			}

		case <-conn.Done():
			return false

		case <-stopch:
			c.s.SendTick(atomic_clock.Source(), true)
			conn.drain(c.opt.NetworkTimeout)
			_ = conn.die(ErrClosing)
			return true
		}
	}
}
