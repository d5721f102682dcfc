// Package rtt implements round trip timer: periodic ping over binary channel,
// liveness check and clock offset estimate from the best half round trip.
// All times are microseconds of local monotonic clock.
package rtt

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/ntsync/nt"
)

const DefaultInterval = 3 * time.Second

var ErrPongTimeout = errors.New("connection timed out")

// Timer is not safe for concurrent use, owner serializes access.
type Timer struct {
	interval int64
	nextPing int64
	pingTime int64 // last ping sent, 0 = none in flight
	pongTime int64 // last valid pong received
	recvTime int64 // last frame of any kind received

	best       int64 // smallest half round trip observed
	offset     int64 // remote = local + offset
	haveOffset bool
}

func New(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{interval: int64(interval / time.Microsecond)}
}

func (t *Timer) Interval() int64 { return t.interval }

// IntervalMs for send period computation.
func (t *Timer) IntervalMs() uint32 { return uint32(t.interval / 1000) }

func (t *Timer) Due(now int64) bool { return now >= t.nextPing }

// Ping returns probe value to send with RTT id and schedules next one.
// Returns ErrPongTimeout if previous ping is still unanswered
// and nothing else was received since it.
func (t *Timer) Ping(now int64) (nt.Value, error) {
	if t.pingTime != 0 && t.pongTime < t.pingTime && t.recvTime <= t.pingTime {
		return nt.Value{}, ErrPongTimeout
	}
	t.pingTime = now
	t.nextPing = now + t.interval
	return nt.MakeInteger(now, 0), nil
}

// Pong handles echoed probe. v.Integer() is our ping time, v.ServerTime() is remote clock.
// Returns true if clock offset was updated.
// Samples with negative round trip are discarded, later worse samples never regress offset.
func (t *Timer) Pong(now int64, v nt.Value) bool {
	if v.Type() != nt.TypeInteger {
		return false
	}
	rtt2 := (now - v.Integer()) / 2
	if rtt2 < 0 {
		return false
	}
	t.pongTime = now
	if t.haveOffset && rtt2 >= t.best {
		return false
	}
	t.best = rtt2
	t.offset = v.ServerTime() + rtt2 - now
	t.haveOffset = true
	return true
}

// Received notes time of last frame from peer, later frames count as ping answer.
func (t *Timer) Received(at int64) {
	if at > t.recvTime {
		t.recvTime = at
	}
}

func (t *Timer) Offset() int64    { return t.offset }
func (t *Timer) HaveOffset() bool { return t.haveOffset }

// Best is smallest half round trip, valid when HaveOffset.
func (t *Timer) Best() time.Duration { return time.Duration(t.best) * time.Microsecond }

// Reset forgets pings and clock offset, next Ping is due immediately.
func (t *Timer) Reset() {
	*t = Timer{interval: t.interval}
}
