// Package atomic_clock is convenient API around atomic int64 monotonic clock.
// Values are microseconds since process start, never 0 once set.
// Use for time accounting, wire timestamps and liveness checks.
// Do not use where wall time matters.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

var epoch = time.Now()

type Clock struct{ v int64 }

// +1 keeps 0 free as "never" marker
func source() int64 { return int64(time.Since(epoch)/time.Microsecond) + 1 }

func (c *Clock) get() int64         { return atomic.LoadInt64(&c.v) }
func (c *Clock) set(new int64)      { atomic.StoreInt64(&c.v, new) }
func (c *Clock) cas(old, new int64) { atomic.CompareAndSwapInt64(&c.v, old, new) }

func (c *Clock) IsZero() bool { return c.get() == 0 }

func (c *Clock) Set(new int64)       { c.set(new) }
func (c *Clock) SetIfZero(new int64) { c.cas(0, new) }
func (c *Clock) SetNow()             { c.set(source()) }
func (c *Clock) SetNowIfZero()       { c.cas(0, source()) }

func (c *Clock) Sub(begin *Clock) time.Duration {
	return time.Duration(c.get()-begin.get()) * time.Microsecond
}

func (c *Clock) Micros() int64 { return c.get() }

func New(v int64) *Clock { return &Clock{v: v} }
func Now() *Clock        { return New(source()) }

func Since(begin *Clock) time.Duration {
	return time.Duration(source()-begin.get()) * time.Microsecond
}

// Source returns current monotonic microseconds.
func Source() int64 { return source() }
