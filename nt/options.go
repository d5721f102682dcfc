package nt

import (
	"math"

	"github.com/juju/errors"
)

const (
	DefaultPeriodic    = 0.1 // seconds
	DefaultPollStorage = 20  // queue depth with SendAll
	MinPeriodMs        = 5
)

// PubSubOptions apply to both publish and subscribe.
// Zero value is valid and means defaults.
type PubSubOptions struct {
	Periodic       float64 // seconds, 0 = DefaultPeriodic
	SendAll        bool
	TopicsOnly     bool
	KeepDuplicates bool // local only, never sent
	PrefixMatch    bool
	PollStorage    int // local subscriber queue depth, 0 = derived from SendAll
}

type Option func(*PubSubOptions)

func WithPeriodic(sec float64) Option  { return func(o *PubSubOptions) { o.Periodic = sec } }
func WithSendAll(b bool) Option        { return func(o *PubSubOptions) { o.SendAll = b } }
func WithTopicsOnly(b bool) Option     { return func(o *PubSubOptions) { o.TopicsOnly = b } }
func WithKeepDuplicates(b bool) Option { return func(o *PubSubOptions) { o.KeepDuplicates = b } }
func WithPrefixMatch(b bool) Option    { return func(o *PubSubOptions) { o.PrefixMatch = b } }
func WithPollStorage(depth int) Option { return func(o *PubSubOptions) { o.PollStorage = depth } }

func NewOptions(opts ...Option) PubSubOptions {
	o := PubSubOptions{}
	for _, fun := range opts {
		fun(&o)
	}
	return o.Normalize()
}

// Normalize fills defaults for zero fields.
func (o PubSubOptions) Normalize() PubSubOptions {
	if o.Periodic == 0 {
		o.Periodic = DefaultPeriodic
	}
	if o.PollStorage == 0 {
		if o.SendAll {
			o.PollStorage = DefaultPollStorage
		} else {
			o.PollStorage = 1
		}
	}
	return o
}

func (o PubSubOptions) Validate() error {
	if o.Periodic < 0 || math.IsNaN(o.Periodic) || math.IsInf(o.Periodic, 0) {
		return errors.NotValidf("periodic=%v", o.Periodic)
	}
	if o.PollStorage < 0 {
		return errors.NotValidf("poll_storage=%d", o.PollStorage)
	}
	return nil
}

// PeriodMs rounds Periodic to 10ms, never below MinPeriodMs.
// No upper bound.
func (o PubSubOptions) PeriodMs() uint32 {
	p := o.Periodic
	if p == 0 {
		p = DefaultPeriodic
	}
	ms := math.Round(p*100) * 10
	if ms < MinPeriodMs {
		return MinPeriodMs
	}
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// QueueDepth is subscriber-side value queue size.
func (o PubSubOptions) QueueDepth() int {
	return o.Normalize().PollStorage
}

// GCD of a and b, gcd(0,b)=b.
func GCD(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
