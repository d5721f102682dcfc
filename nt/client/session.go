// Package client is protocol engine of one pub/sub client connection.
// Session owns publisher and subscriber tables, server topic id map,
// outgoing queues and send pacing. Bytes come and go through Transport,
// server topic state is forwarded to Local.
//
// All methods are safe for concurrent use. Encoding happens under session lock,
// transport writes happen after unlock.
package client

import (
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/rtt"
	"github.com/temoto/ntsync/nt/wire"
)

const (
	// MaxHandle limits publish and subscribe uid.
	MaxHandle = 1 << 16

	// Transport not ready for longer than this since last flush is disconnected.
	StallThreshold = time.Second

	controlIntervalUs = nt.MinPeriodMs * 1000
)

var ErrClosed = errors.New("session closed")

type Options struct {
	Log          *log2.Log
	PingInterval time.Duration // default rtt.DefaultInterval
}

type publisher struct {
	uid      int64
	name     string
	typ      string
	props    nt.Properties
	opts     nt.PubSubOptions
	periodMs uint32
	nextSend int64
	queue    []nt.Value
	pending  bool // publish message not flushed yet
}

type subscriber struct {
	uid    int64
	topics []string
	opts   nt.PubSubOptions
}

type topic struct {
	id     int64
	name   string
	typ    string
	props  nt.Properties
	handle nt.TopicHandle
}

type Session struct { //nolint:maligned
	mu          sync.Mutex
	log         *log2.Log
	local       Local
	transport   Transport
	closed      bool
	connectedAt int64

	pubs     []*publisher // index = uid, nil = free
	npubs    int
	subs     map[int64]*subscriber
	topics   map[int64]*topic // server id
	byName   map[string]int64
	byHandle map[nt.TopicHandle]int64

	control     []wire.Message
	lastControl int64
	periodMs    uint32
	rtt         *rtt.Timer
	text        wire.TextEncoder
	bin         *wire.BinaryEncoder
	kick        chan struct{}
	stat        Stat
}

func NewSession(local Local, opt Options) *Session {
	s := &Session{
		log:      opt.Log,
		local:    local,
		subs:     make(map[int64]*subscriber),
		topics:   make(map[int64]*topic),
		byName:   make(map[string]int64),
		byHandle: make(map[nt.TopicHandle]int64),
		rtt:      rtt.New(opt.PingInterval),
		bin:      wire.NewBinaryEncoder(),
		kick:     make(chan struct{}, 1),
	}
	s.periodMs = s.rtt.IntervalMs()
	s.updatePeriod()
	return s
}

func (s *Session) Stat() *Stat { return &s.stat }

// Pending receives after control messages were queued, so driver may tick early.
func (s *Session) Pending() <-chan struct{} { return s.kick }

// Period is global send period: gcd of publisher periods and ping interval.
func (s *Session) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.periodMs) * time.Millisecond
}

func (s *Session) Connected(t Transport, now int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.transport = t
	s.connectedAt = now
	s.lastControl = 0
	s.rtt.Reset()
	s.mu.Unlock()
	s.log.Debugf("connected")
	s.SendInitial(now)
	return nil
}

// Disconnected forgets server state and queues replay of every active publish and subscribe.
func (s *Session) Disconnected(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stat.Disconnects.Add(1)
	s.log.Infof("disconnected: %s", reason)
	s.transport = nil
	for _, id := range s.topicIDs() {
		t := s.topics[id]
		s.forgetTopic(t)
		s.local.Unannounce(t.name, t.id)
	}
	s.control = s.control[:0]
	s.rtt.Reset()

	for _, p := range s.pubs {
		if p == nil {
			continue
		}
		p.queue = p.queue[:0]
		p.nextSend = 0
		s.enqueueLocked(p.publishMsg())
		p.pending = true
	}
	for _, uid := range s.subUIDs() {
		s.enqueueLocked(s.subs[uid].subscribeMsg())
	}
}

// Close discards all state, next calls return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.transport = nil
	s.pubs = nil
	s.npubs = 0
	s.subs = map[int64]*subscriber{}
	s.topics = map[int64]*topic{}
	s.byName = map[string]int64{}
	s.byHandle = map[nt.TopicHandle]int64{}
	s.control = nil
	return nil
}

func (p *publisher) publishMsg() wire.PublishMsg {
	return wire.PublishMsg{Name: p.name, Type: p.typ, PubUID: p.uid, Properties: p.props.Clone()}
}

func (sub *subscriber) subscribeMsg() wire.SubscribeMsg {
	topics := make([]string, len(sub.topics))
	copy(topics, sub.topics)
	return wire.SubscribeMsg{SubUID: sub.uid, Topics: topics, Options: wire.SubscribeOptionsFrom(sub.opts)}
}

func checkHandle(kind string, uid int64) error {
	if uid < 0 || uid >= MaxHandle {
		return errors.NotValidf("%s uid=%d", kind, uid)
	}
	return nil
}

// Publish starts publisher uid for topic name.
// Values given to SetValue(uid) are sent after publish message.
func (s *Session) Publish(uid int64, name string, typ string, props nt.Properties, opts nt.PubSubOptions) error {
	if err := checkHandle("publish", uid); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return errors.Annotatef(err, "publish name=%s", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if int(uid) < len(s.pubs) && s.pubs[uid] != nil {
		return errors.AlreadyExistsf("publish uid=%d", uid)
	}
	opts = opts.Normalize()
	p := &publisher{
		uid:      uid,
		name:     name,
		typ:      typ,
		props:    props.Clone(),
		opts:     opts,
		periodMs: opts.PeriodMs(),
		pending:  true,
	}
	for int(uid) >= len(s.pubs) {
		s.pubs = append(s.pubs, nil)
	}
	s.pubs[uid] = p
	s.npubs++
	s.updatePeriod()
	s.enqueueLocked(p.publishMsg())
	s.log.Debugf("publish uid=%d name=%s type=%s period=%dms", uid, name, typ, p.periodMs)
	return nil
}

// Unpublish is no-op for unknown uid.
// If publish message is still queued, both are dropped without wire traffic.
func (s *Session) Unpublish(uid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || uid < 0 || int(uid) >= len(s.pubs) || s.pubs[uid] == nil {
		s.log.Debugf("unpublish unknown uid=%d", uid)
		return
	}
	s.pubs[uid] = nil
	s.npubs--
	for len(s.pubs) > 0 && s.pubs[len(s.pubs)-1] == nil {
		s.pubs = s.pubs[:len(s.pubs)-1]
	}
	s.updatePeriod()
	if !s.cancelLocked(func(m wire.Message) bool {
		pm, ok := m.(wire.PublishMsg)
		return ok && pm.PubUID == uid
	}) {
		s.enqueueLocked(wire.UnpublishMsg{PubUID: uid})
	}
}

// SetValue queues value for publisher uid, sent on later SendTick.
// Without SendAll only last value is kept.
func (s *Session) SetValue(uid int64, v nt.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if uid < 0 || int(uid) >= len(s.pubs) || s.pubs[uid] == nil {
		return errors.NotFoundf("publisher uid=%d", uid)
	}
	p := s.pubs[uid]
	if !v.IsValid() {
		return errors.NotValidf("value for uid=%d", uid)
	}
	if want := nt.TypeFromString(p.typ); want != nt.TypeUnassigned && want != v.Type() {
		return errors.NotValidf("value type=%s for uid=%d type=%s", v.Type(), uid, p.typ)
	}
	if p.opts.SendAll {
		p.queue = append(p.queue, v)
	} else {
		p.queue = append(p.queue[:0], v)
	}
	return nil
}

func (s *Session) Subscribe(uid int64, topics []string, opts nt.PubSubOptions) error {
	if err := checkHandle("subscribe", uid); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return errors.Annotatef(err, "subscribe uid=%d", uid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.subs[uid]; ok {
		return errors.AlreadyExistsf("subscribe uid=%d", uid)
	}
	sub := &subscriber{uid: uid, topics: append([]string{}, topics...), opts: opts.Normalize()}
	s.subs[uid] = sub
	s.enqueueLocked(sub.subscribeMsg())
	return nil
}

// Unsubscribe is no-op for unknown uid.
func (s *Session) Unsubscribe(uid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[uid]; s.closed || !ok {
		s.log.Debugf("unsubscribe unknown uid=%d", uid)
		return
	}
	delete(s.subs, uid)
	if !s.cancelLocked(func(m wire.Message) bool {
		sm, ok := m.(wire.SubscribeMsg)
		return ok && sm.SubUID == uid
	}) {
		s.enqueueLocked(wire.UnsubscribeMsg{SubUID: uid})
	}
}

// SetProperties sends merge patch update for topic name.
func (s *Session) SetProperties(name string, update nt.Properties) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.enqueueLocked(wire.SetPropertiesMsg{Name: name, Update: update.Clone()})
	return nil
}

func (s *Session) enqueueLocked(m wire.Message) {
	s.control = append(s.control, m)
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// cancelLocked removes last queued message matching fun.
func (s *Session) cancelLocked(fun func(wire.Message) bool) bool {
	for i := len(s.control) - 1; i >= 0; i-- {
		if fun(s.control[i]) {
			s.control = append(s.control[:i], s.control[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) updatePeriod() {
	period := s.rtt.IntervalMs()
	for _, p := range s.pubs {
		if p != nil {
			period = nt.GCD(period, p.periodMs)
		}
	}
	if period < nt.MinPeriodMs {
		period = nt.MinPeriodMs
	}
	s.periodMs = period
}

func (s *Session) subUIDs() []int64 {
	uids := make([]int64, 0, len(s.subs))
	for uid := range s.subs {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

func (s *Session) topicIDs() []int64 {
	ids := make([]int64, 0, len(s.topics))
	for id := range s.topics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
