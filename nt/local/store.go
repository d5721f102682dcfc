// Package local is in-memory topic state fed by client.Session.
// Topics get stable handles on first reference by name and keep them across reconnects.
package local

import (
	"sort"
	"strings"
	"sync"

	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/client"
)

type EventKind uint8

const (
	EventAnnounce EventKind = iota + 1
	EventUnannounce
	EventProperties
	EventValue
)

func (k EventKind) String() string {
	switch k {
	case EventAnnounce:
		return "announce"
	case EventUnannounce:
		return "unannounce"
	case EventProperties:
		return "properties"
	case EventValue:
		return "value"
	}
	return "unknown"
}

type Event struct {
	Kind       EventKind
	Topic      nt.TopicHandle
	Name       string
	Type       string
	Value      nt.Value      // EventValue
	Properties nt.Properties // EventAnnounce: all, EventProperties: update
}

// TopicInfo is snapshot of one topic.
type TopicInfo struct {
	Handle     nt.TopicHandle
	Name       string
	Type       string
	ID         int64 // server id, valid when Announced
	Announced  bool
	Properties nt.Properties
	Last       nt.Value
	PubUID     *int64
}

type topic struct {
	TopicInfo
}

type Store struct {
	mu        sync.Mutex
	log       *log2.Log
	topics    []*topic // index = handle-1
	byName    map[string]nt.TopicHandle
	subs      []*Subscriber
	listeners []func(Event)
}

var _ client.Local = &Store{}

func NewStore(log *log2.Log) *Store {
	return &Store{
		log:    log,
		byName: make(map[string]nt.TopicHandle),
	}
}

// Listen registers fun for all events. fun runs in caller goroutine of
// Session.OnText/OnBinary with session locked, so it must not call Session.
func (self *Store) Listen(fun func(Event)) {
	self.mu.Lock()
	self.listeners = append(self.listeners, fun)
	self.mu.Unlock()
}

// GetOrCreate returns handle for name, creating unannounced topic.
func (self *Store) GetOrCreate(name string) nt.TopicHandle {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.getOrCreate(name).Handle
}

func (self *Store) getOrCreate(name string) *topic {
	if h, ok := self.byName[name]; ok {
		return self.topics[h-1]
	}
	t := &topic{TopicInfo: TopicInfo{Name: name, Handle: nt.TopicHandle(len(self.topics) + 1)}}
	self.topics = append(self.topics, t)
	self.byName[name] = t.Handle
	return t
}

func (self *Store) get(h nt.TopicHandle) *topic {
	if h == 0 || int(h) > len(self.topics) {
		return nil
	}
	return self.topics[h-1]
}

func (self *Store) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	self.mu.Lock()
	ls := self.listeners
	self.mu.Unlock()
	for _, e := range events {
		for _, fun := range ls {
			fun(e)
		}
	}
}

func (self *Store) Announce(name string, id int64, typ string, props nt.Properties, pubuid *int64) nt.TopicHandle {
	self.mu.Lock()
	t := self.getOrCreate(name)
	t.ID = id
	t.Type = typ
	t.Announced = true
	t.Properties = props.Clone()
	t.PubUID = pubuid
	e := Event{Kind: EventAnnounce, Topic: t.Handle, Name: name, Type: typ, Properties: props.Clone()}
	self.mu.Unlock()
	self.emit([]Event{e})
	return t.Handle
}

func (self *Store) Unannounce(name string, id int64) {
	self.mu.Lock()
	h, ok := self.byName[name]
	if !ok {
		self.mu.Unlock()
		self.log.Debugf("unannounce unknown name=%s", name)
		return
	}
	t := self.topics[h-1]
	if t.ID != id {
		self.mu.Unlock()
		self.log.Debugf("unannounce name=%s id=%d stale, current=%d", name, id, t.ID)
		return
	}
	t.Announced = false
	t.PubUID = nil
	e := Event{Kind: EventUnannounce, Topic: h, Name: name, Type: t.Type}
	self.mu.Unlock()
	self.emit([]Event{e})
}

func (self *Store) PropertiesUpdate(name string, update nt.Properties, ack bool) {
	self.mu.Lock()
	t := self.getOrCreate(name)
	merged, err := t.Properties.Merge(update)
	if err != nil {
		self.mu.Unlock()
		self.log.Warningf("properties name=%s: %v", name, err)
		return
	}
	t.Properties = merged
	e := Event{Kind: EventProperties, Topic: t.Handle, Name: name, Type: t.Type, Properties: update.Clone()}
	self.mu.Unlock()
	self.emit([]Event{e})
}

func (self *Store) SetValue(h nt.TopicHandle, v nt.Value) {
	self.mu.Lock()
	t := self.get(h)
	if t == nil {
		self.mu.Unlock()
		self.log.Warningf("value for unknown handle=%d", h)
		return
	}
	prev := t.Last
	t.Last = v
	for _, sub := range self.subs {
		if sub.match(t.Name) {
			sub.push(t, prev, v)
		}
	}
	e := Event{Kind: EventValue, Topic: h, Name: t.Name, Type: t.Type, Value: v}
	self.mu.Unlock()
	self.emit([]Event{e})
}

func (self *Store) Topic(name string) (TopicInfo, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	h, ok := self.byName[name]
	if !ok {
		return TopicInfo{}, false
	}
	return self.topics[h-1].snapshot(), true
}

// Topics returns snapshots sorted by name.
func (self *Store) Topics() []TopicInfo {
	self.mu.Lock()
	defer self.mu.Unlock()
	list := make([]TopicInfo, 0, len(self.topics))
	for _, t := range self.topics {
		list = append(list, t.snapshot())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (t *topic) snapshot() TopicInfo {
	info := t.TopicInfo
	info.Properties = t.Properties.Clone()
	return info
}

// Update is queued value of subscribed topic.
type Update struct {
	Topic nt.TopicHandle
	Name  string
	Value nt.Value
}

// Subscriber queues values of matching topics until Read.
type Subscriber struct {
	names []string
	opts  nt.PubSubOptions
	queue []Update
	depth int
}

// Subscribe creates local value queue for names (exact or prefixes with PrefixMatch).
// Queue depth is opts.PollStorage, oldest values are dropped.
// TopicsOnly subscribers never queue values.
func (self *Store) Subscribe(names []string, opts nt.PubSubOptions) *Subscriber {
	opts = opts.Normalize()
	sub := &Subscriber{names: append([]string{}, names...), opts: opts, depth: opts.QueueDepth()}
	self.mu.Lock()
	self.subs = append(self.subs, sub)
	self.mu.Unlock()
	return sub
}

func (self *Store) Unsubscribe(sub *Subscriber) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for i, s := range self.subs {
		if s == sub {
			self.subs = append(self.subs[:i], self.subs[i+1:]...)
			return
		}
	}
}

// Read returns and forgets queued updates.
func (self *Store) Read(sub *Subscriber) []Update {
	self.mu.Lock()
	defer self.mu.Unlock()
	q := sub.queue
	sub.queue = nil
	return q
}

func (sub *Subscriber) match(name string) bool {
	for _, n := range sub.names {
		if sub.opts.PrefixMatch {
			if strings.HasPrefix(name, n) {
				return true
			}
		} else if name == n {
			return true
		}
	}
	return false
}

func (sub *Subscriber) push(t *topic, prev, v nt.Value) {
	if sub.opts.TopicsOnly {
		return
	}
	if !sub.opts.KeepDuplicates && prev.IsValid() && prev.SameData(v) {
		return
	}
	if len(sub.queue) >= sub.depth {
		n := copy(sub.queue, sub.queue[1:])
		sub.queue = sub.queue[:n]
	}
	sub.queue = append(sub.queue, Update{Topic: t.Handle, Name: t.Name, Value: v})
}
