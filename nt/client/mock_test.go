package client_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/client"
	"github.com/temoto/ntsync/nt/wire"
)

const ms = int64(1000)

type frame struct {
	binary bool
	b      []byte
}

type mockTransport struct {
	sync.Mutex
	ready       bool
	frames      []frame
	flushes     int
	disconnects []string
	lastFlush   int64
	lastRecv    int64
}

var _ client.Transport = &mockTransport{}

func newMockTransport() *mockTransport { return &mockTransport{ready: true} }

func (m *mockTransport) Ready() bool {
	m.Lock()
	defer m.Unlock()
	return m.ready
}

func (m *mockTransport) setReady(r bool) {
	m.Lock()
	m.ready = r
	m.Unlock()
}

func (m *mockTransport) WriteText(b []byte) error {
	m.Lock()
	defer m.Unlock()
	m.frames = append(m.frames, frame{b: b})
	return nil
}

func (m *mockTransport) WriteBinary(b []byte) error {
	m.Lock()
	defer m.Unlock()
	m.frames = append(m.frames, frame{binary: true, b: b})
	return nil
}

func (m *mockTransport) Flush() error {
	m.Lock()
	defer m.Unlock()
	m.flushes++
	return nil
}

func (m *mockTransport) Disconnect(reason string) {
	m.Lock()
	defer m.Unlock()
	m.disconnects = append(m.disconnects, reason)
}

func (m *mockTransport) LastFlushTime() int64 {
	m.Lock()
	defer m.Unlock()
	return m.lastFlush
}

func (m *mockTransport) LastReceivedTime() int64 {
	m.Lock()
	defer m.Unlock()
	return m.lastRecv
}

// take returns and forgets written frames
func (m *mockTransport) take() []frame {
	m.Lock()
	defer m.Unlock()
	fs := m.frames
	m.frames = nil
	return fs
}

type msgCollector struct{ msgs []wire.Message }

func (c *msgCollector) ClientPublish(m wire.PublishMsg)             { c.msgs = append(c.msgs, m) }
func (c *msgCollector) ClientUnpublish(m wire.UnpublishMsg)         { c.msgs = append(c.msgs, m) }
func (c *msgCollector) ClientSetProperties(m wire.SetPropertiesMsg) { c.msgs = append(c.msgs, m) }
func (c *msgCollector) ClientSubscribe(m wire.SubscribeMsg)         { c.msgs = append(c.msgs, m) }
func (c *msgCollector) ClientUnsubscribe(m wire.UnsubscribeMsg)     { c.msgs = append(c.msgs, m) }

type tuple struct {
	id int64
	v  nt.Value
}

// split decodes written frames, ping tuples are returned separately
func split(t testing.TB, fs []frame) (texts [][]wire.Message, values []tuple, pings []tuple) {
	t.Helper()
	for _, f := range fs {
		if !f.binary {
			c := &msgCollector{}
			wire.DecodeClientText(f.b, c, log2.NewTest(t, log2.LWarning))
			texts = append(texts, c.msgs)
			continue
		}
		_, err := wire.DecodeBinaryFrame(f.b, 0, func(id int64, v nt.Value) {
			if id == wire.RTTID {
				pings = append(pings, tuple{id, v})
			} else {
				values = append(values, tuple{id, v})
			}
		})
		require.NoError(t, err)
	}
	return
}

type valueEvent struct {
	handle nt.TopicHandle
	v      nt.Value
}

type recordLocal struct {
	handles map[string]nt.TopicHandle
	events  []string
	values  []valueEvent
}

var _ client.Local = &recordLocal{}

func newRecordLocal() *recordLocal { return &recordLocal{handles: map[string]nt.TopicHandle{}} }

func (l *recordLocal) Announce(name string, id int64, typ string, props nt.Properties, pubuid *int64) nt.TopicHandle {
	h, ok := l.handles[name]
	if !ok {
		h = nt.TopicHandle(len(l.handles) + 1)
		l.handles[name] = h
	}
	l.events = append(l.events, fmt.Sprintf("announce %s id=%d type=%s", name, id, typ))
	return h
}

func (l *recordLocal) Unannounce(name string, id int64) {
	l.events = append(l.events, fmt.Sprintf("unannounce %s id=%d", name, id))
}

func (l *recordLocal) PropertiesUpdate(name string, update nt.Properties, ack bool) {
	l.events = append(l.events, fmt.Sprintf("properties %s %v ack=%t", name, update, ack))
}

func (l *recordLocal) SetValue(topic nt.TopicHandle, v nt.Value) {
	l.values = append(l.values, valueEvent{topic, v})
}

type env struct {
	s     *client.Session
	tr    *mockTransport
	local *recordLocal
}

func newEnv(t testing.TB) *env {
	local := newRecordLocal()
	s := client.NewSession(local, client.Options{Log: log2.NewTest(t, log2.LDebug)})
	return &env{s: s, tr: newMockTransport(), local: local}
}

// connect and answer first ping, so clock offset is known
func (e *env) sync(t testing.TB, now, serverTime int64) {
	t.Helper()
	require.NoError(t, e.s.Connected(e.tr, now))
	e.s.SendTick(now, false)
	_, _, pings := split(t, e.tr.take())
	require.Len(t, pings, 1)
	pong, err := wire.EncodeBinary(wire.RTTID, serverTime, pings[0].v)
	require.NoError(t, err)
	e.s.OnBinary(now+2*ms, pong)
	require.True(t, e.s.HaveOffset())
}
