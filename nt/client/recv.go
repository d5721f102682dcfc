package client

import (
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/wire"
)

// OnText handles one text frame from server.
func (s *Session) OnText(b []byte) {
	s.stat.Recv.text(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	wire.DecodeServerText(b, (*serverHandler)(s), s.log)
}

// OnBinary handles one binary frame from server, now is receive time.
func (s *Session) OnBinary(now int64, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	n, err := wire.DecodeBinaryFrame(b, -s.rtt.Offset(), func(id int64, v nt.Value) {
		if id == wire.RTTID {
			s.stat.Pongs.Add(1)
			if s.rtt.Pong(now, v) {
				s.log.Debugf("rtt/2=%s offset=%d", s.rtt.Best(), s.rtt.Offset())
			}
			return
		}
		t, ok := s.topics[id]
		if !ok {
			s.stat.UnknownIDs.Add(1)
			s.log.Warningf("value for unknown id=%d", id)
			return
		}
		s.local.SetValue(t.handle, v)
	})
	s.stat.Recv.binary(b, n)
	if err != nil {
		s.stat.DecodeErrors.Add(1)
		s.log.Warningf("%v", err)
	}
}

// HaveOffset reports clock offset is known, so values with any timestamp are sent.
func (s *Session) HaveOffset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.HaveOffset()
}

// Topic returns local handle of server topic id.
func (s *Session) Topic(id int64) (nt.TopicHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return 0, false
	}
	return t.handle, true
}

// Called with session lock held.
type serverHandler Session

// Topic id map invariant: one id per handle, one handle per id, one id per name.
// Announce of known name or handle under new id replaces old mapping.
func (h *serverHandler) ServerAnnounce(m wire.AnnounceMsg) {
	s := (*Session)(h)
	if old, ok := s.topics[m.ID]; ok && old.name != m.Name {
		s.log.Warningf("announce id=%d name=%s replaces name=%s", m.ID, m.Name, old.name)
		s.forgetTopic(old)
		s.local.Unannounce(old.name, old.id)
	}
	if oldID, ok := s.byName[m.Name]; ok && oldID != m.ID {
		s.forgetTopic(s.topics[oldID])
	}
	handle := s.local.Announce(m.Name, m.ID, m.Type, m.Properties, m.PubUID)
	if oldID, ok := s.byHandle[handle]; ok && oldID != m.ID {
		s.forgetTopic(s.topics[oldID])
	}
	t := &topic{id: m.ID, name: m.Name, typ: m.Type, props: m.Properties, handle: handle}
	s.topics[m.ID] = t
	s.byName[m.Name] = m.ID
	s.byHandle[handle] = m.ID
	s.log.Debugf("announce id=%d name=%s type=%s handle=%d", m.ID, m.Name, m.Type, handle)
}

func (h *serverHandler) ServerUnannounce(m wire.UnannounceMsg) {
	s := (*Session)(h)
	t, ok := s.topics[m.ID]
	if !ok {
		s.log.Warningf("unannounce unknown id=%d name=%s", m.ID, m.Name)
		return
	}
	if t.name != m.Name {
		s.log.Warningf("unannounce id=%d name=%s mismatch known=%s", m.ID, m.Name, t.name)
	}
	s.forgetTopic(t)
	s.local.Unannounce(t.name, t.id)
}

func (h *serverHandler) ServerPropertiesUpdate(m wire.PropertiesUpdateMsg) {
	s := (*Session)(h)
	if id, ok := s.byName[m.Name]; ok {
		t := s.topics[id]
		merged, err := t.props.Merge(m.Update)
		if err != nil {
			s.log.Warningf("properties name=%s: %v", m.Name, err)
		} else {
			t.props = merged
		}
	}
	s.local.PropertiesUpdate(m.Name, m.Update, m.Ack)
}

func (s *Session) forgetTopic(t *topic) {
	if t == nil {
		return
	}
	delete(s.topics, t.id)
	if s.byName[t.name] == t.id {
		delete(s.byName, t.name)
	}
	if s.byHandle[t.handle] == t.id {
		delete(s.byHandle, t.handle)
	}
}

// TopicProperties returns copy of announced topic properties by name.
func (s *Session) TopicProperties(name string) (nt.Properties, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.topics[id].props.Clone(), true
}
