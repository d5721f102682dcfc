package client

import (
	"github.com/temoto/ntsync/nt"
	"github.com/temoto/ntsync/nt/wire"
)

// Frames encoded under lock, written to transport after unlock.
type outbox struct {
	t          Transport
	text       []byte
	ping       []byte
	values     []byte
	nvalues    int
	disconnect string
}

func (o *outbox) empty() bool {
	return o.text == nil && o.ping == nil && o.values == nil && o.disconnect == ""
}

// SendInitial flushes control messages and values that do not depend on clock offset.
// Called on connect, before round trip timer has any sample.
func (s *Session) SendInitial(now int64) {
	s.mu.Lock()
	out := outbox{t: s.transport}
	// not ready is left to SendTick, it knows when to give up
	if out.t != nil && !s.closed && out.t.Ready() {
		s.flushControlLocked(now, &out)
		s.sendValuesLocked(now, true, &out)
	}
	s.mu.Unlock()
	s.deliver(&out)
}

// SendTick is periodic scheduler step, call at Period() or sooner.
// flush=true ignores publisher periods and control rate limit, use on shutdown.
func (s *Session) SendTick(now int64, flush bool) {
	s.mu.Lock()
	out := s.tickLocked(now, flush)
	s.mu.Unlock()
	s.deliver(&out)
}

func (s *Session) tickLocked(now int64, flush bool) outbox {
	out := outbox{t: s.transport}
	if out.t == nil || s.closed {
		return out
	}
	if !out.t.Ready() {
		last := out.t.LastFlushTime()
		if last == 0 {
			last = s.connectedAt
		}
		if now-last > int64(StallThreshold/1000) {
			out.disconnect = "transmit stalled"
		}
		return out
	}

	s.rtt.Received(out.t.LastReceivedTime())
	if s.rtt.Due(now) {
		v, err := s.rtt.Ping(now)
		if err != nil {
			out.disconnect = err.Error()
			return out
		}
		b, err := wire.EncodeBinary(wire.RTTID, 0, v)
		if err != nil {
			s.log.Errorf("ping encode: %v", err)
		} else {
			out.ping = b
		}
	}

	if flush || s.lastControl == 0 || now-s.lastControl >= controlIntervalUs {
		s.flushControlLocked(now, &out)
	}
	s.sendValuesLocked(now, flush, &out)
	return out
}

func (s *Session) flushControlLocked(now int64, out *outbox) {
	if len(s.control) == 0 {
		return
	}
	s.text.Reset()
	for _, m := range s.control {
		if err := s.text.Add(m); err != nil {
			s.log.Errorf("drop %s: %v", m.Method(), err)
			continue
		}
		s.log.Debugf("send %s %+v", m.Method(), m)
	}
	out.text = s.text.Bytes()
	s.text.Reset()
	s.control = s.control[:0]
	s.lastControl = now
	for _, p := range s.pubs {
		if p != nil {
			p.pending = false
		}
	}
}

// Before clock offset is known only values with ServerTime=0 are sent, others stay queued.
// SendAll queue is sent only up to first waiting value, to keep call order.
// Values of publisher with unsent publish message wait too.
func (s *Session) sendValuesLocked(now int64, force bool, out *outbox) {
	haveOffset := s.rtt.HaveOffset()
	offset := s.rtt.Offset()
	s.bin.Reset()
	for _, p := range s.pubs {
		if p == nil || len(p.queue) == 0 || p.pending {
			continue
		}
		if !force && now < p.nextSend {
			continue
		}
		sent := 0
		hold := false
		kept := p.queue[:0]
		for _, v := range p.queue {
			if hold || (!haveOffset && v.ServerTime() != 0) {
				kept = append(kept, v)
				hold = p.opts.SendAll
				continue
			}
			var t int64
			if haveOffset {
				t = wire.SendTime(v.Time(), offset)
			}
			if err := s.bin.Add(p.uid, t, v); err != nil {
				s.log.Errorf("drop value uid=%d: %v", p.uid, err)
				continue
			}
			sent++
		}
		for i := len(kept); i < len(p.queue); i++ {
			p.queue[i] = nt.Value{}
		}
		p.queue = kept
		if sent != 0 {
			p.nextSend = now + int64(p.periodMs)*1000
		}
	}
	out.nvalues = s.bin.Len()
	out.values = s.bin.Bytes()
	s.bin.Reset()
}

func (s *Session) deliver(out *outbox) {
	if out.t == nil || out.empty() {
		return
	}
	if out.disconnect != "" {
		s.log.Debugf("disconnect: %s", out.disconnect)
		out.t.Disconnect(out.disconnect)
		return
	}
	if out.text != nil {
		if err := out.t.WriteText(out.text); err != nil {
			s.log.Errorf("write text: %v", err)
			return
		}
		s.stat.Send.text(out.text)
	}
	if out.ping != nil {
		if err := out.t.WriteBinary(out.ping); err != nil {
			s.log.Errorf("write ping: %v", err)
			return
		}
		s.stat.Pings.Add(1)
		s.stat.Send.Binary.Count.Add(1)
		s.stat.Send.Binary.Size.Add(int64(len(out.ping)))
	}
	if out.values != nil {
		if err := out.t.WriteBinary(out.values); err != nil {
			s.log.Errorf("write values: %v", err)
			return
		}
		s.stat.Send.binary(out.values, out.nvalues)
	}
	if err := out.t.Flush(); err != nil {
		s.log.Errorf("flush: %v", err)
	}
}
