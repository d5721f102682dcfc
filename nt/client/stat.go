package client

// Values are read and modified atomically, but not consistently,
// i.e. it is possible to read Text.Count=1 Text.Size=0.

import (
	"expvar"
	"fmt"
)

type Stat struct {
	Disconnects  expvar.Int
	DecodeErrors expvar.Int
	UnknownIDs   expvar.Int
	Pings        expvar.Int
	Pongs        expvar.Int
	Recv         Counters
	Send         Counters
}

// Value returns snapshot copy.
func (s *Stat) Value() (r Stat) {
	r.Disconnects.Set(s.Disconnects.Value())
	r.DecodeErrors.Set(s.DecodeErrors.Value())
	r.UnknownIDs.Set(s.UnknownIDs.Value())
	r.Pings.Set(s.Pings.Value())
	r.Pongs.Set(s.Pongs.Value())
	r.Recv.Set(s.Recv.Value())
	r.Send.Set(s.Send.Value())
	return
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"disconnects":%d,"decode_errors":%d,"unknown_ids":%d,"pings":%d,"pongs":%d,"recv":%s,"send":%s}`,
		s.Disconnects.Value(), s.DecodeErrors.Value(), s.UnknownIDs.Value(),
		s.Pings.Value(), s.Pongs.Value(), s.Recv.String(), s.Send.String())
}

type Counters struct {
	Text   CountSizePair // frames
	Binary CountSizePair // frames
	Values expvar.Int
}

func (c *Counters) text(b []byte) {
	c.Text.Count.Add(1)
	c.Text.Size.Add(int64(len(b)))
}

func (c *Counters) binary(b []byte, values int) {
	c.Binary.Count.Add(1)
	c.Binary.Size.Add(int64(len(b)))
	c.Values.Add(int64(values))
}

func (c *Counters) Set(new Counters) {
	c.Text.Set(new.Text.Value())
	c.Binary.Set(new.Binary.Value())
	c.Values.Set(new.Values.Value())
}

func (c *Counters) Value() (r Counters) {
	r.Text = c.Text.Value()
	r.Binary = c.Binary.Value()
	r.Values.Set(c.Values.Value())
	return
}

func (c *Counters) String() string {
	return fmt.Sprintf(`{"text.count":%d,"text.size":%d,"binary.count":%d,"binary.size":%d,"values":%d}`,
		c.Text.Count.Value(), c.Text.Size.Value(),
		c.Binary.Count.Value(), c.Binary.Size.Value(),
		c.Values.Value())
}

type CountSizePair struct {
	Count expvar.Int
	Size  expvar.Int
}

func (csp *CountSizePair) Value() (r CountSizePair) {
	r.Count.Set(csp.Count.Value())
	r.Size.Set(csp.Size.Value())
	return
}

func (csp *CountSizePair) Set(new CountSizePair) {
	csp.Count.Set(new.Count.Value())
	csp.Size.Set(new.Size.Value())
}
