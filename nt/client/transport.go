package client

import (
	"github.com/temoto/ntsync/nt"
)

// Transport is one live connection to server.
// Each Write* call is one frame: text frame holds JSON array of messages,
// binary frame holds back to back value tuples.
// Times are microseconds of local monotonic clock, 0 = never.
type Transport interface {
	Ready() bool
	WriteText(b []byte) error
	WriteBinary(b []byte) error
	Flush() error
	Disconnect(reason string)
	LastFlushTime() int64
	LastReceivedTime() int64
}

// Local receives server side topic state.
// Called with session lock held, must not call back into Session.
type Local interface {
	// Announce returns stable local handle for topic name, creating one if needed.
	// pubuid is set when announce answers our own publish.
	Announce(name string, id int64, typ string, props nt.Properties, pubuid *int64) nt.TopicHandle
	Unannounce(name string, id int64)
	PropertiesUpdate(name string, update nt.Properties, ack bool)
	SetValue(topic nt.TopicHandle, v nt.Value)
}
