// Package wire translates protocol messages to and from two encodings:
// text channel, JSON array of {"method","params"} objects,
// binary channel, MessagePack tuples [id, time, tag, payload].
package wire

import (
	"github.com/temoto/ntsync/nt"
)

const (
	MethodPublish       = "publish"
	MethodUnpublish     = "unpublish"
	MethodSetProperties = "setproperties"
	MethodSubscribe     = "subscribe"
	MethodUnsubscribe   = "unsubscribe"
	MethodAnnounce      = "announce"
	MethodUnannounce    = "unannounce"
	MethodProperties    = "properties"
)

type Message interface {
	Method() string
}

// client -> server

type PublishMsg struct {
	Name       string
	Type       string
	PubUID     int64
	Properties nt.Properties
}

type UnpublishMsg struct {
	PubUID int64
}

type SetPropertiesMsg struct {
	Name   string
	Update nt.Properties
}

type SubscribeMsg struct {
	SubUID  int64
	Topics  []string
	Options SubscribeOptions
}

type UnsubscribeMsg struct {
	SubUID int64
}

// server -> client

type AnnounceMsg struct {
	Name       string
	ID         int64
	Type       string
	PubUID     *int64 // set when announce answers our publish
	Properties nt.Properties
}

type UnannounceMsg struct {
	Name string
	ID   int64
}

type PropertiesUpdateMsg struct {
	Name   string
	Update nt.Properties
	Ack    bool
}

func (PublishMsg) Method() string          { return MethodPublish }
func (UnpublishMsg) Method() string        { return MethodUnpublish }
func (SetPropertiesMsg) Method() string    { return MethodSetProperties }
func (SubscribeMsg) Method() string        { return MethodSubscribe }
func (UnsubscribeMsg) Method() string      { return MethodUnsubscribe }
func (AnnounceMsg) Method() string         { return MethodAnnounce }
func (UnannounceMsg) Method() string       { return MethodUnannounce }
func (PropertiesUpdateMsg) Method() string { return MethodProperties }

// SubscribeOptions is the wire subset of nt.PubSubOptions.
type SubscribeOptions struct {
	Periodic   float64 // seconds, 0 = default
	All        bool
	TopicsOnly bool
	Prefix     bool
}

func SubscribeOptionsFrom(o nt.PubSubOptions) SubscribeOptions {
	return SubscribeOptions{
		Periodic:   o.Normalize().Periodic,
		All:        o.SendAll,
		TopicsOnly: o.TopicsOnly,
		Prefix:     o.PrefixMatch,
	}
}

func (so SubscribeOptions) PubSubOptions() nt.PubSubOptions {
	return nt.PubSubOptions{
		Periodic:    so.Periodic,
		SendAll:     so.All,
		TopicsOnly:  so.TopicsOnly,
		PrefixMatch: so.Prefix,
	}.Normalize()
}

// Messages sent by clients, handled by server side.
type ClientMessageHandler interface {
	ClientPublish(m PublishMsg)
	ClientUnpublish(m UnpublishMsg)
	ClientSetProperties(m SetPropertiesMsg)
	ClientSubscribe(m SubscribeMsg)
	ClientUnsubscribe(m UnsubscribeMsg)
}

// Messages sent by server, handled by client session.
type ServerMessageHandler interface {
	ServerAnnounce(m AnnounceMsg)
	ServerUnannounce(m UnannounceMsg)
	ServerPropertiesUpdate(m PropertiesUpdateMsg)
}
