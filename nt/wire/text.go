package wire

import (
	"bytes"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/temoto/ntsync/log2"
	"github.com/temoto/ntsync/nt"
)

type textFrame struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type publishParams struct {
	Name       string        `json:"name"`
	Properties nt.Properties `json:"properties"`
	PubUID     int64         `json:"pubuid"`
	Type       string        `json:"type"`
}

type pubuidParams struct {
	PubUID int64 `json:"pubuid"`
}

type subuidParams struct {
	SubUID int64 `json:"subuid"`
}

type updateParams struct {
	Name   string        `json:"name"`
	Update nt.Properties `json:"update"`
}

type subscribeParams struct {
	Options map[string]interface{} `json:"options"`
	SubUID  int64                  `json:"subuid"`
	Topics  []string               `json:"topics"`
}

type announceParams struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Properties nt.Properties `json:"properties"`
	PubUID     *int64        `json:"pubuid,omitempty"`
	Type       string        `json:"type"`
}

type unannounceParams struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type propertiesParams struct {
	Ack    bool          `json:"ack,omitempty"`
	Name   string        `json:"name"`
	Update nt.Properties `json:"update"`
}

func nonNil(p nt.Properties) nt.Properties {
	if p == nil {
		return nt.Properties{}
	}
	return p
}

// options equal to defaults are omitted
func (so SubscribeOptions) wire() map[string]interface{} {
	m := make(map[string]interface{}, 4)
	if so.Periodic != 0 && so.Periodic != nt.DefaultPeriodic {
		m["periodic"] = so.Periodic
	}
	if so.All {
		m["all"] = true
	}
	if so.TopicsOnly {
		m["topicsonly"] = true
	}
	if so.Prefix {
		m["prefix"] = true
	}
	return m
}

func textParams(m Message) (interface{}, error) {
	switch msg := m.(type) {
	case PublishMsg:
		return publishParams{Name: msg.Name, Properties: nonNil(msg.Properties), PubUID: msg.PubUID, Type: msg.Type}, nil
	case UnpublishMsg:
		return pubuidParams{PubUID: msg.PubUID}, nil
	case SetPropertiesMsg:
		return updateParams{Name: msg.Name, Update: nonNil(msg.Update)}, nil
	case SubscribeMsg:
		topics := msg.Topics
		if topics == nil {
			topics = []string{}
		}
		return subscribeParams{Options: msg.Options.wire(), SubUID: msg.SubUID, Topics: topics}, nil
	case UnsubscribeMsg:
		return subuidParams{SubUID: msg.SubUID}, nil
	case AnnounceMsg:
		return announceParams{ID: msg.ID, Name: msg.Name, Properties: nonNil(msg.Properties), PubUID: msg.PubUID, Type: msg.Type}, nil
	case UnannounceMsg:
		return unannounceParams{ID: msg.ID, Name: msg.Name}, nil
	case PropertiesUpdateMsg:
		return propertiesParams{Ack: msg.Ack, Name: msg.Name, Update: nonNil(msg.Update)}, nil
	}
	return nil, errors.NotSupportedf("text message %T", m)
}

// EncodeText returns one message as JSON object, without array brackets.
func EncodeText(m Message) ([]byte, error) {
	params, err := textParams(m)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(textFrame{Method: m.Method(), Params: params})
	return b, errors.Annotate(err, "EncodeText")
}

// TextEncoder batches messages into one JSON array text frame.
type TextEncoder struct {
	buf bytes.Buffer
	n   int
}

func (self *TextEncoder) Add(m Message) error {
	b, err := EncodeText(m)
	if err != nil {
		return err
	}
	if self.n == 0 {
		self.buf.WriteByte('[')
	} else {
		self.buf.WriteByte(',')
	}
	self.buf.Write(b)
	self.n++
	return nil
}

// Len is count of messages added since Reset.
func (self *TextEncoder) Len() int { return self.n }

// Bytes returns closed array copy, nil when empty.
func (self *TextEncoder) Bytes() []byte {
	if self.n == 0 {
		return nil
	}
	b := self.buf.Bytes()
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = ']'
	return out
}

func (self *TextEncoder) Reset() {
	self.buf.Reset()
	self.n = 0
}

// JSON field type checks look at first byte, so null never passes as string/number/object.
type object map[string]json.RawMessage

func jsonKind(raw json.RawMessage) byte {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if len(raw) == 0 {
		return 0
	}
	switch c := raw[0]; {
	case c == '-' || (c >= '0' && c <= '9'):
		return '0'
	case c == 't' || c == 'f':
		return 'b'
	default:
		return c
	}
}

func (o object) str(key string) (string, error) {
	raw, ok := o[key]
	if !ok {
		return "", errors.Errorf("no %s key", key)
	}
	var s string
	if jsonKind(raw) != '"' || json.Unmarshal(raw, &s) != nil {
		return "", errors.Errorf("%s must be a string", key)
	}
	return s, nil
}

func (o object) number(key string) (int64, error) {
	raw, ok := o[key]
	if !ok {
		return 0, errors.Errorf("no %s key", key)
	}
	return numberValue(raw, key+" must be a number")
}

func numberValue(raw json.RawMessage, errText string) (int64, error) {
	var i int64
	if jsonKind(raw) != '0' || json.Unmarshal(raw, &i) != nil {
		return 0, errors.New(errText)
	}
	return i, nil
}

func (o object) float(key, errText string) (float64, bool, error) {
	raw, ok := o[key]
	if !ok {
		return 0, false, nil
	}
	var f float64
	if jsonKind(raw) != '0' || json.Unmarshal(raw, &f) != nil {
		return 0, true, errors.New(errText)
	}
	return f, true, nil
}

func (o object) boolean(key, errText string) (bool, bool, error) {
	raw, ok := o[key]
	if !ok {
		return false, false, nil
	}
	var b bool
	if jsonKind(raw) != 'b' || json.Unmarshal(raw, &b) != nil {
		return false, true, errors.New(errText)
	}
	return b, true, nil
}

func asObject(raw json.RawMessage) (object, bool) {
	if jsonKind(raw) != '{' {
		return nil, false
	}
	o := object{}
	if json.Unmarshal(raw, &o) != nil {
		return nil, false
	}
	return o, true
}

func asProperties(raw json.RawMessage) (nt.Properties, bool) {
	if jsonKind(raw) != '{' {
		return nil, false
	}
	p := nt.Properties{}
	if json.Unmarshal(raw, &p) != nil {
		return nil, false
	}
	return p, true
}

// required object
func (o object) update() (nt.Properties, error) {
	raw, ok := o["update"]
	if !ok {
		return nil, errors.New("no update key")
	}
	p, ok := asProperties(raw)
	if !ok {
		return nil, errors.New("update must be an object")
	}
	return p, nil
}

func (o object) stringArray(key string) ([]string, error) {
	raw, ok := o[key]
	if !ok {
		return nil, errors.Errorf("no %s key", key)
	}
	var items []json.RawMessage
	if jsonKind(raw) != '[' || json.Unmarshal(raw, &items) != nil {
		return nil, errors.Errorf("%s must be an array", key)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if jsonKind(item) != '"' || json.Unmarshal(item, &s) != nil {
			return nil, errors.Errorf("%s/%d must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// splitText parses top level array, then each element as method + params.
// Error returned by fun is logged with message index, next message is processed.
func splitText(data []byte, log *log2.Log, fun func(method string, params object) error) {
	if jsonKind(data) != '[' && json.Valid(data) {
		log.Warningf("expected JSON array at top level")
		return
	}
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		log.Warningf("could not decode JSON message: %v", err)
		return
	}
	for i, raw := range list {
		if err := splitOne(raw, fun); err != nil {
			log.Warningf("%d: %s", i, err.Error())
		}
	}
}

func splitOne(raw json.RawMessage, fun func(method string, params object) error) error {
	msg, ok := asObject(raw)
	if !ok {
		return errors.New("expected message to be an object")
	}
	method, err := msg.str("method")
	if err != nil {
		return err
	}
	rawParams, ok := msg["params"]
	if !ok {
		return errors.New("no params key")
	}
	params, ok := asObject(rawParams)
	if !ok {
		return errors.New("params must be an object")
	}
	return fun(method, params)
}

// DecodeClientText dispatches a text frame of client messages.
// Malformed messages are logged and skipped.
// Returns true if any publish or subscribe set changed.
func DecodeClientText(data []byte, h ClientMessageHandler, log *log2.Log) bool {
	changed := false
	splitText(data, log, func(method string, params object) error {
		switch method {
		case MethodPublish:
			m, err := decodePublish(params)
			if err != nil {
				return err
			}
			h.ClientPublish(m)
			changed = true

		case MethodUnpublish:
			pubuid, err := params.number("pubuid")
			if err != nil {
				return err
			}
			h.ClientUnpublish(UnpublishMsg{PubUID: pubuid})
			changed = true

		case MethodSetProperties:
			name, err := params.str("name")
			if err != nil {
				return err
			}
			update, err := params.update()
			if err != nil {
				return err
			}
			h.ClientSetProperties(SetPropertiesMsg{Name: name, Update: update})

		case MethodSubscribe:
			m, err := decodeSubscribe(params)
			if err != nil {
				return err
			}
			h.ClientSubscribe(m)
			changed = true

		case MethodUnsubscribe:
			subuid, err := params.number("subuid")
			if err != nil {
				return err
			}
			h.ClientUnsubscribe(UnsubscribeMsg{SubUID: subuid})
			changed = true

		default:
			return errors.Errorf("unrecognized method '%s'", method)
		}
		return nil
	})
	return changed
}

func decodePublish(params object) (PublishMsg, error) {
	m := PublishMsg{}
	var err error
	if m.Name, err = params.str("name"); err != nil {
		return m, err
	}
	if m.Type, err = params.str("type"); err != nil {
		return m, err
	}
	if m.PubUID, err = params.number("pubuid"); err != nil {
		return m, err
	}
	m.Properties = nt.Properties{}
	if raw, ok := params["properties"]; ok {
		p, ok := asProperties(raw)
		if !ok {
			return m, errors.New("properties must be an object")
		}
		m.Properties = p
	}
	return m, nil
}

func decodeSubscribe(params object) (SubscribeMsg, error) {
	m := SubscribeMsg{}
	var err error
	if m.SubUID, err = params.number("subuid"); err != nil {
		return m, err
	}
	if raw, ok := params["options"]; ok {
		opts, ok := asObject(raw)
		if !ok {
			return m, errors.New("options must be an object")
		}
		if m.Options.Periodic, _, err = opts.float("periodic", "periodic value must be a number"); err != nil {
			return m, err
		}
		if m.Options.All, _, err = opts.boolean("all", "all value must be a boolean"); err != nil {
			return m, err
		}
		if m.Options.TopicsOnly, _, err = opts.boolean("topicsonly", "topicsonly value must be a boolean"); err != nil {
			return m, err
		}
		if m.Options.Prefix, _, err = opts.boolean("prefix", "prefix value must be a boolean"); err != nil {
			return m, err
		}
	}
	if m.Options.Periodic == 0 {
		m.Options.Periodic = nt.DefaultPeriodic
	}
	if m.Topics, err = params.stringArray("topics"); err != nil {
		return m, err
	}
	return m, nil
}

// DecodeServerText dispatches a text frame of server messages.
// Malformed messages are logged and skipped.
// Returns true if any topic was announced or unannounced.
func DecodeServerText(data []byte, h ServerMessageHandler, log *log2.Log) bool {
	changed := false
	splitText(data, log, func(method string, params object) error {
		switch method {
		case MethodAnnounce:
			m, err := decodeAnnounce(params, log)
			if err != nil {
				return err
			}
			h.ServerAnnounce(m)
			changed = true

		case MethodUnannounce:
			m := UnannounceMsg{}
			var err error
			if m.Name, err = params.str("name"); err != nil {
				return err
			}
			if m.ID, err = params.number("id"); err != nil {
				return err
			}
			h.ServerUnannounce(m)
			changed = true

		case MethodProperties:
			m := PropertiesUpdateMsg{}
			var err error
			if m.Name, err = params.str("name"); err != nil {
				return err
			}
			if m.Update, err = params.update(); err != nil {
				return err
			}
			if m.Ack, _, err = params.boolean("ack", "ack must be a boolean"); err != nil {
				return err
			}
			h.ServerPropertiesUpdate(m)

		default:
			return errors.Errorf("unrecognized method '%s'", method)
		}
		return nil
	})
	return changed
}

func decodeAnnounce(params object, log *log2.Log) (AnnounceMsg, error) {
	m := AnnounceMsg{}
	var err error
	if m.Name, err = params.str("name"); err != nil {
		return m, err
	}
	if m.ID, err = params.number("id"); err != nil {
		return m, err
	}
	if m.Type, err = params.str("type"); err != nil {
		return m, err
	}
	if raw, ok := params["pubuid"]; ok {
		pubuid, err := numberValue(raw, "pubuid value must be a number")
		if err != nil {
			return m, err
		}
		m.PubUID = &pubuid
	}
	raw, ok := params["properties"]
	if !ok {
		return m, errors.New("no properties key")
	}
	if m.Properties, ok = asProperties(raw); !ok {
		log.Warningf("%s: properties is not an object", m.Name)
		m.Properties = nt.Properties{}
	}
	return m, nil
}
