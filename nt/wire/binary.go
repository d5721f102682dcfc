package wire

import (
	"bytes"

	"github.com/juju/errors"
	"github.com/temoto/ntsync/nt"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// RTTID is reserved tuple id for round trip time probes, never a topic.
const RTTID int64 = -1

// Tag is value type code in binary tuple.
type Tag uint8

const (
	TagBoolean      Tag = 0
	TagDouble       Tag = 1
	TagInteger      Tag = 2
	TagFloat        Tag = 3
	TagString       Tag = 4
	TagRaw          Tag = 5
	TagBooleanArray Tag = 16
	TagDoubleArray  Tag = 17
	TagIntegerArray Tag = 18
	TagFloatArray   Tag = 19
	TagStringArray  Tag = 20
)

// Array element count is checked against remaining bytes and preallocation is capped.
const maxPrealloc = 1000

func TagOf(t nt.Type) (Tag, error) {
	switch t {
	case nt.TypeBoolean:
		return TagBoolean, nil
	case nt.TypeDouble:
		return TagDouble, nil
	case nt.TypeInteger:
		return TagInteger, nil
	case nt.TypeFloat:
		return TagFloat, nil
	case nt.TypeString:
		return TagString, nil
	case nt.TypeRaw:
		return TagRaw, nil
	case nt.TypeBooleanArray:
		return TagBooleanArray, nil
	case nt.TypeDoubleArray:
		return TagDoubleArray, nil
	case nt.TypeIntegerArray:
		return TagIntegerArray, nil
	case nt.TypeFloatArray:
		return TagFloatArray, nil
	case nt.TypeStringArray:
		return TagStringArray, nil
	case nt.TypeUnassigned:
	}
	return 0, errors.NotValidf("value type %s", t)
}

// BinaryEncoder packs value tuples back to back into one binary frame.
type BinaryEncoder struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
	n   int
}

func NewBinaryEncoder() *BinaryEncoder {
	self := &BinaryEncoder{}
	self.enc = msgpack.NewEncoder(&self.buf)
	return self
}

// Add encodes [id, time, tag, payload]. time is written as given.
// Frame is unchanged on error.
func (self *BinaryEncoder) Add(id int64, time int64, v nt.Value) error {
	tag, err := TagOf(v.Type())
	if err != nil {
		return errors.Annotatef(err, "binary encode id=%d", id)
	}
	mark := self.buf.Len()
	if err = self.add(id, time, tag, v); err != nil {
		self.buf.Truncate(mark)
		return errors.Annotatef(err, "binary encode id=%d", id)
	}
	self.n++
	return nil
}

func (self *BinaryEncoder) add(id int64, time int64, tag Tag, v nt.Value) error {
	e := self.enc
	if err := e.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := e.EncodeInt(id); err != nil {
		return err
	}
	if err := e.EncodeInt(time); err != nil {
		return err
	}
	if err := e.EncodeUint(uint64(tag)); err != nil {
		return err
	}
	switch tag {
	case TagBoolean:
		return e.EncodeBool(v.Boolean())
	case TagDouble:
		return e.EncodeFloat64(v.Double())
	case TagInteger:
		return e.EncodeInt(v.Integer())
	case TagFloat:
		return e.EncodeFloat32(v.Float())
	case TagString:
		return e.EncodeString(v.Str())
	case TagRaw:
		return e.EncodeBytes(v.Raw())
	case TagBooleanArray:
		a := v.BooleanArray()
		if err := e.EncodeArrayLen(len(a)); err != nil {
			return err
		}
		for _, x := range a {
			if err := e.EncodeBool(x); err != nil {
				return err
			}
		}
	case TagDoubleArray:
		a := v.DoubleArray()
		if err := e.EncodeArrayLen(len(a)); err != nil {
			return err
		}
		for _, x := range a {
			if err := e.EncodeFloat64(x); err != nil {
				return err
			}
		}
	case TagIntegerArray:
		a := v.IntegerArray()
		if err := e.EncodeArrayLen(len(a)); err != nil {
			return err
		}
		for _, x := range a {
			if err := e.EncodeInt(x); err != nil {
				return err
			}
		}
	case TagFloatArray:
		a := v.FloatArray()
		if err := e.EncodeArrayLen(len(a)); err != nil {
			return err
		}
		for _, x := range a {
			if err := e.EncodeFloat32(x); err != nil {
				return err
			}
		}
	case TagStringArray:
		a := v.StringArray()
		if err := e.EncodeArrayLen(len(a)); err != nil {
			return err
		}
		for _, x := range a {
			if err := e.EncodeString(x); err != nil {
				return err
			}
		}
	default:
		return errors.NotValidf("tag %d", tag)
	}
	return nil
}

// Len is count of tuples added since Reset.
func (self *BinaryEncoder) Len() int { return self.n }

// Bytes returns copy of frame, nil when empty.
func (self *BinaryEncoder) Bytes() []byte {
	if self.n == 0 {
		return nil
	}
	b := make([]byte, self.buf.Len())
	copy(b, self.buf.Bytes())
	return b
}

func (self *BinaryEncoder) Reset() {
	self.buf.Reset()
	self.n = 0
}

// EncodeBinary returns single tuple frame.
func EncodeBinary(id int64, time int64, v nt.Value) ([]byte, error) {
	e := NewBinaryEncoder()
	if err := e.Add(id, time, v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// SendTime converts local time to wire time with known offset.
// Unset stays 0, valid time never becomes 0.
func SendTime(localTime, offset int64) int64 {
	if localTime == 0 {
		return 0
	}
	t := localTime + offset
	if t == 0 {
		t = 1
	}
	return t
}

// ReceiveTime is inverse of SendTime for decoded tuples.
func ReceiveTime(wireTime, localOffset int64) int64 {
	if wireTime == 0 {
		return 0
	}
	return wireTime + localOffset
}

type binaryDecoder struct {
	r   *bytes.Reader
	dec *msgpack.Decoder
}

func newBinaryDecoder(data []byte) *binaryDecoder {
	r := bytes.NewReader(data)
	// bytes.Reader is io.ByteScanner, msgpack reads it directly so r.Len() is exact remaining
	return &binaryDecoder{r: r, dec: msgpack.NewDecoder(r)}
}

func (self *binaryDecoder) arrayLen() (int, error) {
	n, err := self.dec.DecodeArrayLen()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("expected array, got nil")
	}
	if n > self.r.Len() {
		return 0, errors.Errorf("array length=%d exceeds remaining=%d", n, self.r.Len())
	}
	return n, nil
}

func (self *binaryDecoder) bytesOf(str bool) ([]byte, error) {
	c, err := self.dec.PeekCode()
	if err != nil {
		return nil, err
	}
	isStr := (c >= msgpcode.FixedStrLow && c <= msgpcode.FixedStrHigh) ||
		c == msgpcode.Str8 || c == msgpcode.Str16 || c == msgpcode.Str32
	isBin := c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32
	if (str && !isStr) || (!str && !isBin) {
		return nil, errors.Errorf("unexpected code=%#02x", c)
	}
	n, err := self.dec.DecodeBytesLen()
	if err != nil {
		return nil, err
	}
	if n > self.r.Len() {
		return nil, errors.Errorf("length=%d exceeds remaining=%d", n, self.r.Len())
	}
	b := make([]byte, n)
	if err = self.dec.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Nil is never a valid scalar, msgpack would decode it as zero.
func (self *binaryDecoder) notNil() error {
	c, err := self.dec.PeekCode()
	if err != nil {
		return err
	}
	if c == msgpcode.Nil {
		return errors.New("unexpected nil")
	}
	return nil
}

func (self *binaryDecoder) integer() (int64, error) {
	if err := self.notNil(); err != nil {
		return 0, err
	}
	return self.dec.DecodeInt64()
}

func (self *binaryDecoder) number() (float64, error) {
	if err := self.notNil(); err != nil {
		return 0, err
	}
	return self.dec.DecodeFloat64()
}

func (self *binaryDecoder) boolean() (bool, error) {
	if err := self.notNil(); err != nil {
		return false, err
	}
	return self.dec.DecodeBool()
}

func (self *binaryDecoder) tuple(localOffset int64) (int64, nt.Value, error) {
	n, err := self.arrayLen()
	if err != nil {
		return 0, nt.Value{}, err
	}
	if n != 4 {
		return 0, nt.Value{}, errors.Errorf("expected array of 4, got %d", n)
	}
	id, err := self.integer()
	if err != nil {
		return 0, nt.Value{}, errors.Annotate(err, "id")
	}
	time, err := self.integer()
	if err != nil {
		return id, nt.Value{}, errors.Annotate(err, "time")
	}
	tag, err := self.integer()
	if err != nil {
		return id, nt.Value{}, errors.Annotate(err, "type")
	}
	v, err := self.payload(Tag(tag), tag)
	if err != nil {
		return id, nt.Value{}, err
	}
	return id, v.WithTime(ReceiveTime(time, localOffset), time), nil
}

func (self *binaryDecoder) payload(tag Tag, raw int64) (nt.Value, error) {
	if raw < 0 || raw > 0xff {
		return nt.Value{}, errors.Errorf("unrecognized type %d", raw)
	}
	switch tag {
	case TagBoolean:
		b, err := self.boolean()
		return nt.MakeBoolean(b, 1), err
	case TagDouble:
		f, err := self.number()
		return nt.MakeDouble(f, 1), err
	case TagInteger:
		i, err := self.integer()
		return nt.MakeInteger(i, 1), err
	case TagFloat: // any msgpack number, like double
		f, err := self.number()
		return nt.MakeFloat(float32(f), 1), err
	case TagString:
		b, err := self.bytesOf(true)
		return nt.MakeString(string(b), 1), err
	case TagRaw:
		b, err := self.bytesOf(false)
		return nt.MakeRaw(b, 1), err
	case TagBooleanArray:
		n, err := self.arrayLen()
		if err != nil {
			return nt.Value{}, err
		}
		a := make([]bool, 0, capped(n))
		for i := 0; i < n; i++ {
			x, err := self.boolean()
			if err != nil {
				return nt.Value{}, errors.Annotatef(err, "element %d", i)
			}
			a = append(a, x)
		}
		return nt.MakeBooleanArray(a, 1), nil
	case TagDoubleArray:
		n, err := self.arrayLen()
		if err != nil {
			return nt.Value{}, err
		}
		a := make([]float64, 0, capped(n))
		for i := 0; i < n; i++ {
			x, err := self.number()
			if err != nil {
				return nt.Value{}, errors.Annotatef(err, "element %d", i)
			}
			a = append(a, x)
		}
		return nt.MakeDoubleArray(a, 1), nil
	case TagIntegerArray:
		n, err := self.arrayLen()
		if err != nil {
			return nt.Value{}, err
		}
		a := make([]int64, 0, capped(n))
		for i := 0; i < n; i++ {
			x, err := self.integer()
			if err != nil {
				return nt.Value{}, errors.Annotatef(err, "element %d", i)
			}
			a = append(a, x)
		}
		return nt.MakeIntegerArray(a, 1), nil
	case TagFloatArray:
		n, err := self.arrayLen()
		if err != nil {
			return nt.Value{}, err
		}
		a := make([]float32, 0, capped(n))
		for i := 0; i < n; i++ {
			x, err := self.number()
			if err != nil {
				return nt.Value{}, errors.Annotatef(err, "element %d", i)
			}
			a = append(a, float32(x))
		}
		return nt.MakeFloatArray(a, 1), nil
	case TagStringArray:
		n, err := self.arrayLen()
		if err != nil {
			return nt.Value{}, err
		}
		a := make([]string, 0, capped(n))
		for i := 0; i < n; i++ {
			x, err := self.bytesOf(true)
			if err != nil {
				return nt.Value{}, errors.Annotatef(err, "element %d", i)
			}
			a = append(a, string(x))
		}
		return nt.MakeStringArray(a, 1), nil
	}
	return nt.Value{}, errors.Errorf("unrecognized type %d", raw)
}

func capped(n int) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

// DecodeBinary decodes first tuple of data and returns the rest.
// Decoded value has ServerTime = wire time, Time = wire time + localOffset (0 stays 0).
func DecodeBinary(data []byte, localOffset int64) (id int64, v nt.Value, rest []byte, err error) {
	d := newBinaryDecoder(data)
	id, v, err = d.tuple(localOffset)
	if err != nil {
		return id, nt.Value{}, data, errors.Annotate(err, "binary decode")
	}
	return id, v, data[len(data)-d.r.Len():], nil
}

// DecodeBinaryFrame calls fun for each tuple in data until exhausted or first error.
// Tuples decoded before error are already delivered. Returns count of delivered tuples.
func DecodeBinaryFrame(data []byte, localOffset int64, fun func(id int64, v nt.Value)) (int, error) {
	d := newBinaryDecoder(data)
	n := 0
	for d.r.Len() > 0 {
		id, v, err := d.tuple(localOffset)
		if err != nil {
			return n, errors.Annotatef(err, "binary decode tuple=%d", n)
		}
		fun(id, v)
		n++
	}
	return n, nil
}
