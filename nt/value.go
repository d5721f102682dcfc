package nt

import (
	"bytes"
	"fmt"
	"strings"
)

// Value is immutable typed payload with two timestamps, microseconds:
// - Time is local monotonic clock, 0 = unset
// - ServerTime is remote clock at publish, 0 = value does not depend on clock sync
//
// Values made with non-zero local time get ServerTime=1 until a real one is known.
// Array accessors return internal slices, callers must not modify them.
type Value struct {
	typ        Type
	payload    interface{}
	time       int64
	serverTime int64
}

func makeValue(typ Type, payload interface{}, time int64) Value {
	v := Value{typ: typ, payload: payload, time: time}
	if time != 0 {
		v.serverTime = 1
	}
	return v
}

func MakeBoolean(b bool, time int64) Value   { return makeValue(TypeBoolean, b, time) }
func MakeDouble(f float64, time int64) Value { return makeValue(TypeDouble, f, time) }
func MakeInteger(i int64, time int64) Value  { return makeValue(TypeInteger, i, time) }
func MakeFloat(f float32, time int64) Value  { return makeValue(TypeFloat, f, time) }
func MakeString(s string, time int64) Value  { return makeValue(TypeString, s, time) }
func MakeRaw(b []byte, time int64) Value     { return makeValue(TypeRaw, copySlice(b), time) }
func MakeBooleanArray(a []bool, time int64) Value {
	return makeValue(TypeBooleanArray, copySlice(a), time)
}
func MakeDoubleArray(a []float64, time int64) Value {
	return makeValue(TypeDoubleArray, copySlice(a), time)
}
func MakeIntegerArray(a []int64, time int64) Value {
	return makeValue(TypeIntegerArray, copySlice(a), time)
}
func MakeFloatArray(a []float32, time int64) Value {
	return makeValue(TypeFloatArray, copySlice(a), time)
}
func MakeStringArray(a []string, time int64) Value {
	return makeValue(TypeStringArray, copySlice(a), time)
}

// result is never nil, so decoded and constructed empty arrays compare equal
func copySlice[T any](src []T) []T {
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}

func (v Value) Type() Type        { return v.typ }
func (v Value) IsValid() bool     { return v.typ != TypeUnassigned }
func (v Value) Time() int64       { return v.time }
func (v Value) ServerTime() int64 { return v.serverTime }

// WithTime returns copy with both timestamps replaced.
func (v Value) WithTime(time, serverTime int64) Value {
	v.time = time
	v.serverTime = serverTime
	return v
}

func (v Value) Boolean() bool {
	b, _ := v.payload.(bool)
	return b
}
func (v Value) Double() float64 {
	f, _ := v.payload.(float64)
	return f
}
func (v Value) Integer() int64 {
	i, _ := v.payload.(int64)
	return i
}
func (v Value) Float() float32 {
	f, _ := v.payload.(float32)
	return f
}
func (v Value) Str() string {
	s, _ := v.payload.(string)
	return s
}
func (v Value) Raw() []byte {
	b, _ := v.payload.([]byte)
	return b
}
func (v Value) BooleanArray() []bool {
	a, _ := v.payload.([]bool)
	return a
}
func (v Value) DoubleArray() []float64 {
	a, _ := v.payload.([]float64)
	return a
}
func (v Value) IntegerArray() []int64 {
	a, _ := v.payload.([]int64)
	return a
}
func (v Value) FloatArray() []float32 {
	a, _ := v.payload.([]float32)
	return a
}
func (v Value) StringArray() []string {
	a, _ := v.payload.([]string)
	return a
}

// SameData compares type and payload, ignoring timestamps.
func (v Value) SameData(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUnassigned:
		return true
	case TypeBoolean, TypeDouble, TypeInteger, TypeFloat, TypeString:
		return v.payload == other.payload
	case TypeRaw:
		return bytes.Equal(v.Raw(), other.Raw())
	case TypeBooleanArray:
		return sliceEqual(v.BooleanArray(), other.BooleanArray())
	case TypeDoubleArray:
		return sliceEqual(v.DoubleArray(), other.DoubleArray())
	case TypeIntegerArray:
		return sliceEqual(v.IntegerArray(), other.IntegerArray())
	case TypeFloatArray:
		return sliceEqual(v.FloatArray(), other.FloatArray())
	case TypeStringArray:
		return sliceEqual(v.StringArray(), other.StringArray())
	}
	return false
}

func sliceEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	b := strings.Builder{}
	b.WriteString("(")
	b.WriteString(v.typ.String())
	switch v.typ {
	case TypeUnassigned:
	case TypeString:
		fmt.Fprintf(&b, " %q", v.Str())
	case TypeRaw:
		fmt.Fprintf(&b, " (%d)%x", len(v.Raw()), v.Raw())
	default:
		fmt.Fprintf(&b, " %v", v.payload)
	}
	fmt.Fprintf(&b, " time=%d server_time=%d)", v.time, v.serverTime)
	return b.String()
}
