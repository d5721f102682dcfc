package nt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/ntsync/nt"
)

func TestValueTimes(t *testing.T) {
	t.Parallel()

	v := nt.MakeDouble(12.3, 0)
	assert.Equal(t, nt.TypeDouble, v.Type())
	assert.Equal(t, 12.3, v.Double())
	assert.Equal(t, int64(0), v.Time())
	assert.Equal(t, int64(0), v.ServerTime())

	v = nt.MakeInteger(-5, 1000)
	assert.Equal(t, int64(-5), v.Integer())
	assert.Equal(t, int64(1000), v.Time())
	assert.Equal(t, int64(1), v.ServerTime())

	w := v.WithTime(2000, 777)
	assert.Equal(t, int64(2000), w.Time())
	assert.Equal(t, int64(777), w.ServerTime())
	assert.Equal(t, int64(1000), v.Time(), "receiver unchanged")
}

func TestValueCopiesInput(t *testing.T) {
	t.Parallel()

	src := []int64{1, 2, 3}
	v := nt.MakeIntegerArray(src, 0)
	src[0] = 99
	assert.Equal(t, []int64{1, 2, 3}, v.IntegerArray())

	raw := []byte{0xde, 0xad}
	r := nt.MakeRaw(raw, 0)
	raw[1] = 0
	assert.Equal(t, []byte{0xde, 0xad}, r.Raw())

	empty := nt.MakeStringArray(nil, 0)
	assert.NotNil(t, empty.StringArray())
	assert.Len(t, empty.StringArray(), 0)
}

func TestValueAccessorMismatch(t *testing.T) {
	t.Parallel()

	v := nt.MakeString("hello", 0)
	assert.Equal(t, "hello", v.Str())
	assert.Equal(t, 0.0, v.Double())
	assert.False(t, v.Boolean())
	assert.Nil(t, v.DoubleArray())
	assert.False(t, nt.Value{}.IsValid())
	assert.True(t, v.IsValid())
}

func TestValueSameData(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		a, b   nt.Value
		expect bool
	}{
		{"bool", nt.MakeBoolean(true, 1), nt.MakeBoolean(true, 2), true},
		{"float", nt.MakeFloat(1.5, 0), nt.MakeFloat(1.5, 0), true},
		{"type", nt.MakeFloat(1.5, 0), nt.MakeDouble(1.5, 0), false},
		{"raw", nt.MakeRaw([]byte{1}, 0), nt.MakeRaw([]byte{1}, 5), true},
		{"double[]", nt.MakeDoubleArray([]float64{1, 2}, 0), nt.MakeDoubleArray([]float64{1, 3}, 0), false},
		{"string[]", nt.MakeStringArray([]string{"a"}, 0), nt.MakeStringArray([]string{"a"}, 0), true},
		{"bool[]/len", nt.MakeBooleanArray([]bool{true}, 0), nt.MakeBooleanArray(nil, 0), false},
		{"unassigned", nt.Value{}, nt.Value{}, true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expect, c.a.SameData(c.b))
		})
	}
}

func TestValueString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `(string "x" time=0 server_time=0)`, nt.MakeString("x", 0).String())
	assert.Equal(t, `(raw (2)0102 time=3 server_time=1)`, nt.MakeRaw([]byte{1, 2}, 3).String())
	assert.Equal(t, `(int[] [1 2] time=0 server_time=0)`, nt.MakeIntegerArray([]int64{1, 2}, 0).String())
}

func TestTypeFromString(t *testing.T) {
	t.Parallel()

	for _, typ := range []nt.Type{
		nt.TypeBoolean, nt.TypeDouble, nt.TypeInteger, nt.TypeFloat, nt.TypeString, nt.TypeRaw,
		nt.TypeBooleanArray, nt.TypeDoubleArray, nt.TypeIntegerArray, nt.TypeFloatArray, nt.TypeStringArray,
	} {
		assert.Equal(t, typ, nt.TypeFromString(typ.String()), typ.String())
	}
	assert.Equal(t, nt.TypeString, nt.TypeFromString("json"))
	assert.Equal(t, nt.TypeRaw, nt.TypeFromString("struct:Pose2d"))
	assert.Equal(t, nt.TypeUnassigned, nt.TypeFromString(""))
	assert.True(t, nt.TypeFloatArray.IsArray())
	assert.False(t, nt.TypeRaw.IsArray())
	assert.Equal(t, "type(99)", nt.Type(99).String())
}
