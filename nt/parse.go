package nt

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// KnownType reports type strings with defined meaning.
// Unknown strings still map to TypeRaw, this is for catching typos in user input.
func KnownType(s string) bool {
	switch TypeFromString(s) {
	case TypeUnassigned:
		return false
	case TypeRaw:
		switch s {
		case TypeStrRaw, TypeStrRPC, TypeStrMsgpack, TypeStrProtobuf:
			return true
		}
		return strings.HasPrefix(s, "struct:") || strings.HasPrefix(s, "proto:")
	}
	return true
}

// ParseValue reads human input: numbers and booleans as strconv, raw as hex,
// arrays as comma separated elements. Empty input is empty array.
func ParseValue(typ Type, s string, time int64) (Value, error) {
	switch typ {
	case TypeBoolean:
		b, err := strconv.ParseBool(s)
		return MakeBoolean(b, time), errors.Annotate(err, "boolean")
	case TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		return MakeDouble(f, time), errors.Annotate(err, "double")
	case TypeInteger:
		i, err := strconv.ParseInt(s, 0, 64)
		return MakeInteger(i, time), errors.Annotate(err, "int")
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		return MakeFloat(float32(f), time), errors.Annotate(err, "float")
	case TypeString:
		return MakeString(s, time), nil
	case TypeRaw:
		b, err := hex.DecodeString(s)
		return MakeRaw(b, time), errors.Annotate(err, "raw hex")
	case TypeBooleanArray:
		a, err := parseList(s, strconv.ParseBool)
		return MakeBooleanArray(a, time), errors.Annotate(err, "boolean[]")
	case TypeDoubleArray:
		a, err := parseList(s, func(e string) (float64, error) { return strconv.ParseFloat(e, 64) })
		return MakeDoubleArray(a, time), errors.Annotate(err, "double[]")
	case TypeIntegerArray:
		a, err := parseList(s, func(e string) (int64, error) { return strconv.ParseInt(e, 0, 64) })
		return MakeIntegerArray(a, time), errors.Annotate(err, "int[]")
	case TypeFloatArray:
		a, err := parseList(s, func(e string) (float32, error) {
			f, err := strconv.ParseFloat(e, 32)
			return float32(f), err
		})
		return MakeFloatArray(a, time), errors.Annotate(err, "float[]")
	case TypeStringArray:
		a, _ := parseList(s, func(e string) (string, error) { return e, nil })
		return MakeStringArray(a, time), nil
	}
	return Value{}, errors.NotSupportedf("parse type=%s", typ)
}

func parseList[T any](s string, parse func(string) (T, error)) ([]T, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []T{}, nil
	}
	parts := strings.Split(s, ",")
	list := make([]T, len(parts))
	for i, p := range parts {
		x, err := parse(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Annotatef(err, "element %d", i)
		}
		list[i] = x
	}
	return list, nil
}
