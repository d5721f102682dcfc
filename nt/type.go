package nt

import "fmt"

// Type is the closed set of value kinds.
type Type uint8

const (
	TypeUnassigned Type = iota
	TypeBoolean
	TypeDouble
	TypeInteger
	TypeFloat
	TypeString
	TypeRaw
	TypeBooleanArray
	TypeDoubleArray
	TypeIntegerArray
	TypeFloatArray
	TypeStringArray
)

// Type strings as they appear in publish and announce messages.
const (
	TypeStrBoolean      = "boolean"
	TypeStrDouble       = "double"
	TypeStrInteger      = "int"
	TypeStrFloat        = "float"
	TypeStrString       = "string"
	TypeStrJSON         = "json"
	TypeStrRaw          = "raw"
	TypeStrRPC          = "rpc"
	TypeStrMsgpack      = "msgpack"
	TypeStrProtobuf     = "protobuf"
	TypeStrBooleanArray = "boolean[]"
	TypeStrDoubleArray  = "double[]"
	TypeStrIntegerArray = "int[]"
	TypeStrFloatArray   = "float[]"
	TypeStrStringArray  = "string[]"
)

func (t Type) String() string {
	switch t {
	case TypeUnassigned:
		return "unassigned"
	case TypeBoolean:
		return TypeStrBoolean
	case TypeDouble:
		return TypeStrDouble
	case TypeInteger:
		return TypeStrInteger
	case TypeFloat:
		return TypeStrFloat
	case TypeString:
		return TypeStrString
	case TypeRaw:
		return TypeStrRaw
	case TypeBooleanArray:
		return TypeStrBooleanArray
	case TypeDoubleArray:
		return TypeStrDoubleArray
	case TypeIntegerArray:
		return TypeStrIntegerArray
	case TypeFloatArray:
		return TypeStrFloatArray
	case TypeStringArray:
		return TypeStrStringArray
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// IsArray reports homogeneous array kinds.
func (t Type) IsArray() bool { return t >= TypeBooleanArray && t <= TypeStringArray }

// TypeFromString maps a declared type string to value kind.
// "json" travels as string, any other unknown data type (struct:..., proto:...) as raw bytes.
// Empty string returns TypeUnassigned.
func TypeFromString(s string) Type {
	switch s {
	case "":
		return TypeUnassigned
	case TypeStrBoolean:
		return TypeBoolean
	case TypeStrDouble:
		return TypeDouble
	case TypeStrInteger:
		return TypeInteger
	case TypeStrFloat:
		return TypeFloat
	case TypeStrString, TypeStrJSON:
		return TypeString
	case TypeStrBooleanArray:
		return TypeBooleanArray
	case TypeStrDoubleArray:
		return TypeDoubleArray
	case TypeStrIntegerArray:
		return TypeIntegerArray
	case TypeStrFloatArray:
		return TypeFloatArray
	case TypeStrStringArray:
		return TypeStringArray
	}
	return TypeRaw
}

// TopicHandle is stable local identifier of a topic, assigned by local state. 0 is invalid.
type TopicHandle uint32
