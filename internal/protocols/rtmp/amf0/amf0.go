// Package amf0 contains an AMF0 marshaler and unmarshaler.
package amf0

import (
	"errors"
	"fmt"
	"math"
)

const (
	markerNumber      = 0x00
	markerBoolean     = 0x01
	markerString      = 0x02
	markerObject      = 0x03
	markerNull        = 0x05
	markerECMAArray   = 0x08
	markerObjectEnd   = 0x09
	markerStrictArray = 0x0a
	markerLongString  = 0x0c
)

// errors.
var (
	ErrBufferTooShort = errors.New("buffer is too short")
)

// ObjectEntry is an entry of Object.
type ObjectEntry struct {
	Key   string
	Value interface{}
}

// Object is an AMF0 object.
type Object []ObjectEntry

// Get returns the value corresponding to the given key.
func (o Object) Get(key string) (interface{}, bool) {
	for _, item := range o {
		if item.Key == key {
			return item.Value, true
		}
	}
	return nil, false
}

// GetString returns a string value corresponding to the given key.
func (o Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}

	v2, ok := v.(string)
	if !ok {
		return "", false
	}

	return v2, true
}

// GetFloat64 returns a float64 value corresponding to the given key.
func (o Object) GetFloat64(key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}

	v2, ok := v.(float64)
	if !ok {
		return 0, false
	}

	return v2, true
}

// ECMAArray is an AMF0 ECMA array.
type ECMAArray Object

// StrictArray is an AMF0 strict array.
type StrictArray []interface{}

// Data is a sequence of AMF0 values.
type Data []interface{}

// Unmarshal decodes a sequence of values.
func Unmarshal(buf []byte) (Data, error) {
	var out Data

	for len(buf) > 0 {
		var item interface{}
		var err error

		item, buf, err = unmarshalValue(buf)
		if err != nil {
			return nil, err
		}

		out = append(out, item)
	}

	return out, nil
}

func unmarshalObjectEntries(buf []byte) ([]ObjectEntry, []byte, error) {
	var entries []ObjectEntry

	for {
		if len(buf) < 2 {
			return nil, nil, ErrBufferTooShort
		}

		keyLen := int(buf[0])<<8 | int(buf[1])
		if len(buf) < 2+keyLen {
			return nil, nil, ErrBufferTooShort
		}

		key := string(buf[2 : 2+keyLen])
		buf = buf[2+keyLen:]

		if keyLen == 0 {
			if len(buf) < 1 || buf[0] != markerObjectEnd {
				return nil, nil, fmt.Errorf("object end not found")
			}
			return entries, buf[1:], nil
		}

		var value interface{}
		var err error

		value, buf, err = unmarshalValue(buf)
		if err != nil {
			return nil, nil, err
		}

		entries = append(entries, ObjectEntry{Key: key, Value: value})
	}
}

func unmarshalValue(buf []byte) (interface{}, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, ErrBufferTooShort
	}

	marker := buf[0]
	buf = buf[1:]

	switch marker {
	case markerNumber:
		if len(buf) < 8 {
			return nil, nil, ErrBufferTooShort
		}

		v := uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
			uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])
		return math.Float64frombits(v), buf[8:], nil

	case markerBoolean:
		if len(buf) < 1 {
			return nil, nil, ErrBufferTooShort
		}
		return buf[0] != 0, buf[1:], nil

	case markerString:
		if len(buf) < 2 {
			return nil, nil, ErrBufferTooShort
		}

		le := int(buf[0])<<8 | int(buf[1])
		if len(buf) < 2+le {
			return nil, nil, ErrBufferTooShort
		}
		return string(buf[2 : 2+le]), buf[2+le:], nil

	case markerLongString:
		if len(buf) < 4 {
			return nil, nil, ErrBufferTooShort
		}

		le := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
		if len(buf) < 4+le {
			return nil, nil, ErrBufferTooShort
		}
		return string(buf[4 : 4+le]), buf[4+le:], nil

	case markerObject:
		entries, buf2, err := unmarshalObjectEntries(buf)
		if err != nil {
			return nil, nil, err
		}
		return Object(entries), buf2, nil

	case markerECMAArray:
		if len(buf) < 4 {
			return nil, nil, ErrBufferTooShort
		}

		entries, buf2, err := unmarshalObjectEntries(buf[4:])
		if err != nil {
			return nil, nil, err
		}
		return ECMAArray(entries), buf2, nil

	case markerStrictArray:
		if len(buf) < 4 {
			return nil, nil, ErrBufferTooShort
		}

		count := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
		buf = buf[4:]

		arr := make(StrictArray, 0, count)
		for i := 0; i < count; i++ {
			var item interface{}
			var err error

			item, buf, err = unmarshalValue(buf)
			if err != nil {
				return nil, nil, err
			}
			arr = append(arr, item)
		}
		return arr, buf, nil

	case markerNull:
		return nil, buf, nil

	default:
		return nil, nil, fmt.Errorf("unsupported AMF0 marker 0x%02x", marker)
	}
}

// Marshal encodes a sequence of values.
func (d Data) Marshal() ([]byte, error) {
	var out []byte

	for _, item := range d {
		buf, err := marshalValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}

	return out, nil
}

func marshalObjectEntries(out []byte, entries []ObjectEntry) ([]byte, error) {
	for _, entry := range entries {
		out = append(out, byte(len(entry.Key)>>8), byte(len(entry.Key)))
		out = append(out, entry.Key...)

		buf, err := marshalValue(entry.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}

	return append(out, 0, 0, markerObjectEnd), nil
}

func marshalValue(item interface{}) ([]byte, error) {
	switch v := item.(type) {
	case float64:
		b := math.Float64bits(v)
		return []byte{
			markerNumber,
			byte(b >> 56), byte(b >> 48), byte(b >> 40), byte(b >> 32),
			byte(b >> 24), byte(b >> 16), byte(b >> 8), byte(b),
		}, nil

	case bool:
		if v {
			return []byte{markerBoolean, 1}, nil
		}
		return []byte{markerBoolean, 0}, nil

	case string:
		if len(v) > 65535 {
			out := []byte{markerLongString, byte(len(v) >> 24), byte(len(v) >> 16), byte(len(v) >> 8), byte(len(v))}
			return append(out, v...), nil
		}

		out := []byte{markerString, byte(len(v) >> 8), byte(len(v))}
		return append(out, v...), nil

	case Object:
		return marshalObjectEntries([]byte{markerObject}, v)

	case ECMAArray:
		out := []byte{markerECMAArray,
			byte(len(v) >> 24), byte(len(v) >> 16), byte(len(v) >> 8), byte(len(v))}
		return marshalObjectEntries(out, v)

	case StrictArray:
		out := []byte{markerStrictArray,
			byte(len(v) >> 24), byte(len(v) >> 16), byte(len(v) >> 8), byte(len(v))}
		for _, item2 := range v {
			buf, err := marshalValue(item2)
			if err != nil {
				return nil, err
			}
			out = append(out, buf...)
		}
		return out, nil

	case nil:
		return []byte{markerNull}, nil

	default:
		return nil, fmt.Errorf("unsupported data type: %T", item)
	}
}
