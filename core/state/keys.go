package state

import (
	"encoding/binary"
	"fmt"
)

// Key builds a composite key under namespace. Numeric segments are encoded
// big-endian and strings carry a uvarint length prefix, so keys sharing a
// leading set of segments sort together and numeric segments sort ascending.
// The length prefix keeps the encoding unambiguous for strings of any length.
func Key(namespace string, segments ...any) []byte {
	out := make([]byte, 0, len(namespace)+1+8*len(segments))
	out = append(out, namespace...)
	out = append(out, '/')
	for _, seg := range segments {
		out = appendSegment(out, seg)
	}
	return out
}

func appendSegment(out []byte, seg any) []byte {
	switch v := seg.(type) {
	case uint64:
		return binary.BigEndian.AppendUint64(out, v)
	case string:
		out = binary.AppendUvarint(out, uint64(len(v)))
		return append(out, v...)
	case []byte:
		out = binary.AppendUvarint(out, uint64(len(v)))
		return append(out, v...)
	default:
		panic(fmt.Sprintf("state: unsupported key segment %T", seg))
	}
}

// DecodeUint64Suffix returns the trailing big-endian uint64 of key.
func DecodeUint64Suffix(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("state: key too short for uint64 suffix: %x", key)
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

// DecodeStringSuffix returns the trailing length-prefixed string segment of a
// key whose layout is prefix followed by exactly one string segment.
func DecodeStringSuffix(prefix, key []byte) (string, error) {
	if len(key) < len(prefix) {
		return "", fmt.Errorf("state: malformed key %x", key)
	}
	rest := key[len(prefix):]
	n, size := binary.Uvarint(rest)
	if size <= 0 || uint64(len(rest)-size) != n {
		return "", fmt.Errorf("state: malformed key %x", key)
	}
	return string(rest[size:]), nil
}
