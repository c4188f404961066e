package wire

import (
	"encoding/binary"

	"pkt.systems/simlink/internal/ringbuf"
)

// Decoding reads each field atomically: either all of its bytes are
// buffered and consumed, or ok is false and nothing is consumed.

func ReadU8(r *ringbuf.Ring) (uint8, bool) {
	return r.ReadByte()
}

func ReadU16(r *ringbuf.Ring) (uint16, bool) {
	var b [2]byte
	if !r.ReadFull(b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[:]), true
}

func ReadU32(r *ringbuf.Ring) (uint32, bool) {
	var b [4]byte
	if !r.ReadFull(b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}

func ReadI8(r *ringbuf.Ring) (int8, bool) {
	v, ok := ReadU8(r)
	return int8(v), ok
}

func ReadI16(r *ringbuf.Ring) (int16, bool) {
	v, ok := ReadU16(r)
	return int16(v), ok
}

func ReadI32(r *ringbuf.Ring) (int32, bool) {
	v, ok := ReadU32(r)
	return int32(v), ok
}

// ReadStringBody reads the n bytes of a string whose length prefix was
// already consumed.
func ReadStringBody(r *ringbuf.Ring, n int) (string, bool) {
	if n == 0 {
		return "", true
	}
	b, ok := r.Read(n)
	if !ok {
		return "", false
	}
	return string(b), true
}
