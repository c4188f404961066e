// Package wire holds the binary layout of every message in both directions.
//
// All integers are little-endian and fixed width. Strings are a u16 byte
// count followed by the raw bytes. Each message starts with a one byte kind.
package wire

import (
	"encoding/binary"
	"fmt"

	"pkt.systems/simlink/schema"
)

// Encoder receives encoded primitives. The outbound framer implements it;
// Buffer is an in-memory implementation.
type Encoder interface {
	WriteU8(v uint8) error
	WriteU16(v uint16) error
	WriteU32(v uint32) error
	WriteBytes(p []byte) error
}

// Buffer is an unbounded in-memory Encoder.
type Buffer struct {
	buf []byte
}

// NewBuffer returns a buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

func (b *Buffer) WriteU8(v uint8) error {
	b.buf = append(b.buf, v)
	return nil
}

func (b *Buffer) WriteU16(v uint16) error {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	return nil
}

func (b *Buffer) WriteU32(v uint32) error {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return nil
}

func (b *Buffer) WriteBytes(p []byte) error {
	b.buf = append(b.buf, p...)
	return nil
}

// Bytes returns the encoded bytes. The slice is valid until the next write or Reset.
func (b *Buffer) Bytes() []byte { return b.buf }

func (b *Buffer) Len() int { return len(b.buf) }

func (b *Buffer) Reset() { b.buf = b.buf[:0] }

func checkString(s string) error {
	if len(s) > schema.MaxWireString {
		return fmt.Errorf("%w: %d bytes", schema.ErrStringTooLong, len(s))
	}
	return nil
}

func checkStrings(list []string) error {
	if len(list) > 0xffff {
		return fmt.Errorf("%w: list of %d", schema.ErrStringTooLong, len(list))
	}
	for _, s := range list {
		if err := checkString(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteString writes a u16 length prefix and the raw bytes of s.
func WriteString(e Encoder, s string) error {
	if err := checkString(s); err != nil {
		return err
	}
	if err := e.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return e.WriteBytes([]byte(s))
}

// WriteStrings writes a u16 count followed by each string.
func WriteStrings(e Encoder, list []string) error {
	if err := checkStrings(list); err != nil {
		return err
	}
	if err := e.WriteU16(uint16(len(list))); err != nil {
		return err
	}
	for _, s := range list {
		if err := WriteString(e, s); err != nil {
			return err
		}
	}
	return nil
}

// encoding helpers that stop at the first error
type seq struct {
	e   Encoder
	err error
}

func (s *seq) u8(v uint8) {
	if s.err == nil {
		s.err = s.e.WriteU8(v)
	}
}

func (s *seq) u16(v uint16) {
	if s.err == nil {
		s.err = s.e.WriteU16(v)
	}
}

func (s *seq) u32(v uint32) {
	if s.err == nil {
		s.err = s.e.WriteU32(v)
	}
}

func (s *seq) bytes(p []byte) {
	if s.err == nil {
		s.err = s.e.WriteBytes(p)
	}
}

func (s *seq) str(v string) {
	if s.err == nil {
		s.err = WriteString(s.e, v)
	}
}

func (s *seq) strs(v []string) {
	if s.err == nil {
		s.err = WriteStrings(s.e, v)
	}
}

func kindOnly(e Encoder, kind uint8) error {
	return e.WriteU8(kind)
}

func kindString(e Encoder, kind uint8, v string) error {
	if err := checkString(v); err != nil {
		return err
	}
	s := seq{e: e}
	s.u8(kind)
	s.str(v)
	return s.err
}
