package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortPacket marks any read past the end of a packet.
var ErrShortPacket = errors.New("short packet")

// Reader consumes one incoming packet sequentially. The cursor starts at
// offset 1, just past the tag byte. The first failed read poisons the reader;
// later reads return zero values.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader wraps a raw packet, positioned after the tag byte.
func NewReader(packet []byte) *Reader {
	r := &Reader{data: packet, pos: 1}
	if len(packet) == 0 {
		r.err = fmt.Errorf("%w: empty packet", ErrShortPacket)
	}
	return r
}

// Tag returns the leading type byte, or 0 for an empty packet.
func (r *Reader) Tag() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortPacket, n, r.pos, len(r.data)-r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Byte reads one unsigned byte.
func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Int16 reads a signed 16-bit little-endian integer.
func (r *Reader) Int16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(b))
}

// Int32 reads a signed 32-bit little-endian integer.
func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// Float32 reads a 32-bit IEEE float, little-endian.
func (r *Reader) Float32() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// String reads a 2-byte length prefix and a Windows-1252 payload.
func (r *Reader) String() string {
	length := r.take(2)
	if length == nil {
		return ""
	}
	payload := r.take(int(binary.LittleEndian.Uint16(length)))
	if payload == nil {
		return ""
	}
	decoded, err := legacyDecoder.Bytes(payload)
	if err != nil {
		r.err = fmt.Errorf("decode string: %w", err)
		return ""
	}
	return string(decoded)
}

// UnicodeString reads a 2-byte byte-length prefix and a UTF-16LE payload.
func (r *Reader) UnicodeString() string {
	length := r.take(2)
	if length == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(length))
	if n%2 != 0 {
		r.err = fmt.Errorf("%w: odd wide string length %d", ErrShortPacket, n)
		return ""
	}
	payload := r.take(n)
	if payload == nil {
		return ""
	}
	decoded, err := wideDecoder.Bytes(payload)
	if err != nil {
		r.err = fmt.Errorf("decode wide string: %w", err)
		return ""
	}
	return string(decoded)
}

// Remaining reports how many unread bytes follow the cursor.
func (r *Reader) Remaining() int {
	if r.pos > len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Err exposes the first read failure, if any.
func (r *Reader) Err() error {
	return r.err
}
