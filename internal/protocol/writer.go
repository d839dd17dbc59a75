package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Legacy clients speak Windows-1252 for regular strings and UTF-16LE for
// account fields. Unmappable runes are replaced rather than failing the
// whole packet.
var (
	legacyEncoder = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	legacyDecoder = charmap.Windows1252.NewDecoder()
	wideEncoder   = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	wideDecoder   = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
)

// maxStringBytes bounds the encoded payload of any length-prefixed string.
const maxStringBytes = math.MaxUint16

// Writer accumulates one outgoing packet. Methods chain; the first failure
// sticks and Bytes reports it instead of a truncated packet.
type Writer struct {
	buf []byte
	err error
}

// NewWriter starts a packet with the given server tag byte.
func NewWriter(tag ServerPacket) *Writer {
	return &Writer{buf: []byte{byte(tag)}}
}

// Byte appends one unsigned byte. Values outside 0–255 poison the writer.
func (w *Writer) Byte(v int) *Writer {
	if w.err != nil {
		return w
	}
	if v < 0 || v > math.MaxUint8 {
		w.err = fmt.Errorf("byte value %d out of range", v)
		return w
	}
	w.buf = append(w.buf, byte(v))
	return w
}

// Int16 appends a signed 16-bit little-endian integer.
func (w *Writer) Int16(v int16) *Writer {
	if w.err != nil {
		return w
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
	return w
}

// Int32 appends a signed 32-bit little-endian integer.
func (w *Writer) Int32(v int32) *Writer {
	if w.err != nil {
		return w
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	return w
}

// Float32 appends a 32-bit IEEE float, little-endian.
func (w *Writer) Float32(v float32) *Writer {
	if w.err != nil {
		return w
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	return w
}

// String appends a 2-byte little-endian length followed by the Windows-1252
// encoded payload.
func (w *Writer) String(s string) *Writer {
	if w.err != nil {
		return w
	}
	encoded, err := legacyEncoder.Bytes([]byte(s))
	if err != nil {
		w.err = fmt.Errorf("encode string: %w", err)
		return w
	}
	if len(encoded) > maxStringBytes {
		w.err = fmt.Errorf("string payload %d bytes exceeds length prefix", len(encoded))
		return w
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(encoded)))
	w.buf = append(w.buf, encoded...)
	return w
}

// UnicodeString appends a 2-byte little-endian byte length followed by the
// UTF-16LE payload. Login and account fields use this wide form; nothing else
// does.
func (w *Writer) UnicodeString(s string) *Writer {
	if w.err != nil {
		return w
	}
	encoded, err := wideEncoder.Bytes([]byte(s))
	if err != nil {
		w.err = fmt.Errorf("encode wide string: %w", err)
		return w
	}
	if len(encoded) > maxStringBytes {
		w.err = fmt.Errorf("wide string payload %d bytes exceeds length prefix", len(encoded))
		return w
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(encoded)))
	w.buf = append(w.buf, encoded...)
	return w
}

// Raw appends bytes verbatim.
func (w *Writer) Raw(b []byte) *Writer {
	if w.err != nil {
		return w
	}
	w.buf = append(w.buf, b...)
	return w
}

// Bytes yields an immutable copy of the accumulated packet, or the first
// error recorded while building it.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out, nil
}

// Err exposes the sticky build error, if any.
func (w *Writer) Err() error {
	return w.err
}
