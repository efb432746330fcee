package pgwire

import (
	"encoding/binary"
	"io"
	"strconv"
	"unicode/utf8"
)

// scratch is a small write-only accumulator used by encoders. Every
// encode() method builds its payload once here and computes the wire
// length field from the bytes it actually produced, never from a
// separately tracked counter.
type scratch struct {
	buf []byte
}

func newScratch(capacity int) *scratch {
	return &scratch{buf: make([]byte, 0, capacity)}
}

func (s *scratch) writeByte(v byte) { s.buf = append(s.buf, v) }

func (s *scratch) writeU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *scratch) writeU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *scratch) writeBytes(v []byte) { s.buf = append(s.buf, v...) }

// writeCString appends s followed by its NUL terminator. Every string on
// the wire consumes at least one byte, even the empty string.
func (s *scratch) writeCString(v string) {
	s.buf = append(s.buf, v...)
	s.buf = append(s.buf, 0)
}

func (s *scratch) bytes() []byte { return s.buf }
func (s *scratch) len() int      { return len(s.buf) }

// cursor is a read-only view over an already-framed payload: the
// length-4 bytes the variant-dispatch decoder already pulled off the
// wire. Every per-kind decoder reads from a cursor, never directly from
// the transport, so a short or malformed payload can never desynchronise
// the stream for the next message.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) readU8() (byte, error) {
	if c.remaining() < 1 {
		return 0, framingErrorf("short read: expected 1 byte, have 0")
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) readU16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, framingErrorf("short read: expected 2 bytes, have " + strconv.Itoa(c.remaining()))
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *cursor) readU32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, framingErrorf("short read: expected 4 bytes, have " + strconv.Itoa(c.remaining()))
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, framingErrorf("short read: expected " + strconv.Itoa(n) + " bytes, have " + strconv.Itoa(c.remaining()))
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// readCString reads bytes up to and including a NUL terminator, decoding
// the bytes before it as UTF-8.
func (c *cursor) readCString() (string, error) {
	start := c.pos
	for c.pos < len(c.buf) {
		if c.buf[c.pos] == 0 {
			s := c.buf[start:c.pos]
			c.pos++
			if !utf8.Valid(s) {
				return "", decodeErrorf("cstring", "invalid UTF-8")
			}
			return string(s), nil
		}
		c.pos++
	}
	return "", framingErrorf("unterminated cstring")
}

// remainder returns every byte left unread in the cursor and marks the
// cursor exhausted.
func (c *cursor) remainder() []byte {
	v := c.buf[c.pos:]
	c.pos = len(c.buf)
	return v
}

func (c *cursor) atEnd() bool { return c.remaining() == 0 }

// --- frame-level I/O: header byte + u32 length + exactly length-4 payload ---

// readFrame reads one operational-phase frame from r: a one-byte message
// type, a big-endian u32 length covering itself and the payload, then
// exactly length-4 payload bytes. It never reads past the frame, so the
// next call starts exactly on the following message's type byte.
func readFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, transportErrorf("read frame header", err)
	}
	msgType = hdr[0]
	length := binary.BigEndian.Uint32(hdr[1:5])
	if length < 4 {
		return 0, nil, framingErrorf("declared length " + strconv.Itoa(int(length)) + " smaller than its own field")
	}
	payloadLen := int(length) - 4
	if payloadLen > maxMessageSize {
		return 0, nil, framingErrorf("declared length exceeds maximum frame size")
	}
	payload = make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, transportErrorf("read frame payload", err)
		}
	}
	return msgType, payload, nil
}

// writeFrame writes a complete type-tagged frame: the message type byte,
// the u32 length computed from len(payload), then the payload itself.
func writeFrame(w io.Writer, msgType byte, payload []byte) error {
	out := make([]byte, 0, headerLen+len(payload))
	out = append(out, msgType)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+4))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	if _, err := w.Write(out); err != nil {
		return transportErrorf("write frame", err)
	}
	return nil
}

// readUntaggedFrame reads a frame that has no leading type byte: the u32
// length comes first (covering itself and the payload), as used by every
// pre-startup message (SSLRequest, CancelRequest, Startup).
func readUntaggedFrame(r io.Reader) (payload []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, transportErrorf("read untagged frame header", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return nil, framingErrorf("declared length " + strconv.Itoa(int(length)) + " smaller than its own field")
	}
	payloadLen := int(length) - 4
	if payloadLen > maxMessageSize {
		return nil, framingErrorf("declared length exceeds maximum frame size")
	}
	payload = make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, transportErrorf("read untagged frame payload", err)
		}
	}
	return payload, nil
}

// writeUntaggedFrame writes a pre-startup-style frame: no leading type
// byte, just the u32 length followed by the payload.
func writeUntaggedFrame(w io.Writer, payload []byte) error {
	out := make([]byte, 0, 4+len(payload))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+4))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	if _, err := w.Write(out); err != nil {
		return transportErrorf("write untagged frame", err)
	}
	return nil
}
