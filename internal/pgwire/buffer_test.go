package pgwire

import (
	"bytes"
	"errors"
	"testing"
)

func TestScratchCursorRoundTrip(t *testing.T) {
	s := newScratch(0)
	s.writeByte(0x2A)
	s.writeU16(1234)
	s.writeU32(567890)
	s.writeCString("hello")
	s.writeBytes([]byte{1, 2, 3})

	c := newCursor(s.bytes())

	b, err := c.readU8()
	if err != nil || b != 0x2A {
		t.Fatalf("readU8: got %d, %v, want 42", b, err)
	}
	u16, err := c.readU16()
	if err != nil || u16 != 1234 {
		t.Fatalf("readU16: got %d, %v, want 1234", u16, err)
	}
	u32, err := c.readU32()
	if err != nil || u32 != 567890 {
		t.Fatalf("readU32: got %d, %v, want 567890", u32, err)
	}
	str, err := c.readCString()
	if err != nil || str != "hello" {
		t.Fatalf("readCString: got %q, %v, want hello", str, err)
	}
	rest, err := c.readBytes(3)
	if err != nil || !bytes.Equal(rest, []byte{1, 2, 3}) {
		t.Fatalf("readBytes: got %v, %v, want [1 2 3]", rest, err)
	}
	if !c.atEnd() {
		t.Fatalf("expected cursor to be exhausted, %d bytes remain", c.remaining())
	}
}

func TestCursorShortReadIsFramingError(t *testing.T) {
	c := newCursor([]byte{0x01})
	if _, err := c.readU32(); !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestCursorUnterminatedCString(t *testing.T) {
	c := newCursor([]byte("no-terminator"))
	if _, err := c.readCString(); !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, 'Q', []byte("SELECT 1")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	msgType, payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if msgType != 'Q' || string(payload) != "SELECT 1" {
		t.Fatalf("got (%q, %q), want ('Q', \"SELECT 1\")", msgType, payload)
	}
}

// TestSSLRequestBytes pins the fixed 8-byte SSLRequest wire form:
// length=8, major=1234, minor=5679.
func TestSSLRequestBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (SSLRequest{}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x08, 0x04, 0xD2, 0x16, 0x2F}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

// TestSSLResponseBytes pins the single-byte accept/refuse answers.
func TestSSLResponseBytes(t *testing.T) {
	var accept, refuse bytes.Buffer
	if err := SSLAccept.Encode(&accept); err != nil {
		t.Fatalf("Encode accept: %v", err)
	}
	if err := SSLRefuse.Encode(&refuse); err != nil {
		t.Fatalf("Encode refuse: %v", err)
	}
	if !bytes.Equal(accept.Bytes(), []byte{'S'}) {
		t.Fatalf("accept: got % X", accept.Bytes())
	}
	if !bytes.Equal(refuse.Bytes(), []byte{'N'}) {
		t.Fatalf("refuse: got % X", refuse.Bytes())
	}
}

// TestAuthenticationOkBytes pins the fixed AuthenticationOk wire form.
func TestAuthenticationOkBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (Authentication{Kind: AuthOK}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{'R', 0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

// TestReadyForQueryIdleBytes pins Z 00 00 00 05 49.
func TestReadyForQueryIdleBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (ReadyForQuery{Status: TxIdle}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{'Z', 0x00, 0x00, 0x00, 0x05, 'I'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

// TestEmptyRowDescriptionBytes pins T 00 00 00 06 00 00 (7 bytes total).
func TestEmptyRowDescriptionBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (RowDescription{}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{'T', 0x00, 0x00, 0x00, 0x06, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

// TestSingleFieldRowDescriptionLength pins the 28-byte single-field
// ("id") RowDescription, length field 0x1B (27).
func TestSingleFieldRowDescriptionLength(t *testing.T) {
	var buf bytes.Buffer
	rd := NewRowDescription().AddStringField("id")
	if err := rd.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != 28 {
		t.Fatalf("got %d bytes, want 28", buf.Len())
	}
	length := uint32(buf.Bytes()[1])<<24 | uint32(buf.Bytes()[2])<<16 | uint32(buf.Bytes()[3])<<8 | uint32(buf.Bytes()[4])
	if length != 27 {
		t.Fatalf("length field: got %d, want 27", length)
	}
}

// TestEmptyCommandCompleteBytes pins C 00 00 00 05 00 (6 bytes).
func TestEmptyCommandCompleteBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (CommandComplete{}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{'C', 0x00, 0x00, 0x00, 0x05, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

// TestSelect1CommandCompleteBytes pins the 14-byte "SELECT 1" tag form.
func TestSelect1CommandCompleteBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (CommandComplete{Tag: "SELECT 1"}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != 14 {
		t.Fatalf("got %d bytes, want 14", buf.Len())
	}
}

// TestEmptyNoticeMessageBytes pins the 19-byte all-defaults notice:
// N 00 00 00 12, SWARNING\0, C\0, M\0, terminator \0.
func TestEmptyNoticeMessageBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := NewNoticeMessage().Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := append([]byte{'N', 0x00, 0x00, 0x00, 0x12},
		append([]byte("SWARNING\x00"), []byte("C\x00M\x00\x00")...)...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

// TestNoDataAndEmptyQueryResponseBytes pins both trivial no-payload
// messages.
func TestNoDataAndEmptyQueryResponseBytes(t *testing.T) {
	var noData, emptyQuery bytes.Buffer
	if err := (NoData{}).Encode(&noData); err != nil {
		t.Fatalf("Encode NoData: %v", err)
	}
	if err := (EmptyQueryResponse{}).Encode(&emptyQuery); err != nil {
		t.Fatalf("Encode EmptyQueryResponse: %v", err)
	}
	if !bytes.Equal(noData.Bytes(), []byte{'n', 0x00, 0x00, 0x00, 0x04}) {
		t.Fatalf("NoData: got % X", noData.Bytes())
	}
	if !bytes.Equal(emptyQuery.Bytes(), []byte{'I', 0x00, 0x00, 0x00, 0x04}) {
		t.Fatalf("EmptyQueryResponse: got % X", emptyQuery.Bytes())
	}
}

func TestDataRowNullRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	row := NewDataRow().AddField("alice").AddNull().AddField("")
	if err := row.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	decoded, err := decodeDataRow(payload)
	if err != nil {
		t.Fatalf("decodeDataRow: %v", err)
	}
	if len(decoded.Fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(decoded.Fields))
	}
	if decoded.Fields[0] == nil || *decoded.Fields[0] != "alice" {
		t.Fatalf("field 0: got %v, want alice", decoded.Fields[0])
	}
	if decoded.Fields[1] != nil {
		t.Fatalf("field 1: got %v, want nil", decoded.Fields[1])
	}
	if decoded.Fields[2] == nil || *decoded.Fields[2] != "" {
		t.Fatalf("field 2: got %v, want empty string", decoded.Fields[2])
	}
}
