package pgwire

import (
	"bytes"
	"errors"
	"testing"
)

func TestStartupRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	startup := NewStartup().AddParameter("user", "alice").AddParameter("database", "postgres")
	if err := startup.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	req, err := DecodeStartupRequest(&buf)
	if err != nil {
		t.Fatalf("DecodeStartupRequest: %v", err)
	}
	if req.SSL != nil || req.Cancel != nil || req.Startup == nil {
		t.Fatalf("got %+v, want a Startup-only request", req)
	}
	if user, ok := req.Startup.Get("user"); !ok || user != "alice" {
		t.Fatalf("user: got %q, %v, want alice", user, ok)
	}
	if db, ok := req.Startup.Get("database"); !ok || db != "postgres" {
		t.Fatalf("database: got %q, %v, want postgres", db, ok)
	}
}

func TestCancelRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := (CancelRequest{ProcessID: 4242, SecretKey: 99}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	req, err := DecodeStartupRequest(&buf)
	if err != nil {
		t.Fatalf("DecodeStartupRequest: %v", err)
	}
	if req.SSL != nil || req.Startup != nil || req.Cancel == nil {
		t.Fatalf("got %+v, want a Cancel-only request", req)
	}
	if req.Cancel.ProcessID != 4242 || req.Cancel.SecretKey != 99 {
		t.Fatalf("got %+v, want {4242 99}", req.Cancel)
	}
}

func TestTwoFieldRowDescriptionBytes(t *testing.T) {
	var buf bytes.Buffer
	rd := NewRowDescription().AddStringField("id").AddStringField("name")
	if err := rd.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != 51 {
		t.Fatalf("got %d bytes, want 51", buf.Len())
	}
	length := uint32(buf.Bytes()[1])<<24 | uint32(buf.Bytes()[2])<<16 | uint32(buf.Bytes()[3])<<8 | uint32(buf.Bytes()[4])
	if length != 50 {
		t.Fatalf("length field: got %d, want 50", length)
	}
}

func TestRowDescriptionFieldNamesIdempotent(t *testing.T) {
	rd := NewRowDescription().AddStringField("id").AddStringField("name")
	first := rd.FieldNames()
	second := rd.FieldNames()
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d, %d fields, want 2, 2", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("call %d differs: %q vs %q", i, first[i], second[i])
		}
	}
	first[0] = "mutated"
	if rd.Fields[0].Name != "id" {
		t.Fatalf("FieldNames leaked a mutable view of Fields: got %q", rd.Fields[0].Name)
	}
	if rd.FieldNames()[0] != "id" {
		t.Fatalf("FieldNames not idempotent after caller mutated its returned slice: got %q", rd.FieldNames()[0])
	}
}

func TestPhaseMachineLegalPath(t *testing.T) {
	m := NewPhaseMachine()
	if m.Current() != PhasePreSSL {
		t.Fatalf("got %s, want pre-ssl", m.Current())
	}
	steps := []Phase{PhasePreStartup, PhaseStartupExchange, PhaseOperational, PhaseClosed}
	for _, next := range steps {
		if err := m.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if m.Current() != PhaseClosed {
		t.Fatalf("got %s, want closed", m.Current())
	}
}

func TestPhaseMachineRejectsIllegalTransition(t *testing.T) {
	m := NewPhaseMachine()
	err := m.Transition(PhaseOperational)
	if err == nil {
		t.Fatal("expected an error skipping straight to operational")
	}
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("got %T, want *StateError", err)
	}
	if m.Current() != PhasePreSSL {
		t.Fatalf("failed transition moved phase to %s", m.Current())
	}
}

func TestPhaseClosedIsTerminal(t *testing.T) {
	m := NewPhaseMachine()
	for _, next := range []Phase{PhasePreStartup, PhaseStartupExchange, PhaseOperational, PhaseClosed} {
		if err := m.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := m.Transition(PhasePreSSL); err == nil {
		t.Fatal("expected PhaseClosed to reject every further transition")
	}
}

// TestFramingIsolatesConcatenatedFrames pins that one malformed frame
// (a CommandComplete whose payload is not a NUL-terminated tag) is read
// off as exactly its declared length, so it does not corrupt the
// well-formed frame encoded right after it in the same stream.
func TestFramingIsolatesConcatenatedFrames(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, backendCommandComplete, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("writeFrame good: %v", err)
	}
	if err := (ReadyForQuery{Status: TxIdle}).Encode(&buf); err != nil {
		t.Fatalf("Encode ReadyForQuery: %v", err)
	}

	msgType, payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame 1: %v", err)
	}
	if msgType != backendCommandComplete || !bytes.Equal(payload, []byte{0x01, 0x02}) {
		t.Fatalf("frame 1: got (%q, % X)", msgType, payload)
	}

	msg, err := DecodeBackendMessage(&buf)
	if err != nil {
		t.Fatalf("DecodeBackendMessage 2: %v", err)
	}
	if msg.ReadyForQuery == nil || msg.ReadyForQuery.Status != TxIdle {
		t.Fatalf("frame 2: got %+v, want ReadyForQuery{Idle}", msg)
	}
}

// TestTruncatedFrameIsRejected pins that a frame whose declared length
// claims more bytes than the stream actually carries surfaces a
// categorised error rather than a partial, silently-accepted read.
// readFrame reports the short payload read as ErrTransport.
func TestTruncatedFrameIsRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, backendCommandComplete, []byte("SELECT 1")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]
	if _, _, err := readFrame(bytes.NewReader(truncated)); !errors.Is(err, ErrFraming) && !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrFraming or ErrTransport on a truncated frame, got %v", err)
	}
}
