package pgwire

import (
	"bytes"
	"testing"

	"github.com/jackc/pgproto3/v2"
)

// These tests decode this package's own encoded messages with pgproto3,
// an independently maintained implementation of the same wire protocol,
// as a check that our framing agrees with a decoder we did not write.

func TestCrossValidateRowDescription(t *testing.T) {
	var buf bytes.Buffer
	rd := NewRowDescription().AddStringField("id").AddStringField("name")
	if err := rd.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	frontend := pgproto3.NewFrontend(pgproto3.NewChunkReader(&buf), nil)
	msg, err := frontend.Receive()
	if err != nil {
		t.Fatalf("pgproto3 Receive: %v", err)
	}
	got, ok := msg.(*pgproto3.RowDescription)
	if !ok {
		t.Fatalf("got %T, want *pgproto3.RowDescription", msg)
	}
	if len(got.Fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(got.Fields))
	}
	if string(got.Fields[0].Name) != "id" || string(got.Fields[1].Name) != "name" {
		t.Fatalf("got field names %q, %q", got.Fields[0].Name, got.Fields[1].Name)
	}
}

func TestCrossValidateDataRow(t *testing.T) {
	var buf bytes.Buffer
	row := NewDataRow().AddField("alice").AddNull()
	if err := row.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	frontend := pgproto3.NewFrontend(pgproto3.NewChunkReader(&buf), nil)
	msg, err := frontend.Receive()
	if err != nil {
		t.Fatalf("pgproto3 Receive: %v", err)
	}
	got, ok := msg.(*pgproto3.DataRow)
	if !ok {
		t.Fatalf("got %T, want *pgproto3.DataRow", msg)
	}
	if len(got.Values) != 2 {
		t.Fatalf("got %d values, want 2", len(got.Values))
	}
	if string(got.Values[0]) != "alice" {
		t.Fatalf("got %q, want alice", got.Values[0])
	}
	if got.Values[1] != nil {
		t.Fatalf("got %v, want nil", got.Values[1])
	}
}

func TestCrossValidateSimpleQuery(t *testing.T) {
	var buf bytes.Buffer
	if err := (SimpleQuery{SQL: "SELECT 1"}).Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(&buf), nil)
	msg, err := backend.Receive()
	if err != nil {
		t.Fatalf("pgproto3 Receive: %v", err)
	}
	got, ok := msg.(*pgproto3.Query)
	if !ok {
		t.Fatalf("got %T, want *pgproto3.Query", msg)
	}
	if got.String != "SELECT 1" {
		t.Fatalf("got %q, want SELECT 1", got.String)
	}
}
