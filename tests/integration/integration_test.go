// Package integration spins up an in-process backend listener and
// drives it with both internal/client and pgx, end to end over a real
// loopback TCP socket.
package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brineport/pgwire/internal/backend"
	"github.com/brineport/pgwire/internal/client"
)

func startServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback TCP unavailable: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = listener.Close()
	})

	go func() {
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = netConn.Close() }()
				conn, err := backend.Accept(ctx, netConn, backend.Config{ServerVersion: "14.0"})
				if err != nil {
					return
				}
				_ = conn.Greet(ctx)
			}()
		}
	}()
	return listener.Addr().String()
}

func TestInternalClientRoundTrip(t *testing.T) {
	addr := startServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := client.Dial(ctx, client.Config{
		Host:     host,
		Port:     port,
		User:     "tester",
		Database: "testdb",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	results, err := conn.Query(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	foundRow := false
	for _, msg := range results {
		if msg.DataRow != nil {
			foundRow = true
		}
	}
	if !foundRow {
		t.Fatalf("expected at least one DataRow in %+v", results)
	}
}

func TestPgxRoundTrip(t *testing.T) {
	addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connStr := "postgres://tester@" + addr + "/testdb?sslmode=disable"
	connConfig, err := pgx.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	// This project's backend role only implements the simple query
	// protocol, not Parse/Bind/Describe/Execute/Sync.
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		t.Fatalf("pgx.ConnectConfig: %v", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatalf("expected at least one row")
	}
}
