// Package transport supplies the two connection adapters a role (client,
// backend, proxy) can drive the wire codec through: Blocking, a single
// goroutine owning the whole net.Conn, and Cooperative, independently
// guarded read/write halves shared by two goroutines.
package transport

import (
	"net"
	"time"
)

// Blocking wraps a single net.Conn for a caller that reads and writes
// from one goroutine at a time, in strict request/response lockstep.
type Blocking struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewBlocking wraps conn. A zero timeout disables the corresponding
// deadline.
func NewBlocking(conn net.Conn, readTimeout, writeTimeout time.Duration) *Blocking {
	return &Blocking{conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// Read implements io.Reader, applying the configured read deadline
// before every call.
func (b *Blocking) Read(p []byte) (int, error) {
	if b.readTimeout > 0 {
		_ = b.conn.SetReadDeadline(time.Now().Add(b.readTimeout))
	}
	return b.conn.Read(p)
}

// Write implements io.Writer, applying the configured write deadline
// before every call.
func (b *Blocking) Write(p []byte) (int, error) {
	if b.writeTimeout > 0 {
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	}
	return b.conn.Write(p)
}

// Close closes the underlying connection.
func (b *Blocking) Close() error { return b.conn.Close() }

// Conn returns the underlying net.Conn, for callers that need its
// address or need to hand it to a TLS handshake.
func (b *Blocking) Conn() net.Conn { return b.conn }
