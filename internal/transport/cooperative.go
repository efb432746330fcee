package transport

import (
	"context"
	"net"
	"sync"
	"time"
)

// Cooperative wraps a single net.Conn's read half and write half behind
// independent mutexes, so two goroutines — one pumping inbound messages,
// one pumping outbound ones — can each own a half without contending on
// the other. Go's net.Conn already permits concurrent Read/Write from
// different goroutines; what Cooperative adds on top is serialising
// multiple would-be readers (or writers) against each other and binding
// each call to a context, which is this project's stand-in for the
// "cooperative suspension point" a single-threaded async runtime would
// otherwise provide. Never take both readMu and writeMu at once: doing
// so would reintroduce the head-of-line blocking between inbound and
// outbound traffic that this adapter exists to avoid.
type Cooperative struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewCooperative wraps conn for independent read-half/write-half access.
func NewCooperative(conn net.Conn) *Cooperative {
	return &Cooperative{conn: conn}
}

// ReadContext reads into p, honouring ctx's deadline and cancellation by
// translating them onto the connection's read deadline for the duration
// of the call.
func (c *Cooperative) ReadContext(ctx context.Context, p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if err := c.applyDeadline(ctx, c.conn.SetReadDeadline); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}

// WriteContext writes p, honouring ctx the same way ReadContext does.
func (c *Cooperative) WriteContext(ctx context.Context, p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.applyDeadline(ctx, c.conn.SetWriteDeadline); err != nil {
		return 0, err
	}
	n, err := c.conn.Write(p)
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}

func (c *Cooperative) applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	return set(time.Time{})
}

// Close closes the underlying connection. Either half's goroutine may
// call it; net.Conn.Close is safe to call concurrently with a blocked
// Read or Write on the same connection, which is what lets the other
// half's goroutine observe the close and exit.
func (c *Cooperative) Close() error { return c.conn.Close() }

// ReadHalf returns an io.Reader bound to ctx, suitable for passing to
// the pgwire decoders that expect a plain io.Reader.
func (c *Cooperative) ReadHalf(ctx context.Context) *halfReader {
	return &halfReader{c: c, ctx: ctx}
}

// WriteHalf returns an io.Writer bound to ctx.
func (c *Cooperative) WriteHalf(ctx context.Context) *halfWriter {
	return &halfWriter{c: c, ctx: ctx}
}

type halfReader struct {
	c   *Cooperative
	ctx context.Context
}

func (r *halfReader) Read(p []byte) (int, error) { return r.c.ReadContext(r.ctx, p) }

type halfWriter struct {
	c   *Cooperative
	ctx context.Context
}

func (w *halfWriter) Write(p []byte) (int, error) { return w.c.WriteContext(w.ctx, p) }
