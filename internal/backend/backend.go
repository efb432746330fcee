// Package backend implements the server role: accepting a raw
// connection, answering an SSL probe, reading the startup parameters,
// completing authentication, and driving the simple query protocol from
// the responding side.
package backend

import (
	"context"
	"net"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/brineport/pgwire/internal/metrics"
	"github.com/brineport/pgwire/internal/pgwire"
	"github.com/brineport/pgwire/pkg/logger"
)

// Config describes how a listening server answers a new connection.
type Config struct {
	ServerVersion string
	AllowSSL      bool
	// Authenticate is called with the startup parameters once they have
	// been read; returning an error fails the connection with an
	// opaque ServerError sent to the client. A nil Authenticate accepts
	// every connection (AuthenticationOk, no password requested).
	Authenticate func(params *pgwire.Startup) error
	// Metrics, if set, receives a QueryDuration observation bracketing
	// each SimpleQuery this connection answers.
	Metrics *metrics.Collector
}

// Conn is one accepted, authenticated backend connection, positioned
// exactly at PhaseOperational and ready to read FrontendMessages.
type Conn struct {
	netConn   net.Conn
	phase     *pgwire.PhaseMachine
	log       *charmlog.Logger
	processID uint32
	secretKey uint32
	params    *pgwire.Startup
	metrics   *metrics.Collector
}

// nextConnID hands out small, connection-scoped identifiers; it is not a
// substitute for a real OS process id, only something unique enough to
// echo back in BackendKeyData.
var connCounter uint32

func nextConnID() uint32 {
	connCounter++
	return connCounter
}

// Accept drives one connection's pre-operational handshake to
// completion: SSL answer (if requested), startup parameters, and
// authentication.
func Accept(ctx context.Context, netConn net.Conn, cfg Config) (*Conn, error) {
	c := &Conn{
		netConn: netConn,
		phase:   pgwire.NewPhaseMachine(),
		log:     logger.With("role", "backend", "remote", netConn.RemoteAddr().String()),
		metrics: cfg.Metrics,
	}

	req, err := c.readStartupRequest(cfg)
	if err != nil {
		return nil, err
	}
	if req.Startup == nil {
		return nil, pgwire.NewStateError(c.phase.Current(), "CancelRequest where Startup was expected")
	}
	c.params = req.Startup

	if cfg.Authenticate != nil {
		if err := cfg.Authenticate(c.params); err != nil {
			payload := append([]byte("SFATAL\x00C28000\x00M"), err.Error()...)
			payload = append(payload, 0, 0)
			_ = pgwire.WriteRawErrorFrame(c.netConn, payload)
			return nil, err
		}
	}

	if err := (pgwire.Authentication{Kind: pgwire.AuthOK}).Encode(c.netConn); err != nil {
		return nil, err
	}

	c.processID = nextConnID()
	c.secretKey = c.processID ^ 0x5A5A5A5A
	if err := (pgwire.BackendKeyData{ProcessID: c.processID, SecretKey: c.secretKey}).Encode(c.netConn); err != nil {
		return nil, err
	}

	for _, kv := range []pgwire.KV{
		{Key: "server_version", Value: valueOr(cfg.ServerVersion, "14.0")},
		{Key: "client_encoding", Value: "UTF8"},
		{Key: "TimeZone", Value: "UTC"},
	} {
		if err := (pgwire.ParameterStatus{Name: kv.Key, Value: kv.Value}).Encode(c.netConn); err != nil {
			return nil, err
		}
	}

	if err := c.phase.Transition(pgwire.PhaseStartupExchange); err != nil {
		return nil, err
	}
	if err := (pgwire.ReadyForQuery{Status: pgwire.TxIdle}).Encode(c.netConn); err != nil {
		return nil, err
	}
	if err := c.phase.Transition(pgwire.PhaseOperational); err != nil {
		return nil, err
	}
	c.log.Debug("connection operational", "user", firstOr(c.params, "user"))
	return c, nil
}

// readStartupRequest loops over pre-startup messages, answering SSL
// probes until the client sends either Startup or CancelRequest.
func (c *Conn) readStartupRequest(cfg Config) (pgwire.StartupRequest, error) {
	for {
		req, err := pgwire.DecodeStartupRequest(c.netConn)
		if err != nil {
			return pgwire.StartupRequest{}, err
		}
		if req.SSL != nil {
			if err := c.phase.Transition(pgwire.PhaseAwaitingSSLAnswer); err != nil {
				return pgwire.StartupRequest{}, err
			}
			answer := pgwire.SSLRefuse
			if cfg.AllowSSL {
				answer = pgwire.SSLAccept
			}
			if err := answer.Encode(c.netConn); err != nil {
				return pgwire.StartupRequest{}, err
			}
			if err := c.phase.Transition(pgwire.PhasePreStartup); err != nil {
				return pgwire.StartupRequest{}, err
			}
			continue
		}
		if req.Cancel != nil {
			if err := c.phase.Transition(pgwire.PhaseCancelled); err != nil {
				return pgwire.StartupRequest{}, err
			}
			return req, nil
		}
		if c.phase.Current() != pgwire.PhasePreStartup {
			if err := c.phase.Transition(pgwire.PhasePreStartup); err != nil {
				return pgwire.StartupRequest{}, err
			}
		}
		return req, nil
	}
}

// Greet responds to every incoming non-empty SimpleQuery with a
// single-row result (column "greeting", value "Hello, world!") tagged
// GREETING, answers an empty query with EmptyQueryResponse, and returns
// on Termination. It exists to give the backend role a runnable example
// server without modelling any real SQL execution.
func (c *Conn) Greet(ctx context.Context) error {
	for {
		msg, err := pgwire.DecodeFrontendMessage(c.netConn)
		if err != nil {
			return err
		}
		switch {
		case msg.Query != nil:
			if err := c.respondToQuery(msg.Query.SQL); err != nil {
				return err
			}
		case msg.Termination != nil:
			return c.phase.Transition(pgwire.PhaseClosed)
		}
	}
}

func (c *Conn) respondToQuery(sql string) error {
	if c.metrics != nil {
		start := time.Now()
		defer func() { c.metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()
	}
	if sql == "" {
		if err := (pgwire.EmptyQueryResponse{}).Encode(c.netConn); err != nil {
			return err
		}
		return (pgwire.ReadyForQuery{Status: pgwire.TxIdle}).Encode(c.netConn)
	}
	rd := pgwire.NewRowDescription().AddStringField("greeting")
	if err := rd.Encode(c.netConn); err != nil {
		return err
	}
	row := pgwire.NewDataRow().AddField("Hello, world!")
	if err := row.Encode(c.netConn); err != nil {
		return err
	}
	if err := (pgwire.CommandComplete{Tag: "GREETING"}).Encode(c.netConn); err != nil {
		return err
	}
	return (pgwire.ReadyForQuery{Status: pgwire.TxIdle}).Encode(c.netConn)
}

// NetConn returns the underlying connection, for a caller (e.g. the
// proxy role) that needs to relay raw frames past this package's own
// Greet loop.
func (c *Conn) NetConn() net.Conn { return c.netConn }

// Params returns the startup parameters the client sent.
func (c *Conn) Params() *pgwire.Startup { return c.params }

// Phase returns the connection's phase machine.
func (c *Conn) Phase() *pgwire.PhaseMachine { return c.phase }

// Close closes the underlying connection.
func (c *Conn) Close() error {
	_ = c.phase.Transition(pgwire.PhaseClosed)
	return c.netConn.Close()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func firstOr(startup *pgwire.Startup, key string) string {
	if startup == nil {
		return ""
	}
	if v, ok := startup.Get(key); ok {
		return v
	}
	return ""
}
