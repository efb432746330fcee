// Package client implements the frontend role: the side of a Postgres
// wire connection that opens it, negotiates SSL, sends the startup
// parameters, answers an authentication challenge, and drives the
// simple query protocol.
package client

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net"
	"strconv"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/brineport/pgwire/internal/metrics"
	"github.com/brineport/pgwire/internal/pgwire"
	"github.com/brineport/pgwire/pkg/logger"
)

// Config describes how to open and authenticate a connection.
type Config struct {
	Host            string
	Port            int
	User            string
	Database        string
	ApplicationName string
	Password        string
	RequestSSL      bool
	ReadTimeout     time.Duration
	// Metrics, if set, receives a QueryDuration observation bracketing
	// each call to Query.
	Metrics *metrics.Collector
}

// Conn is an established, authenticated frontend connection ready to
// issue queries via Query.
type Conn struct {
	netConn net.Conn
	phase   *pgwire.PhaseMachine
	log     *charmlog.Logger
	metrics *metrics.Collector
}

// Dial opens a TCP connection to cfg.Host:cfg.Port, optionally negotiates
// SSL, sends the startup message, answers the server's authentication
// challenge, and waits for the first ReadyForQuery.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, portString(cfg.Port)))
	if err != nil {
		return nil, pgwire.TransportErrorf("dial", err)
	}

	c := &Conn{
		netConn: netConn,
		phase:   pgwire.NewPhaseMachine(),
		log:     logger.With("role", "client", "addr", netConn.RemoteAddr().String()),
		metrics: cfg.Metrics,
	}

	if cfg.RequestSSL {
		if err := c.negotiateSSL(); err != nil {
			_ = netConn.Close()
			return nil, err
		}
	} else if err := c.phase.Transition(pgwire.PhasePreStartup); err != nil {
		_ = netConn.Close()
		return nil, err
	}

	if err := c.sendStartup(cfg); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	if err := c.phase.Transition(pgwire.PhaseStartupExchange); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	if err := c.completeStartupExchange(cfg); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	if err := c.phase.Transition(pgwire.PhaseOperational); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	c.log.Debug("connection operational")
	return c, nil
}

func (c *Conn) negotiateSSL() error {
	if err := c.phase.Transition(pgwire.PhaseAwaitingSSLAnswer); err != nil {
		return err
	}
	if err := (pgwire.SSLRequest{}).Encode(c.netConn); err != nil {
		return err
	}
	answer, err := pgwire.DecodeSSLResponse(c.netConn)
	if err != nil {
		return err
	}
	c.log.Debug("ssl negotiation", "accepted", answer == pgwire.SSLAccept)
	// A real deployment would wrap netConn in a tls.Conn here when
	// accepted; left to the caller since TLS material is deployment
	// specific.
	return c.phase.Transition(pgwire.PhasePreStartup)
}

func (c *Conn) sendStartup(cfg Config) error {
	startup := pgwire.NewStartup().
		AddParameter("user", cfg.User).
		AddParameter("database", cfg.Database)
	if cfg.ApplicationName != "" {
		startup.AddParameter("application_name", cfg.ApplicationName)
	}
	startup.AddParameter("client_encoding", "UTF8")
	return startup.Encode(c.netConn)
}

// completeStartupExchange pulls StartupResponse messages until
// ReadyForQuery, answering an authentication challenge if the server
// issues one.
func (c *Conn) completeStartupExchange(cfg Config) error {
	for {
		msgType, payload, err := pgwire.ReadFrame(c.netConn)
		if err != nil {
			return err
		}
		if msgType == pgwire.BackendAuthenticationType {
			authCode, err := pgwire.PeekAuthCode(payload)
			if err != nil {
				return err
			}
			switch authCode {
			case pgwire.AuthChallengeCleartext:
				if err := c.answerCleartext(cfg.Password); err != nil {
					return err
				}
				continue
			case pgwire.AuthChallengeMD5:
				salt, err := pgwire.DecodeMD5Salt(payload)
				if err != nil {
					return err
				}
				if err := c.answerMD5(cfg.User, cfg.Password, salt); err != nil {
					return err
				}
				continue
			}
		}

		resp, err := pgwire.DecodeStartupResponseFrame(msgType, payload)
		if err != nil {
			return err
		}
		switch {
		case resp.Auth != nil:
			c.log.Debug("authenticated")
		case resp.ParameterStatus != nil:
			c.log.Debug("parameter status", resp.ParameterStatus.Name, resp.ParameterStatus.Value)
		case resp.BackendKeyData != nil:
			c.log.Debug("backend key data received")
		case resp.ReadyForQuery != nil:
			return nil
		}
	}
}

func (c *Conn) answerCleartext(password string) error {
	s := pgwire.NewPasswordMessage(password)
	return s.Encode(c.netConn)
}

func (c *Conn) answerMD5(user, password string, salt [4]byte) error {
	hashed := MD5Password(user, password, salt)
	s := pgwire.NewPasswordMessage(hashed)
	return s.Encode(c.netConn)
}

// MD5Password computes the md5(md5(password+user) + salt) digest the
// wire protocol's MD5 challenge expects, prefixed with "md5".
func MD5Password(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum([]byte(innerHex + string(salt[:])))
	return "md5" + hex.EncodeToString(outer[:])
}

// Query sends a single simple-query statement and collects every
// resulting BackendMessage up to and including ReadyForQuery.
func (c *Conn) Query(ctx context.Context, sql string) ([]pgwire.BackendMessage, error) {
	if err := c.phase.Require(pgwire.PhaseOperational, "SimpleQuery"); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		start := time.Now()
		defer func() { c.metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()
	}
	if err := (pgwire.SimpleQuery{SQL: sql}).Encode(c.netConn); err != nil {
		return nil, err
	}
	reachedEnd := false
	seq := pgwire.NewSequence(func(ctx context.Context) (pgwire.BackendMessage, bool, error) {
		if reachedEnd {
			return pgwire.BackendMessage{}, false, nil
		}
		msg, err := pgwire.DecodeBackendMessage(c.netConn)
		if err != nil {
			return pgwire.BackendMessage{}, false, err
		}
		if msg.ReadyForQuery != nil {
			reachedEnd = true
		}
		return msg, true, nil
	})
	return seq.Collect(ctx)
}

// NetConn returns the underlying connection, for a caller (e.g. the
// proxy role) that needs to relay raw frames past Query.
func (c *Conn) NetConn() net.Conn { return c.netConn }

// Phase returns the connection's phase machine.
func (c *Conn) Phase() *pgwire.PhaseMachine { return c.phase }

// Close sends Termination and closes the underlying connection.
func (c *Conn) Close() error {
	if c.phase.Current() == pgwire.PhaseOperational {
		_ = (pgwire.Termination{}).Encode(c.netConn)
	}
	_ = c.phase.Transition(pgwire.PhaseClosed)
	return c.netConn.Close()
}

func portString(port int) string {
	if port <= 0 {
		port = 5432
	}
	return strconv.Itoa(port)
}
