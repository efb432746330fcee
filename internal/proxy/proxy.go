// Package proxy implements a relay: it negotiates the startup phase with
// the connecting client, opens its own connection to the real upstream
// server, then relays both the startup phase and the operational phase
// by decoding each frame from one side and re-encoding it to the other
// rather than copying raw bytes, so every relayed message can be counted
// and every malformed one rejected before it reaches the other side.
package proxy

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brineport/pgwire/internal/metrics"
	"github.com/brineport/pgwire/internal/pgwire"
	"github.com/brineport/pgwire/pkg/logger"
)

var ErrProxyClosed = errors.New("proxy: server closed")

// Config holds everything needed to accept client connections and
// relay them to a single upstream server.
type Config struct {
	ListenAddr     string
	UpstreamHost   string
	UpstreamPort   int
	UpstreamUser   string
	UpstreamPass   string
	MaxConnections int
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration

	// Authenticate validates a client's own credentials before this
	// proxy opens the upstream connection on its behalf. A nil
	// Authenticate accepts every client.
	Authenticate func(user, database, password string) error
}

// DefaultConfig returns a usable, conservative default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":6432",
		MaxConnections: 100,
		ConnectTimeout: 10 * time.Second,
		IdleTimeout:    5 * time.Minute,
	}
}

// Proxy is the relay server.
type Proxy struct {
	config   *Config
	configMu sync.RWMutex
	metrics  *metrics.Collector

	listener  net.Listener
	connCount atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New creates a Proxy bound to config, reporting through m (nil
// disables metrics).
func New(config *Config, m *metrics.Collector) *Proxy {
	ctx, cancel := context.WithCancel(context.Background())
	return &Proxy{config: config, metrics: m, ctx: ctx, cancel: cancel}
}

// Start begins listening and accepting connections in the background.
func (p *Proxy) Start() error {
	listener, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return pgwire.TransportErrorf("listen "+p.config.ListenAddr, err)
	}
	p.listener = listener

	p.wg.Add(1)
	go p.acceptLoop()
	return nil
}

// Stop closes the listener and every tracked connection, then waits for
// their goroutines to exit.
func (p *Proxy) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.wg.Wait()
	return nil
}

// Addr returns the listener's bound address.
func (p *Proxy) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// ConnectionCount reports the number of connections currently relaying.
func (p *Proxy) ConnectionCount() int64 { return p.connCount.Load() }

// UpdateUpstream changes the upstream host and port new connections dial,
// without disturbing connections already relaying. Intended for
// internal/config's file watcher to call on a hot reload.
func (p *Proxy) UpdateUpstream(host string, port int) {
	p.configMu.Lock()
	defer p.configMu.Unlock()
	p.config.UpstreamHost = host
	p.config.UpstreamPort = port
}

func (p *Proxy) upstreamAddr() (host string, port int) {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.config.UpstreamHost, p.config.UpstreamPort
}

func (p *Proxy) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.ctx.Done():
				return
			default:
				logger.Warn("accept error", "err", err)
				continue
			}
		}
		if p.config.MaxConnections > 0 && p.connCount.Load() >= int64(p.config.MaxConnections) {
			_ = conn.Close()
			continue
		}
		p.wg.Add(1)
		go p.handleConnection(conn)
	}
}

func (p *Proxy) handleConnection(netConn net.Conn) {
	defer p.wg.Done()
	defer func() { _ = netConn.Close() }()
	p.connCount.Add(1)
	if p.metrics != nil {
		p.metrics.ConnectionsActive.Inc()
		p.metrics.ConnectionsTotal.WithLabelValues("client").Inc()
	}
	defer func() {
		p.connCount.Add(-1)
		if p.metrics != nil {
			p.metrics.ConnectionsActive.Dec()
		}
	}()

	phase := pgwire.NewPhaseMachine()
	startup, err := p.negotiateClientStartup(netConn, phase)
	if err != nil {
		logger.Warn("client handshake failed", "err", err)
		return
	}

	user, _ := startup.Get("user")
	database, _ := startup.Get("database")
	if p.config.Authenticate != nil {
		if err := p.config.Authenticate(user, database, ""); err != nil {
			logger.Warn("client authentication rejected", "err", err)
			return
		}
	}

	upstreamUser := p.config.UpstreamUser
	if upstreamUser == "" {
		upstreamUser = user
	}

	upstreamHost, upstreamPort := p.upstreamAddr()
	dialCtx, cancel := context.WithTimeout(p.ctx, p.config.ConnectTimeout)
	var d net.Dialer
	upstreamConn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(upstreamHost, strconv.Itoa(upstreamPort)))
	cancel()
	if err != nil {
		logger.Warn("upstream connect failed", "err", err)
		return
	}
	defer func() { _ = upstreamConn.Close() }()

	upstreamStartup := pgwire.NewStartup().AddParameter("user", upstreamUser).AddParameter("database", database)
	if err := upstreamStartup.Encode(upstreamConn); err != nil {
		logger.Warn("upstream startup failed", "err", err)
		return
	}

	if err := p.relayStartupPhase(netConn, upstreamConn); err != nil {
		logger.Warn("startup relay failed", "err", err)
		return
	}
	if err := phase.Transition(pgwire.PhaseOperational); err != nil {
		logger.Warn("phase transition failed", "err", err)
		return
	}

	p.relay(netConn, upstreamConn)
}

// negotiateClientStartup answers the connecting client's SSL probe (this
// proxy never terminates TLS itself) and returns its Startup parameters,
// or the StateError from a bare CancelRequest.
func (p *Proxy) negotiateClientStartup(netConn net.Conn, phase *pgwire.PhaseMachine) (*pgwire.Startup, error) {
	for {
		req, err := pgwire.DecodeStartupRequest(netConn)
		if err != nil {
			return nil, err
		}
		if req.SSL != nil {
			if err := phase.Transition(pgwire.PhaseAwaitingSSLAnswer); err != nil {
				return nil, err
			}
			if err := pgwire.SSLRefuse.Encode(netConn); err != nil {
				return nil, err
			}
			if err := phase.Transition(pgwire.PhasePreStartup); err != nil {
				return nil, err
			}
			continue
		}
		if req.Cancel != nil {
			if err := phase.Transition(pgwire.PhaseCancelled); err != nil {
				return nil, err
			}
			return nil, pgwire.NewStateError(phase.Current(), "CancelRequest where Startup was expected")
		}
		if phase.Current() != pgwire.PhasePreStartup {
			if err := phase.Transition(pgwire.PhasePreStartup); err != nil {
				return nil, err
			}
		}
		if err := phase.Transition(pgwire.PhaseStartupExchange); err != nil {
			return nil, err
		}
		return req.Startup, nil
	}
}

// relayStartupPhase decodes each startup-phase frame the real upstream
// sends and re-encodes it to the client, the same way relayFrontend and
// relayBackend do for the operational phase, so the client sees the
// upstream's actual server_version and BackendKeyData rather than a
// value synthesized by this proxy. An authentication challenge (which
// the core codec deliberately never decodes beyond its request code) is
// relayed as a raw frame in each direction instead of being answered on
// the client's behalf.
func (p *Proxy) relayStartupPhase(clientConn, upstreamConn net.Conn) error {
	for {
		msgType, payload, err := pgwire.ReadFrame(upstreamConn)
		if err != nil {
			return err
		}

		if msgType == pgwire.BackendAuthenticationType {
			authCode, err := pgwire.PeekAuthCode(payload)
			if err != nil {
				return err
			}
			if err := pgwire.WriteRawFrame(clientConn, msgType, payload); err != nil {
				return err
			}
			if authCode == uint32(pgwire.AuthOK) {
				continue
			}
			pwType, pwPayload, err := pgwire.ReadFrame(clientConn)
			if err != nil {
				return err
			}
			if pwType != pgwire.FrontendPasswordType {
				return pgwire.NewStateError(pgwire.PhaseStartupExchange, "expected PasswordMessage in response to authentication challenge")
			}
			if _, err := pgwire.DecodePasswordMessageFrame(pwPayload); err != nil {
				return err
			}
			if err := pgwire.WriteRawFrame(upstreamConn, pwType, pwPayload); err != nil {
				return err
			}
			continue
		}

		resp, err := pgwire.DecodeStartupResponseFrame(msgType, payload)
		if err != nil {
			return err
		}
		switch {
		case resp.ParameterStatus != nil:
			if err := resp.ParameterStatus.Encode(clientConn); err != nil {
				return err
			}
		case resp.BackendKeyData != nil:
			if err := resp.BackendKeyData.Encode(clientConn); err != nil {
				return err
			}
		case resp.ReadyForQuery != nil:
			return resp.ReadyForQuery.Encode(clientConn)
		}
	}
}

// relay decodes and re-encodes messages in both directions until either
// side closes or sends a terminal message, counting each relayed frame
// kind along the way.
func (p *Proxy) relay(clientConn, upstreamConn net.Conn) {
	errCh := make(chan error, 2)
	go func() { errCh <- p.relayFrontend(clientConn, upstreamConn) }()
	go func() { errCh <- p.relayBackend(upstreamConn, clientConn) }()
	<-errCh
	_ = clientConn.Close()
	_ = upstreamConn.Close()
	<-errCh
}

func (p *Proxy) relayFrontend(from, to net.Conn) error {
	for {
		msg, err := pgwire.DecodeFrontendMessage(from)
		if err != nil {
			p.countDecodeError(err)
			return err
		}
		switch {
		case msg.Query != nil:
			p.countMessage("frontend", "query")
			if err := msg.Query.Encode(to); err != nil {
				return err
			}
		case msg.Termination != nil:
			p.countMessage("frontend", "termination")
			_ = msg.Termination.Encode(to)
			return nil
		}
	}
}

func (p *Proxy) relayBackend(from, to net.Conn) error {
	for {
		msg, err := pgwire.DecodeBackendMessage(from)
		if err != nil {
			p.countDecodeError(err)
			return err
		}
		switch {
		case msg.RowDescription != nil:
			p.countMessage("backend", "row_description")
			err = msg.RowDescription.Encode(to)
		case msg.DataRow != nil:
			p.countMessage("backend", "data_row")
			err = msg.DataRow.Encode(to)
		case msg.NoData != nil:
			p.countMessage("backend", "no_data")
			err = msg.NoData.Encode(to)
		case msg.CommandComplete != nil:
			p.countMessage("backend", "command_complete")
			err = msg.CommandComplete.Encode(to)
		case msg.EmptyQueryResponse != nil:
			p.countMessage("backend", "empty_query_response")
			err = msg.EmptyQueryResponse.Encode(to)
		case msg.Notice != nil:
			p.countMessage("backend", "notice")
			err = msg.Notice.Encode(to)
		case msg.Error != nil:
			p.countMessage("backend", "error")
			err = writeRawError(to, msg.Error)
		case msg.ReadyForQuery != nil:
			p.countMessage("backend", "ready_for_query")
			err = msg.ReadyForQuery.Encode(to)
		}
		if err != nil {
			return err
		}
	}
}

// writeRawError re-emits an opaque Error frame using its preserved raw
// payload, since the core codec never parses it.
func writeRawError(to net.Conn, e *pgwire.ServerError) error {
	return pgwire.WriteRawErrorFrame(to, e.RawPayload)
}

func (p *Proxy) countMessage(direction, kind string) {
	if p.metrics != nil {
		p.metrics.MessagesTotal.WithLabelValues(direction, kind).Inc()
	}
}

func (p *Proxy) countDecodeError(err error) {
	if p.metrics == nil {
		return
	}
	kind := "transport"
	switch {
	case errors.Is(err, pgwire.ErrFraming):
		kind = "framing"
	case errors.Is(err, pgwire.ErrDecode):
		kind = "decode"
	case errors.Is(err, pgwire.ErrState):
		kind = "state"
	}
	p.metrics.DecodeErrorsTotal.WithLabelValues(kind).Inc()
}
