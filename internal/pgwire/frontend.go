package pgwire

import "io"

// FrontendMessage is the tagged union of operational-phase messages a
// client may send once the startup exchange has completed.
type FrontendMessage struct {
	Query       *SimpleQuery
	Termination *Termination
}

// SimpleQuery is a single unparameterised SQL statement sent via the
// simple query protocol.
type SimpleQuery struct {
	SQL string
}

func (q SimpleQuery) Encode(w io.Writer) error {
	s := newScratch(len(q.SQL) + 1)
	s.writeCString(q.SQL)
	return writeFrame(w, frontendQuery, s.bytes())
}

func decodeSimpleQuery(payload []byte) (*SimpleQuery, error) {
	c := newCursor(payload)
	sql, err := c.readCString()
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("SimpleQuery carried unexpected trailing bytes")
	}
	return &SimpleQuery{SQL: sql}, nil
}

// PasswordMessage answers a cleartext or MD5 authentication challenge.
// For MD5, Password must already hold the "md5"-prefixed hex digest
// (see the client package's MD5Password helper), not the raw password.
type PasswordMessage struct {
	Password string
}

// NewPasswordMessage wraps an already-prepared password response.
func NewPasswordMessage(password string) PasswordMessage {
	return PasswordMessage{Password: password}
}

func (p PasswordMessage) Encode(w io.Writer) error {
	s := newScratch(len(p.Password) + 1)
	s.writeCString(p.Password)
	return writeFrame(w, frontendPassword, s.bytes())
}

// FrontendPasswordType is the wire type byte ('p') of a PasswordMessage,
// exported so a caller relaying raw startup frames (e.g. the proxy role)
// can recognise one without decoding the rest of the startup exchange.
const FrontendPasswordType = frontendPassword

func decodePasswordMessage(payload []byte) (*PasswordMessage, error) {
	c := newCursor(payload)
	password, err := c.readCString()
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("PasswordMessage carried unexpected trailing bytes")
	}
	return &PasswordMessage{Password: password}, nil
}

// DecodePasswordMessageFrame decodes an already-read frame's payload as a
// PasswordMessage, without reading from the transport again.
func DecodePasswordMessageFrame(payload []byte) (PasswordMessage, error) {
	p, err := decodePasswordMessage(payload)
	if err != nil {
		return PasswordMessage{}, err
	}
	return *p, nil
}

// Termination closes the connection gracefully; it carries no fields.
type Termination struct{}

func (Termination) Encode(w io.Writer) error {
	return writeFrame(w, frontendTermination, nil)
}

func decodeTermination(payload []byte) (*Termination, error) {
	if len(payload) != 0 {
		return nil, framingErrorf("Termination carried unexpected payload")
	}
	return &Termination{}, nil
}

// DecodeFrontendMessage reads one tagged operational-phase frame from
// the client and dispatches it to the matching variant.
func DecodeFrontendMessage(r io.Reader) (FrontendMessage, error) {
	msgType, payload, err := readFrame(r)
	if err != nil {
		return FrontendMessage{}, err
	}
	switch msgType {
	case frontendQuery:
		q, err := decodeSimpleQuery(payload)
		if err != nil {
			return FrontendMessage{}, err
		}
		return FrontendMessage{Query: q}, nil
	case frontendTermination:
		t, err := decodeTermination(payload)
		if err != nil {
			return FrontendMessage{}, err
		}
		return FrontendMessage{Termination: t}, nil
	default:
		return FrontendMessage{}, decodeErrorf("frontend-message", "unrecognised message type '"+string(msgType)+"'")
	}
}
