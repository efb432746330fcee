package pgwire

import "io"

// StartupResponse is the tagged union of every message a server may send
// during the startup exchange, after authentication begins and before
// the connection becomes operational.
type StartupResponse struct {
	Auth            *Authentication
	ParameterStatus *ParameterStatus
	BackendKeyData  *BackendKeyData
	ReadyForQuery   *ReadyForQuery
}

// Authentication reports the outcome of the authentication conversation.
// Only the terminal "ok" form is modeled as a decode target; servers that
// challenge for cleartext or MD5 credentials are handled by
// internal/client, which recognises those codes itself before this
// decoder would ever see them.
type Authentication struct {
	Kind AuthKind
}

func (a Authentication) Encode(w io.Writer) error {
	s := newScratch(4)
	s.writeU32(uint32(a.Kind))
	return writeFrame(w, backendAuthentication, s.bytes())
}

func decodeAuthentication(payload []byte) (*Authentication, error) {
	c := newCursor(payload)
	code, err := c.readU32()
	if err != nil {
		return nil, err
	}
	kind, err := decodeAuthKind(code)
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("Authentication carried unexpected trailing bytes")
	}
	return &Authentication{Kind: kind}, nil
}

// ParameterStatus reports one run-time server parameter (server_version,
// client_encoding, TimeZone, ...).
type ParameterStatus struct {
	Name  string
	Value string
}

func (p ParameterStatus) Encode(w io.Writer) error {
	s := newScratch(len(p.Name) + len(p.Value) + 2)
	s.writeCString(p.Name)
	s.writeCString(p.Value)
	return writeFrame(w, backendParameterStatus, s.bytes())
}

func decodeParameterStatus(payload []byte) (*ParameterStatus, error) {
	c := newCursor(payload)
	name, err := c.readCString()
	if err != nil {
		return nil, err
	}
	value, err := c.readCString()
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("ParameterStatus carried unexpected trailing bytes")
	}
	return &ParameterStatus{Name: name, Value: value}, nil
}

// BackendKeyData hands the client the (ProcessID, SecretKey) pair it
// must echo back in a later CancelRequest to cancel this connection's
// running query.
type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

func (b BackendKeyData) Encode(w io.Writer) error {
	s := newScratch(8)
	s.writeU32(b.ProcessID)
	s.writeU32(b.SecretKey)
	return writeFrame(w, backendBackendKeyData, s.bytes())
}

func decodeBackendKeyData(payload []byte) (*BackendKeyData, error) {
	c := newCursor(payload)
	pid, err := c.readU32()
	if err != nil {
		return nil, err
	}
	secret, err := c.readU32()
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("BackendKeyData carried unexpected trailing bytes")
	}
	return &BackendKeyData{ProcessID: pid, SecretKey: secret}, nil
}

// ReadyForQuery marks the server as willing to accept a new query, and
// reports the connection's current transaction status.
type ReadyForQuery struct {
	Status TransactionStatus
}

func (r ReadyForQuery) Encode(w io.Writer) error {
	return writeFrame(w, backendReadyForQuery, []byte{byte(r.Status)})
}

func decodeReadyForQuery(payload []byte) (*ReadyForQuery, error) {
	c := newCursor(payload)
	b, err := c.readU8()
	if err != nil {
		return nil, err
	}
	status, err := decodeTransactionStatus(b)
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("ReadyForQuery carried unexpected trailing bytes")
	}
	return &ReadyForQuery{Status: status}, nil
}

// BackendAuthenticationType is the wire type byte ('R') of an
// Authentication message, exported so a caller that has already read a
// frame with ReadFrame can tell whether PeekAuthCode applies to it.
const BackendAuthenticationType = backendAuthentication

// Authentication challenge codes a client recognises before the
// generic Authentication decoder would reject them (that decoder only
// accepts the terminal AuthOK code).
const (
	AuthChallengeCleartext = authCleartextPassword
	AuthChallengeMD5       = authMD5Password
)

// PeekAuthCode reads the 4-byte authentication request code at the
// front of an Authentication payload without otherwise validating it,
// so a client can decide whether it is looking at a terminal AuthOK or
// a challenge it must answer before calling DecodeStartupResponseFrame.
func PeekAuthCode(payload []byte) (uint32, error) {
	c := newCursor(payload)
	return c.readU32()
}

// DecodeMD5Salt extracts the 4-byte salt that follows an MD5
// authentication challenge's request code.
func DecodeMD5Salt(payload []byte) ([4]byte, error) {
	var salt [4]byte
	c := newCursor(payload)
	if _, err := c.readU32(); err != nil {
		return salt, err
	}
	raw, err := c.readBytes(4)
	if err != nil {
		return salt, err
	}
	copy(salt[:], raw)
	return salt, nil
}

// ReadFrame reads one tagged frame's type byte and payload without
// decoding it, so a caller can branch (e.g. on an authentication
// challenge code) before choosing a decoder.
func ReadFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	return readFrame(r)
}

// DecodeStartupResponseFrame decodes an already-read frame's payload
// according to msgType, without reading from the transport again.
func DecodeStartupResponseFrame(msgType byte, payload []byte) (StartupResponse, error) {
	switch msgType {
	case backendAuthentication:
		auth, err := decodeAuthentication(payload)
		if err != nil {
			return StartupResponse{}, err
		}
		return StartupResponse{Auth: auth}, nil
	case backendParameterStatus:
		ps, err := decodeParameterStatus(payload)
		if err != nil {
			return StartupResponse{}, err
		}
		return StartupResponse{ParameterStatus: ps}, nil
	case backendBackendKeyData:
		bkd, err := decodeBackendKeyData(payload)
		if err != nil {
			return StartupResponse{}, err
		}
		return StartupResponse{BackendKeyData: bkd}, nil
	case backendReadyForQuery:
		rfq, err := decodeReadyForQuery(payload)
		if err != nil {
			return StartupResponse{}, err
		}
		return StartupResponse{ReadyForQuery: rfq}, nil
	default:
		return StartupResponse{}, decodeErrorf("startup-response", "unrecognised message type '"+string(msgType)+"'")
	}
}

// DecodeStartupResponse reads one tagged frame during the startup
// exchange and dispatches it to the matching variant. An unrecognised
// type byte is surfaced to the caller as a decode error rather than
// silently discarded.
func DecodeStartupResponse(r io.Reader) (StartupResponse, error) {
	msgType, payload, err := readFrame(r)
	if err != nil {
		return StartupResponse{}, err
	}
	return DecodeStartupResponseFrame(msgType, payload)
}
