package pgwire

import "io"

// StartupRequest is the tagged union of everything a client may send as
// its very first message: a TLS probe, a cancellation request against an
// existing connection, or the real startup parameter list. All three
// share the same untagged (length-prefixed, no type byte) framing and
// are told apart by the version triple embedded right after the length.
type StartupRequest struct {
	SSL     *SSLRequest
	Cancel  *CancelRequest
	Startup *Startup
}

// CancelRequest asks the server to cancel the query running on another
// connection identified by (ProcessID, SecretKey), both handed out in
// that connection's BackendKeyData.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

func (c CancelRequest) Encode(w io.Writer) error {
	s := newScratch(12)
	s.writeU16(cancelRequestMajor)
	s.writeU16(cancelRequestMinor)
	s.writeU32(c.ProcessID)
	s.writeU32(c.SecretKey)
	return writeUntaggedFrame(w, s.bytes())
}

// Startup carries the client's protocol version and its run-time
// parameter list (user, database, application_name, ...).
type Startup struct {
	Parameters []KV
}

// KV is one key/value pair of a Startup message, kept ordered because
// servers may treat parameter order as significant for logging.
type KV struct {
	Key   string
	Value string
}

// NewStartup builds an empty Startup ready for AddParameter calls.
func NewStartup() *Startup { return &Startup{} }

// AddParameter appends one key/value pair to the startup parameter list.
func (s *Startup) AddParameter(key, value string) *Startup {
	s.Parameters = append(s.Parameters, KV{Key: key, Value: value})
	return s
}

// Get returns the value for the first occurrence of key, if present.
func (s *Startup) Get(key string) (string, bool) {
	for _, kv := range s.Parameters {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func (s *Startup) Encode(w io.Writer) error {
	body := newScratch(64)
	body.writeU16(startupMajor)
	body.writeU16(startupMinor)
	for _, kv := range s.Parameters {
		body.writeCString(kv.Key)
		body.writeCString(kv.Value)
	}
	body.writeByte(0)
	return writeUntaggedFrame(w, body.bytes())
}

// DecodeStartupRequest reads one untagged pre-startup frame and
// dispatches on its version triple. Any triple other than the three
// recognised here is a decode error surfaced to the caller, never a
// silently accepted default.
func DecodeStartupRequest(r io.Reader) (StartupRequest, error) {
	payload, err := readUntaggedFrame(r)
	if err != nil {
		return StartupRequest{}, err
	}
	c := newCursor(payload)
	major, err := c.readU16()
	if err != nil {
		return StartupRequest{}, err
	}
	minor, err := c.readU16()
	if err != nil {
		return StartupRequest{}, err
	}

	switch {
	case major == sslRequestMajor && minor == sslRequestMinor:
		if !c.atEnd() {
			return StartupRequest{}, framingErrorf("SSLRequest carried unexpected trailing bytes")
		}
		req := SSLRequest{}
		return StartupRequest{SSL: &req}, nil

	case major == cancelRequestMajor && minor == cancelRequestMinor:
		pid, err := c.readU32()
		if err != nil {
			return StartupRequest{}, err
		}
		secret, err := c.readU32()
		if err != nil {
			return StartupRequest{}, err
		}
		if !c.atEnd() {
			return StartupRequest{}, framingErrorf("CancelRequest carried unexpected trailing bytes")
		}
		return StartupRequest{Cancel: &CancelRequest{ProcessID: pid, SecretKey: secret}}, nil

	case major == startupMajor && minor == startupMinor:
		startup := &Startup{}
		for {
			key, err := c.readCString()
			if err != nil {
				return StartupRequest{}, err
			}
			if key == "" {
				break
			}
			value, err := c.readCString()
			if err != nil {
				return StartupRequest{}, err
			}
			startup.AddParameter(key, value)
		}
		if !c.atEnd() {
			return StartupRequest{}, framingErrorf("Startup carried unexpected trailing bytes")
		}
		return StartupRequest{Startup: startup}, nil

	default:
		return StartupRequest{}, decodeErrorf("startup-request", "unsupported protocol version")
	}
}
