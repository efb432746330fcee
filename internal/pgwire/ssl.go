package pgwire

import "io"

// SSLRequest is the fixed 8-byte pre-startup probe a client sends before
// deciding whether to negotiate TLS. It carries no fields of its own —
// its identity is entirely the (length, major, minor) triple on the
// wire.
type SSLRequest struct{}

// Encode writes the SSLRequest's fixed byte sequence: length 8, version
// triple 1234/5679.
func (SSLRequest) Encode(w io.Writer) error {
	s := newScratch(4)
	s.writeU16(sslRequestMajor)
	s.writeU16(sslRequestMinor)
	return writeUntaggedFrame(w, s.bytes())
}

func writeRaw(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return transportErrorf("write raw", err)
	}
	return nil
}

// SSLResponse is the single byte a server answers an SSLRequest with.
type SSLResponse byte

const (
	SSLAccept SSLResponse = SSLResponse(sslAccept)
	SSLRefuse SSLResponse = SSLResponse(sslRefuse)
)

// Encode writes the single response byte.
func (r SSLResponse) Encode(w io.Writer) error {
	return writeRaw(w, []byte{byte(r)})
}

// DecodeSSLResponse reads the single SSL negotiation answer byte.
func DecodeSSLResponse(r io.Reader) (SSLResponse, error) {
	b, err := readU8(r)
	if err != nil {
		return 0, err
	}
	switch SSLResponse(b) {
	case SSLAccept, SSLRefuse:
		return SSLResponse(b), nil
	default:
		return 0, decodeErrorf("ssl-response", "unrecognised answer byte")
	}
}

func readU8(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, transportErrorf("read u8", err)
	}
	return b[0], nil
}
