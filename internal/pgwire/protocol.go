package pgwire

// Message type bytes for the in-scope subset of the Postgres wire
// protocol (v3.0).
// Reference: https://www.postgresql.org/docs/current/protocol-message-formats.html

// Frontend (client -> server) message types.
const (
	frontendQuery       byte = 'Q'
	frontendTermination byte = 'X'
	frontendPassword    byte = 'p'
)

// Backend (server -> client) message types.
const (
	backendAuthentication     byte = 'R'
	backendBackendKeyData     byte = 'K'
	backendCommandComplete    byte = 'C'
	backendDataRow            byte = 'D'
	backendEmptyQueryResponse byte = 'I'
	backendErrorResponse      byte = 'E'
	backendNoData             byte = 'n'
	backendNoticeResponse     byte = 'N'
	backendParameterStatus    byte = 'S'
	backendReadyForQuery      byte = 'Z'
	backendRowDescription     byte = 'T'
)

// SSL negotiation answers.
const (
	sslAccept byte = 'S'
	sslRefuse byte = 'N'
)

// Pre-startup protocol version triples: (length, major, minor).
const (
	sslRequestLength    = 8
	sslRequestMajor     = 1234
	sslRequestMinor     = 5679
	cancelRequestLength = 16
	cancelRequestMajor  = 1234
	cancelRequestMinor  = 5678
	startupMajor        = 3
	startupMinor        = 0
)

// Authentication request codes. AuthOK is the only supported AuthKind
// decode variant; the cleartext/MD5 codes are recognised by
// internal/client only, so it can answer a real server's challenge.
const (
	authOK                = 0
	authCleartextPassword = 3
	authMD5Password       = 5
)

// Notice/Error field tags. Only severity, code, and message are
// interpreted; every other tag is recognised and discarded.
const (
	fieldSeverityLocalized byte = 'S'
	fieldSeverity          byte = 'V'
	fieldCode              byte = 'C'
	fieldMessage           byte = 'M'
)

// nullFieldLength is the DataRow per-field length sentinel for SQL NULL.
const nullFieldLength uint32 = 0xFFFFFFFF

// headerLen is the type byte + u32 length prefix on every operational
// and startup-response message.
const headerLen = 5

// maxMessageSize bounds a single frame's payload so a corrupt or
// adversarial length field cannot force an unbounded allocation.
const maxMessageSize = 1 << 30
