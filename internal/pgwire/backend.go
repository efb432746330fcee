package pgwire

import "io"

// BackendMessage is the tagged union of operational-phase messages a
// server may send in response to a simple query, plus the two messages
// (NoticeMessage, Error) it may send at any point once operational.
type BackendMessage struct {
	ReadyForQuery      *ReadyForQuery
	RowDescription     *RowDescription
	DataRow            *DataRow
	NoData             *NoData
	CommandComplete    *CommandComplete
	EmptyQueryResponse *EmptyQueryResponse
	Notice             *NoticeMessage
	Error              *ServerError
}

// Field describes one column of a RowDescription.
type Field struct {
	Name         string
	TableOID     uint32
	ColumnIndex  uint16
	DataTypeOID  uint32
	DataTypeSize uint16
	TypeModifier uint32
	FormatCode   uint16
}

// RowDescription announces the column shape of the rows that follow.
type RowDescription struct {
	Fields []Field
}

// NewRowDescription builds an empty RowDescription ready for
// AddStringField calls.
func NewRowDescription() *RowDescription { return &RowDescription{} }

// AddStringField appends a column described only by name, leaving every
// other attribute at its zero value — the common case for a server that
// does not track a real catalog.
func (r *RowDescription) AddStringField(name string) *RowDescription {
	r.Fields = append(r.Fields, Field{Name: name})
	return r
}

func (r RowDescription) Encode(w io.Writer) error {
	body := newScratch(32)
	body.writeU16(uint16(len(r.Fields)))
	for _, f := range r.Fields {
		body.writeCString(f.Name)
		body.writeU32(f.TableOID)
		body.writeU16(f.ColumnIndex)
		body.writeU32(f.DataTypeOID)
		body.writeU16(f.DataTypeSize)
		body.writeU32(f.TypeModifier)
		body.writeU16(f.FormatCode)
	}
	return writeFrame(w, backendRowDescription, body.bytes())
}

// FieldNames returns just the column names, in order.
func (r RowDescription) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

func decodeRowDescription(payload []byte) (*RowDescription, error) {
	c := newCursor(payload)
	count, err := c.readU16()
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, count)
	for i := uint16(0); i < count; i++ {
		name, err := c.readCString()
		if err != nil {
			return nil, err
		}
		tableOID, err := c.readU32()
		if err != nil {
			return nil, err
		}
		colIndex, err := c.readU16()
		if err != nil {
			return nil, err
		}
		typeOID, err := c.readU32()
		if err != nil {
			return nil, err
		}
		typeSize, err := c.readU16()
		if err != nil {
			return nil, err
		}
		typeMod, err := c.readU32()
		if err != nil {
			return nil, err
		}
		formatCode, err := c.readU16()
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{
			Name:         name,
			TableOID:     tableOID,
			ColumnIndex:  colIndex,
			DataTypeOID:  typeOID,
			DataTypeSize: typeSize,
			TypeModifier: typeMod,
			FormatCode:   formatCode,
		})
	}
	if !c.atEnd() {
		return nil, framingErrorf("RowDescription carried unexpected trailing bytes")
	}
	return &RowDescription{Fields: fields}, nil
}

// DataRow carries one row of query results. A nil entry in Fields
// represents SQL NULL; every other entry is the column's text-format
// value.
type DataRow struct {
	Fields []*string
}

// NewDataRow builds an empty DataRow ready for AddField/AddNull calls.
func NewDataRow() *DataRow { return &DataRow{} }

func (d *DataRow) AddField(value string) *DataRow {
	d.Fields = append(d.Fields, &value)
	return d
}

func (d *DataRow) AddNull() *DataRow {
	d.Fields = append(d.Fields, nil)
	return d
}

func (d DataRow) Encode(w io.Writer) error {
	body := newScratch(32)
	body.writeU16(uint16(len(d.Fields)))
	for _, f := range d.Fields {
		if f == nil {
			body.writeU32(nullFieldLength)
			continue
		}
		body.writeU32(uint32(len(*f)))
		body.writeBytes([]byte(*f))
	}
	return writeFrame(w, backendDataRow, body.bytes())
}

func decodeDataRow(payload []byte) (*DataRow, error) {
	c := newCursor(payload)
	count, err := c.readU16()
	if err != nil {
		return nil, err
	}
	fields := make([]*string, 0, count)
	for i := uint16(0); i < count; i++ {
		length, err := c.readU32()
		if err != nil {
			return nil, err
		}
		if length == nullFieldLength {
			fields = append(fields, nil)
			continue
		}
		raw, err := c.readBytes(int(length))
		if err != nil {
			return nil, err
		}
		value := string(raw)
		fields = append(fields, &value)
	}
	if !c.atEnd() {
		return nil, framingErrorf("DataRow carried unexpected trailing bytes")
	}
	return &DataRow{Fields: fields}, nil
}

// NoData reports that a described statement returns no rows. It carries
// no fields.
type NoData struct{}

func (NoData) Encode(w io.Writer) error { return writeFrame(w, backendNoData, nil) }

func decodeNoData(payload []byte) (*NoData, error) {
	if len(payload) != 0 {
		return nil, framingErrorf("NoData carried unexpected payload")
	}
	return &NoData{}, nil
}

// CommandComplete reports the tag of the statement that just finished
// (e.g. "SELECT 1", "INSERT 0 1").
type CommandComplete struct {
	Tag string
}

func (c CommandComplete) Encode(w io.Writer) error {
	s := newScratch(len(c.Tag) + 1)
	s.writeCString(c.Tag)
	return writeFrame(w, backendCommandComplete, s.bytes())
}

func decodeCommandComplete(payload []byte) (*CommandComplete, error) {
	c := newCursor(payload)
	tag, err := c.readCString()
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, framingErrorf("CommandComplete carried unexpected trailing bytes")
	}
	return &CommandComplete{Tag: tag}, nil
}

// EmptyQueryResponse reports that the client sent a query string with no
// actual statement in it. It carries no fields.
type EmptyQueryResponse struct{}

func (EmptyQueryResponse) Encode(w io.Writer) error {
	return writeFrame(w, backendEmptyQueryResponse, nil)
}

func decodeEmptyQueryResponse(payload []byte) (*EmptyQueryResponse, error) {
	if len(payload) != 0 {
		return nil, framingErrorf("EmptyQueryResponse carried unexpected payload")
	}
	return &EmptyQueryResponse{}, nil
}

// NoticeMessage is an advisory notice a server may send at any point in
// the operational phase, outside the request/response cycle of a single
// query.
type NoticeMessage struct {
	Severity Severity
	Code     string
	Message  string
}

// NewNoticeMessage builds a notice with the default severity (Warning),
// matching the zero value a server constructs when it has nothing more
// specific to report.
func NewNoticeMessage() *NoticeMessage {
	return &NoticeMessage{Severity: Severity{}}
}

func (n NoticeMessage) Encode(w io.Writer) error {
	body := newScratch(len(n.Code) + len(n.Message) + 16)
	body.writeByte(fieldSeverityLocalized)
	body.writeCString(n.Severity.String())
	body.writeByte(fieldCode)
	body.writeCString(n.Code)
	body.writeByte(fieldMessage)
	body.writeCString(n.Message)
	body.writeByte(0)
	return writeFrame(w, backendNoticeResponse, body.bytes())
}

// decodeNoticeMessage reads the notice's field-tag loop. 'V' is the
// non-localized form of severity and overrides 'S' if both are present,
// matching the server-side rule for which field wins. Unrecognised tags
// are read and discarded so an unexpected field never desynchronises
// the parse.
func decodeNoticeMessage(payload []byte) (*NoticeMessage, error) {
	c := newCursor(payload)
	n := NewNoticeMessage()
	sawV := false
	for {
		tag, err := c.readU8()
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			break
		}
		value, err := c.readCString()
		if err != nil {
			return nil, err
		}
		switch tag {
		case fieldSeverityLocalized:
			if !sawV {
				n.Severity = decodeSeverity(value)
			}
		case fieldSeverity:
			n.Severity = decodeSeverity(value)
			sawV = true
		case fieldCode:
			n.Code = value
		case fieldMessage:
			n.Message = value
		default:
			// Recognised-but-uninterpreted field (detail, hint,
			// position, file/line/routine, ...); discarded.
		}
	}
	if !c.atEnd() {
		return nil, framingErrorf("NoticeMessage carried unexpected trailing bytes")
	}
	return n, nil
}

// decodeServerError preserves the Error frame's raw payload without
// attempting to parse its field-tag structure; callers that need the
// individual fields can run the same field-tag loop NoticeMessage uses.
func decodeServerError(length uint32, payload []byte) *ServerError {
	return &ServerError{Length: length, RawPayload: payload}
}

// WriteRawErrorFrame re-emits an Error frame from a previously preserved
// raw payload, without re-parsing or rebuilding its field-tag structure.
func WriteRawErrorFrame(w io.Writer, rawPayload []byte) error {
	return writeFrame(w, backendErrorResponse, rawPayload)
}

// WriteRawFrame re-emits an already-read frame unchanged, by type byte
// and payload, without decoding it into one of this package's message
// types. A relay that only needs to recognise a frame (an authentication
// challenge it can't answer on the connecting client's behalf) rather
// than reconstruct it uses this instead of a decode/re-encode round trip.
func WriteRawFrame(w io.Writer, msgType byte, payload []byte) error {
	return writeFrame(w, msgType, payload)
}

// DecodeBackendMessage reads one tagged operational-phase frame from the
// server and dispatches it to the matching variant.
func DecodeBackendMessage(r io.Reader) (BackendMessage, error) {
	msgType, payload, err := readFrame(r)
	if err != nil {
		return BackendMessage{}, err
	}
	switch msgType {
	case backendReadyForQuery:
		v, err := decodeReadyForQuery(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{ReadyForQuery: v}, nil
	case backendRowDescription:
		v, err := decodeRowDescription(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{RowDescription: v}, nil
	case backendDataRow:
		v, err := decodeDataRow(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{DataRow: v}, nil
	case backendNoData:
		v, err := decodeNoData(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{NoData: v}, nil
	case backendCommandComplete:
		v, err := decodeCommandComplete(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{CommandComplete: v}, nil
	case backendEmptyQueryResponse:
		v, err := decodeEmptyQueryResponse(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{EmptyQueryResponse: v}, nil
	case backendNoticeResponse:
		v, err := decodeNoticeMessage(payload)
		if err != nil {
			return BackendMessage{}, err
		}
		return BackendMessage{Notice: v}, nil
	case backendErrorResponse:
		return BackendMessage{Error: decodeServerError(uint32(len(payload)+4), payload)}, nil
	default:
		return BackendMessage{}, decodeErrorf("backend-message", "unrecognised message type '"+string(msgType)+"'")
	}
}
