package dispatch

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"RelayClient/internal/session"
	"RelayClient/internal/types"
)

// Status is the result code carried by a dispatch response.
type Status byte

const (
	StatusOK             Status = 0 // StatusOK carries a session
	StatusInvalidRequest Status = 1 // StatusInvalidRequest rejects a malformed request
	StatusNoNodes        Status = 2 // StatusNoNodes means no eligible service node exists
	StatusInternal       Status = 3 // StatusInternal is a dispatcher-side failure
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidRequest:
		return "invalid_request"
	case StatusNoNodes:
		return "no_nodes"
	case StatusInternal:
		return "internal"
	default:
		return fmt.Sprintf("status(%d)", byte(s))
	}
}

var (
	// ErrMalformed is returned for bytes that are not a dispatch message.
	ErrMalformed = errors.New("malformed dispatch message")

	// ErrMissingSession is returned when an OK response carries no session.
	ErrMissingSession = errors.New("dispatch response has no session")

	// ErrEmptySession is returned when the returned session has no nodes.
	ErrEmptySession = errors.New("dispatch session has no nodes")
)

// Request asks a dispatcher for the session of an application on a chain.
type Request struct {
	AppPublicKey  []byte // AppPublicKey identifies the application
	Chain         string // Chain is the target chain identifier
	SessionHeight uint64 // SessionHeight is the starting height (0 = current)
}

// NewRequest builds the dispatch request for cred on chain.
func NewRequest(cred session.Credential, chain string, startHeight uint64) Request {
	return Request{
		AppPublicKey:  cred.AppPublicKey,
		Chain:         chain,
		SessionHeight: startHeight,
	}
}

// Response is a decoded dispatch response.
type Response struct {
	Status  Status           // Status is the dispatcher result code
	Message string           // Message explains a non-OK status
	Session *session.Session // Session is set when Status is OK
}

// EncodeRequest serializes r.
func EncodeRequest(r Request) []byte {
	builder := flatbuffers.NewBuilder(128)

	appKey := builder.CreateByteVector(r.AppPublicKey)
	chain := builder.CreateString(r.Chain)

	types.DispatchRequestStart(builder)
	types.DispatchRequestAddAppPublicKey(builder, appKey)
	types.DispatchRequestAddChain(builder, chain)
	types.DispatchRequestAddSessionHeight(builder, r.SessionHeight)
	builder.Finish(types.DispatchRequestEnd(builder))

	return builder.FinishedBytes()
}

// DecodeRequest parses a request produced by EncodeRequest.
func DecodeRequest(data []byte) (r Request, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r, err = Request{}, fmt.Errorf("%w: %v", ErrMalformed, rec)
		}
	}()

	fb := types.GetRootAsDispatchRequest(data, 0)

	r = Request{
		AppPublicKey:  append([]byte(nil), fb.AppPublicKeyBytes()...),
		Chain:         string(fb.Chain()),
		SessionHeight: fb.SessionHeight(),
	}

	return r, nil
}

// EncodeResponse serializes r. The session is only written for StatusOK.
func EncodeResponse(r Response) []byte {
	builder := flatbuffers.NewBuilder(1024)

	var sessionOffset flatbuffers.UOffsetT
	if r.Status == StatusOK && r.Session != nil {
		sessionOffset = session.BuildSession(builder, r.Session)
	}

	message := builder.CreateString(r.Message)

	types.DispatchResponseStart(builder)
	types.DispatchResponseAddStatus(builder, byte(r.Status))
	types.DispatchResponseAddMessage(builder, message)
	if sessionOffset != 0 {
		types.DispatchResponseAddSession(builder, sessionOffset)
	}
	builder.Finish(types.DispatchResponseEnd(builder))

	return builder.FinishedBytes()
}

// DecodeResponse parses a dispatch response.
// Only structural problems are errors; the caller inspects Status.
func DecodeResponse(data []byte) (r Response, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r, err = Response{}, fmt.Errorf("%w: %v", ErrMalformed, rec)
		}
	}()

	fb := types.GetRootAsDispatchResponse(data, 0)

	r = Response{
		Status:  Status(fb.Status()),
		Message: string(fb.Message()),
	}

	if fbSession := fb.Session(nil); fbSession != nil {
		s, err := session.FromTable(fbSession)
		if err != nil {
			return Response{}, fmt.Errorf("decode session:\n%w", err)
		}
		r.Session = s
	}

	return r, nil
}

// decodeSession turns a raw dispatch payload into a usable session for chain.
// Returns *StatusError for a non-OK status and a structural error otherwise.
func decodeSession(raw []byte, chain string) (*session.Session, error) {
	resp, err := DecodeResponse(raw)
	if err != nil {
		return nil, err
	}

	if resp.Status != StatusOK {
		return nil, &StatusError{Status: resp.Status, Message: resp.Message}
	}

	if resp.Session == nil {
		return nil, ErrMissingSession
	}

	if len(resp.Session.Nodes) == 0 {
		return nil, ErrEmptySession
	}

	if resp.Session.Header.Chain != chain {
		return nil, fmt.Errorf("%w: session for chain %q, requested %q",
			ErrMalformed, resp.Session.Header.Chain, chain)
	}

	return resp.Session, nil
}
