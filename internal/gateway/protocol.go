package gateway

import "encoding/json"

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// ProtocolVersion is the admin protocol version spoken by this server.
const ProtocolVersion = 1

// Events pushed to authenticated clients.
const (
	EventChallenge         = "connect.challenge"
	EventConnectionChanged = "connection.changed"
	EventResolutionRefused = "resolution.refused"
)

// Frame is the envelope for every WebSocket message. Type selects which of
// the remaining fields are meaningful.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes used in responses.
const (
	CodeInvalidParams  = "invalid_params"
	CodeMethodNotFound = "method_not_found"
	CodeUnauthorized   = "unauthorized"
	CodeUnavailable    = "unavailable"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal"
	CodeProtocol       = "protocol_error"
)

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting tool.
type ClientInfo struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int        `json:"protocol"`
	Server   ServerInfo `json:"server"`
	Features Features   `json:"features"`
	Policy   Policy     `json:"policy"`
}

// ServerInfo identifies the gateway.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises the RPC methods and events of this server.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// Policy communicates protocol limits to the client.
type Policy struct {
	MaxPayload int `json:"maxPayload"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, shape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &shape}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
