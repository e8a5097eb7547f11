package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonwraymond/jatpclient/autherr"
)

// Version is the JATP protocol version spoken by this client.
const Version = "1.0"

// AuthMode identifies which authentication fields a request carries.
type AuthMode string

const (
	AuthNone    AuthMode = "none"
	AuthJWT     AuthMode = "jwt"
	AuthService AuthMode = "service"
)

// Credentials are the authentication inputs for a single request.
//
// A non-empty JWTToken takes precedence over the service name/secret pair;
// the pair is used only when both halves are present.
type Credentials struct {
	JWTToken      string
	ServiceName   string
	ServiceSecret string
}

// BearerToken returns credentials that authenticate with a JWT.
func BearerToken(token string) Credentials {
	return Credentials{JWTToken: token}
}

// ServiceAuth returns credentials for inter-service authentication.
func ServiceAuth(name, secret string) Credentials {
	return Credentials{ServiceName: name, ServiceSecret: secret}
}

// Mode returns the authentication mode these credentials select.
func (c Credentials) Mode() AuthMode {
	switch {
	case c.JWTToken != "":
		return AuthJWT
	case c.ServiceName != "" && c.ServiceSecret != "":
		return AuthService
	default:
		return AuthNone
	}
}

// Request is the outbound JATP envelope.
type Request struct {
	ProtocolVersion string         `json:"protocol_version"`
	Method          string         `json:"method"`
	RequestID       string         `json:"request_id"`
	Payload         map[string]any `json:"payload"`
	JWTToken        string         `json:"jwt_token,omitempty"`
	ServiceName     string         `json:"service_name,omitempty"`
	ServiceSecret   string         `json:"service_secret,omitempty"`
}

// NewRequest builds a request envelope with a fresh request id.
//
// A nil payload is normalized to an empty object. Exactly one auth mode is
// applied according to creds.Mode.
func NewRequest(method string, payload map[string]any, creds Credentials) (*Request, error) {
	if _, _, err := SplitMethod(method); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}

	req := &Request{
		ProtocolVersion: Version,
		Method:          method,
		RequestID:       NewRequestID(),
		Payload:         payload,
	}

	switch creds.Mode() {
	case AuthJWT:
		req.JWTToken = creds.JWTToken
	case AuthService:
		req.ServiceName = creds.ServiceName
		req.ServiceSecret = creds.ServiceSecret
	}

	return req, nil
}

// AuthMode reports the authentication fields present on the request.
func (r *Request) AuthMode() AuthMode {
	return Credentials{
		JWTToken:      r.JWTToken,
		ServiceName:   r.ServiceName,
		ServiceSecret: r.ServiceSecret,
	}.Mode()
}

// Encode serializes the request as one compact JSON line without the
// trailing newline. HTML characters and forward slashes are left unescaped.
func (r *Request) Encode() ([]byte, error) {
	if r.Payload == nil {
		r.Payload = map[string]any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, autherr.Wrap(autherr.KindInvalidRequest, err,
			fmt.Sprintf("protocol: encode request %s: %v", r.Method, err))
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BuildRequest builds and encodes a request in one step.
func BuildRequest(method string, payload map[string]any, creds Credentials) ([]byte, error) {
	req, err := NewRequest(method, payload, creds)
	if err != nil {
		return nil, err
	}
	return req.Encode()
}

// SplitMethod splits "Service.Method" into its parts.
func SplitMethod(method string) (service, name string, err error) {
	service, name, ok := strings.Cut(method, ".")
	if !ok || service == "" || name == "" || strings.Contains(name, ".") {
		return "", "", ErrInvalidMethod.Clone()
	}
	return service, name, nil
}

// ErrorInfo is the structured error carried by a failed response.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is the inbound JATP envelope.
type Response struct {
	ProtocolVersion string
	RequestID       string
	Success         bool
	Data            map[string]any
	Error           *ErrorInfo
}

type wireResponse struct {
	ProtocolVersion *string        `json:"protocol_version"`
	RequestID       *string        `json:"request_id"`
	Success         *bool          `json:"success"`
	Data            map[string]any `json:"data"`
	Error           *ErrorInfo     `json:"error"`
}

// ParseResponse decodes a response line and checks the required fields.
//
// It does not compare the request id with the one that was sent.
func ParseResponse(raw []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, autherr.Wrap(autherr.KindProtocol, err,
			fmt.Sprintf("protocol: invalid response JSON: %v", err))
	}

	if w.ProtocolVersion == nil {
		return nil, ErrMissingProtocolVersion.Clone()
	}
	if w.RequestID == nil {
		return nil, ErrMissingRequestID.Clone()
	}
	if w.Success == nil {
		return nil, ErrMissingSuccess.Clone()
	}

	return &Response{
		ProtocolVersion: *w.ProtocolVersion,
		RequestID:       *w.RequestID,
		Success:         *w.Success,
		Data:            w.Data,
		Error:           w.Error,
	}, nil
}

// CheckVersion rejects any protocol version other than Version.
func CheckVersion(version string) error {
	if version == Version {
		return nil
	}
	return autherr.Newf(autherr.KindUnsupportedProtocolVersion,
		"protocol: unsupported protocol version %q, want %q", version, Version).
		WithCode(autherr.CodeUnsupportedProtocolVersion)
}

// Err converts a failed response into a translated error.
// It returns nil for successful responses.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}

	code := autherr.CodeUnknown
	message := "Unknown error"
	var details map[string]any
	if r.Error != nil {
		if r.Error.Code != "" {
			code = r.Error.Code
		}
		if r.Error.Message != "" {
			message = r.Error.Message
		}
		details = r.Error.Details
	}
	return autherr.FromWire(code, message, details)
}
