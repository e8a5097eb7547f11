// Package protocol implements the JATP wire codec.
//
// JATP frames are single-line JSON objects terminated by a newline. A request
// envelope names a "Service.Method", carries a correlation request id, an
// object payload and at most one authentication mode; a response envelope
// reports success with either data or a structured error.
//
//	frame, err := protocol.BuildRequest("JWTService.IssueToken", payload,
//	    protocol.ServiceAuth("billing", secret))
//	...
//	resp, err := protocol.ParseResponse(line)
package protocol
