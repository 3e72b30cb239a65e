package telegram

import "fmt"

// TransportError reports a failed Bot API call: the request could not be
// made, the HTTP status was not 2xx, the body was not JSON, or the API
// answered ok=false.
type TransportError struct {
	Endpoint    string
	StatusCode  int
	ErrorCode   int
	Description string
	Err         error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("telegram %s: %v", e.Endpoint, e.Err)
	case e.Description != "":
		return fmt.Sprintf("telegram %s: status %d: %s", e.Endpoint, e.StatusCode, e.Description)
	default:
		return fmt.Sprintf("telegram %s: status %d", e.Endpoint, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
