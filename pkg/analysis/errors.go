package analysis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analysis failures
type ErrorKind int

const (
	// ServerRejected means the service answered with a failure status
	ServerRejected ErrorKind = iota + 1
	// NoResponse means the service could not be reached or timed out
	NoResponse
	// ClientError means the request could not be built
	ClientError
)

func (k ErrorKind) String() string {
	switch k {
	case ServerRejected:
		return "server rejected"
	case NoResponse:
		return "no response"
	case ClientError:
		return "client error"
	default:
		return "unknown"
	}
}

// Error is returned by every analyzer for a failed call
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status, ServerRejected only
	Message string // server-provided or local description
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ServerRejected && e.Status > 0:
		return fmt.Sprintf("analysis %s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("analysis %s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("analysis %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func rejected(status int, message string) *Error {
	return &Error{Kind: ServerRejected, Status: status, Message: message}
}

func noResponse(err error) *Error {
	return &Error{Kind: NoResponse, Message: "no response from analysis service", Err: err}
}

func clientError(message string, err error) *Error {
	return &Error{Kind: ClientError, Message: message, Err: err}
}

// Scope names the kind of analysis an error came from
type Scope string

const (
	ScopeVideo Scope = "video"
	ScopeLive  Scope = "live"
)

// Describe turns an analysis failure into the single message shown to the user
func Describe(err error, scope Scope) string {
	var aerr *Error
	if !errors.As(err, &aerr) {
		if scope == ScopeLive {
			return "Live analysis error. Check backend console."
		}
		return "An unexpected error occurred during video analysis."
	}

	switch aerr.Kind {
	case ServerRejected:
		msg := aerr.Message
		if msg == "" {
			msg = "Unknown error"
		}
		text := "Server Error: " + msg
		if aerr.Status > 0 {
			text = fmt.Sprintf("Server Error: %d - %s", aerr.Status, msg)
		}
		if scope == ScopeLive {
			return "Live analysis error. " + text
		}
		return text

	case NoResponse:
		return fmt.Sprintf("No response from backend for %s analysis. Is the backend server running?", scope)

	case ClientError:
		detail := aerr.Message
		if aerr.Err != nil {
			detail = fmt.Sprintf("%s: %v", aerr.Message, aerr.Err)
		}
		return fmt.Sprintf("Request Error for %s analysis: %s", scope, detail)
	}

	return fmt.Sprintf("Unexpected error during %s analysis.", scope)
}
