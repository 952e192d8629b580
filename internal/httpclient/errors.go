package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NetworkError is a request that never produced an HTTP response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Kind() string { return "NetworkError" }

// StatusError is a non-2xx response. Message is the "message" field of a
// JSON error body when present.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	text := fmt.Sprintf("%s %s returned %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		text += ": " + e.Message
	}
	return text
}

func (e *StatusError) Kind() string { return "HTTPError" }

func newStatusError(method, url string, resp *Response) *StatusError {
	statusErr := &StatusError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &parsed) == nil {
		statusErr.Message = strings.TrimSpace(parsed.Message)
	}
	return statusErr
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the response status of a *StatusError in err's chain,
// or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}
