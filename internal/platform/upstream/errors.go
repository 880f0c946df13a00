package upstream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Error is any failed exchange with the FHIR store: a transport failure
// (StatusCode 0), a non-2xx response, or a body that could not be decoded.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Outcome    *fhir.OperationOutcome
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("FHIR store %s %s failed: %s", e.Method, e.URL, msg)
	}
	return fmt.Sprintf("FHIR store %s %s returned %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an upstream 404 or 410 (deleted).
func IsNotFound(err error) bool {
	var ue *Error
	if !errors.As(err, &ue) {
		return false
	}
	return ue.StatusCode == http.StatusNotFound || ue.StatusCode == http.StatusGone
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

func responseError(method, url string, status int, body []byte) *Error {
	e := &Error{Method: method, URL: url, StatusCode: status}
	if oo := fhir.ParseOperationOutcome(body); oo != nil {
		e.Outcome = oo
		e.Message = oo.Summary()
		return e
	}
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	e.Message = msg
	return e
}

func malformed(method, url string, status int, err error) *Error {
	return &Error{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Message:    "malformed response: " + err.Error(),
		Err:        err,
	}
}
