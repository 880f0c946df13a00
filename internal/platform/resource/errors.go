package resource

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ehr/fhir-gateway/internal/platform/upstream"
)

// Kind names one failure condition of the validation layer.
type Kind string

const (
	KindInvalidResourceType       Kind = "invalid-resource-type"
	KindMissingPatientReference   Kind = "missing-patient-reference"
	KindInvalidReferenceFormat    Kind = "invalid-reference-format"
	KindReferencedPatientNotFound Kind = "referenced-patient-not-found"
	KindPatientNotFound           Kind = "patient-not-found"
	KindMissingRequiredField      Kind = "missing-required-field"
	KindMissingID                 Kind = "missing-id"
	KindInvalidBody               Kind = "invalid-body"
	KindDuplicatePatient          Kind = "duplicate-patient"
	KindNotFound                  Kind = "not-found"
	KindUpstreamUnavailable       Kind = "upstream-unavailable"
	KindUnsupported               Kind = "unsupported"
)

// Error is the single failure type returned by services. Compare with
// errors.Is against the sentinels below; a sentinel without a Field matches
// every field of its kind.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

var (
	ErrInvalidResourceType       = &Error{Kind: KindInvalidResourceType}
	ErrMissingPatientReference   = &Error{Kind: KindMissingPatientReference}
	ErrInvalidReferenceFormat    = &Error{Kind: KindInvalidReferenceFormat}
	ErrReferencedPatientNotFound = &Error{Kind: KindReferencedPatientNotFound}
	ErrPatientNotFound           = &Error{Kind: KindPatientNotFound}
	ErrMissingRequiredField      = &Error{Kind: KindMissingRequiredField}
	ErrMissingID                 = &Error{Kind: KindMissingID}
	ErrInvalidBody               = &Error{Kind: KindInvalidBody}
	ErrDuplicatePatient          = &Error{Kind: KindDuplicatePatient}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrUpstreamUnavailable       = &Error{Kind: KindUpstreamUnavailable}
	ErrUnsupported               = &Error{Kind: KindUnsupported}
)

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// MissingField is the condition for one absent required field, e.g.
// MissingField("intent").
func MissingField(name string) *Error {
	return &Error{Kind: KindMissingRequiredField, Field: name, Message: name + " is required"}
}

// Upstream wraps a store failure as UpstreamUnavailable, keeping the status
// and message the store reported.
func Upstream(action string, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	msg := fmt.Sprintf("%s: %v", action, err)
	if code := upstream.StatusCode(err); code != 0 {
		msg = fmt.Sprintf("%s: FHIR store returned %d", action, code)
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.Message != "" {
			msg += ": " + ue.Message
		}
	}
	return &Error{Kind: KindUpstreamUnavailable, Message: msg, Err: err}
}

// KindOf returns the Kind carried by err, or "" for foreign errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// HTTPStatus maps err onto the status the REST layer answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidResourceType, KindMissingPatientReference, KindInvalidReferenceFormat,
		KindMissingRequiredField, KindMissingID, KindInvalidBody:
		return http.StatusBadRequest
	case KindReferencedPatientNotFound, KindPatientNotFound, KindNotFound:
		return http.StatusNotFound
	case KindDuplicatePatient:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
