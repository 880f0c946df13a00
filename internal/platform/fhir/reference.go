package fhir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidReference is returned when a reference string is not of the form
// "<Type>/<id>" for the expected type.
var ErrInvalidReference = errors.New("invalid reference format")

// ParseReference extracts the logical id from a relative reference such as
// "Patient/123". A versioned reference ("Patient/123/_history/2") yields the
// logical id "123".
func ParseReference(ref, expectedType string) (string, error) {
	prefix := expectedType + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", fmt.Errorf("%w: %q is not a %s reference", ErrInvalidReference, ref, expectedType)
	}
	id := strings.TrimPrefix(ref, prefix)
	if base, _, ok := strings.Cut(id, "/_history/"); ok {
		id = base
	}
	if id == "" || strings.TrimSpace(id) != id || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %q has no usable %s id", ErrInvalidReference, ref, expectedType)
	}
	return id, nil
}

// NewReference builds the relative reference string for a resource.
func NewReference(resourceType, id string) string {
	return resourceType + "/" + id
}
