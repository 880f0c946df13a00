package resource

import (
	"context"
	"strings"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Getter is the read side of a gateway.
type Getter[R any] interface {
	GetByID(ctx context.Context, id string) (*R, error)
}

// Resolver turns patient references into ids and checks them against the
// store. Every check is a round trip; nothing is cached, since the patient
// may be deleted between two requests.
type Resolver struct {
	exists func(ctx context.Context, id string) (bool, error)
}

func NewResolver[R any](patients Getter[R]) *Resolver {
	return &Resolver{
		exists: func(ctx context.Context, id string) (bool, error) {
			p, err := patients.GetByID(ctx, id)
			if err != nil {
				return false, err
			}
			return p != nil, nil
		},
	}
}

// Resolve extracts the id from "<expectedType>/<id>".
func (r *Resolver) Resolve(ref, expectedType string) (string, error) {
	id, err := fhir.ParseReference(ref, expectedType)
	if err != nil {
		return "", &Error{
			Kind:    KindInvalidReferenceFormat,
			Message: "Invalid " + strings.ToLower(expectedType) + " reference format",
			Err:     err,
		}
	}
	return id, nil
}

// Exists reports whether the patient is present in the store right now.
func (r *Resolver) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := r.exists(ctx, id)
	if err != nil {
		return false, Upstream("look up patient "+id, err)
	}
	return ok, nil
}
