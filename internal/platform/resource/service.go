// Package resource is the validation and orchestration layer shared by every
// resource type: one generic Service, configured per type by a Spec, sitting
// between the REST handlers and the store gateway.
package resource

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
)

// Model is implemented by every resource model through an embedded fhir.Base.
type Model interface {
	GetResourceType() string
	SetResourceType(string)
	GetID() string
	ClearID()
}

// Store is the gateway a Service delegates to.
type Store[R any] interface {
	List(ctx context.Context) ([]*R, error)
	GetByID(ctx context.Context, id string) (*R, error)
	Create(ctx context.Context, r *R) (*R, error)
	ListByReference(ctx context.Context, field, reference string) ([]*R, error)
}

// FieldCheck reports whether a required field is present. Message
// overrides the default "<Noun> <field> is required".
type FieldCheck[P any] struct {
	Field   string
	Message string
	Present func(P) bool
}

// Spec configures a Service for one resource type.
type Spec[R any, P interface {
	*R
	Model
}] struct {
	ResourceType string
	// Noun and Plural are the lower-case names used in messages,
	// e.g. "allergy intolerance" / "allergy intolerances".
	Noun   string
	Plural string

	// SubjectField is the member holding the patient reference and the
	// search parameter used to list by patient. Empty for types without a
	// subject.
	SubjectField string
	Subject      func(P) *fhir.Reference

	Required []FieldCheck[P]
	Preflight []func(ctx context.Context, r P) error
}

// HasSubject reports whether resources of this type point at a patient.
func (s Spec[R, P]) HasSubject() bool {
	return s.SubjectField != "" && s.Subject != nil
}

type Service[R any, P interface {
	*R
	Model
}] struct {
	spec     Spec[R, P]
	store    Store[R]
	resolver *Resolver
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

// NewService wires a Service. resolver may be nil only for types without a
// subject reference.
func NewService[R any, P interface {
	*R
	Model
}](spec Spec[R, P], store Store[R], resolver *Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *Service[R, P] {
	if spec.Plural == "" {
		spec.Plural = spec.Noun + "s"
	}
	return &Service[R, P]{
		spec:     spec,
		store:    store,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger.With().Str("resource_type", spec.ResourceType).Logger(),
	}
}

func (s *Service[R, P]) Spec() Spec[R, P] {
	return s.spec
}

// Create validates r, strips any client-supplied id and persists it. Every
// check runs before the store sees the resource.
func (s *Service[R, P]) Create(ctx context.Context, r P) (P, error) {
	if r == nil {
		return nil, s.reject(Errorf(KindInvalidBody, "%s data is required", title(s.spec.Noun)))
	}
	if err := s.Validate(ctx, r); err != nil {
		return nil, s.reject(err)
	}
	r.ClearID()

	created, err := s.store.Create(ctx, (*R)(r))
	if err != nil {
		return nil, Upstream("create "+s.spec.Noun, err)
	}
	out := P(created)
	s.metrics.Created(s.spec.ResourceType)
	s.logger.Info().Str("id", out.GetID()).Msg("resource created")
	return out, nil
}

// Validate runs the create-time checks in order: discriminant, subject
// reference, referenced patient existence, required fields, then the type's
// preflight hooks.
func (s *Service[R, P]) Validate(ctx context.Context, r P) error {
	switch rt := r.GetResourceType(); {
	case rt == "":
		r.SetResourceType(s.spec.ResourceType)
	case rt != s.spec.ResourceType:
		return Errorf(KindInvalidResourceType, "Invalid resource type. Must be %q", s.spec.ResourceType)
	}

	var patientID string
	if s.spec.HasSubject() {
		ref := s.spec.Subject(r)
		if ref == nil || strings.TrimSpace(ref.Reference) == "" {
			return Errorf(KindMissingPatientReference, "%s must have a valid patient reference", title(s.spec.Noun))
		}
		id, err := s.resolver.Resolve(ref.Reference, fhir.ResourcePatient)
		if err != nil {
			return err
		}
		patientID = id
	}

	if patientID != "" {
		ok, err := s.resolver.Exists(ctx, patientID)
		if err != nil {
			return err
		}
		if !ok {
			return Errorf(KindReferencedPatientNotFound, "Patient with ID %s not found", patientID)
		}
	}

	for _, check := range s.spec.Required {
		if !check.Present(r) {
			e := MissingField(check.Field)
			e.Message = title(s.spec.Noun) + " " + check.Field + " is required"
			if check.Message != "" {
				e.Message = check.Message
			}
			return e
		}
	}

	for _, preflight := range s.spec.Preflight {
		if err := preflight(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// CheckID rejects a blank id, and one that would address something other
// than a single resource on the store ("1/_history", "1/$everything").
func CheckID(noun, id string) error {
	if strings.TrimSpace(id) == "" {
		return Errorf(KindMissingID, "%s ID is required", title(noun))
	}
	if strings.ContainsAny(id, "/?#") {
		return Errorf(KindInvalidReferenceFormat, "Invalid %s ID %q", noun, id)
	}
	return nil
}

// GetByID returns nil, nil when the store has no such resource.
func (s *Service[R, P]) GetByID(ctx context.Context, id string) (P, error) {
	if err := CheckID(s.spec.Noun, id); err != nil {
		return nil, s.reject(err)
	}
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, Upstream("retrieve "+s.spec.Noun, err)
	}
	if r == nil {
		s.logger.Debug().Str("id", id).Msg("resource not found")
	}
	return P(r), nil
}

func (s *Service[R, P]) List(ctx context.Context) ([]P, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, Upstream("retrieve "+s.spec.Plural, err)
	}
	return asModels[R, P](list), nil
}

// ListByPatient returns the resources whose subject is Patient/<patientID>,
// after confirming the patient exists.
func (s *Service[R, P]) ListByPatient(ctx context.Context, patientID string) ([]P, error) {
	if err := CheckID("patient", patientID); err != nil {
		return nil, s.reject(err)
	}
	if !s.spec.HasSubject() {
		return nil, Errorf(KindUnsupported, "%s cannot be listed by patient", s.spec.Plural)
	}

	ok, err := s.resolver.Exists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.reject(Errorf(KindPatientNotFound, "Patient with ID %s not found", patientID))
	}

	list, err := s.store.ListByReference(ctx, s.spec.SubjectField, fhir.NewReference(fhir.ResourcePatient, patientID))
	if err != nil {
		return nil, Upstream("retrieve "+s.spec.Plural+" for patient", err)
	}
	return asModels[R, P](list), nil
}

func (s *Service[R, P]) reject(err error) error {
	kind := KindOf(err)
	s.metrics.Rejected(s.spec.ResourceType, string(kind))
	s.logger.Debug().Str("kind", string(kind)).Msg(err.Error())
	return err
}

func asModels[R any, P interface {
	*R
	Model
}](list []*R) []P {
	out := make([]P, len(list))
	for i, r := range list {
		out[i] = P(r)
	}
	return out
}

func title(noun string) string {
	if noun == "" {
		return noun
	}
	return strings.ToUpper(noun[:1]) + noun[1:]
}
