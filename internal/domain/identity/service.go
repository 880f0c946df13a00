package identity

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
)

// PatientStore is the Patient gateway: the common store operations plus
// search and JSON Patch.
type PatientStore interface {
	resource.Store[Patient]
	Search(ctx context.Context, params url.Values) ([]*Patient, error)
	Patch(ctx context.Context, id string, ops []fhir.PatchOperation) (*Patient, error)
}

// PatientService adds duplicate detection on create and partial updates to
// the generic service.
type PatientService struct {
	*resource.Service[Patient, *Patient]

	store  PatientStore
	nulls  fhir.NullPolicy
	logger zerolog.Logger
}

func NewPatientService(store PatientStore, nulls fhir.NullPolicy, metrics *telemetry.Metrics, logger zerolog.Logger) *PatientService {
	s := &PatientService{
		store:  store,
		nulls:  nulls,
		logger: logger.With().Str("resource_type", fhir.ResourcePatient).Logger(),
	}
	spec := resource.Spec[Patient, *Patient]{
		ResourceType: fhir.ResourcePatient,
		Noun:         "patient",
		Preflight:    []func(context.Context, *Patient) error{s.rejectDuplicate},
	}
	s.Service = resource.NewService(spec, store, nil, metrics, logger)
	return s
}

func (s *PatientService) rejectDuplicate(ctx context.Context, p *Patient) error {
	existing, err := s.FindDuplicate(ctx, p)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	display := "Unknown"
	if name := existing.PrimaryName(); name != nil {
		display = name.Display()
	}
	s.logger.Info().Str("existing_id", existing.ID).Msg("duplicate patient rejected")
	return resource.Errorf(resource.KindDuplicatePatient,
		"A patient with the same name (%s) and birthdate (%s) already exists", display, p.BirthDate)
}

// FindDuplicate returns an existing patient with the same first-entry family
// name, the same birth date and every given name of p, or nil. Patients
// without a family name or birth date are never duplicates.
func (s *PatientService) FindDuplicate(ctx context.Context, p *Patient) (*Patient, error) {
	name := p.PrimaryName()
	if name == nil || name.Family == "" || p.BirthDate == "" {
		return nil, nil
	}
	candidates, err := s.store.Search(ctx, url.Values{
		"name":      []string{name.Family},
		"birthdate": []string{p.BirthDate},
	})
	if err != nil {
		return nil, resource.Upstream("search patients", err)
	}
	for _, c := range candidates {
		if sameName(name, c.PrimaryName()) {
			return c, nil
		}
	}
	return nil, nil
}

// sameName requires an exact family match and every incoming given name to
// appear, ignoring case, among the existing given names.
func sameName(incoming, existing *fhir.HumanName) bool {
	if existing == nil || existing.Family != incoming.Family {
		return false
	}
	if len(incoming.Given) == 0 {
		return true
	}
	if len(existing.Given) == 0 {
		return false
	}
	for _, want := range incoming.Given {
		found := false
		for _, have := range existing.Given {
			if strings.EqualFold(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Update applies a top-level merge to the patient as a JSON Patch. The
// patient is re-read first so a missing id fails with NotFound rather than a
// store error.
func (s *PatientService) Update(ctx context.Context, id string, fields fhir.Fields) (*Patient, error) {
	if err := resource.CheckID("patient", id); err != nil {
		return nil, err
	}
	if err := checkMergeIdentity(id, fields); err != nil {
		return nil, err
	}

	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, resource.Upstream("retrieve patient", err)
	}
	if current == nil {
		return nil, resource.Errorf(resource.KindNotFound, "Patient with ID %s not found", id)
	}

	ops := fhir.TranslateMerge(fields, s.nulls)
	if s.nulls == fhir.NullRemove {
		ops = dropAbsentRemovals(ops, current)
	}
	if len(ops) == 0 {
		s.logger.Debug().Str("id", id).Msg("empty patch, nothing to update")
		return current, nil
	}

	updated, err := s.store.Patch(ctx, id, ops)
	if err != nil {
		return nil, resource.Upstream("update patient", err)
	}
	s.logger.Info().Str("id", id).Int("operations", len(ops)).Msg("patient updated")
	return updated, nil
}

// checkMergeIdentity rejects merges that would retype the resource or move
// it to another id.
func checkMergeIdentity(id string, fields fhir.Fields) error {
	if raw, ok := fields.Get("resourceType"); ok {
		var rt string
		if json.Unmarshal(raw, &rt) != nil || (rt != "" && rt != fhir.ResourcePatient) {
			return resource.Errorf(resource.KindInvalidResourceType, "Invalid resource type. Must be %q", fhir.ResourcePatient)
		}
	}
	if raw, ok := fields.Get("id"); ok {
		var got string
		if json.Unmarshal(raw, &got) != nil || (got != "" && got != id) {
			return resource.Errorf(resource.KindInvalidBody, "Patient ID in body does not match %s", id)
		}
	}
	return nil
}

// dropAbsentRemovals discards "remove" operations for members the patient
// does not have; RFC 6902 makes removing a missing member an error.
func dropAbsentRemovals(ops []fhir.PatchOperation, current *Patient) []fhir.PatchOperation {
	data, err := json.Marshal(current)
	if err != nil {
		return ops
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return ops
	}
	out := ops[:0]
	for _, op := range ops {
		if op.Op == fhir.PatchRemove {
			if _, ok := members[fhir.UnescapePointer(strings.TrimPrefix(op.Path, "/"))]; !ok {
				continue
			}
		}
		out = append(out, op)
	}
	return out
}

// NewPractitionerService builds the Practitioner service. Practitioners have
// no subject, so only the discriminant is checked.
func NewPractitionerService(store resource.Store[Practitioner], metrics *telemetry.Metrics, logger zerolog.Logger) *resource.Service[Practitioner, *Practitioner] {
	return resource.NewService(resource.Spec[Practitioner, *Practitioner]{
		ResourceType: fhir.ResourcePractitioner,
		Noun:         "practitioner",
	}, store, nil, metrics, logger)
}
