package clinical

import (
	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
)

type (
	AllergyIntoleranceService = resource.Service[AllergyIntolerance, *AllergyIntolerance]
	ConditionService          = resource.Service[Condition, *Condition]
	ObservationService        = resource.Service[Observation, *Observation]
)

// AllergyIntoleranceSpec lists allergies by the "patient" search parameter
// and requires a manifestation on every reaction.
func AllergyIntoleranceSpec() resource.Spec[AllergyIntolerance, *AllergyIntolerance] {
	return resource.Spec[AllergyIntolerance, *AllergyIntolerance]{
		ResourceType: fhir.ResourceAllergyIntolerance,
		Noun:         "allergy intolerance",
		SubjectField: "patient",
		Subject:      func(a *AllergyIntolerance) *fhir.Reference { return a.Patient },
		Required: []resource.FieldCheck[*AllergyIntolerance]{{
			Field:   "reaction.manifestation",
			Message: "Each allergy intolerance reaction must have a manifestation",
			Present: reactionsHaveManifestation,
		}},
	}
}

func reactionsHaveManifestation(a *AllergyIntolerance) bool {
	for _, r := range a.Reaction {
		if len(r.Manifestation) == 0 {
			return false
		}
	}
	return true
}

func ConditionSpec() resource.Spec[Condition, *Condition] {
	return resource.Spec[Condition, *Condition]{
		ResourceType: fhir.ResourceCondition,
		Noun:         "condition",
		SubjectField: "subject",
		Subject:      func(c *Condition) *fhir.Reference { return c.Subject },
	}
}

func ObservationSpec() resource.Spec[Observation, *Observation] {
	return resource.Spec[Observation, *Observation]{
		ResourceType: fhir.ResourceObservation,
		Noun:         "observation",
		SubjectField: "subject",
		Subject:      func(o *Observation) *fhir.Reference { return o.Subject },
		Required: []resource.FieldCheck[*Observation]{
			{Field: "code", Present: func(o *Observation) bool { return !o.Code.IsEmpty() }},
		},
	}
}

func NewAllergyIntoleranceService(store resource.Store[AllergyIntolerance], resolver *resource.Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *AllergyIntoleranceService {
	return resource.NewService(AllergyIntoleranceSpec(), store, resolver, metrics, logger)
}

func NewConditionService(store resource.Store[Condition], resolver *resource.Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *ConditionService {
	return resource.NewService(ConditionSpec(), store, resolver, metrics, logger)
}

func NewObservationService(store resource.Store[Observation], resolver *resource.Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *ObservationService {
	return resource.NewService(ObservationSpec(), store, resolver, metrics, logger)
}
