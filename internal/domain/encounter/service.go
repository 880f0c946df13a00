package encounter

import (
	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
)

type Service = resource.Service[Encounter, *Encounter]

// Spec requires a patient subject, a status and a class.
func Spec() resource.Spec[Encounter, *Encounter] {
	return resource.Spec[Encounter, *Encounter]{
		ResourceType: fhir.ResourceEncounter,
		Noun:         "encounter",
		SubjectField: "subject",
		Subject:      func(e *Encounter) *fhir.Reference { return e.Subject },
		Required: []resource.FieldCheck[*Encounter]{
			{Field: "status", Present: func(e *Encounter) bool { return e.Status != "" }},
			{Field: "class", Present: func(e *Encounter) bool { return e.Class != nil }},
		},
	}
}

func NewService(store resource.Store[Encounter], resolver *resource.Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return resource.NewService(Spec(), store, resolver, metrics, logger)
}

func NewHandler(svc *Service) *resource.Handler[Encounter, *Encounter] {
	return resource.NewHandler(svc)
}
