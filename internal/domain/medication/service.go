package medication

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
	"github.com/ehr/fhir-gateway/internal/platform/resource"
	"github.com/ehr/fhir-gateway/internal/platform/telemetry"
)

type Service = resource.Service[MedicationRequest, *MedicationRequest]

func Spec() resource.Spec[MedicationRequest, *MedicationRequest] {
	return resource.Spec[MedicationRequest, *MedicationRequest]{
		ResourceType: fhir.ResourceMedicationRequest,
		Noun:         "medication request",
		SubjectField: "subject",
		Subject:      func(m *MedicationRequest) *fhir.Reference { return m.Subject },
		Required: []resource.FieldCheck[*MedicationRequest]{
			{Field: "intent", Present: func(m *MedicationRequest) bool { return strings.TrimSpace(m.Intent) != "" }},
		},
	}
}

func NewService(store resource.Store[MedicationRequest], resolver *resource.Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return resource.NewService(Spec(), store, resolver, metrics, logger)
}

func NewHandler(svc *Service) *resource.Handler[MedicationRequest, *MedicationRequest] {
	return resource.NewHandler(svc)
}
