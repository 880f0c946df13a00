package encounter

import (
	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Encounter is a FHIR R4 Encounter. Undeclared members ride along in Extra.
type Encounter struct {
	fhir.Base
	Identifier      []fhir.Identifier      `json:"identifier,omitempty"`
	Status          string                 `json:"status,omitempty"`
	StatusHistory   []StatusHistory        `json:"statusHistory,omitempty"`
	Class           *fhir.Coding           `json:"class,omitempty"`
	Type            []fhir.CodeableConcept `json:"type,omitempty"`
	ServiceType     *fhir.CodeableConcept  `json:"serviceType,omitempty"`
	Priority        *fhir.CodeableConcept  `json:"priority,omitempty"`
	Subject         *fhir.Reference        `json:"subject,omitempty"`
	EpisodeOfCare   []fhir.Reference       `json:"episodeOfCare,omitempty"`
	BasedOn         []fhir.Reference       `json:"basedOn,omitempty"`
	Participant     []Participant          `json:"participant,omitempty"`
	Appointment     []fhir.Reference       `json:"appointment,omitempty"`
	Period          *fhir.Period           `json:"period,omitempty"`
	ReasonCode      []fhir.CodeableConcept `json:"reasonCode,omitempty"`
	ReasonReference []fhir.Reference       `json:"reasonReference,omitempty"`
	Diagnosis       []Diagnosis            `json:"diagnosis,omitempty"`
	Location        []Location             `json:"location,omitempty"`
	ServiceProvider *fhir.Reference        `json:"serviceProvider,omitempty"`
	PartOf          *fhir.Reference        `json:"partOf,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type StatusHistory struct {
	Status string      `json:"status"`
	Period fhir.Period `json:"period"`
}

type Participant struct {
	Type       []fhir.CodeableConcept `json:"type,omitempty"`
	Period     *fhir.Period           `json:"period,omitempty"`
	Individual *fhir.Reference        `json:"individual,omitempty"`
}

type Diagnosis struct {
	Condition fhir.Reference        `json:"condition"`
	Use       *fhir.CodeableConcept `json:"use,omitempty"`
	Rank      *int                  `json:"rank,omitempty"`
}

type Location struct {
	Location fhir.Reference `json:"location"`
	Status   string         `json:"status,omitempty"`
	Period   *fhir.Period   `json:"period,omitempty"`
}

func (e *Encounter) UnmarshalJSON(data []byte) error {
	type plain Encounter
	return fhir.UnmarshalOpen(data, (*plain)(e), &e.Extra)
}

func (e Encounter) MarshalJSON() ([]byte, error) {
	type plain Encounter
	return fhir.MarshalOpen(plain(e), e.Extra)
}
