package medication

import (
	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// MedicationRequest is a FHIR R4 MedicationRequest. Dosage timing and
// dose-and-rate are carried as raw JSON in Extra.
type MedicationRequest struct {
	fhir.Base
	Identifier                []fhir.Identifier      `json:"identifier,omitempty"`
	Status                    string                 `json:"status,omitempty"`
	StatusReason              *fhir.CodeableConcept  `json:"statusReason,omitempty"`
	Intent                    string                 `json:"intent,omitempty"`
	Category                  []fhir.CodeableConcept `json:"category,omitempty"`
	Priority                  string                 `json:"priority,omitempty"`
	DoNotPerform              *bool                  `json:"doNotPerform,omitempty"`
	MedicationCodeableConcept *fhir.CodeableConcept  `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *fhir.Reference        `json:"medicationReference,omitempty"`
	Subject                   *fhir.Reference        `json:"subject,omitempty"`
	Encounter                 *fhir.Reference        `json:"encounter,omitempty"`
	AuthoredOn                string                 `json:"authoredOn,omitempty"`
	Requester                 *fhir.Reference        `json:"requester,omitempty"`
	Performer                 *fhir.Reference        `json:"performer,omitempty"`
	Recorder                  *fhir.Reference        `json:"recorder,omitempty"`
	ReasonCode                []fhir.CodeableConcept `json:"reasonCode,omitempty"`
	ReasonReference           []fhir.Reference       `json:"reasonReference,omitempty"`
	Note                      []fhir.Annotation      `json:"note,omitempty"`
	DosageInstruction         []Dosage               `json:"dosageInstruction,omitempty"`
	DispenseRequest           *DispenseRequest       `json:"dispenseRequest,omitempty"`
	Substitution              *Substitution          `json:"substitution,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type Dosage struct {
	Sequence                 *int                   `json:"sequence,omitempty"`
	Text                     string                 `json:"text,omitempty"`
	AdditionalInstruction    []fhir.CodeableConcept `json:"additionalInstruction,omitempty"`
	PatientInstruction       string                 `json:"patientInstruction,omitempty"`
	AsNeededBoolean          *bool                  `json:"asNeededBoolean,omitempty"`
	AsNeededCodeableConcept  *fhir.CodeableConcept  `json:"asNeededCodeableConcept,omitempty"`
	Site                     *fhir.CodeableConcept  `json:"site,omitempty"`
	Route                    *fhir.CodeableConcept  `json:"route,omitempty"`
	Method                   *fhir.CodeableConcept  `json:"method,omitempty"`
	MaxDosePerAdministration *fhir.Quantity         `json:"maxDosePerAdministration,omitempty"`
	MaxDosePerLifetime       *fhir.Quantity         `json:"maxDosePerLifetime,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type DispenseRequest struct {
	ValidityPeriod         *fhir.Period    `json:"validityPeriod,omitempty"`
	NumberOfRepeatsAllowed *int            `json:"numberOfRepeatsAllowed,omitempty"`
	Quantity               *fhir.Quantity  `json:"quantity,omitempty"`
	ExpectedSupplyDuration *fhir.Quantity  `json:"expectedSupplyDuration,omitempty"`
	Performer              *fhir.Reference `json:"performer,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type Substitution struct {
	AllowedBoolean         *bool                 `json:"allowedBoolean,omitempty"`
	AllowedCodeableConcept *fhir.CodeableConcept `json:"allowedCodeableConcept,omitempty"`
	Reason                 *fhir.CodeableConcept `json:"reason,omitempty"`
}

func (m *MedicationRequest) UnmarshalJSON(data []byte) error {
	type plain MedicationRequest
	return fhir.UnmarshalOpen(data, (*plain)(m), &m.Extra)
}

func (m MedicationRequest) MarshalJSON() ([]byte, error) {
	type plain MedicationRequest
	return fhir.MarshalOpen(plain(m), m.Extra)
}

func (d *Dosage) UnmarshalJSON(data []byte) error {
	type plain Dosage
	return fhir.UnmarshalOpen(data, (*plain)(d), &d.Extra)
}

func (d Dosage) MarshalJSON() ([]byte, error) {
	type plain Dosage
	return fhir.MarshalOpen(plain(d), d.Extra)
}

func (d *DispenseRequest) UnmarshalJSON(data []byte) error {
	type plain DispenseRequest
	return fhir.UnmarshalOpen(data, (*plain)(d), &d.Extra)
}

func (d DispenseRequest) MarshalJSON() ([]byte, error) {
	type plain DispenseRequest
	return fhir.MarshalOpen(plain(d), d.Extra)
}
