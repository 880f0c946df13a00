package identity

import (
	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Patient is a FHIR R4 Patient. Members not declared here are kept in Extra
// and sent back to the store unchanged.
type Patient struct {
	fhir.Base
	Identifier           []fhir.Identifier      `json:"identifier,omitempty"`
	Active               *bool                  `json:"active,omitempty"`
	Name                 []fhir.HumanName       `json:"name,omitempty"`
	Telecom              []fhir.ContactPoint    `json:"telecom,omitempty"`
	Gender               string                 `json:"gender,omitempty"`
	BirthDate            string                 `json:"birthDate,omitempty"`
	DeceasedBoolean      *bool                  `json:"deceasedBoolean,omitempty"`
	DeceasedDateTime     string                 `json:"deceasedDateTime,omitempty"`
	Address              []fhir.Address         `json:"address,omitempty"`
	MaritalStatus        *fhir.CodeableConcept  `json:"maritalStatus,omitempty"`
	MultipleBirthBoolean *bool                  `json:"multipleBirthBoolean,omitempty"`
	MultipleBirthInteger *int                   `json:"multipleBirthInteger,omitempty"`
	Contact              []PatientContact       `json:"contact,omitempty"`
	Communication        []PatientCommunication `json:"communication,omitempty"`
	GeneralPractitioner  []fhir.Reference       `json:"generalPractitioner,omitempty"`
	ManagingOrganization *fhir.Reference        `json:"managingOrganization,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type PatientContact struct {
	Relationship []fhir.CodeableConcept `json:"relationship,omitempty"`
	Name         *fhir.HumanName        `json:"name,omitempty"`
	Telecom      []fhir.ContactPoint    `json:"telecom,omitempty"`
	Address      *fhir.Address          `json:"address,omitempty"`
	Gender       string                 `json:"gender,omitempty"`
	Organization *fhir.Reference        `json:"organization,omitempty"`
	Period       *fhir.Period           `json:"period,omitempty"`
}

type PatientCommunication struct {
	Language  fhir.CodeableConcept `json:"language"`
	Preferred *bool                `json:"preferred,omitempty"`
}

func (p *Patient) UnmarshalJSON(data []byte) error {
	type plain Patient
	return fhir.UnmarshalOpen(data, (*plain)(p), &p.Extra)
}

func (p Patient) MarshalJSON() ([]byte, error) {
	type plain Patient
	return fhir.MarshalOpen(plain(p), p.Extra)
}

// PrimaryName is the first name entry, which is the only one duplicate
// detection looks at.
func (p *Patient) PrimaryName() *fhir.HumanName {
	if len(p.Name) == 0 {
		return nil
	}
	return &p.Name[0]
}

// Practitioner is a FHIR R4 Practitioner.
type Practitioner struct {
	fhir.Base
	Identifier    []fhir.Identifier           `json:"identifier,omitempty"`
	Active        *bool                       `json:"active,omitempty"`
	Name          []fhir.HumanName            `json:"name,omitempty"`
	Telecom       []fhir.ContactPoint         `json:"telecom,omitempty"`
	Address       []fhir.Address              `json:"address,omitempty"`
	Gender        string                      `json:"gender,omitempty"`
	BirthDate     string                      `json:"birthDate,omitempty"`
	Qualification []PractitionerQualification `json:"qualification,omitempty"`
	Communication []fhir.CodeableConcept      `json:"communication,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type PractitionerQualification struct {
	Identifier []fhir.Identifier    `json:"identifier,omitempty"`
	Code       fhir.CodeableConcept `json:"code"`
	Period     *fhir.Period         `json:"period,omitempty"`
	Issuer     *fhir.Reference      `json:"issuer,omitempty"`
}

func (p *Practitioner) UnmarshalJSON(data []byte) error {
	type plain Practitioner
	return fhir.UnmarshalOpen(data, (*plain)(p), &p.Extra)
}

func (p Practitioner) MarshalJSON() ([]byte, error) {
	type plain Practitioner
	return fhir.MarshalOpen(plain(p), p.Extra)
}
