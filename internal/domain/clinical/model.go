package clinical

import (
	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// AllergyIntolerance is a FHIR R4 AllergyIntolerance. The patient is held in
// "patient", not "subject".
type AllergyIntolerance struct {
	fhir.Base
	Identifier         []fhir.Identifier     `json:"identifier,omitempty"`
	ClinicalStatus     *fhir.CodeableConcept `json:"clinicalStatus,omitempty"`
	VerificationStatus *fhir.CodeableConcept `json:"verificationStatus,omitempty"`
	Type               string                `json:"type,omitempty"`
	Category           []string              `json:"category,omitempty"`
	Criticality        string                `json:"criticality,omitempty"`
	Code               *fhir.CodeableConcept `json:"code,omitempty"`
	Patient            *fhir.Reference       `json:"patient,omitempty"`
	Encounter          *fhir.Reference       `json:"encounter,omitempty"`
	OnsetDateTime      string                `json:"onsetDateTime,omitempty"`
	OnsetPeriod        *fhir.Period          `json:"onsetPeriod,omitempty"`
	OnsetString        string                `json:"onsetString,omitempty"`
	RecordedDate       string                `json:"recordedDate,omitempty"`
	Recorder           *fhir.Reference       `json:"recorder,omitempty"`
	Asserter           *fhir.Reference       `json:"asserter,omitempty"`
	LastOccurrence     string                `json:"lastOccurrence,omitempty"`
	Note               []fhir.Annotation     `json:"note,omitempty"`
	Reaction           []Reaction            `json:"reaction,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type Reaction struct {
	Substance     *fhir.CodeableConcept  `json:"substance,omitempty"`
	Manifestation []fhir.CodeableConcept `json:"manifestation"`
	Description   string                 `json:"description,omitempty"`
	Onset         string                 `json:"onset,omitempty"`
	Severity      string                 `json:"severity,omitempty"`
	ExposureRoute *fhir.CodeableConcept  `json:"exposureRoute,omitempty"`
	Note          []fhir.Annotation      `json:"note,omitempty"`
}

func (a *AllergyIntolerance) UnmarshalJSON(data []byte) error {
	type plain AllergyIntolerance
	return fhir.UnmarshalOpen(data, (*plain)(a), &a.Extra)
}

func (a AllergyIntolerance) MarshalJSON() ([]byte, error) {
	type plain AllergyIntolerance
	return fhir.MarshalOpen(plain(a), a.Extra)
}

// Condition is a FHIR R4 Condition.
type Condition struct {
	fhir.Base
	Identifier         []fhir.Identifier      `json:"identifier,omitempty"`
	ClinicalStatus     *fhir.CodeableConcept  `json:"clinicalStatus,omitempty"`
	VerificationStatus *fhir.CodeableConcept  `json:"verificationStatus,omitempty"`
	Category           []fhir.CodeableConcept `json:"category,omitempty"`
	Severity           *fhir.CodeableConcept  `json:"severity,omitempty"`
	Code               *fhir.CodeableConcept  `json:"code,omitempty"`
	BodySite           []fhir.CodeableConcept `json:"bodySite,omitempty"`
	Subject            *fhir.Reference        `json:"subject,omitempty"`
	Encounter          *fhir.Reference        `json:"encounter,omitempty"`
	OnsetDateTime      string                 `json:"onsetDateTime,omitempty"`
	OnsetPeriod        *fhir.Period           `json:"onsetPeriod,omitempty"`
	OnsetString        string                 `json:"onsetString,omitempty"`
	AbatementDateTime  string                 `json:"abatementDateTime,omitempty"`
	AbatementPeriod    *fhir.Period           `json:"abatementPeriod,omitempty"`
	AbatementString    string                 `json:"abatementString,omitempty"`
	RecordedDate       string                 `json:"recordedDate,omitempty"`
	Recorder           *fhir.Reference        `json:"recorder,omitempty"`
	Asserter           *fhir.Reference        `json:"asserter,omitempty"`
	Stage              []ConditionStage       `json:"stage,omitempty"`
	Evidence           []ConditionEvidence    `json:"evidence,omitempty"`
	Note               []fhir.Annotation      `json:"note,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type ConditionStage struct {
	Summary    *fhir.CodeableConcept `json:"summary,omitempty"`
	Assessment []fhir.Reference      `json:"assessment,omitempty"`
	Type       *fhir.CodeableConcept `json:"type,omitempty"`
}

type ConditionEvidence struct {
	Code   []fhir.CodeableConcept `json:"code,omitempty"`
	Detail []fhir.Reference       `json:"detail,omitempty"`
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	return fhir.UnmarshalOpen(data, (*plain)(c), &c.Extra)
}

func (c Condition) MarshalJSON() ([]byte, error) {
	type plain Condition
	return fhir.MarshalOpen(plain(c), c.Extra)
}

// Observation is a FHIR R4 Observation. Only the common value[x] choices are
// declared; the rest (valueRange, valueSampledData, ...) stay in Extra.
type Observation struct {
	fhir.Base
	Identifier           []fhir.Identifier      `json:"identifier,omitempty"`
	BasedOn              []fhir.Reference       `json:"basedOn,omitempty"`
	PartOf               []fhir.Reference       `json:"partOf,omitempty"`
	Status               string                 `json:"status,omitempty"`
	Category             []fhir.CodeableConcept `json:"category,omitempty"`
	Code                 *fhir.CodeableConcept  `json:"code,omitempty"`
	Subject              *fhir.Reference        `json:"subject,omitempty"`
	Focus                []fhir.Reference       `json:"focus,omitempty"`
	Encounter            *fhir.Reference        `json:"encounter,omitempty"`
	EffectiveDateTime    string                 `json:"effectiveDateTime,omitempty"`
	EffectivePeriod      *fhir.Period           `json:"effectivePeriod,omitempty"`
	Issued               string                 `json:"issued,omitempty"`
	Performer            []fhir.Reference       `json:"performer,omitempty"`
	ValueQuantity        *fhir.Quantity         `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *fhir.CodeableConcept  `json:"valueCodeableConcept,omitempty"`
	ValueString          string                 `json:"valueString,omitempty"`
	ValueBoolean         *bool                  `json:"valueBoolean,omitempty"`
	ValueInteger         *int                   `json:"valueInteger,omitempty"`
	ValueDateTime        string                 `json:"valueDateTime,omitempty"`
	ValuePeriod          *fhir.Period           `json:"valuePeriod,omitempty"`
	DataAbsentReason     *fhir.CodeableConcept  `json:"dataAbsentReason,omitempty"`
	Interpretation       []fhir.CodeableConcept `json:"interpretation,omitempty"`
	Note                 []fhir.Annotation      `json:"note,omitempty"`
	BodySite             *fhir.CodeableConcept  `json:"bodySite,omitempty"`
	Method               *fhir.CodeableConcept  `json:"method,omitempty"`
	ReferenceRange       []ReferenceRange       `json:"referenceRange,omitempty"`
	HasMember            []fhir.Reference       `json:"hasMember,omitempty"`
	DerivedFrom          []fhir.Reference       `json:"derivedFrom,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`

	Extra fhir.Extra `json:"-"`
}

type ReferenceRange struct {
	Low       *fhir.Quantity         `json:"low,omitempty"`
	High      *fhir.Quantity         `json:"high,omitempty"`
	Type      *fhir.CodeableConcept  `json:"type,omitempty"`
	AppliesTo []fhir.CodeableConcept `json:"appliesTo,omitempty"`
	Text      string                 `json:"text,omitempty"`
}

// ObservationComponent is passed through to the store, never inspected.
type ObservationComponent struct {
	Code                 fhir.CodeableConcept   `json:"code"`
	ValueQuantity        *fhir.Quantity         `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *fhir.CodeableConcept  `json:"valueCodeableConcept,omitempty"`
	ValueString          string                 `json:"valueString,omitempty"`
	DataAbsentReason     *fhir.CodeableConcept  `json:"dataAbsentReason,omitempty"`
	Interpretation       []fhir.CodeableConcept `json:"interpretation,omitempty"`

	Extra fhir.Extra `json:"-"`
}

func (o *Observation) UnmarshalJSON(data []byte) error {
	type plain Observation
	return fhir.UnmarshalOpen(data, (*plain)(o), &o.Extra)
}

func (o Observation) MarshalJSON() ([]byte, error) {
	type plain Observation
	return fhir.MarshalOpen(plain(o), o.Extra)
}

func (c *ObservationComponent) UnmarshalJSON(data []byte) error {
	type plain ObservationComponent
	return fhir.UnmarshalOpen(data, (*plain)(c), &c.Extra)
}

func (c ObservationComponent) MarshalJSON() ([]byte, error) {
	type plain ObservationComponent
	return fhir.MarshalOpen(plain(c), c.Extra)
}
