package fhir

import (
	"encoding/json"
	"strings"
)

// OperationOutcome severity levels per FHIR R4 spec.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4 spec.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeStructure    = "structure"
	IssueTypeRequired     = "required"
	IssueTypeNotFound     = "not-found"
	IssueTypeNotSupported = "not-supported"
	IssueTypeDuplicate    = "duplicate"
	IssueTypeProcessing   = "processing"
	IssueTypeException    = "exception"
	IssueTypeTimeout      = "timeout"
	IssueTypeTransient    = "transient"
	IssueTypeBusinessRule = "business-rule"
)

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

// Summary joins the diagnostics (or detail text) of every error and fatal
// issue into one line. Warnings are included only when nothing more severe is
// present.
func (o *OperationOutcome) Summary() string {
	if o == nil {
		return ""
	}
	var severe, rest []string
	for _, issue := range o.Issue {
		msg := issue.Diagnostics
		if msg == "" && issue.Details != nil {
			msg = issue.Details.Text
		}
		if msg == "" {
			msg = issue.Code
		}
		if msg == "" {
			continue
		}
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			severe = append(severe, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	if len(severe) > 0 {
		return strings.Join(severe, "; ")
	}
	return strings.Join(rest, "; ")
}

// ParseOperationOutcome decodes data as an OperationOutcome. It returns nil if
// data is not one, so callers can fall back to the raw body.
func ParseOperationOutcome(data []byte) *OperationOutcome {
	var oo OperationOutcome
	if err := json.Unmarshal(data, &oo); err != nil {
		return nil
	}
	if oo.ResourceType != "OperationOutcome" || len(oo.Issue) == 0 {
		return nil
	}
	return &oo
}
