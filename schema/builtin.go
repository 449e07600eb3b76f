package schema

import (
	"fmt"
	"strings"
)

// Built-in clinical note layouts, selected by document type.
var builtins = map[string][]Field{
	"soap": {
		{Name: "subjective", Description: "Patient's subjective complaints"},
		{Name: "objective", Description: "Objective findings from the examination"},
		{Name: "assessment", Description: "Assessment or diagnosis"},
		{Name: "plan", Description: "Plan for treatment or follow-up"},
	},
	"dap": {
		{Name: "data", Description: "Patient's complaints or data"},
		{Name: "assessment", Description: "Diagnosis or assessment of the patient"},
		{Name: "plan", Description: "Plan for treatment"},
	},
	"pie": {
		{Name: "problem", Description: "Problem identified in the conversation"},
		{Name: "intervention", Description: "Intervention taken for the problem"},
		{Name: "evaluation", Description: "Evaluation of the intervention's effectiveness"},
	},
	"summary": {
		{Name: "patient_info", Description: "Patient's information"},
		{Name: "reason_for_visit", Description: "Reason for the visit"},
		{Name: "clinical_findings", Description: "Clinical findings from the conversation"},
	},
	"referral": {
		{Name: "patient_info", Description: "Patient's information"},
		{Name: "reason_for_referral", Description: "Reason for referral"},
	},
	"deep_analysis": {
		{Name: "patient_complaints", Description: "Complaints reported by the patient"},
		{Name: "clinical_findings", Description: "Clinical findings from the conversation"},
		{Name: "primary_diagnosis", Description: "Most likely primary diagnosis"},
		{Name: "differential_diagnoses", Description: "Differential diagnoses, comma separated in a single string"},
		{Name: "red_flags", Description: "Red flags requiring urgent attention, comma separated"},
		{Name: "missed_questions", Description: "Questions the clinician should have asked, comma separated"},
		{Name: "contextual_factors", Description: "Social or contextual factors relevant to care, comma separated"},
	},
}

// ForDocumentType returns the built-in Descriptor for a document type
// (soap, dap, pie, summary, referral, deep_analysis). Matching ignores case.
// Unknown types return ErrUnknownDocType.
func ForDocumentType(docType string) (*Descriptor, error) {
	key := strings.ToLower(strings.TrimSpace(docType))
	fields, ok := builtins[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, docType)
	}
	return New(key, fields)
}

// BuiltinTypes returns the supported built-in document types.
func BuiltinTypes() []string {
	return []string{"soap", "dap", "pie", "summary", "referral", "deep_analysis"}
}
