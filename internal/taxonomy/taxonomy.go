package taxonomy

// Category classifies capsule errors by failure domain.
type Category string

const (
	CategoryValidationSchema     Category = "validation.schema"
	CategoryDataMissing          Category = "data.missing"
	CategoryPrivacyConflict      Category = "privacy.conflict"
	CategoryDuplicationIntegrity Category = "duplication.integrity"
	CategorySizeLimits           Category = "size.limits"
	CategoryLinkIntegrity        Category = "link.integrity"
)

type Code string

const (
	// validation.schema
	CodeMissingRequiredField       Code = "missing_required_field"
	CodeWrongType                  Code = "wrong_type"
	CodeEnumOutOfRange             Code = "enum_out_of_range"
	CodeBadULIDLength              Code = "bad_ulid_length"
	CodeBadBCP47                   Code = "bad_bcp47"
	CodeTimestampInvalid           Code = "iso8601_timestamp_invalid"
	CodeSummaryLengthViolation     Code = "summary_length_violation"
	CodeKeywordCountViolation      Code = "keyword_count_violation"
	CodeVectorHintCountViolation   Code = "vector_hint_count_violation"
	CodeArchetypesCountViolation   Code = "archetypes_count_violation"
	CodeEmotionalChargeOutOfRange  Code = "emotional_charge_out_of_range"
	CodeSemanticHashMismatch       Code = "semantic_hash_mismatch"
	CodeLinkRelInvalid             Code = "link_rel_invalid"
	CodeLinkConfidenceOutOfRange   Code = "link_confidence_out_of_range"
	CodeSectionMissing             Code = "section_missing"

	// data.missing
	CodeInsufficientMaterial Code = "insufficient_material"
	CodeMissingTags          Code = "missing_tags"

	// privacy.conflict
	CodePIIDetectedInContent Code = "pii_detected_in_content"
	CodePIIInMetadata        Code = "pii_in_metadata"

	// duplication.integrity
	CodeSemanticDuplicateCandidate Code = "semantic_duplicate_candidate"

	// size.limits
	CodeContentExceedsBudget Code = "content_exceeds_budget"

	// link.integrity
	CodeInvalidTargetID Code = "invalid_target_id"
	CodeUnknownRelation Code = "unknown_relation"
	CodeSelfLink        Code = "self_link"
)

const (
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// CapsuleError is a structured error with recovery guidance.
type CapsuleError struct {
	Category    Category `json:"category"`
	Code        Code     `json:"code"`
	Field       string   `json:"field"`
	Message     string   `json:"message"`
	Remedy      string   `json:"remedy"`
	Severity    string   `json:"severity"`
	AutoFixable bool     `json:"auto_fixable"`
}

var autoFixableCodes = map[Code]bool{
	CodeSummaryLengthViolation:    true,
	CodeKeywordCountViolation:     true,
	CodeVectorHintCountViolation:  true,
	CodeArchetypesCountViolation:  true,
	CodeEmotionalChargeOutOfRange: true,
	CodeSemanticHashMismatch:      true,
	CodeLinkConfidenceOutOfRange:  true,
	CodeTimestampInvalid:          true,
}

// CanAutoFix reports whether the error has a deterministic repair.
func CanAutoFix(err CapsuleError) bool {
	return autoFixableCodes[err.Code]
}

// RecoveryStrategy returns the documented recovery step for a code.
func RecoveryStrategy(code Code) string {
	switch code {
	case CodeSummaryLengthViolation:
		return "Trim to 140 words or expand to 70 words from source"
	case CodeSemanticHashMismatch:
		return "Recompute from summary and mirror to both locations"
	case CodePIIInMetadata:
		return "Remove PII from tags/summary/keywords, set status to draft"
	case CodeSemanticDuplicateCandidate:
		return "Create duplicates link to canonical capsule"
	default:
		return "Manual review required"
	}
}

// Categorize maps an error code to its category.
func Categorize(code Code) Category {
	switch code {
	case CodePIIDetectedInContent, CodePIIInMetadata:
		return CategoryPrivacyConflict
	case CodeSemanticDuplicateCandidate:
		return CategoryDuplicationIntegrity
	case CodeContentExceedsBudget:
		return CategorySizeLimits
	case CodeInvalidTargetID, CodeUnknownRelation, CodeSelfLink:
		return CategoryLinkIntegrity
	case CodeInsufficientMaterial, CodeMissingTags:
		return CategoryDataMissing
	default:
		return CategoryValidationSchema
	}
}

// Build assembles a CapsuleError, deriving category and auto-fixability from the code.
func Build(code Code, field, message, remedy, severity string) CapsuleError {
	e := CapsuleError{
		Category: Categorize(code),
		Code:     code,
		Field:    field,
		Message:  message,
		Remedy:   remedy,
		Severity: severity,
	}
	e.AutoFixable = CanAutoFix(e)
	return e
}
