package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/n1hub/deepmine-engine/internal/taxonomy"
	"github.com/n1hub/deepmine-engine/internal/types"
	"github.com/n1hub/deepmine-engine/internal/validator"
)

type ValidateHandler struct{}

func NewValidateHandler() *ValidateHandler {
	return &ValidateHandler{}
}

type validationResult struct {
	CapsuleID  string                  `json:"capsule_id,omitempty"`
	OK         bool                    `json:"ok"`
	Errors     []types.JobErrorIssue   `json:"errors"`
	Warnings   []types.JobErrorIssue   `json:"warnings"`
	Classified []taxonomy.CapsuleError `json:"classified,omitempty"`
	AutoFixes  []string                `json:"auto_fixes_applied"`
	Capsule    *types.Capsule          `json:"capsule,omitempty"`
}

func (vh *ValidateHandler) ValidateCapsule(c *gin.Context) {
	var capsule types.Capsule
	if err := c.ShouldBindJSON(&capsule); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_capsule", err)
		return
	}
	result := validator.Validate(capsule, strictMode(c))
	out := validationResult{
		OK:         result.Valid,
		Errors:     issuesOrEmpty(result.Errors),
		Warnings:   issuesOrEmpty(result.Warnings),
		Classified: result.Classified,
		AutoFixes:  fixesOrEmpty(result.Fixes),
	}
	if result.Valid {
		out.Capsule = &result.Capsule
	}
	RespondOK(c, out)
}

func (vh *ValidateHandler) ValidateBatch(c *gin.Context) {
	var capsules []types.Capsule
	if err := c.ShouldBindJSON(&capsules); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_capsules", err)
		return
	}
	strict := strictMode(c)

	results := make([]validationResult, 0, len(capsules))
	totalErrors, totalWarnings, valid := 0, 0, 0
	for _, capsule := range capsules {
		result := validator.Validate(capsule, strict)
		results = append(results, validationResult{
			CapsuleID:  capsule.Metadata.CapsuleID,
			OK:         result.Valid,
			Errors:     issuesOrEmpty(result.Errors),
			Warnings:   issuesOrEmpty(result.Warnings),
			Classified: result.Classified,
			AutoFixes:  fixesOrEmpty(result.Fixes),
		})
		totalErrors += len(result.Errors)
		totalWarnings += len(result.Warnings)
		if result.Valid {
			valid++
		}
	}
	RespondOK(c, gin.H{
		"ok":             totalErrors == 0,
		"total":          len(capsules),
		"valid":          valid,
		"invalid":        len(capsules) - valid,
		"total_errors":   totalErrors,
		"total_warnings": totalWarnings,
		"results":        results,
	})
}

func strictMode(c *gin.Context) bool {
	strict, _ := strconv.ParseBool(c.DefaultQuery("strict_mode", "false"))
	return strict
}

func issuesOrEmpty(issues []types.JobErrorIssue) []types.JobErrorIssue {
	if issues == nil {
		return []types.JobErrorIssue{}
	}
	return issues
}

func fixesOrEmpty(fixes []string) []string {
	if fixes == nil {
		return []string{}
	}
	return fixes
}
