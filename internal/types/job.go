package types

import (
	"time"
)

const (
	JobStatePending    = "pending"
	JobStateProcessing = "processing"
	JobStateSucceeded  = "succeeded"
	JobStateFailed     = "failed"
	JobStateCancelled  = "cancelled"
)

// Stage codes are strictly increasing on success; any failure jumps to 500.
const (
	StageCodeQueued       = 100
	StageCodeIngesting    = 110
	StageCodeNormalizing  = 120
	StageCodeSegmenting   = 130
	StageCodeExtracting   = 140
	StageCodeSynthesizing = 150
	StageCodeAssembling   = 160
	StageCodeValidating   = 170
	StageCodeIndexing     = 180
	StageCodeReporting    = 190
	StageCodeDone         = 200
	StageCodeFailed       = 500
)

type JobErrorIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type JobError struct {
	Code   int             `json:"code"`
	Stage  string          `json:"stage"`
	Issues []JobErrorIssue `json:"issues"`
}

type Job struct {
	ID        string    `json:"id"`
	Code      int       `json:"code"`
	Stage     string    `json:"stage"`
	State     string    `json:"state"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     *JobError `json:"error,omitempty"`
	CapsuleID string    `json:"capsule_id,omitempty"`
}

func (j *Job) Terminal() bool {
	return j.State == JobStateSucceeded || j.State == JobStateFailed || j.State == JobStateCancelled
}

// JobUpdate carries the mutable job fields; nil means leave untouched.
type JobUpdate struct {
	Code      *int
	Stage     *string
	State     *string
	Progress  *int
	Error     *JobError
	CapsuleID *string
}

type Artifact struct {
	Kind      string     `json:"kind"`
	URI       string     `json:"uri"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type AuditEntry struct {
	CapsuleID  string    `json:"capsule_id"`
	ActionType string    `json:"action_type"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}
