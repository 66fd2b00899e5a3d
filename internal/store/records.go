package store

import (
	"time"

	"gorm.io/datatypes"
)

// CapsuleRecord persists the capsule document as jsonb plus the columns the
// engine filters on.
type CapsuleRecord struct {
	ID           string         `gorm:"primaryKey;size:26" json:"id"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	IncludeInRAG bool           `gorm:"column:include_in_rag;not null;index" json:"include_in_rag"`
	Doc          datatypes.JSON `gorm:"type:jsonb;column:doc;not null" json:"doc"`
	Embedding    datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (CapsuleRecord) TableName() string { return "capsule" }

type JobRecord struct {
	ID        string         `gorm:"primaryKey;size:26" json:"id"`
	Code      int            `gorm:"column:code;not null" json:"code"`
	Stage     string         `gorm:"column:stage;not null" json:"stage"`
	State     string         `gorm:"column:state;not null;index" json:"state"`
	Progress  int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Error     datatypes.JSON `gorm:"type:jsonb;column:error" json:"error"`
	CapsuleID string         `gorm:"column:capsule_id;size:26" json:"capsule_id"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobRecord) TableName() string { return "job" }

type ArtifactRecord struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     string     `gorm:"column:job_id;size:26;not null;index" json:"job_id"`
	Kind      string     `gorm:"column:kind;not null" json:"kind"`
	URI       string     `gorm:"column:uri;not null" json:"uri"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

func (ArtifactRecord) TableName() string { return "artifact" }

type AuditRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CapsuleID  string    `gorm:"column:capsule_id;size:26;not null;index" json:"capsule_id"`
	ActionType string    `gorm:"column:action_type;not null" json:"action_type"`
	OldValue   string    `gorm:"column:old_value" json:"old_value"`
	NewValue   string    `gorm:"column:new_value" json:"new_value"`
	Actor      string    `gorm:"column:actor;not null" json:"actor"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

func (AuditRecord) TableName() string { return "audit_log" }
