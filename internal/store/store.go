package store

import (
	"context"
	"time"

	"github.com/n1hub/deepmine-engine/internal/types"
)

// ScoredCapsule pairs a capsule with a retrieval score.
type ScoredCapsule struct {
	Capsule types.Capsule
	Score   float64
}

// Store is the single mutual-exclusion domain shared by concurrent pipeline
// runs and retrieval reads. Implementations must serialize job-state mutation
// and per-capsule writes, and must return pkgerrors.ErrNotFound for unknown
// job/capsule ids.
type Store interface {
	CreateJob(ctx context.Context) (*types.Job, error)
	UpdateJob(ctx context.Context, jobID string, update types.JobUpdate) (*types.Job, error)
	GetJob(ctx context.Context, jobID string) (*types.Job, error)
	ListJobs(ctx context.Context) ([]*types.Job, error)

	SaveCapsule(ctx context.Context, capsule types.Capsule) error
	GetCapsule(ctx context.Context, capsuleID string) (types.Capsule, error)
	ListCapsules(ctx context.Context, includeInRAG *bool) ([]types.Capsule, error)
	ToggleCapsule(ctx context.Context, capsuleID string, includeInRAG bool) (types.Capsule, error)
	UpdateCapsuleTags(ctx context.Context, capsuleID string, tags []string) (types.Capsule, error)
	UpdateCapsuleStatus(ctx context.Context, capsuleID string, status string) (types.Capsule, error)

	// Search is the lexical candidate source: occurrence counting over
	// summary+keywords+content, optionally restricted to capsules sharing a
	// scope tag.
	Search(ctx context.Context, query string, scopeTags []string, topK int) ([]types.Capsule, error)
	SaveVector(ctx context.Context, capsuleID string, embedding []float32) error
	VectorSearch(ctx context.Context, embedding []float32, topK int, scopeTags []string) ([]ScoredCapsule, error)

	RecordArtifact(ctx context.Context, jobID string, artifact types.Artifact) error
	ListArtifacts(ctx context.Context, jobID string) ([]types.Artifact, error)
	PurgeArtifacts(ctx context.Context, cutoff time.Time) (int, error)

	LogAudit(ctx context.Context, entry types.AuditEntry) error

	Ping(ctx context.Context) error
}
