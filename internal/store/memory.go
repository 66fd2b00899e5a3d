package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/n1hub/deepmine-engine/internal/logger"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/types"
	"github.com/n1hub/deepmine-engine/internal/vectorizer"
)

// MemoryStore keeps everything behind one mutex; good for tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	log       *logger.Logger
	capsules  map[string]types.Capsule
	jobs      map[string]*types.Job
	vectors   map[string][]float32
	artifacts map[string][]types.Artifact
	audit     []types.AuditEntry
}

func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		log:       log.With("store", "MemoryStore"),
		capsules:  make(map[string]types.Capsule),
		jobs:      make(map[string]*types.Job),
		vectors:   make(map[string][]float32),
		artifacts: make(map[string][]types.Artifact),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	job := &types.Job{
		ID:        ulid.Make().String(),
		Code:      types.StageCodeQueued,
		Stage:     "queued",
		State:     types.JobStatePending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job
	return cloneJob(job), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, jobID string, update types.JobUpdate) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	applyJobUpdate(job, update)
	job.UpdatedAt = time.Now().UTC()
	return cloneJob(job), nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) ListJobs(_ context.Context) ([]*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveCapsule(_ context.Context, capsule types.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capsules[capsule.Metadata.CapsuleID] = capsule.Clone()
	return nil
}

func (s *MemoryStore) GetCapsule(_ context.Context, capsuleID string) (types.Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	capsule, ok := s.capsules[capsuleID]
	if !ok {
		return types.Capsule{}, pkgerrors.ErrNotFound
	}
	return capsule.Clone(), nil
}

func (s *MemoryStore) ListCapsules(_ context.Context, includeInRAG *bool) ([]types.Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Capsule, 0, len(s.capsules))
	for _, capsule := range s.capsules {
		if includeInRAG != nil && capsule.IncludeInRAG != *includeInRAG {
			continue
		}
		out = append(out, capsule.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.CapsuleID < out[j].Metadata.CapsuleID
	})
	return out, nil
}

func (s *MemoryStore) ToggleCapsule(_ context.Context, capsuleID string, includeInRAG bool) (types.Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	capsule, ok := s.capsules[capsuleID]
	if !ok {
		return types.Capsule{}, pkgerrors.ErrNotFound
	}
	capsule.IncludeInRAG = includeInRAG
	s.capsules[capsuleID] = capsule
	return capsule.Clone(), nil
}

func (s *MemoryStore) UpdateCapsuleTags(_ context.Context, capsuleID string, tags []string) (types.Capsule, error) {
	normalized, err := normalizeTags(tags)
	if err != nil {
		return types.Capsule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	capsule, ok := s.capsules[capsuleID]
	if !ok {
		return types.Capsule{}, pkgerrors.ErrNotFound
	}
	capsule.Metadata.Tags = normalized
	s.capsules[capsuleID] = capsule
	return capsule.Clone(), nil
}

func (s *MemoryStore) UpdateCapsuleStatus(_ context.Context, capsuleID string, status string) (types.Capsule, error) {
	if !types.ValidCapsuleStatus(status) {
		return types.Capsule{}, pkgerrors.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	capsule, ok := s.capsules[capsuleID]
	if !ok {
		return types.Capsule{}, pkgerrors.ErrNotFound
	}
	capsule.Metadata.Status = status
	s.capsules[capsuleID] = capsule
	return capsule.Clone(), nil
}

func (s *MemoryStore) Search(_ context.Context, query string, scopeTags []string, topK int) ([]types.Capsule, error) {
	s.mu.Lock()
	capsules := make([]types.Capsule, 0, len(s.capsules))
	for _, capsule := range s.capsules {
		capsules = append(capsules, capsule.Clone())
	}
	s.mu.Unlock()
	return lexicalRank(capsules, query, scopeTags, topK), nil
}

func (s *MemoryStore) SaveVector(_ context.Context, capsuleID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[capsuleID] = append([]float32(nil), embedding...)
	return nil
}

func (s *MemoryStore) VectorSearch(_ context.Context, embedding []float32, topK int, scopeTags []string) ([]ScoredCapsule, error) {
	scope := make(map[string]bool, len(scopeTags))
	for _, tag := range scopeTags {
		scope[strings.ToLower(tag)] = true
	}
	s.mu.Lock()
	scored := make([]ScoredCapsule, 0, len(s.vectors))
	for capsuleID, vec := range s.vectors {
		capsule, ok := s.capsules[capsuleID]
		if !ok {
			continue
		}
		if len(scope) > 0 && !tagsIntersect(scope, capsule.Metadata.Tags) {
			continue
		}
		scored = append(scored, ScoredCapsule{
			Capsule: capsule.Clone(),
			Score:   vectorizer.Cosine(embedding, vec),
		})
	}
	s.mu.Unlock()
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Capsule.Metadata.CapsuleID < scored[j].Capsule.Metadata.CapsuleID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (s *MemoryStore) RecordArtifact(_ context.Context, jobID string, artifact types.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[jobID] = append(s.artifacts[jobID], artifact)
	return nil
}

func (s *MemoryStore) ListArtifacts(_ context.Context, jobID string) ([]types.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Artifact(nil), s.artifacts[jobID]...), nil
}

func (s *MemoryStore) PurgeArtifacts(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for jobID, artifacts := range s.artifacts {
		kept := artifacts[:0]
		for _, artifact := range artifacts {
			if artifact.ExpiresAt != nil && artifact.ExpiresAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, artifact)
		}
		s.artifacts[jobID] = kept
	}
	return purged, nil
}

func (s *MemoryStore) LogAudit(_ context.Context, entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, entry)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func cloneJob(job *types.Job) *types.Job {
	out := *job
	if job.Error != nil {
		errCopy := *job.Error
		errCopy.Issues = append([]types.JobErrorIssue(nil), job.Error.Issues...)
		out.Error = &errCopy
	}
	return &out
}

func applyJobUpdate(job *types.Job, update types.JobUpdate) {
	if update.Code != nil {
		job.Code = *update.Code
	}
	if update.Stage != nil {
		job.Stage = *update.Stage
	}
	if update.State != nil {
		job.State = *update.State
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.Error != nil {
		job.Error = update.Error
	}
	if update.CapsuleID != nil {
		job.CapsuleID = *update.CapsuleID
	}
}
