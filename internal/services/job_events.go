package services

import (
	"context"

	"github.com/n1hub/deepmine-engine/internal/sse"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

// jobEventStore decorates a Store so every job mutation is broadcast to the
// SSE hub. Broadcasting is lossy; the job row is the durable record.
type jobEventStore struct {
	store.Store
	hub *sse.Hub
}

// NewJobEventStore wraps a store with SSE job-update publication.
func NewJobEventStore(s store.Store, hub *sse.Hub) store.Store {
	return &jobEventStore{Store: s, hub: hub}
}

func (s *jobEventStore) CreateJob(ctx context.Context) (*types.Job, error) {
	job, err := s.Store.CreateJob(ctx)
	if err == nil {
		s.hub.BroadcastJobUpdate(job)
	}
	return job, err
}

func (s *jobEventStore) UpdateJob(ctx context.Context, jobID string, update types.JobUpdate) (*types.Job, error) {
	job, err := s.Store.UpdateJob(ctx, jobID, update)
	if err == nil {
		s.hub.BroadcastJobUpdate(job)
	}
	return job, err
}
