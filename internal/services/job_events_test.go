package services

import (
	"context"
	"testing"

	"github.com/n1hub/deepmine-engine/internal/sse"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

func TestJobEventStore_BroadcastsJobMutations(t *testing.T) {
	log := testLogger(t)
	hub := sse.NewHub(log)
	wrapped := NewJobEventStore(store.NewMemoryStore(log), hub)

	client := hub.NewClient()
	defer hub.CloseClient(client)

	ctx := context.Background()
	job, err := wrapped.CreateJob(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case msg := <-client.Outbound:
		if msg.Event != sse.EventJobUpdate {
			t.Fatalf("unexpected event %q", msg.Event)
		}
		data, ok := msg.Data.(sse.JobUpdateData)
		if !ok {
			t.Fatalf("unexpected payload type %T", msg.Data)
		}
		if data.JobID != job.ID || data.State != types.JobStatePending {
			t.Fatalf("unexpected payload %+v", data)
		}
	default:
		t.Fatalf("expected a broadcast for job creation")
	}

	code := types.StageCodeIngesting
	if _, err := wrapped.UpdateJob(ctx, job.ID, types.JobUpdate{Code: &code}); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case msg := <-client.Outbound:
		data := msg.Data.(sse.JobUpdateData)
		if data.Code != types.StageCodeIngesting {
			t.Fatalf("unexpected code %d", data.Code)
		}
	default:
		t.Fatalf("expected a broadcast for job update")
	}
}
