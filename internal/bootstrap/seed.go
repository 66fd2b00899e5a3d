package bootstrap

import (
	"context"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/pipeline"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

var seedMaterials = []types.IngestRequest{
	{
		Title:   "Capsule Schema Contract",
		Content: "The capsule schema contract enforces four sections and mirror hashes. It keeps DeepMine honest and powers retrieval guardrails.",
		Tags:    []string{"schema", "contract", "capsule"},
	},
	{
		Title:   "DeepMine Retrieval Defaults",
		Content: "DeepMine uses chunk_size 800, stride 200, retriever top_k 6, mmr 0.3, rerank keep 8, and citations at 0.62 confidence threshold.",
		Tags:    []string{"rag", "defaults", "retrieval"},
	},
}

// Seed runs the fixed seed materials through the full pipeline, but only when
// the store is empty. Startup is fine without seeds; failures are logged and
// skipped.
func Seed(ctx context.Context, s store.Store, pipe *pipeline.Pipeline, log *logger.Logger) error {
	capsules, err := s.ListCapsules(ctx, nil)
	if err != nil {
		return err
	}
	if len(capsules) > 0 {
		return nil
	}

	for _, material := range seedMaterials {
		request := material
		request.ApplyDefaults()
		job, err := s.CreateJob(ctx)
		if err != nil {
			return err
		}
		if _, err := pipe.Run(ctx, job.ID, request); err != nil {
			log.Warn("Seed material failed to ingest", "title", material.Title, "error", err)
			continue
		}
		log.Info("Seed material ingested", "title", material.Title, "job_id", job.ID)
	}
	return nil
}
