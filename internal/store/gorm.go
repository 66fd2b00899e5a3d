package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/n1hub/deepmine-engine/internal/logger"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/types"
	"github.com/n1hub/deepmine-engine/internal/utils"
	"github.com/n1hub/deepmine-engine/internal/vectorizer"
)

// GormStore is the durable backend; postgres in deployment, sqlite locally.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresStore(log *logger.Logger) (*GormStore, error) {
	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("POSTGRES_NAME", "deepmine", log)
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return newGormStore(db, log)
}

func NewSQLiteStore(log *logger.Logger, path string) (*GormStore, error) {
	log.Info("Opening SQLite store...", "path", path)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}
	return newGormStore(db, log)
}

func newGormStore(db *gorm.DB, log *logger.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(
		&CapsuleRecord{},
		&JobRecord{},
		&ArtifactRecord{},
		&AuditRecord{},
	); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return &GormStore{db: db, log: log.With("store", "GormStore")}, nil
}

func (s *GormStore) CreateJob(ctx context.Context) (*types.Job, error) {
	now := time.Now().UTC()
	record := JobRecord{
		ID:        ulid.Make().String(),
		Code:      types.StageCodeQueued,
		Stage:     "queued",
		State:     types.JobStatePending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return recordToJob(&record)
}

func (s *GormStore) UpdateJob(ctx context.Context, jobID string, update types.JobUpdate) (*types.Job, error) {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if update.Code != nil {
		updates["code"] = *update.Code
	}
	if update.Stage != nil {
		updates["stage"] = *update.Stage
	}
	if update.State != nil {
		updates["state"] = *update.State
	}
	if update.Progress != nil {
		updates["progress"] = *update.Progress
	}
	if update.Error != nil {
		raw, err := json.Marshal(update.Error)
		if err != nil {
			return nil, err
		}
		updates["error"] = raw
	}
	if update.CapsuleID != nil {
		updates["capsule_id"] = *update.CapsuleID
	}
	res := s.db.WithContext(ctx).Model(&JobRecord{}).Where("id = ?", jobID).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.ErrNotFound
	}
	return s.GetJob(ctx, jobID)
}

func (s *GormStore) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	var record JobRecord
	err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordToJob(&record)
}

func (s *GormStore) ListJobs(ctx context.Context) ([]*types.Job, error) {
	var records []JobRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Job, 0, len(records))
	for i := range records {
		job, err := recordToJob(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *GormStore) SaveCapsule(ctx context.Context, capsule types.Capsule) error {
	doc, err := json.Marshal(capsule)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	record := CapsuleRecord{
		ID:           capsule.Metadata.CapsuleID,
		Status:       capsule.Metadata.Status,
		IncludeInRAG: capsule.IncludeInRAG,
		Doc:          doc,
		CreatedAt:    capsule.Metadata.CreatedAt,
		UpdatedAt:    now,
	}
	return s.db.WithContext(ctx).Save(&record).Error
}

func (s *GormStore) GetCapsule(ctx context.Context, capsuleID string) (types.Capsule, error) {
	var record CapsuleRecord
	err := s.db.WithContext(ctx).Where("id = ?", capsuleID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Capsule{}, pkgerrors.ErrNotFound
	}
	if err != nil {
		return types.Capsule{}, err
	}
	return recordToCapsule(&record)
}

func (s *GormStore) ListCapsules(ctx context.Context, includeInRAG *bool) ([]types.Capsule, error) {
	query := s.db.WithContext(ctx).Order("id ASC")
	if includeInRAG != nil {
		query = query.Where("include_in_rag = ?", *includeInRAG)
	}
	var records []CapsuleRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]types.Capsule, 0, len(records))
	for i := range records {
		capsule, err := recordToCapsule(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, capsule)
	}
	return out, nil
}

func (s *GormStore) ToggleCapsule(ctx context.Context, capsuleID string, includeInRAG bool) (types.Capsule, error) {
	return s.mutateCapsule(ctx, capsuleID, func(capsule *types.Capsule) error {
		capsule.IncludeInRAG = includeInRAG
		return nil
	})
}

func (s *GormStore) UpdateCapsuleTags(ctx context.Context, capsuleID string, tags []string) (types.Capsule, error) {
	normalized, err := normalizeTags(tags)
	if err != nil {
		return types.Capsule{}, err
	}
	return s.mutateCapsule(ctx, capsuleID, func(capsule *types.Capsule) error {
		capsule.Metadata.Tags = normalized
		return nil
	})
}

func (s *GormStore) UpdateCapsuleStatus(ctx context.Context, capsuleID string, status string) (types.Capsule, error) {
	if !types.ValidCapsuleStatus(status) {
		return types.Capsule{}, pkgerrors.ErrInvalidArgument
	}
	return s.mutateCapsule(ctx, capsuleID, func(capsule *types.Capsule) error {
		capsule.Metadata.Status = status
		return nil
	})
}

// mutateCapsule serializes read-modify-write on one row inside a transaction.
func (s *GormStore) mutateCapsule(ctx context.Context, capsuleID string, mutate func(*types.Capsule) error) (types.Capsule, error) {
	var out types.Capsule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record CapsuleRecord
		err := tx.Where("id = ?", capsuleID).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.ErrNotFound
		}
		if err != nil {
			return err
		}
		capsule, err := recordToCapsule(&record)
		if err != nil {
			return err
		}
		if err := mutate(&capsule); err != nil {
			return err
		}
		doc, err := json.Marshal(capsule)
		if err != nil {
			return err
		}
		record.Doc = doc
		record.Status = capsule.Metadata.Status
		record.IncludeInRAG = capsule.IncludeInRAG
		record.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		out = capsule
		return nil
	})
	if err != nil {
		return types.Capsule{}, err
	}
	return out, nil
}

func (s *GormStore) Search(ctx context.Context, query string, scopeTags []string, topK int) ([]types.Capsule, error) {
	capsules, err := s.ListCapsules(ctx, nil)
	if err != nil {
		return nil, err
	}
	return lexicalRank(capsules, query, scopeTags, topK), nil
}

func (s *GormStore) SaveVector(ctx context.Context, capsuleID string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&CapsuleRecord{}).Where("id = ?", capsuleID).Update("embedding", raw)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *GormStore) VectorSearch(ctx context.Context, embedding []float32, topK int, scopeTags []string) ([]ScoredCapsule, error) {
	var records []CapsuleRecord
	if err := s.db.WithContext(ctx).Where("embedding IS NOT NULL").Find(&records).Error; err != nil {
		return nil, err
	}
	scope := make(map[string]bool, len(scopeTags))
	for _, tag := range scopeTags {
		scope[strings.ToLower(tag)] = true
	}
	scored := make([]ScoredCapsule, 0, len(records))
	for i := range records {
		capsule, err := recordToCapsule(&records[i])
		if err != nil {
			return nil, err
		}
		if len(scope) > 0 && !tagsIntersect(scope, capsule.Metadata.Tags) {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(records[i].Embedding, &vec); err != nil {
			continue
		}
		scored = append(scored, ScoredCapsule{
			Capsule: capsule,
			Score:   vectorizer.Cosine(embedding, vec),
		})
	}
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

func (s *GormStore) RecordArtifact(ctx context.Context, jobID string, artifact types.Artifact) error {
	record := ArtifactRecord{
		JobID:     jobID,
		Kind:      artifact.Kind,
		URI:       artifact.URI,
		ExpiresAt: artifact.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) ListArtifacts(ctx context.Context, jobID string) ([]types.Artifact, error) {
	var records []ArtifactRecord
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]types.Artifact, 0, len(records))
	for _, record := range records {
		out = append(out, types.Artifact{Kind: record.Kind, URI: record.URI, ExpiresAt: record.ExpiresAt})
	}
	return out, nil
}

func (s *GormStore) PurgeArtifacts(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Delete(&ArtifactRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) LogAudit(ctx context.Context, entry types.AuditEntry) error {
	record := AuditRecord{
		CapsuleID:  entry.CapsuleID,
		ActionType: entry.ActionType,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		Actor:      entry.Actor,
		CreatedAt:  time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func recordToJob(record *JobRecord) (*types.Job, error) {
	job := &types.Job{
		ID:        record.ID,
		Code:      record.Code,
		Stage:     record.Stage,
		State:     record.State,
		Progress:  record.Progress,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
		CapsuleID: record.CapsuleID,
	}
	if len(record.Error) > 0 && string(record.Error) != "null" {
		var jobErr types.JobError
		if err := json.Unmarshal(record.Error, &jobErr); err != nil {
			return nil, err
		}
		job.Error = &jobErr
	}
	return job, nil
}

func recordToCapsule(record *CapsuleRecord) (types.Capsule, error) {
	var capsule types.Capsule
	if err := json.Unmarshal(record.Doc, &capsule); err != nil {
		return types.Capsule{}, err
	}
	return capsule, nil
}
