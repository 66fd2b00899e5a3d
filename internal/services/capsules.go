package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/n1hub/deepmine-engine/internal/logger"
	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/store"
	"github.com/n1hub/deepmine-engine/internal/types"
)

// CapsuleService is the read/patch surface over stored capsules. Every patch
// field writes an audit entry when it actually changed something.
type CapsuleService interface {
	List(ctx context.Context, includeInRAG *bool) ([]types.Capsule, error)
	Get(ctx context.Context, capsuleID string) (types.Capsule, error)
	Patch(ctx context.Context, capsuleID string, patch types.CapsulePatch) (types.Capsule, error)
}

type capsuleService struct {
	store store.Store
	log   *logger.Logger
}

func NewCapsuleService(s store.Store, baseLog *logger.Logger) CapsuleService {
	return &capsuleService{
		store: s,
		log:   baseLog.With("service", "CapsuleService"),
	}
}

func (s *capsuleService) List(ctx context.Context, includeInRAG *bool) ([]types.Capsule, error) {
	return s.store.ListCapsules(ctx, includeInRAG)
}

func (s *capsuleService) Get(ctx context.Context, capsuleID string) (types.Capsule, error) {
	return s.store.GetCapsule(ctx, capsuleID)
}

func (s *capsuleService) Patch(ctx context.Context, capsuleID string, patch types.CapsulePatch) (types.Capsule, error) {
	if patch.IncludeInRAG == nil && patch.Tags == nil && patch.Status == nil {
		return types.Capsule{}, pkgerrors.ErrInvalidArgument
	}

	current, err := s.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		return types.Capsule{}, err
	}

	if patch.IncludeInRAG != nil {
		if _, err := s.store.ToggleCapsule(ctx, capsuleID, *patch.IncludeInRAG); err != nil {
			return types.Capsule{}, err
		}
		if current.IncludeInRAG != *patch.IncludeInRAG {
			s.audit(ctx, capsuleID, "rag_toggle",
				strconv.FormatBool(current.IncludeInRAG),
				strconv.FormatBool(*patch.IncludeInRAG))
		}
	}

	if patch.Tags != nil {
		updated, err := s.store.UpdateCapsuleTags(ctx, capsuleID, patch.Tags)
		if err != nil {
			return types.Capsule{}, err
		}
		if strings.Join(current.Metadata.Tags, ",") != strings.Join(updated.Metadata.Tags, ",") {
			s.audit(ctx, capsuleID, "tags_update",
				strings.Join(current.Metadata.Tags, ","),
				strings.Join(updated.Metadata.Tags, ","))
		}
	}

	if patch.Status != nil {
		if _, err := s.store.UpdateCapsuleStatus(ctx, capsuleID, *patch.Status); err != nil {
			return types.Capsule{}, err
		}
		if current.Metadata.Status != *patch.Status {
			s.audit(ctx, capsuleID, "status_change", current.Metadata.Status, *patch.Status)
		}
	}

	return s.store.GetCapsule(ctx, capsuleID)
}

func (s *capsuleService) audit(ctx context.Context, capsuleID, action, oldValue, newValue string) {
	entry := types.AuditEntry{
		CapsuleID:  capsuleID,
		ActionType: action,
		OldValue:   oldValue,
		NewValue:   newValue,
		Actor:      "system",
	}
	if err := s.store.LogAudit(ctx, entry); err != nil {
		s.log.Warn("Could not write audit entry", "capsule_id", capsuleID, "action", action, "error", err)
	}
}
