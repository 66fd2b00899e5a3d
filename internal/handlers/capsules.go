package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/n1hub/deepmine-engine/internal/pkg/errors"
	"github.com/n1hub/deepmine-engine/internal/services"
	"github.com/n1hub/deepmine-engine/internal/types"
)

type CapsulesHandler struct {
	capsuleService services.CapsuleService
}

func NewCapsulesHandler(capsuleService services.CapsuleService) *CapsulesHandler {
	return &CapsulesHandler{capsuleService: capsuleService}
}

func (ch *CapsulesHandler) ListCapsules(c *gin.Context) {
	var includeInRAG *bool
	if raw, ok := c.GetQuery("include_in_rag"); ok {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_filter", err)
			return
		}
		includeInRAG = &parsed
	}
	capsules, err := ch.capsuleService.List(c.Request.Context(), includeInRAG)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_capsules_failed", err)
		return
	}
	RespondOK(c, capsules)
}

func (ch *CapsulesHandler) GetCapsule(c *gin.Context) {
	capsule, err := ch.capsuleService.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, pkgerrors.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "capsule_not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_capsule_failed", err)
		return
	}
	RespondOK(c, capsule)
}

func (ch *CapsulesHandler) PatchCapsule(c *gin.Context) {
	var patch types.CapsulePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_patch", err)
		return
	}
	capsule, err := ch.capsuleService.Patch(c.Request.Context(), c.Param("id"), patch)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "capsule_not_found", err)
		return
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_patch", err)
		return
	case err != nil:
		// Tag normalization failures (count bounds, PII) surface here.
		RespondError(c, http.StatusBadRequest, "patch_rejected", err)
		return
	}
	RespondOK(c, capsule)
}
