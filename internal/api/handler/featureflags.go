package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/api/models"
	"github.com/autoplaza/autoplaza/internal/api/response"
	"github.com/autoplaza/autoplaza/internal/featureflags"
)

// FlagService reads and writes feature flags.
type FlagService interface {
	GetAllFlags(ctx context.Context) map[string]*featureflags.Flag
	SetFlags(ctx context.Context, flags []*featureflags.Flag) error
	ResetFlag(ctx context.Context, key string) error
	InvalidateCache()
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service FlagService
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service FlagService, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.flagList(r.Context()))
}

// UpsertFeatureFlags handles PUT /v1/admin/flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input featureflags.FlagUpdateRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if len(input.Updates) == 0 {
		response.BadRequest(w, r, "no updates given", []models.FieldError{
			{Field: "updates", Message: "must not be empty"},
		})
		return
	}

	adminID := GetUserID(r.Context())
	var fieldErrs []models.FieldError
	flags := make([]*featureflags.Flag, 0, len(input.Updates))
	for i, u := range input.Updates {
		if err := featureflags.ValidateValue(u.Key, u.Value); err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: fmt.Sprintf("updates[%d]", i), Message: err.Error()})
			continue
		}
		flags = append(flags, &featureflags.Flag{Key: u.Key, Value: u.Value, UpdatedBy: adminID, Reason: input.Reason})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid flag update", fieldErrs)
		return
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	h.logger.Info().
		Str("admin_id", adminID).
		Int("count", len(flags)).
		Str("reason", input.Reason).
		Msg("feature flags updated")
	response.JSON(w, r, http.StatusOK, h.flagList(r.Context()))
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{flagKey} - drop
// an override so the built-in default applies again.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "flagKey")

	err := h.service.ResetFlag(r.Context(), key)
	switch {
	case errors.Is(err, featureflags.ErrUnknownFlag):
		response.NotFound(w, r, "unknown feature flag "+key)
		return
	case errors.Is(err, featureflags.ErrFlagNotFound):
		// Already at its default.
	case err != nil:
		h.logger.Error().Err(err).Str("flag", key).Msg("failed to reset feature flag")
		response.InternalError(w, r, "failed to reset feature flag")
		return
	default:
		h.logger.Info().Str("admin_id", GetUserID(r.Context())).Str("flag", key).Msg("feature flag reset")
	}

	response.JSON(w, r, http.StatusOK, h.flagList(r.Context()))
}

// InvalidateCache handles POST /v1/admin/flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) flagList(ctx context.Context) featureflags.FlagList {
	all := h.service.GetAllFlags(ctx)
	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(all))}
	for _, key := range sortedKeys(all) {
		list.Items = append(list.Items, *all[key])
	}
	return list
}
