package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"capsule-backend/internal/models"
	"capsule-backend/internal/services"
)

// ProfileHandler serves the profile read surfaces. Both go through the same
// access gate as the direct view link.
type ProfileHandler struct {
	capsuleService *services.CapsuleService
	clock          services.Clock
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(capsuleService *services.CapsuleService, clock services.Clock) *ProfileHandler {
	return &ProfileHandler{
		capsuleService: capsuleService,
		clock:          clock,
	}
}

// GetProfile handles GET /api/v1/profiles/{id} and returns the capsules a
// user has created.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := chi.URLParam(r, "id")

	capsules, err := h.capsuleService.ListCreated(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("Failed to fetch profile")
		respondError(w, "Failed to fetch profile", statusFor(err))
		return
	}

	respondJSON(w, map[string][]services.CapsuleView{
		"timeCapsules": h.render(capsules),
	}, http.StatusOK)
}

// GetProfileWithReceived handles GET /api/v1/profiles/{id}/{email} and splits
// capsules into created and received lists.
func (h *ProfileHandler) GetProfileWithReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := chi.URLParam(r, "id")
	email := chi.URLParam(r, "email")

	created, err := h.capsuleService.ListCreated(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("Failed to fetch created capsules")
		respondError(w, "Failed to fetch profile", statusFor(err))
		return
	}

	received, err := h.capsuleService.ListReceived(ctx, email)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Failed to fetch received capsules")
		respondError(w, "Failed to fetch profile", statusFor(err))
		return
	}

	respondJSON(w, map[string][]services.CapsuleView{
		"timeCapsulesCreated":  h.render(created),
		"timeCapsulesReceived": h.render(received),
	}, http.StatusOK)
}

func (h *ProfileHandler) render(capsules []*models.Capsule) []services.CapsuleView {
	now := h.clock.Now()
	views := make([]services.CapsuleView, len(capsules))
	for i, capsule := range capsules {
		views[i] = services.RenderCapsule(capsule, now)
	}
	return views
}
