package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"capsule-backend/internal/middleware"
	"capsule-backend/internal/models"
	"capsule-backend/internal/services"
)

// CapsuleHandler handles capsule-related HTTP requests
type CapsuleHandler struct {
	capsuleService *services.CapsuleService
	clock          services.Clock
}

// NewCapsuleHandler creates a new capsule handler
func NewCapsuleHandler(capsuleService *services.CapsuleService, clock services.Clock) *CapsuleHandler {
	return &CapsuleHandler{
		capsuleService: capsuleService,
		clock:          clock,
	}
}

// CreateCapsuleResponse is the envelope returned on successful creation.
// Media entries are storage keys, not URLs.
type CreateCapsuleResponse struct {
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Data    CreateCapsuleData `json:"data"`
}

// CreateCapsuleData echoes the stored capsule metadata.
type CreateCapsuleData struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Message     string   `json:"message"`
	Images      []string `json:"images"`
	Videos      []string `json:"videos"`
	Audios      []string `json:"audios"`
}

const maxMultipartMemory = 32 << 20

// CreateCapsule handles POST /api/v1/capsules
func (h *CapsuleHandler) CreateCapsule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	ownerID := middleware.GetUserID(ctx)
	if ownerID == "" {
		ownerID = r.FormValue("ownerId")
	}

	unlockDate, err := parseUnlockDate(r.FormValue("unlockDate"))
	if err != nil {
		respondError(w, "Invalid unlockDate", http.StatusBadRequest)
		return
	}

	req := services.SubmitRequest{
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		Message:        r.FormValue("message"),
		SenderName:     r.FormValue("senderName"),
		RecipientName:  r.FormValue("recipientName"),
		RecipientEmail: r.FormValue("recipientEmail"),
		RecipientPhone: r.FormValue("recipientPhone"),
		UnlockDate:     unlockDate,
	}

	var files []services.FileUpload
	for field, kind := range map[string]models.MediaKind{
		"image": models.KindImage,
		"video": models.KindVideo,
		"audio": models.KindAudio,
	} {
		for _, header := range r.MultipartForm.File[field] {
			files = append(files, fileUpload(kind, header))
		}
	}

	capsule, err := h.capsuleService.SubmitCapsule(ctx, ownerID, req, files)
	if err != nil {
		log.Error().
			Err(err).
			Str("owner_id", ownerID).
			Msg("Failed to create capsule")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, CreateCapsuleResponse{
		Message: "Success",
		Status:  http.StatusCreated,
		Data: CreateCapsuleData{
			ID:          capsule.ID,
			Title:       capsule.Title,
			Description: capsule.Description,
			Message:     capsule.Message,
			Images:      mediaKeys(capsule.Images),
			Videos:      mediaKeys(capsule.Videos),
			Audios:      mediaKeys(capsule.Audios),
		},
	}, http.StatusCreated)
}

// GetCapsule handles GET /api/v1/capsules/{id}. The response is the
// time-gated view: locked capsules reveal only title, description, sender
// name, and the unlock date.
func (h *CapsuleHandler) GetCapsule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	capsule, err := h.capsuleService.GetCapsule(ctx, id)
	if err != nil {
		respondError(w, "Time capsule not found", statusFor(err))
		return
	}

	respondJSON(w, services.RenderCapsule(capsule, h.clock.Now()), http.StatusOK)
}

// GetFile handles GET /api/v1/files?key=... and returns a one-hour signed
// URL for the object.
func (h *CapsuleHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, "File key is missing", http.StatusBadRequest)
		return
	}

	url, err := h.capsuleService.PresignMedia(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to presign file")
		respondError(w, "Could not fetch the file", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"url": url}, http.StatusOK)
}

func fileUpload(kind models.MediaKind, header *multipart.FileHeader) services.FileUpload {
	return services.FileUpload{
		Kind:         kind,
		Name:         header.Filename,
		Size:         header.Size,
		DeclaredType: header.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

func mediaKeys(refs []models.MediaReference) []string {
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = ref.Key
	}
	return keys
}

func parseUnlockDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("unlockDate is empty")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", value)
}
