package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsule-backend/internal/handlers"
	"capsule-backend/internal/models"
	"capsule-backend/internal/repository"
	"capsule-backend/internal/services"
	"capsule-backend/internal/storage"
	"capsule-backend/internal/testutil"
)

type apiFixture struct {
	router   *chi.Mux
	capsules *repository.MemoryCapsuleStore
	objects  *storage.MemoryStore
	clock    *testutil.StubClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	capsules := repository.NewMemoryCapsuleStore()
	notifs := repository.NewMemoryNotificationStore()
	objects := storage.NewMemoryStore()
	clock := testutil.FixedClock()

	scheduler := services.NewScheduler(notifs, capsules, testutil.NewRecordingMailer(), clock,
		time.Minute, 2, "https://capsule.example.com")
	svc := services.NewCapsuleService(capsules, objects, scheduler,
		services.Limits{MaxFileSizeBytes: 1 << 20, MaxFilesPerKind: 5}, clock)

	capsuleHandler := handlers.NewCapsuleHandler(svc, clock)
	profileHandler := handlers.NewProfileHandler(svc, clock)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/capsules", capsuleHandler.CreateCapsule)
		r.Get("/capsules/{id}", capsuleHandler.GetCapsule)
		r.Get("/files", capsuleHandler.GetFile)
		r.Get("/profiles/{id}", profileHandler.GetProfile)
		r.Get("/profiles/{id}/{email}", profileHandler.GetProfileWithReceived)
	})

	return &apiFixture{router: r, capsules: capsules, objects: objects, clock: clock}
}

func multipartSubmission(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, value := range fields {
		require.NoError(t, w.WriteField(field, value))
	}
	for field, names := range files {
		for _, name := range names {
			part, err := w.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte("content of " + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func submissionFields(unlockDate string) map[string]string {
	return map[string]string{
		"ownerId":        "owner-1",
		"title":          "Graduation",
		"description":    "Open when you graduate",
		"message":        "We are so proud of you",
		"senderName":     "Mom",
		"recipientName":  "Alex",
		"recipientEmail": "alex@example.com",
		"recipientPhone": "+15550100",
		"unlockDate":     unlockDate,
	}
}

func TestCreateCapsuleEndpoint(t *testing.T) {
	t.Run("returns the creation envelope with storage keys", func(t *testing.T) {
		f := newAPIFixture(t)

		body, contentType := multipartSubmission(t,
			submissionFields("2026-06-01"),
			map[string][]string{"image": {"photo.jpg"}, "audio": {"voice.m4a"}},
		)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/capsules", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp handlers.CreateCapsuleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Success", resp.Message)
		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.NotEmpty(t, resp.Data.ID)

		require.Len(t, resp.Data.Images, 1)
		assert.True(t, strings.HasPrefix(resp.Data.Images[0], "images/photo.jpg-"))
		require.Len(t, resp.Data.Audios, 1)
		assert.True(t, strings.HasPrefix(resp.Data.Audios[0], "audios/voice.m4a-"))
		assert.Empty(t, resp.Data.Videos)

		// Keys, not URLs.
		assert.NotContains(t, resp.Data.Images[0], "http")
	})

	t.Run("rejects too many files of one kind", func(t *testing.T) {
		f := newAPIFixture(t)

		names := make([]string, 6)
		for i := range names {
			names[i] = fmt.Sprintf("photo-%d.jpg", i)
		}
		body, contentType := multipartSubmission(t, submissionFields("2026-06-01"),
			map[string][]string{"image": names})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/capsules", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, f.objects.Len())
		assert.Equal(t, 0, f.capsules.Len())
	})

	t.Run("rejects an unparseable unlock date", func(t *testing.T) {
		f := newAPIFixture(t)

		body, contentType := multipartSubmission(t, submissionFields("next tuesday"), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/capsules", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetCapsuleEndpoint(t *testing.T) {
	seed := func(t *testing.T, f *apiFixture, unlock time.Time) string {
		t.Helper()
		id, err := f.capsules.Create(context.Background(), &models.Capsule{
			OwnerID:        "owner-1",
			Title:          "Graduation",
			Description:    "Open when you graduate",
			Message:        "We are so proud of you",
			SenderName:     "Mom",
			RecipientEmail: "alex@example.com",
			UnlockDate:     unlock,
			CreatedAt:      f.clock.Now(),
		})
		require.NoError(t, err)
		return id
	}

	t.Run("locked capsule hides the message", func(t *testing.T) {
		f := newAPIFixture(t)
		id := seed(t, f, f.clock.Now().Add(time.Hour))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/capsules/"+id, nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var view services.CapsuleView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.False(t, view.Unlocked)
		assert.Equal(t, "Graduation", view.Title)
		assert.Empty(t, view.Message)
	})

	t.Run("same capsule unlocks once the clock passes the boundary", func(t *testing.T) {
		f := newAPIFixture(t)
		id := seed(t, f, f.clock.Now().Add(time.Hour))

		f.clock.Advance(time.Hour) // exactly at the unlock date

		req := httptest.NewRequest(http.MethodGet, "/api/v1/capsules/"+id, nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var view services.CapsuleView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.True(t, view.Unlocked)
		assert.Equal(t, "We are so proud of you", view.Message)
	})

	t.Run("unknown capsule yields 404", func(t *testing.T) {
		f := newAPIFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/capsules/nope", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetFileEndpoint(t *testing.T) {
	t.Run("missing key yields 400", func(t *testing.T) {
		f := newAPIFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns a signed url for a stored object", func(t *testing.T) {
		f := newAPIFixture(t)
		require.NoError(t, f.objects.Upload(context.Background(),
			"images/photo.jpg-1748700000000", "image/jpeg", strings.NewReader("x")))

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/files?key=images/photo.jpg-1748700000000", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["url"])
	})
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.capsules.Create(ctx, &models.Capsule{
		OwnerID: "owner-1", RecipientEmail: "other@example.com",
		Title: "From owner-1", UnlockDate: f.clock.Now().Add(time.Hour), CreatedAt: f.clock.Now(),
	})
	require.NoError(t, err)
	_, err = f.capsules.Create(ctx, &models.Capsule{
		OwnerID: "owner-2", RecipientEmail: "me@example.com",
		Title: "To me", UnlockDate: f.clock.Now().Add(time.Hour), CreatedAt: f.clock.Now(),
	})
	require.NoError(t, err)

	t.Run("created list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/owner-1", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string][]services.CapsuleView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp["timeCapsules"], 1)
	})

	t.Run("created and received lists", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/owner-1/me@example.com", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string][]services.CapsuleView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp["timeCapsulesCreated"], 1)
		assert.Len(t, resp["timeCapsulesReceived"], 1)
		assert.Equal(t, "To me", resp["timeCapsulesReceived"][0].Title)
	})
}
