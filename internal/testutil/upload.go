package testutil

import (
	"bytes"
	"io"

	"capsule-backend/internal/models"
	"capsule-backend/internal/services"
)

// NewFileUpload builds an in-memory FileUpload for ingestion tests.
func NewFileUpload(kind models.MediaKind, name, declaredType string, content []byte) services.FileUpload {
	return services.FileUpload{
		Kind:         kind,
		Name:         name,
		Size:         int64(len(content)),
		DeclaredType: declaredType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}
