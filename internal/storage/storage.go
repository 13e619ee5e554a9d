package storage

import (
	"context"
	"io"
	"time"
)

// PresignTTL is how long a signed GET URL stays valid. Read access is only
// ever granted through signed URLs, never a persistent public link.
const PresignTTL = time.Hour

// ObjectStore abstracts the object storage backend so services and tests do
// not depend on S3 directly.
type ObjectStore interface {
	// Upload writes one object with an explicit content type.
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	// PresignGet returns a time-limited signed URL for reading one object.
	PresignGet(ctx context.Context, key string) (string, error)
}
