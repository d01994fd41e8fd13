package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/logging"
)

// blobError maps a service error to a huma status error. Storage and
// metadata failures are logged and reported without their cause.
func blobError(ctx context.Context, err error) error {
	switch {
	case blobderr.Is(err, blobderr.ErrInvalidPayloadEncoding):
		return huma.Error400BadRequest("Invalid base64 data", err)
	case blobderr.Is(err, blobderr.ErrInvalidID):
		return huma.Error400BadRequest("Invalid blob id", err)
	case blobderr.Is(err, blobderr.ErrDuplicateID):
		return huma.Error409Conflict("Blob with this id already exists")
	case blobderr.Is(err, blobderr.ErrNotFound):
		return huma.Error404NotFound("Blob not found")
	}
	logging.FromContext(ctx).Error("Blob operation failed", "error", err)
	return huma.Error500InternalServerError("Internal server error")
}
