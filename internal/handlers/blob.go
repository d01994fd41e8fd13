// Package handlers implements the blob HTTP operations on top of huma.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bleepstore/blobd/internal/auth"
	"github.com/bleepstore/blobd/internal/blob"
	"github.com/bleepstore/blobd/internal/storage"
)

// CreateBlobInput is the request for POST /api/v1/blobs.
type CreateBlobInput struct {
	Body struct {
		ID   string `json:"id" minLength:"1" doc:"Client-chosen blob id, unique for the lifetime of the service"`
		Data string `json:"data" doc:"Base64 payload, optionally prefixed with data:<mime>;base64,"`
	}
}

// CreateBlobBody is the response body for a stored blob.
type CreateBlobBody struct {
	ID        string      `json:"id"`
	Message   string      `json:"message" example:"Blob stored successfully"`
	Size      int64       `json:"size" doc:"Decoded payload size in bytes"`
	CreatedAt time.Time   `json:"created_at"`
	Backend   storage.Tag `json:"backend" enum:"local,db,s3,gcs,azure,memory"`
}

type CreateBlobOutput struct {
	Body CreateBlobBody
}

// GetBlobInput is the request for GET /api/v1/blobs/{id}.
type GetBlobInput struct {
	ID string `path:"id" doc:"Blob id"`
}

// GetBlobBody is the response body for a retrieved blob.
type GetBlobBody struct {
	ID        string    `json:"id"`
	Data      string    `json:"data" doc:"Canonical padded base64 payload"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type GetBlobOutput struct {
	Body GetBlobBody
}

// BlobHandler serves the blob operations.
type BlobHandler struct {
	svc          *blob.Service
	maxBodyBytes int64
}

// NewBlobHandler returns a handler backed by svc. maxBodyBytes bounds the
// create request body.
func NewBlobHandler(svc *blob.Service, maxBodyBytes int64) *BlobHandler {
	return &BlobHandler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// Register adds the blob operations to api.
func (h *BlobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-blob",
		Method:        http.MethodPost,
		Path:          "/api/v1/blobs",
		Summary:       "Store a blob",
		Description:   "Decodes the base64 payload and stores it under the given id. Ids can be used only once.",
		Tags:          []string{"Blobs"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  h.maxBodyBytes,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusTooManyRequests},
	}, h.CreateBlob)

	huma.Register(api, huma.Operation{
		OperationID: "get-blob",
		Method:      http.MethodGet,
		Path:        "/api/v1/blobs/{id}",
		Summary:     "Retrieve a blob",
		Tags:        []string{"Blobs"},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusTooManyRequests},
	}, h.GetBlob)
}

func (h *BlobHandler) CreateBlob(ctx context.Context, in *CreateBlobInput) (*CreateBlobOutput, error) {
	rec, err := h.svc.CreateBlob(ctx, callerFrom(ctx), in.Body.ID, in.Body.Data)
	if err != nil {
		return nil, blobError(ctx, err)
	}
	return &CreateBlobOutput{Body: CreateBlobBody{
		ID:        rec.ID,
		Message:   "Blob stored successfully",
		Size:      rec.Size,
		CreatedAt: rec.CreatedAt,
		Backend:   rec.Backend,
	}}, nil
}

func (h *BlobHandler) GetBlob(ctx context.Context, in *GetBlobInput) (*GetBlobOutput, error) {
	rec, data, err := h.svc.GetBlob(ctx, callerFrom(ctx), in.ID)
	if err != nil {
		return nil, blobError(ctx, err)
	}
	return &GetBlobOutput{Body: GetBlobBody{
		ID:        rec.ID,
		Data:      data,
		Size:      rec.Size,
		CreatedAt: rec.CreatedAt,
	}}, nil
}

func callerFrom(ctx context.Context) blob.Caller {
	if s, ok := auth.SubjectFromContext(ctx); ok {
		return blob.Caller(s)
	}
	return blob.Anonymous
}
