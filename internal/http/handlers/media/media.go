package media

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/strandapp/strand-service/internal/http/middleware"
	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/services/objectstore"
	"github.com/strandapp/strand-service/internal/storage"
	"github.com/strandapp/strand-service/internal/types"
	"github.com/strandapp/strand-service/internal/utils/response"
)

type UploadURLResponse struct {
	ObjectKey   string `json:"object_key"`
	UploadURL   string `json:"upload_url"`
	ExpiresAt   int64  `json:"expires_at"`
	ContentType string `json:"content_type"`
}

// GenerateUploadURL issues a presigned PUT URL for a client-direct upload.
// This is step one of the two-step direct protocol: the client writes the
// bytes straight to object storage, then calls ConfirmUpload to persist the
// metadata row. The file is classified from its declared metadata first, so
// unsupported or oversized files are rejected before a URL is issued.
// @Summary Generate presigned upload URL
// @Description Generate a presigned URL for uploading media directly to storage
// @Tags media
// @Accept json
// @Produce json
// @Param request body media.UploadURLRequest true "Upload URL request"
// @Success 200 {object} UploadURLResponse "Upload URL generated successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 413 {object} response.Response "File too large"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /media/upload-url [post]
func GenerateUploadURL(store *objectstore.Store, classifier *media.Classifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract user ID from context
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req media.UploadURLRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
			return
		} else if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid request body")))
			return
		}

		// Validate request
		if err := validator.New().Struct(req); err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		if _, err := classifier.ClassifyDeclared(req.FileName, req.ContentType, req.ByteSize); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, types.ErrPayloadTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			response.WriteJSON(w, status, response.GeneralError(err))
			return
		}

		objectKey := store.GenerateObjectKey(userID, req.FileName)
		uploadURL, err := store.PresignedPutURL(r.Context(), objectKey)
		if err != nil {
			slog.Error("failed to generate presigned upload URL", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("failed to generate upload URL")))
			return
		}

		resp := UploadURLResponse{
			ObjectKey:   objectKey,
			UploadURL:   uploadURL,
			ExpiresAt:   time.Now().Add(store.PresignTTL()).Unix(),
			ContentType: req.ContentType,
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Upload URL generated successfully", resp))
	}
}

// ConfirmUpload persists the metadata row after the client's direct storage
// write, step two of the direct protocol. The object is verified in storage
// before the row is created; a missing object means the client's PUT failed
// or the URL expired, and no metadata is written.
// @Summary Confirm a client-direct upload
// @Description Verify the uploaded object and persist its metadata record
// @Tags media
// @Accept json
// @Produce json
// @Param request body media.ConfirmUploadRequest true "Confirm upload request"
// @Success 201 {object} media.Asset "Media asset created successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Object not found in storage"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /media/confirm [post]
func ConfirmUpload(store *objectstore.Store, classifier *media.Classifier, db storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req media.ConfirmUploadRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
			return
		} else if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid request body")))
			return
		}

		// Validate request
		if err := validator.New().Struct(req); err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Objects are namespaced per user; confirming someone else's key is
		// not allowed.
		expectedPrefix := "users/" + userID + "/media/"
		if len(req.ObjectKey) < len(expectedPrefix) || req.ObjectKey[:len(expectedPrefix)] != expectedPrefix {
			response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("access denied")))
			return
		}

		cl, err := classifier.ClassifyDeclared(req.FileName, req.ContentType, req.ByteSize)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Verify the object actually landed in storage before writing metadata.
		objInfo, err := store.Stat(r.Context(), req.ObjectKey)
		if err != nil {
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("object not found in storage")))
			return
		}

		asset := &media.Asset{
			OwnerID:    userID,
			ObjectKey:  req.ObjectKey,
			StorageURL: store.PublicURL(req.ObjectKey),
			FileName:   req.FileName,
			ByteSize:   objInfo.Size,
			MimeType:   cl.MimeType,
			Kind:       cl.Kind,
		}
		if err := db.CreateMediaAsset(r.Context(), asset); err != nil {
			slog.Error("failed to persist media asset after direct upload",
				slog.String("object_key", req.ObjectKey),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("failed to save media metadata")))
			return
		}

		slog.Info("Direct upload confirmed",
			slog.String("asset_id", asset.ID),
			slog.String("object_key", req.ObjectKey))
		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Media asset created successfully", asset))
	}
}
