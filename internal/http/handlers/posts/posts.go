package posts

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/strandapp/strand-service/internal/http/middleware"
	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/storage"
	"github.com/strandapp/strand-service/internal/submit"
	"github.com/strandapp/strand-service/internal/types"
	"github.com/strandapp/strand-service/internal/utils/response"
)

// PostResponse is the post plus its ordered media, as readers consume it.
type PostResponse struct {
	Post     *types.Post   `json:"post"`
	Media    []media.Asset `json:"media"`
	GroupIDs []string      `json:"group_ids"`
}

// SubmitPost handles creating a new post from a multipart form
// @Summary Submit a new post
// @Description Create a post with optional text, media files and target groups in one call
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Param text formData string false "Post text"
// @Param group_ids formData []string false "Target group IDs"
// @Param files formData file false "Media files, order preserved"
// @Success 201 {object} types.Post "Post created successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 403 {object} response.Response "Not a member of a target group"
// @Failure 413 {object} response.Response "File too large"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /posts [post]
func SubmitPost(service *submit.Service, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract user ID from context
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				response.WriteJSON(w, http.StatusRequestEntityTooLarge, response.GeneralError(
					errors.New("request body too large")))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(
				errors.New("invalid multipart form")))
			return
		}
		defer r.MultipartForm.RemoveAll()

		text := r.FormValue("text")
		groupIDs := r.MultipartForm.Value["group_ids"]

		// Buffer every file up front. Submission order is the display order,
		// so the slice index carries meaning from here on.
		var files []media.SubmittedFile
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(
					errors.New("failed to read uploaded file "+fh.Filename)))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(
					errors.New("failed to read uploaded file "+fh.Filename)))
				return
			}
			files = append(files, media.SubmittedFile{
				Name:     fh.Filename,
				MimeType: fh.Header.Get("Content-Type"),
				Data:     data,
			})
		}

		post, err := service.SubmitPost(r.Context(), userID, text, files, groupIDs)
		if err != nil {
			writeSubmitError(w, err)
			return
		}

		slog.Info("Post created", slog.String("post_id", post.ID), slog.String("author_id", userID))
		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Post created successfully", post))
	}
}

// writeSubmitError maps pipeline errors to HTTP statuses. FileError wrappers
// are unwrapped so the status reflects the underlying cause while the message
// still names the failed file.
func writeSubmitError(w http.ResponseWriter, err error) {
	var forbidden *types.ForbiddenError
	if errors.As(err, &forbidden) {
		resp := response.GeneralError(forbidden)
		resp.Data = map[string]interface{}{"invalid_group_ids": forbidden.GroupIDs}
		response.WriteJSON(w, http.StatusForbidden, resp)
		return
	}

	switch {
	case errors.Is(err, types.ErrEmptyPost),
		errors.Is(err, types.ErrUnsupportedType):
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
	case errors.Is(err, types.ErrPayloadTooLarge):
		response.WriteJSON(w, http.StatusRequestEntityTooLarge, response.GeneralError(err))
	case errors.Is(err, types.ErrTimeout):
		response.WriteJSON(w, http.StatusGatewayTimeout, response.GeneralError(
			errors.New("upload timed out, check your connection and retry")))
	case errors.Is(err, types.ErrNetwork):
		response.WriteJSON(w, http.StatusBadGateway, response.GeneralError(
			errors.New("upload failed, check your connection and retry")))
	default:
		slog.Error("post submission failed", slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(
			errors.New("failed to create post")))
	}
}

// GetPost handles fetching a single post with its media
// @Summary Get a post
// @Description Fetch a post, its ordered media and the groups it was shared to
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} PostResponse "Post fetched successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 403 {object} response.Response "Not allowed to view this post"
// @Failure 404 {object} response.Response "Post not found"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /posts/{id} [get]
func GetPost(db storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		postID := r.PathValue("id")
		if postID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("post ID is required")))
			return
		}

		post, err := db.GetPost(r.Context(), postID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("post not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		canView, err := db.UserCanViewPost(r.Context(), userID, postID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		if !canView {
			response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("access denied")))
			return
		}

		assets, err := db.GetPostMedia(r.Context(), postID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		groupIDs, err := db.GetPostGroupIDs(r.Context(), postID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		resp := PostResponse{
			Post:     post,
			Media:    assets,
			GroupIDs: groupIDs,
		}
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Post fetched successfully", resp))
	}
}

// DeletePost handles removing a post
// @Summary Delete a post
// @Description Delete a post. Only the author can delete; media links and group shares cascade
// @Tags posts
// @Param id path string true "Post ID"
// @Success 200 {object} response.Response "Post deleted successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 403 {object} response.Response "Only the author can delete"
// @Failure 404 {object} response.Response "Post not found"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /posts/{id} [delete]
func DeletePost(db storage.Storage, events EventPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		postID := r.PathValue("id")
		if postID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("post ID is required")))
			return
		}

		post, err := db.GetPost(r.Context(), postID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("post not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if post.AuthorID != userID {
			response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("only the author can delete a post")))
			return
		}

		// Resolve the shared groups before the cascade removes the rows.
		groupIDs, err := db.GetPostGroupIDs(r.Context(), postID)
		if err != nil {
			slog.Warn("failed to resolve shared groups before delete",
				slog.String("post_id", postID),
				slog.String("error", err.Error()))
		}

		if err := db.DeletePost(r.Context(), postID); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if events != nil && len(groupIDs) > 0 {
			events.PublishPostDeleted(r.Context(), postID, groupIDs)
		}

		slog.Info("Post deleted", slog.String("post_id", postID), slog.String("author_id", userID))
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Post deleted successfully", nil))
	}
}

// EventPublisher is the slice of the realtime publisher the handlers use.
type EventPublisher interface {
	PublishPostDeleted(ctx context.Context, postID string, groupIDs []string)
}
