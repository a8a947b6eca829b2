package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/coursegate/internal/middleware"
	"github.com/hitoshi/coursegate/internal/model"
	"github.com/hitoshi/coursegate/internal/security"
)

const maxPostBodyBytes = 1 << 20

// PostHandler は投稿操作のHTTPハンドラー。
// 永続化は行わず、受け付けた内容をそのまま応答する。
type PostHandler struct {
	sanitizer security.PostSanitizer
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(sanitizer security.PostSanitizer) *PostHandler {
	return &PostHandler{sanitizer: sanitizer}
}

type createPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type createPostResponse struct {
	Message string      `json:"message"`
	Post    *model.Post `json:"post"`
}

type deletePostResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Create は投稿を作成する。
// POST /posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createPostRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPostBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Invalid request body"))
		return
	}

	title := h.sanitizer.SanitizeTitle(req.Title)
	if title == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Title is required"))
		return
	}

	post := &model.Post{
		ID:      uuid.New().String(),
		Title:   title,
		Content: h.sanitizer.SanitizeContent(req.Content),
		Author:  principal.DisplayName,
	}

	writeJSON(w, http.StatusCreated, createPostResponse{
		Message: "Post created successfully",
		Post:    post,
	})
}

// Delete は投稿を削除する。
// DELETE /posts/{id}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	writeJSON(w, http.StatusOK, deletePostResponse{
		Message: "Post deleted successfully",
		ID:      id,
	})
}
