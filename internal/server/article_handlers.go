package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"repub/internal/core"
	"repub/internal/store"

	"github.com/go-chi/chi/v5"
)

// Envelope is the response wrapper carried by every API reply.
type Envelope struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Pagination describes the slice of results a list response covers.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// ListResponse is the paginated list envelope for GET /api/articles.
type ListResponse struct {
	Success    bool           `json:"success"`
	Data       []core.Article `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// handleListArticles handles GET /api/articles.
func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := store.Filter{}
	if raw := q.Get("is_updated"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondValidation(w, map[string][]string{"is_updated": {"is_updated must be a boolean"}})
			return
		}
		filter.IsUpdated = &val
	}
	if raw := q.Get("original_article_id"); raw != "" {
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondValidation(w, map[string][]string{"original_article_id": {"original_article_id must be an integer"}})
			return
		}
		filter.OriginalArticleID = &val
	}
	if raw := q.Get("with_versions"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err == nil {
			filter.WithVersions = val
		}
	}
	if raw := q.Get("per_page"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			filter.PerPage = val
		}
	}
	if raw := q.Get("page"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			filter.Page = val
		}
	}

	articles, total, err := s.store.List(ctx, filter)
	if err != nil {
		s.log.Error("Failed to list articles", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to list articles")
		return
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 15
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	s.respondJSON(w, http.StatusOK, ListResponse{
		Success: true,
		Data:    articles,
		Pagination: Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
		},
	})
}

// handleLatestArticle handles GET /api/articles/latest.
func (s *Server) handleLatestArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.store.LatestOriginal(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "No articles found")
			return
		}
		s.log.Error("Failed to load latest article", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load latest article")
		return
	}

	s.respondJSON(w, http.StatusOK, Envelope{Success: true, Data: article})
}

// handleGetArticle handles GET /api/articles/{id}.
func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.articleID(w, r)
	if !ok {
		return
	}

	article, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Article not found")
			return
		}
		s.log.Error("Failed to load article", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load article")
		return
	}

	s.respondJSON(w, http.StatusOK, Envelope{Success: true, Data: article})
}

// handleCreateArticle handles POST /api/articles.
func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var in store.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	article, err := s.store.Create(r.Context(), in)
	if err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			s.respondValidation(w, verr.Fields)
			return
		}
		s.log.Error("Failed to create article", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to create article")
		return
	}

	s.respondJSON(w, http.StatusCreated, Envelope{Success: true, Data: article})
}

// handleUpdateArticle handles PUT/PATCH /api/articles/{id}.
func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.articleID(w, r)
	if !ok {
		return
	}

	var in store.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	article, err := s.store.Update(r.Context(), id, in)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Article not found")
			return
		}
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			s.respondValidation(w, verr.Fields)
			return
		}
		s.log.Error("Failed to update article", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to update article")
		return
	}

	s.respondJSON(w, http.StatusOK, Envelope{Success: true, Data: article})
}

// handleDeleteArticle handles DELETE /api/articles/{id}.
func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.articleID(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Article not found")
			return
		}
		s.log.Error("Failed to delete article", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete article")
		return
	}

	s.respondJSON(w, http.StatusOK, Envelope{Success: true, Message: "Article deleted successfully"})
}

// articleID parses the {id} path parameter; a non-numeric id is indistinguishable
// from a missing article to the caller.
func (s *Server) articleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Article not found")
		return 0, false
	}
	return id, true
}

// respondError writes a failure envelope with a message.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, Envelope{Success: false, Message: message})
}

// respondValidation writes a 422 envelope with field-level errors.
func (s *Server) respondValidation(w http.ResponseWriter, fields map[string][]string) {
	s.respondJSON(w, http.StatusUnprocessableEntity, Envelope{Success: false, Errors: fields})
}
