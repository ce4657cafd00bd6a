package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/notiondocs/internal/docs"
	"github.com/dgallion1/notiondocs/internal/search"
	"github.com/dgallion1/notiondocs/internal/sink"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	start := time.Now()
	results, err := s.deps.Search.Search(r.Context(), query, limit)
	if err != nil {
		s.log.Error("search failed", "query", query, "error", err)
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	s.deps.Recorder.ObserveSearch(time.Since(start), len(results))
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	nav, err := s.deps.Store.Navigation(r.Context())
	if err != nil {
		s.log.Error("read navigation", "error", err)
		jsonError(w, "failed to read navigation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nav)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	page, err := s.deps.Store.Page(r.Context(), slug)
	if errors.Is(err, sink.ErrNotFound) {
		jsonError(w, "page not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("read page", "slug", slug, "error", err)
		jsonError(w, "failed to read page", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"slug":    page.Slug,
		"title":   page.Title,
		"content": page.Body,
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.deps.Docs.Document(r.Context(), id)
	if errors.Is(err, docs.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("fetch document", "id", id, "error", err)
		jsonError(w, "failed to fetch document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
