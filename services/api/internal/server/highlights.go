package server

import (
	"net/http"
	"strings"

	"studyhelper/pkg/domain"
	"studyhelper/services/api/internal/app"
)

func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		page, err := s.app.ListHighlights(user, app.HighlightFilter{
			BookID:     strings.TrimSpace(r.URL.Query().Get("bookId")),
			PageNumber: queryInt(r, "page"),
			Page:       queryInt(r, "p"),
			Limit:      queryInt(r, "limit"),
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, page)
	case http.MethodPost:
		var req app.HighlightInput
		if !decodeJSON(w, r, maxJSONBody, &req) {
			return
		}
		highlight, err := s.app.CreateHighlight(user, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, highlight)
	default:
		methodNotAllowed(w)
	}
}

// /api/highlights/{id}
func (s *Server) handleHighlightByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/highlights/"), "/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		highlight, err := s.app.GetHighlight(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, highlight)
	case http.MethodPut, http.MethodPatch:
		var req app.HighlightPatch
		if !decodeJSON(w, r, maxJSONBody, &req) {
			return
		}
		highlight, err := s.app.UpdateHighlight(user, id, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, highlight)
	case http.MethodDelete:
		if err := s.app.DeleteHighlight(user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
