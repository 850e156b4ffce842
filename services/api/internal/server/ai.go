package server

import (
	"net/http"
	"strings"

	"studyhelper/pkg/domain"
	"studyhelper/services/api/internal/app"
)

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.ExplainInput
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}
	result, err := s.app.Explain(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Cached {
		status = http.StatusOK
	}
	writeData(w, status, result)
}

func (s *Server) handleExplanations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	page, err := s.app.ListExplanations(user, app.ExplanationFilter{
		BookID:      strings.TrimSpace(q.Get("bookId")),
		HighlightID: strings.TrimSpace(q.Get("highlightId")),
		Page:        queryInt(r, "page"),
		Limit:       queryInt(r, "limit"),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// /api/ai/explanations/{id}
func (s *Server) handleExplanationByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/ai/explanations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.GetExplanation(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.QuestionInput
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}
	question, err := s.app.AskQuestion(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, question)
}

// handleExtractText answers 200 with the fallback text whenever the image
// cannot be read; only a missing image is a client error.
func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.ExtractInput
	if !decodeJSON(w, r, maxCaptureBody, &req) {
		return
	}
	result, err := s.app.ExtractText(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
