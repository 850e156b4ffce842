package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"studyhelper/internal/util"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/export"
	"studyhelper/services/api/internal/app"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r, user)
	case http.MethodPost:
		if user.ID == "" {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		s.handleRegisterBook(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	q := r.URL.Query()
	mine, _ := strconv.ParseBool(q.Get("mine"))
	page, err := s.app.ListBooks(user, app.ListBooksInput{
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
		Search: q.Get("search"),
		Tag:    q.Get("tag"),
		Mine:   mine,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleRegisterBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.RegisterBookInput
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}
	book, err := s.app.RegisterBook(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, book)
}

// /api/books/{id}, /file, /file-token, /pages/{n}, /reprocess, /highlights/export
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/books/"), "/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		s.handleBook(w, r, user, id)
	case len(parts) == 2 && parts[1] == "file":
		s.handleBookFile(w, r, user, id)
	case len(parts) == 2 && parts[1] == "file-token":
		s.handleFileToken(w, r, user, id)
	case len(parts) == 3 && parts[1] == "pages":
		s.handlePage(w, r, user, id, parts[2])
	case len(parts) == 2 && parts[1] == "reprocess":
		s.handleReprocess(w, r, user, id)
	case len(parts) == 3 && parts[1] == "highlights" && parts[2] == "export":
		s.handleExportHighlights(w, r, user, id)
	default:
		notFound(w)
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, book)
	case http.MethodPut, http.MethodPatch:
		if !requireSignedIn(w, user) {
			return
		}
		var req app.UpdateBookInput
		if !decodeJSON(w, r, maxJSONBody, &req) {
			return
		}
		book, err := s.app.UpdateBook(user, id, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, book)
	case http.MethodDelete:
		if !requireSignedIn(w, user) {
			return
		}
		if err := s.app.DeleteBook(r.Context(), user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// handleBookFile redirects to the storage backend or streams the PDF. A
// ?token= file token stands in for the Authorization header so the browser
// PDF viewer can fetch the file directly.
func (s *Server) handleBookFile(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		viewer, err := s.app.FileTokenViewer(token, id)
		if err != nil {
			if errors.Is(err, app.ErrInvalidFileToken) {
				s.audit(r, "api.file_token.verify", "fail", "book_id", id)
			}
			writeAppError(w, r, err)
			return
		}
		user = viewer
	}
	file, err := s.app.OpenBookFile(r.Context(), user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if file.RedirectURL != "" {
		http.Redirect(w, r, file.RedirectURL, http.StatusFound)
		return
	}
	defer file.Body.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.FileName}))
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, file.Body); err != nil {
		util.LoggerFromContext(r.Context()).Warn("stream book file interrupted", "book_id", id, "err", err)
	}
}

func (s *Server) handleFileToken(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !requireSignedIn(w, user) {
		return
	}
	token, err := s.app.IssueFileToken(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, token)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, user domain.User, id, rawNumber string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	number, err := strconv.Atoi(rawNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "page number must be an integer")
		return
	}
	page, err := s.app.GetPage(user, id, number)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !requireSignedIn(w, user) {
		return
	}
	book, err := s.app.Reprocess(r.Context(), user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, book)
}

func (s *Server) handleExportHighlights(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !requireSignedIn(w, user) {
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "format must be csv or xlsx")
		return
	}
	book, rows, err := s.app.ExportHighlights(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": format.FileName(book.Title)}))
	if err := export.Write(w, format, rows); err != nil {
		util.LoggerFromContext(r.Context()).Error("write highlight export failed", "book_id", id, "err", err)
	}
}

// uploadHandler accepts a multipart PDF. A non-empty provider overrides the
// form's provider field.
func (s *Server) uploadHandler(provider string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+formMemory)
		if err := r.ParseMultipartForm(formMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeAppError(w, r, app.ErrFileTooLarge)
				return
			}
			writeError(w, http.StatusBadRequest, "BOOK_INVALID_UPLOAD_FORM", "invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "BOOK_FILE_REQUIRED", "file is required (field: file)")
			return
		}
		defer file.Close()

		isPublic, _ := strconv.ParseBool(r.FormValue("isPublic"))
		in := app.UploadInput{
			FileName:    header.Filename,
			Body:        file,
			Size:        header.Size,
			Title:       r.FormValue("title"),
			Author:      r.FormValue("author"),
			Description: r.FormValue("description"),
			Tags:        formTags(r),
			IsPublic:    isPublic,
			Provider:    r.FormValue("provider"),
		}
		if provider != "" {
			in.Provider = provider
		}
		book, err := s.app.UploadBook(r.Context(), user, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, book)
	}
}

// formTags accepts repeated tags fields as well as a comma separated list.
func formTags(r *http.Request) []string {
	var tags []string
	for _, v := range r.MultipartForm.Value["tags"] {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func requireSignedIn(w http.ResponseWriter, user domain.User) bool {
	if user.ID == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
		return false
	}
	return true
}
