package server

import (
	"errors"
	"net/http"

	"studyhelper/internal/util"
	"studyhelper/services/api/internal/app"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: specific sentinels wrap the generic ones.
var errorMappings = []errorMapping{
	{app.ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
	{app.ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{app.ErrBookForbidden, http.StatusForbidden, "BOOK_FORBIDDEN"},
	{app.ErrPageNotFound, http.StatusNotFound, "PAGE_NOT_FOUND"},
	{app.ErrHighlightNotFound, http.StatusNotFound, "HIGHLIGHT_NOT_FOUND"},
	{app.ErrHighlightForbidden, http.StatusForbidden, "HIGHLIGHT_FORBIDDEN"},
	{app.ErrExplanationNotFound, http.StatusNotFound, "EXPLANATION_NOT_FOUND"},
	{app.ErrExplanationForbidden, http.StatusForbidden, "EXPLANATION_FORBIDDEN"},
	{app.ErrNotFound, http.StatusNotFound, "SYSTEM_NOT_FOUND"},
	{app.ErrForbidden, http.StatusForbidden, "SYSTEM_FORBIDDEN"},
	{app.ErrUnsupportedFile, http.StatusBadRequest, "BOOK_UNSUPPORTED_FILE_TYPE"},
	{app.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "BOOK_FILE_TOO_LARGE"},
	{app.ErrInvalidFileToken, http.StatusUnauthorized, "BOOK_FILE_TOKEN_INVALID"},
	{app.ErrFileTokensUnavailable, http.StatusServiceUnavailable, "BOOK_FILE_TOKEN_UNAVAILABLE"},
	{app.ErrStorageInUse, http.StatusConflict, "BOOK_STORAGE_CONFLICT"},
	{app.ErrStorageProvider, http.StatusServiceUnavailable, "STORAGE_PROVIDER_NOT_CONFIGURED"},
	{app.ErrEnqueue, http.StatusServiceUnavailable, "BOOK_ENQUEUE_FAILED"},
	{app.ErrAIUnavailable, http.StatusServiceUnavailable, "AI_UNAVAILABLE"},
	{app.ErrAIUpstream, http.StatusBadGateway, "AI_UPSTREAM_ERROR"},
}

// writeAppError maps application errors to a status and stable code. Server
// side failures are logged and answered without the internal error text.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := err.Error()
		if m.status >= http.StatusInternalServerError {
			logger.Error("request failed", "code", m.code, "err", err)
			msg = m.target.Error()
		}
		writeError(w, m.status, m.code, msg)
		return
	}
	logger.Error("request failed", "code", "SYSTEM_INTERNAL_ERROR", "err", err)
	writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
}
