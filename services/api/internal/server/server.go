package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"studyhelper/internal/filetoken"
	"studyhelper/internal/ratelimit"
	"studyhelper/internal/security"
	"studyhelper/internal/usertoken"
	"studyhelper/internal/util"
	"studyhelper/pkg/domain"
	"studyhelper/services/api/internal/app"
)

const (
	maxJSONBody    = 1 << 20
	maxCaptureBody = 24 << 20
	formMemory     = 32 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                *app.App
	TokenVerifier      *usertoken.Verifier
	AILimiter          *ratelimit.FixedWindowLimiter
	Alerter            *security.AuditAlerter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
}

// Server exposes the StudyHelper REST API.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	aiLimiter      *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		aiLimiter:      cfg.AILimiter,
		alerter:        cfg.Alerter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSAllowedOrigins,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("api", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// books
	s.mux.Handle("/api/books", s.optionalUser(s.handleBooks))
	s.mux.Handle("/api/books/", s.optionalUser(s.handleBookByID))
	s.mux.Handle("/api/upload", s.requireUser(s.uploadHandler("")))
	s.mux.Handle("/api/upload/cloudinary", s.requireUser(s.uploadHandler(string(domain.ProviderCloudinary))))
	s.mux.Handle("/api/upload/drive", s.requireUser(s.uploadHandler(string(domain.ProviderDrive))))

	// highlights
	s.mux.Handle("/api/highlights", s.requireUser(s.handleHighlights))
	s.mux.Handle("/api/highlights/", s.requireUser(s.handleHighlightByID))

	// ai
	s.mux.Handle("/api/ai/explain", s.requireUser(s.rateLimitedAI(s.handleExplain)))
	s.mux.Handle("/api/ai/explanations", s.requireUser(s.handleExplanations))
	s.mux.Handle("/api/ai/explanations/", s.requireUser(s.handleExplanationByID))
	s.mux.Handle("/api/ai/questions", s.requireUser(s.rateLimitedAI(s.handleQuestion)))
	s.mux.Handle("/api/ai/extract-text", s.requireUser(s.rateLimitedAI(s.handleExtractText)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// auth wrappers
type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// optionalUser lets anonymous callers through with a zero User; a bearer
// token that is present but invalid is still rejected.
func (s *Server) optionalUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := filetoken.BearerToken(r); !ok {
			next(w, r, domain.User{})
			return
		}
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		next(w, withUserLogger(r, user), user)
	})
}

func (s *Server) requireUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		next(w, withUserLogger(r, user), user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := filetoken.BearerToken(r)
	if !ok {
		s.audit(r, "api.token.verify", "fail", "reason", "missing_token")
		return domain.User{}, false
	}
	user, err := s.tokenVerifier.Verify(token)
	if err != nil {
		s.audit(r, "api.token.verify", "fail", "reason", "invalid_signature_or_claims")
		return domain.User{}, false
	}
	return user, true
}

func withUserLogger(r *http.Request, user domain.User) *http.Request {
	logger := util.LoggerFromContext(r.Context()).With("user_id", user.ID)
	return r.WithContext(util.ContextWithLogger(r.Context(), logger))
}

// rateLimitedAI applies the per-user AI quota.
func (s *Server) rateLimitedAI(next userHandler) userHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if s.aiLimiter == nil {
			next(w, r, user)
			return
		}
		key := user.ID
		if key == "" {
			key = "ip:" + util.ClientIP(r, s.trustedProxies)
		}
		decision := s.aiLimiter.Allow(r.Context(), key)
		if !decision.Allowed {
			s.audit(r, "api.ai.rate_limit", "rate_limited", "user_id", user.ID)
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "AI_RATE_LIMITED", "too many AI requests")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		next(w, r, user)
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Error("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window_seconds", int64(result.Window.Seconds()),
		)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, limit)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "SYSTEM_ROUTE_NOT_FOUND", "not found")
}

type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, envelope{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}
