package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestIDPropagatesIncomingHeader(t *testing.T) {
	const incoming = "req-incoming-123"
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got != incoming {
			t.Fatalf("unexpected request id in context: got %q want %q", got, incoming)
		}
		if LoggerFromContext(r.Context()) == nil {
			t.Fatalf("expected request logger in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", incoming)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != incoming {
		t.Fatalf("unexpected response request id: got %q want %q", got, incoming)
	}
}

func TestWithRequestIDReplacesMalformedHeader(t *testing.T) {
	tests := map[string]string{
		"missing":   "",
		"injection": "abc\r\nSet-Cookie: x=1",
		"too long":  strings.Repeat("a", 200),
	}
	for name, incoming := range tests {
		t.Run(name, func(t *testing.T) {
			var seen string
			handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromRequest(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if incoming != "" {
				req.Header["X-Request-Id"] = []string{incoming}
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if !IsID(seen) {
				t.Fatalf("expected generated id, got %q", seen)
			}
			if got := rec.Header().Get("X-Request-Id"); got != seen {
				t.Fatalf("response id %q does not match context id %q", got, seen)
			}
		})
	}
}
