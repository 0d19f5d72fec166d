package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesIndexAndFallback(t *testing.T) {
	h := Handler()

	for _, path := range []string{"/", "/history/42"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "/ws/chat") {
			t.Errorf("%s: expected chat page, got %q", path, rr.Body.String())
		}
	}
}

func TestHandlerDoesNotShadowAPI(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown API path, got %d", rr.Code)
	}
}
