package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name      string
		origins   []string
		method    string
		origin    string
		preflight bool
		code      int
		allow     string
	}{
		{"no origin header", []string{"https://ui.example"}, http.MethodGet, "", false, http.StatusOK, ""},
		{"listed origin", []string{"https://UI.example/"}, http.MethodGet, "https://ui.example", false, http.StatusOK, "https://ui.example"},
		{"unlisted origin read", []string{"https://ui.example"}, http.MethodGet, "https://evil.example", false, http.StatusOK, ""},
		{"unlisted origin preflight", []string{"https://ui.example"}, http.MethodOptions, "https://evil.example", true, http.StatusForbidden, ""},
		{"listed origin preflight", []string{"https://ui.example"}, http.MethodOptions, "https://ui.example", true, http.StatusNoContent, "https://ui.example"},
		{"wildcard", []string{"*"}, http.MethodGet, "https://any.example", false, http.StatusOK, "*"},
		{"empty list allows all", nil, http.MethodOptions, "https://any.example", true, http.StatusNoContent, "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/snapshots", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "GET")
			}
			rec := httptest.NewRecorder()
			CORS(tt.origins)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.allow {
				t.Fatalf("allow origin = %q, want %q", got, tt.allow)
			}
			if tt.origin != "" && rec.Header().Get("Vary") != "Origin" {
				t.Fatalf("Vary = %q", rec.Header().Get("Vary"))
			}
			if tt.code == http.StatusNoContent && rec.Header().Get("Access-Control-Allow-Methods") != corsMethods {
				t.Fatalf("allow methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
