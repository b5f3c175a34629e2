package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func status(h http.Handler, header, value string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	h := RequireAdmin(keys)(okHandler)

	if got := status(h, "X-API-Key", "adm_key"); got != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", got)
	}
	if got := status(h, "Authorization", "Bearer adm_key"); got != http.StatusOK {
		t.Fatalf("bearer admin key should pass; got %d", got)
	}
	if got := status(h, "X-API-Key", "pub_key"); got != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", got)
	}
	if got := status(h, "", ""); got != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401; got %d", got)
	}
}

func TestRequireAny(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	h := RequireAny(keys)(okHandler)

	for _, k := range []string{"pub_key", "adm_key"} {
		if got := status(h, "X-API-Key", k); got != http.StatusOK {
			t.Fatalf("%s should pass; got %d", k, got)
		}
	}
	if got := status(h, "X-API-Key", "pub_ke"); got != http.StatusUnauthorized {
		t.Fatalf("prefix of a key must not pass; got %d", got)
	}
}

func TestAuth_DisabledWithoutKeys(t *testing.T) {
	if got := status(RequireAny(Keys{})(okHandler), "", ""); got != http.StatusOK {
		t.Fatalf("no keys configured should allow; got %d", got)
	}
	if got := status(RequireAdmin(Keys{Public: []string{"p"}})(okHandler), "", ""); got != http.StatusOK {
		t.Fatalf("no admin keys configured should allow; got %d", got)
	}
}
