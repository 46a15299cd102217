package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-chat/internal/config"
)

const testSecret = "middleware-test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func runAuth(t *testing.T, header string) (*httptest.ResponseRecorder, uint64) {
	t.Helper()
	e := echo.New()
	var seen uint64
	h := JWTAuth(testSecret)(func(c echo.Context) error {
		seen, _ = UserID(c)
		return c.NoContent(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec, seen
}

func TestJWTAuth_AcceptsNumericAndStringSubject(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	for _, sub := range []interface{}{float64(42), "42"} {
		tok := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": sub, "exp": exp})
		rec, uid := runAuth(t, "Bearer "+tok)
		if rec.Code != http.StatusNoContent || uid != 42 {
			t.Errorf("sub %v: status %d uid %d", sub, rec.Code, uid)
		}
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	cases := map[string]string{
		"missing":   "",
		"no bearer": "Token abc",
		"garbage":   "Bearer not.a.jwt",
		"wrong key": "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "1", "exp": exp}),
		"expired":   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"hs512":     "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "1", "exp": exp}),
		"zero sub":  "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "0", "exp": exp}),
		"email sub": "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "a@b.c", "exp": exp}),
	}
	for name, header := range cases {
		rec, _ := runAuth(t, header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not_authenticated") {
			t.Errorf("%s: unexpected body %s", name, rec.Body.String())
		}
	}
}

func TestSubjectID(t *testing.T) {
	for _, tc := range []struct {
		in   interface{}
		want uint64
		ok   bool
	}{
		{float64(7), 7, true},
		{float64(7.5), 0, false},
		{float64(-1), 0, false},
		{"18446744073709551615", 18446744073709551615, true},
		{"-3", 0, false},
		{nil, 0, false},
		{true, 0, false},
	} {
		got, ok := subjectID(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("subjectID(%v) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBuildRateKey_UserRoute(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/rooms/3/messages", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/chat/rooms/:roomId/messages")
	c.Set(UserIDKey, uint64(9))

	got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}, c)
	if want := "rl:user:9:route:POST /v1/chat/rooms/:roomId/messages"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCachePayload_RoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"total_checkins":3}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, gotHdr, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || gotHdr.Get("Content-Type") != "application/json" || string(body) != `{"total_checkins":3}` {
		t.Errorf("decode mismatch: %d %v %q %v", status, gotHdr, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:5]); ok {
		t.Error("short payload must not decode")
	}
}

func TestCacheKey_DistinguishesEstablishments(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route"}
	key := func(path string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath("/v1/establishments/:id/stats")
		return cacheKeyFrom(cfg, c)
	}
	if key("/v1/establishments/1/stats") == key("/v1/establishments/2/stats") {
		t.Error("different establishments share a cache key")
	}
	if !strings.HasPrefix(key("/v1/establishments/1/stats"), "cache:") {
		t.Error("prefix missing")
	}
}

func TestCaptureWriter_StopsAtLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("def"))
	if !cw.truncated {
		t.Error("expected truncation")
	}
	if rec.Body.String() != "abcdef" {
		t.Errorf("client must get the full body, got %q", rec.Body.String())
	}
}
