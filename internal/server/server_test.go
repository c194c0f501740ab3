package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictionledger/internal/auth"
	"predictionledger/internal/handlers"
	"predictionledger/internal/ledger"
	"predictionledger/internal/storage"
)

const testBotToken = "42:server-test-token"

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func setupRouter(t *testing.T, db Pinger) (http.Handler, string) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := ledger.NewEngine(store, nil, nil)
	_, err = engine.Initialize(context.Background(), "tg:1")
	require.NoError(t, err)

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>ledger</h1>"), 0o600))

	if db == nil {
		db = store
	}
	opts := Options{
		StaticDir: static,
		Telegram:  auth.NewTelegramVerifier(testBotToken, time.Hour),
	}
	return NewRouter(opts, handlers.New(engine, store, nil, 500), db), static
}

func initData(userID int64) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":"Test"}`, userID))
	values.Set("hash", auth.SignInitData(testBotToken, values))
	return values.Encode()
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router, _ := setupRouter(t, nil)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/ping", http.StatusOK},
		{"/", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := serve(router, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRouter_ServesStaticFiles(t *testing.T) {
	router, _ := setupRouter(t, nil)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	// FileServer redirects /index.html to /
	assert.Equal(t, http.StatusMovedPermanently, rr.Code)

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rr.Body.String(), "ledger")
}

func TestRouter_ReadinessFailure(t *testing.T) {
	router, _ := setupRouter(t, fakePinger{err: errors.New("disk gone")})
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_RequiresAuthForAPI(t *testing.T) {
	router, _ := setupRouter(t, nil)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(auth.HeaderInitData, initData(777))
	rr = serve(router, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"tg:777"`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRouter_WalletLoginDisabled(t *testing.T) {
	router, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(auth.HeaderWalletAddress, "0x0000000000000000000000000000000000000001")
	rr := serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "wallet login not enabled")
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
