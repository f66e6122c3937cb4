package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/form-store/internal/handler"
	"github.com/iliyamo/form-store/internal/store"
)

const page = "<html><body>form store</body></html>"

func newServer(t *testing.T, mw Middleware) (*echo.Echo, string) {
	t.Helper()
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(index, []byte(page), 0o644))
	dataFile := filepath.Join(dir, "data", "data.json")
	st, err := store.Open(dataFile)
	require.NoError(t, err)

	e := echo.New()
	e.Logger.SetOutput(&strings.Builder{})
	Setup(e)
	RegisterRoutes(e, &handler.PageHandler{IndexFile: index}, handler.NewDataHandler(st, nil), mw)
	return e, dataFile
}

func serve(e *echo.Echo, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_Scenario(t *testing.T) {
	e, dataFile := newServer(t, Middleware{BodyLimit: "100K"})

	assert.Equal(t, `[]`, serve(e, http.MethodGet, "/data", "", "").Body.String())

	rec := serve(e, http.MethodPost, "/data", echo.MIMEApplicationJSON, `{"name":"Alice"}`)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, http.MethodPost, "/data", echo.MIMEApplicationForm, "email=a%40b.c")
	require.Equal(t, http.StatusFound, rec.Code)

	list := serve(e, http.MethodGet, "/data", "", "").Body.String()
	assert.Equal(t, `[{"name":"Alice"},{"email":"a@b.c"}]`, list)

	// file mirrors memory
	b, err := os.ReadFile(dataFile)
	require.NoError(t, err)
	var fromFile, fromAPI []map[string]any
	require.NoError(t, json.Unmarshal(b, &fromFile))
	require.NoError(t, json.Unmarshal([]byte(list), &fromAPI))
	assert.Equal(t, fromAPI, fromFile)
	assert.True(t, strings.HasPrefix(string(b), "[\n  {\n    \"name\": \"Alice\"\n  },"))

	// landing page is unaffected by the collection
	rec = serve(e, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, page, rec.Body.String())

	assert.Equal(t, "ok", serve(e, http.MethodGet, "/healthz", "", "").Body.String())
}

func TestRoutes_BodyLimit(t *testing.T) {
	e, _ := newServer(t, Middleware{BodyLimit: "1K"})
	big := `{"x":"` + strings.Repeat("a", 2048) + `"}`
	rec := serve(e, http.MethodPost, "/data", echo.MIMEApplicationJSON, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, `[]`, serve(e, http.MethodGet, "/data", "", "").Body.String())
}

func TestRoutes_BodyLimitChunked(t *testing.T) {
	e, _ := newServer(t, Middleware{BodyLimit: "1K"})
	big := `{"x":"` + strings.Repeat("a", 2048) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/data", strings.NewReader(big))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.ContentLength = -1 // length unknown, as with Transfer-Encoding: chunked
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, `[]`, serve(e, http.MethodGet, "/data", "", "").Body.String())

	// small chunked bodies still go through
	req = httptest.NewRequest(http.MethodPost, "/data", strings.NewReader(`{"a":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestRoutes_PerRouteMiddleware(t *testing.T) {
	var order []string
	mark := func(name string) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { order = append(order, name); return next(c) }
		}
	}
	e, _ := newServer(t, Middleware{RateLimit: mark("ratelimit"), Cache: mark("cache")})

	serve(e, http.MethodPost, "/data", echo.MIMEApplicationJSON, `{}`)
	serve(e, http.MethodGet, "/data", "", "")
	serve(e, http.MethodGet, "/", "", "")
	assert.Equal(t, []string{"ratelimit", "cache"}, order)
}

func TestRoutes_Recover(t *testing.T) {
	e, _ := newServer(t, Middleware{})
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	assert.Equal(t, http.StatusInternalServerError, serve(e, http.MethodGet, "/boom", "", "").Code)
}
