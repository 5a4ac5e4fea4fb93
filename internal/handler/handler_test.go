package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/internal/relay"
	"github.com/weiawesome/flow-market/internal/repository"
	"github.com/weiawesome/flow-market/internal/service"
	"github.com/weiawesome/flow-market/internal/uploader"
	"github.com/weiawesome/flow-market/pkg/database"
	"github.com/weiawesome/flow-market/pkg/jwt"
	"github.com/weiawesome/flow-market/pkg/middleware"
	"github.com/weiawesome/flow-market/pkg/storage"
)

type testApp struct {
	engine   *gin.Engine
	products repository.ProductRepository
	messages repository.MessageRepository
	cookie   middleware.SessionCookie
}

type appOptions struct {
	upload config.UploadConfig
	store  storage.Store
	prefix string
}

func newTestApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))

	users := repository.NewGormUserRepository(db)
	products := repository.NewGormProductRepository(db)
	messages := repository.NewGormMessageRepository(db)

	tokens, err := jwt.NewManager("test-secret", time.Hour, "flow-market")
	require.NoError(t, err)

	h := hub.NewHub()
	go h.Run()
	t.Cleanup(h.Stop)

	auth := service.NewAuthService(users, tokens, service.WithHashCost(bcrypt.MinCost))
	cookie := middleware.SessionCookie{Name: "flow_session", MaxAge: 3600}

	hd, err := NewHandler(Deps{
		Auth:        auth,
		Products:    service.NewProductService(products, users),
		Chat:        service.NewChatService(h, messages, relay.NewLocalBroadcaster(h), nil, 0),
		Uploads:     service.NewUploadService(uploader.New(opts.upload, opts.store), 1<<20),
		Health:      service.NewHealthService(products, messages),
		Hub:         h,
		Cookie:      cookie,
		WebSocket:   config.WebSocketConfig{SendBuffer: 16},
		MaxUpload:   1 << 20,
		Media:       opts.store,
		MediaPrefix: opts.prefix,
	})
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Session(auth, cookie))
	hd.RegisterRoutes(r)

	return &testApp{engine: r, products: products, messages: messages, cookie: cookie}
}

func (a *testApp) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req, cookies...)
}

func (a *testApp) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.MaxAge >= 0 && c.Value != "" {
			return c
		}
	}
	return nil
}

func (a *testApp) register(t *testing.T, username string) *http.Cookie {
	t.Helper()
	rec := a.postForm("/register", url.Values{"username": {username}, "email": {username + "@x.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	session := findCookie(rec, a.cookie.Name)
	require.NotNil(t, session)
	return session
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, appOptions{})

	rec := app.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "flow-market", body.Service)
	assert.Zero(t, body.Products)
	assert.NotEmpty(t, body.TS)
}

func TestRegisterLoginLogout(t *testing.T) {
	app := newTestApp(t, appOptions{})
	session := app.register(t, "alice")

	rec := app.get("/", session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")

	rec = app.postForm("/register", url.Values{"username": {"ALICE"}, "email": {"b@y.com"}, "password": {"pw2"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get("Location"))
	flash := findCookie(rec, flashCookie)
	require.NotNil(t, flash)

	rec = app.get("/register", flash)
	assert.Contains(t, rec.Body.String(), "already taken")

	rec = app.postForm("/login", url.Values{"username": {"alice"}, "password": {"nope"}})
	assert.Equal(t, loginPath, rec.Header().Get("Location"))
	assert.Nil(t, findCookie(rec, app.cookie.Name))

	rec = app.postForm("/login", url.Values{"username": {"alice"}, "password": {"pw"}, "next": {"/add_product"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/add_product", rec.Header().Get("Location"))
	require.NotNil(t, findCookie(rec, app.cookie.Name))

	rec = app.get("/logout", session)
	assert.Equal(t, http.StatusFound, rec.Code)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == app.cookie.Name && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	app := newTestApp(t, appOptions{})
	app.register(t, "alice")

	rec := app.postForm("/login", url.Values{"username": {"alice"}, "password": {"pw"}, "next": {"//evil.example"}})
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginFailureKeepsNext(t *testing.T) {
	app := newTestApp(t, appOptions{})
	app.register(t, "alice")

	rec := app.postForm("/login", url.Values{"username": {"alice"}, "password": {"nope"}, "next": {"/add_product"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fadd_product", rec.Header().Get("Location"))
	require.NotNil(t, findCookie(rec, flashCookie))

	rec = app.postForm("/login", url.Values{"username": {"alice"}, "password": {"nope"}, "next": {"//evil.example"}})
	assert.Equal(t, "/login?next=%2F", rec.Header().Get("Location"))
}

func TestAddProduct(t *testing.T) {
	app := newTestApp(t, appOptions{})

	rec := app.get("/add_product")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fadd_product", rec.Header().Get("Location"))

	session := app.register(t, "alice")
	form := url.Values{"title": {""}, "price": {"5"}, "description": {"d"}, "image_url": {"https://cdn/x.png"}}
	rec = app.postForm("/add_product", form, session)
	assert.Equal(t, "/add_product", rec.Header().Get("Location"))

	count, err := app.products.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	form.Set("title", "Chair")
	rec = app.postForm("/add_product", form, session)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = app.get("/products")
	require.Equal(t, http.StatusOK, rec.Code)
	var products []domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "Chair", products[0].Title)
	require.NotNil(t, products[0].OwnerID)

	rec = app.get("/", session)
	assert.Contains(t, rec.Body.String(), "Chair")
	assert.Contains(t, rec.Body.String(), `data-product="1"`)
	assert.Contains(t, rec.Body.String(), `data-lobby="lobby"`)

	rec = app.get("/products/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing domain.ProductListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, "Chair", listing.Title)
	assert.Equal(t, "alice", listing.OwnerName)

	assert.Equal(t, http.StatusNotFound, app.get("/products/999").Code)
	assert.Equal(t, http.StatusNotFound, app.get("/products/chair").Code)
}

func TestEmptyListsAreArrays(t *testing.T) {
	app := newTestApp(t, appOptions{})

	assert.Equal(t, "[]", app.get("/products").Body.String())
	assert.Equal(t, "[]", app.get("/api/messages/product_1").Body.String())
}

func multipartUpload(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func uploadResult(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUpload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok": true, "url": "https://cdn.example/a.png"}`)
	}))
	defer upstream.Close()

	t.Run("missing file", func(t *testing.T) {
		app := newTestApp(t, appOptions{})
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		rec := app.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, uploadResult(t, rec)["ok"])
	})

	t.Run("not configured", func(t *testing.T) {
		app := newTestApp(t, appOptions{})
		rec := app.do(multipartUpload(t, "a.png", pngBytes(t)))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		body := uploadResult(t, rec)
		assert.Equal(t, false, body["ok"])
		assert.Contains(t, body["error"], "no image uploader configured")

		rec = app.do(multipartUpload(t, "notes.txt", []byte("text")))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		app := newTestApp(t, appOptions{upload: config.UploadConfig{ExternalURL: upstream.URL}})
		rec := app.do(multipartUpload(t, "a.png", []byte("text")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("external", func(t *testing.T) {
		app := newTestApp(t, appOptions{upload: config.UploadConfig{ExternalURL: upstream.URL}})
		rec := app.do(multipartUpload(t, "a.png", pngBytes(t)))
		require.Equal(t, http.StatusOK, rec.Code)
		body := uploadResult(t, rec)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, "https://cdn.example/a.png", body["url"])
	})

	t.Run("local storage served under media", func(t *testing.T) {
		store, err := storage.NewLocalStore(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/media"})
		require.NoError(t, err)
		app := newTestApp(t, appOptions{
			upload: config.UploadConfig{Storage: config.StorageConfig{KeyPrefix: "products"}},
			store:  store,
			prefix: "/media",
		})

		data := pngBytes(t)
		rec := app.do(multipartUpload(t, "a.png", data))
		require.Equal(t, http.StatusOK, rec.Code)
		link, _ := uploadResult(t, rec)["url"].(string)
		require.True(t, strings.HasPrefix(link, "/media/products/"), link)

		rec = app.get(link)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, data, rec.Body.Bytes())

		assert.Equal(t, http.StatusNotFound, app.get("/media/products/missing.png").Code)
	})
}

func TestStaticAssets(t *testing.T) {
	app := newTestApp(t, appOptions{})

	rec := app.get("/static/js/chat.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openProductChat")
}
