package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"devcamper-api/internal/auth"
	"devcamper-api/internal/config"
	"devcamper-api/internal/middleware"
	"devcamper-api/internal/service"
	"devcamper-api/internal/store"
)

type testServer struct {
	e      *echo.Echo
	store  *store.Memory
	tokens *auth.Tokens
	cfg    *config.Config
	users  int
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Environment: config.EnvDevelopment}
	cfg.Upload.Dir = t.TempDir()
	cfg.Upload.MaxFileBytes = 1024
	cfg.Auth.CookieExpireDays = 30
	for _, o := range opts {
		o(cfg)
	}

	st := store.NewMemory(service.UniqueFields(service.Schemas()))
	resources := service.NewResourceService(st, logger, service.WithBcryptCost(bcrypt.MinCost))
	tokens := auth.NewTokens("test-secret", time.Hour)
	authSvc := service.NewAuthService(resources, tokens, logger)

	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger, false)
	pipe := middleware.New(middleware.Options{MaxFileBytes: cfg.Upload.MaxFileBytes, Logger: logger})
	e.Use(pipe.Middleware())

	RegisterRoutes(e, cfg, Routes{
		Health:    NewHealthHandler(cfg, "test", st, StageNames(pipe.Names())),
		Resources: NewResources(resources, logger),
		Photos:    NewPhotoHandler(resources, cfg, logger),
		Auth:      NewAuthHandler(authSvc, cfg, logger),
		Protect:   auth.Protect(tokens, authSvc),
	})

	return &testServer{e: e, store: st, tokens: tokens, cfg: cfg}
}

// signIn stores a user with role and returns its id and a bearer token.
func (s *testServer) signIn(t *testing.T, role string) (string, string) {
	t.Helper()
	s.users++
	d, err := s.store.Create(context.Background(), service.Users, store.Document{
		"name":  role,
		"email": fmt.Sprintf("%s%d@example.com", role, s.users),
		"role":  role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, err := s.tokens.Issue(d.ID(), role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return d.ID(), tok
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createBootcamp(t *testing.T, name string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/bootcamps", fmt.Sprintf(
		`{"name":%q,"description":"Full stack","address":"Boston MA","careers":["Web Development"]}`, name), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bootcamp status = %d, body = %s", rec.Code, rec.Body.String())
	}
	data, _ := decode(t, rec)["data"].(map[string]any)
	id, _ := data[store.IDField].(string)
	return id
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return out
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, code int, msg string) {
	t.Helper()
	if rec.Code != code {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["error"] != msg {
		t.Errorf("error = %q, want %q", body["error"], msg)
	}
}

func TestRegisterRoutes_Wiring(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.signIn(t, auth.RoleAdmin)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"GET /api/v1/status", http.MethodGet, "/api/v1/status", "", http.StatusOK},
		{"GET /api/v1/bootcamps", http.MethodGet, "/api/v1/bootcamps", "", http.StatusOK},
		{"GET /api/v1/courses", http.MethodGet, "/api/v1/courses", "", http.StatusOK},
		{"GET /api/v1/reviews", http.MethodGet, "/api/v1/reviews", "", http.StatusOK},
		{"GET nested courses", http.MethodGet, "/api/v1/bootcamps/abc/courses", "", http.StatusOK},
		{"GET missing bootcamp", http.MethodGet, "/api/v1/bootcamps/abc", "", http.StatusNotFound},
		{"GET /api/v1/users anonymous", http.MethodGet, "/api/v1/users", "", http.StatusUnauthorized},
		{"GET /api/v1/users admin", http.MethodGet, "/api/v1/users", adminToken, http.StatusOK},
		{"GET /api/v1/auth/me anonymous", http.MethodGet, "/api/v1/auth/me", "", http.StatusUnauthorized},
		{"GET /api/v1/auth/logout", http.MethodGet, "/api/v1/auth/logout", "", http.StatusOK},
		{"POST /api/v1/reviews anonymous", http.MethodPost, "/api/v1/reviews", "", http.StatusUnauthorized},
		{"PATCH missing bootcamp", http.MethodPatch, "/api/v1/bootcamps/abc", "", http.StatusNotFound},
		{"PATCH missing course", http.MethodPatch, "/api/v1/courses/abc", "", http.StatusNotFound},
		{"PATCH review anonymous", http.MethodPatch, "/api/v1/reviews/abc", "", http.StatusUnauthorized},
		{"PATCH user anonymous", http.MethodPatch, "/api/v1/users/abc", "", http.StatusUnauthorized},
		{"PATCH missing user admin", http.MethodPatch, "/api/v1/users/abc", adminToken, http.StatusNotFound},
		{"GET /api-docs disabled", http.MethodGet, "/api-docs", "", http.StatusNotFound},
		{"GET /unknown returns 404", http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "", tt.token)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestUnknownRoute_ErrorShape(t *testing.T) {
	s := newTestServer(t)
	wantError(t, s.do(t, http.MethodGet, "/api/v1/unknown", "", ""), http.StatusNotFound, "Not Found")
}

func TestCreateBootcamp_CleansMarkup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/bootcamps",
		`{"name":"<b>Evil</b>Camp","description":"<script>alert(1)</script>Learn","address":"Boston","careers":["Other"],"$where":"1"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	data, _ := decode(t, rec)["data"].(map[string]any)
	if data["name"] != "EvilCamp" {
		t.Errorf("name = %q, want %q", data["name"], "EvilCamp")
	}
	if data["slug"] != "evilcamp" {
		t.Errorf("slug = %q, want %q", data["slug"], "evilcamp")
	}
	if data["description"] != "Learn" {
		t.Errorf("description = %q, want %q", data["description"], "Learn")
	}
	if _, ok := data["$where"]; ok {
		t.Error("operator key was stored")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}

func TestBootcamp_CRUD(t *testing.T) {
	s := newTestServer(t)
	id := s.createBootcamp(t, "Devworks")

	wantError(t, s.do(t, http.MethodPost, "/api/v1/bootcamps",
		`{"name":"Devworks","description":"d","address":"a","careers":["Other"]}`, ""),
		http.StatusBadRequest, "Duplicate field value entered")

	rec := s.do(t, http.MethodPut, "/api/v1/bootcamps/"+id, `{"housing":true}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	data, _ := decode(t, rec)["data"].(map[string]any)
	if data["housing"] != true {
		t.Errorf("housing = %v, want true", data["housing"])
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/bootcamps/"+id, `{"jobGuarantee":true}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	data, _ = decode(t, rec)["data"].(map[string]any)
	if data["jobGuarantee"] != true || data["housing"] != true {
		t.Errorf("patched data = %v, want jobGuarantee and housing true", data)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/bootcamps/"+id, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"success":true,"data":{}}` {
		t.Errorf("delete body = %s", got)
	}

	wantError(t, s.do(t, http.MethodGet, "/api/v1/bootcamps/"+id, "", ""),
		http.StatusNotFound, "Bootcamp not found with id of "+id)
}

func TestListBootcamps_Pagination(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		s.createBootcamp(t, name)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/bootcamps?select=name&sort=name&limit=2&page=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Count      int `json:"count"`
		Pagination struct {
			Next *struct{ Page, Limit int } `json:"next"`
			Prev *struct{ Page, Limit int } `json:"prev"`
		} `json:"pagination"`
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	if body.Pagination.Next == nil || body.Pagination.Next.Page != 2 {
		t.Errorf("pagination.next = %+v, want page 2", body.Pagination.Next)
	}
	if body.Pagination.Prev != nil {
		t.Errorf("pagination.prev = %+v, want nil", body.Pagination.Prev)
	}
	if len(body.Data) > 0 && body.Data[0]["name"] != "Alpha" {
		t.Errorf("first name = %v, want Alpha", body.Data[0]["name"])
	}
	if len(body.Data) > 0 && body.Data[0]["description"] != nil {
		t.Errorf("unselected field returned: %v", body.Data[0])
	}
}

func TestCourses_NestedUnderBootcamp(t *testing.T) {
	s := newTestServer(t)
	id := s.createBootcamp(t, "Devworks")

	course := `{"title":"Front End","description":"HTML","weeks":8,"tuition":8000,"minimumSkill":"beginner"}`

	wantError(t, s.do(t, http.MethodPost, "/api/v1/bootcamps/missing/courses", course, ""),
		http.StatusNotFound, "No bootcamp with the id of missing")

	rec := s.do(t, http.MethodPost, "/api/v1/bootcamps/"+id+"/courses", course, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/bootcamps/"+id+"/courses", "", "")
	if got := decode(t, rec)["count"]; got != 1.0 {
		t.Errorf("count = %v, want 1", got)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/bootcamps/other/courses", "", "")
	if got := decode(t, rec)["count"]; got != 0.0 {
		t.Errorf("count for other bootcamp = %v, want 0", got)
	}
}

func TestReviews_Ownership(t *testing.T) {
	s := newTestServer(t)
	camp := s.createBootcamp(t, "Devworks")
	_, alice := s.signIn(t, auth.RoleUser)
	_, bob := s.signIn(t, auth.RoleUser)
	_, admin := s.signIn(t, auth.RoleAdmin)
	_, publisher := s.signIn(t, auth.RolePublisher)

	review := `{"title":"Great","text":"Learned a lot","rating":9}`
	path := "/api/v1/bootcamps/" + camp + "/reviews"

	wantError(t, s.do(t, http.MethodPost, path, review, publisher),
		http.StatusForbidden, "User role publisher is not authorized to access this route")

	rec := s.do(t, http.MethodPost, path, review, alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	data, _ := decode(t, rec)["data"].(map[string]any)
	reviewID, _ := data[store.IDField].(string)

	wantError(t, s.do(t, http.MethodPost, path, review, alice),
		http.StatusBadRequest, "Duplicate field value entered")

	rec = s.do(t, http.MethodPut, "/api/v1/reviews/"+reviewID, `{"rating":2}`, bob)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("other user update status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/reviews/"+reviewID, `{"rating":7}`, alice)
	if rec.Code != http.StatusOK {
		t.Errorf("owner update status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/reviews/"+reviewID, "", admin)
	if rec.Code != http.StatusOK {
		t.Errorf("admin delete status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUsers_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	_, publisher := s.signIn(t, auth.RolePublisher)
	_, admin := s.signIn(t, auth.RoleAdmin)

	wantError(t, s.do(t, http.MethodGet, "/api/v1/users", "", publisher),
		http.StatusForbidden, "User role publisher is not authorized to access this route")

	rec := s.do(t, http.MethodPost, "/api/v1/users",
		`{"name":"Jane","email":"jane@example.com","password":"123456"}`, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	data, _ := decode(t, rec)["data"].(map[string]any)
	if _, ok := data["password"]; ok {
		t.Error("password returned")
	}
	if data["role"] != auth.RoleUser {
		t.Errorf("role = %v, want %q", data["role"], auth.RoleUser)
	}
}

func TestAuth_RegisterLoginMeLogout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register",
		`{"name":"John","email":"john@example.com","password":"123456","role":"publisher"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	if tok, _ := decode(t, rec)["token"].(string); tok == "" {
		t.Error("register returned no token")
	}

	wantError(t, s.do(t, http.MethodPost, "/api/v1/auth/login",
		`{"email":"john@example.com","password":"wrong"}`, ""), http.StatusUnauthorized, "Invalid credentials")
	wantError(t, s.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"john@example.com"}`, ""),
		http.StatusBadRequest, "Please provide an email and password")

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"john@example.com","password":"123456"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == auth.CookieName {
			cookie = ck
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("token cookie = %+v, want HttpOnly cookie", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", http.NoBody)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: cookie.Value})
	me := httptest.NewRecorder()
	s.e.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", me.Code, me.Body.String())
	}
	data, _ := decode(t, me)["data"].(map[string]any)
	if data["email"] != "john@example.com" {
		t.Errorf("email = %v, want john@example.com", data["email"])
	}
	if _, ok := data["password"]; ok {
		t.Error("password returned")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/auth/logout", "", "")
	var cleared *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == auth.CookieName {
			cleared = ck
		}
	}
	if cleared == nil || cleared.Value != "none" {
		t.Errorf("logout cookie = %+v, want value none", cleared)
	}
}

func multipartPhoto(t *testing.T, ctype string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="Camp.PNG"`)
	h.Set("Content-Type", ctype)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte{0x89}, size)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestPhotoUpload(t *testing.T) {
	s := newTestServer(t)
	id := s.createBootcamp(t, "Devworks")

	upload := func(ctype string, size int) *httptest.ResponseRecorder {
		body, contentType := multipartPhoto(t, ctype, size)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/bootcamps/"+id+"/photo", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		return rec
	}

	wantError(t, upload("text/plain", 10), http.StatusBadRequest, "Please upload an image file")
	wantError(t, upload("image/png", 2048), http.StatusBadRequest, "Please upload a file less than 1024 bytes")
	wantError(t, s.do(t, http.MethodPut, "/api/v1/bootcamps/"+id+"/photo", `{}`, ""),
		http.StatusBadRequest, "Please upload a file")

	rec := upload("image/png", 100)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	want := "photo_" + id + ".png"
	if got := decode(t, rec)["data"]; got != want {
		t.Errorf("data = %v, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.Upload.Dir, want)); err != nil {
		t.Errorf("stat uploaded file: %v", err)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/bootcamps/"+id, "", "")
	data, _ := decode(t, rec)["data"].(map[string]any)
	if data["photo"] != want {
		t.Errorf("photo = %v, want %q", data["photo"], want)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>DevCamper</h1>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	s := newTestServer(t, func(c *config.Config) { c.Server.StaticDir = dir })

	rec := s.do(t, http.MethodGet, "/index.html", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "DevCamper") {
		t.Errorf("GET /index.html = %d %q", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/bootcamps", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/v1/bootcamps status = %d, want %d", rec.Code, http.StatusOK)
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		wantError(t, s.do(t, method, "/api/v1/unknown", "", ""), http.StatusNotFound, "Not Found")
	}
}
