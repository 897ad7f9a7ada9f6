package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"prepdeck/internal/analysis"
	"prepdeck/internal/archive"
	"prepdeck/internal/repository/sqlite"
	"prepdeck/internal/service"
	"prepdeck/internal/session"
)

type stubRunner struct {
	out []string
	err error
}

func (s *stubRunner) Run(ctx context.Context, kind analysis.Kind) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type testServer struct {
	router     *gin.Engine
	binder     *session.Binder
	db         *sql.DB
	runner     *stubRunner
	answersDir string
	catalogDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	db, err := sqlite.Open(filepath.Join(root, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepository(db)
	answerRepo := sqlite.NewAnswerRepository(db)
	require.NoError(t, userRepo.Init(context.Background()))
	require.NoError(t, answerRepo.Init(context.Background()))

	answersDir := filepath.Join(root, "answers")
	catalogDir := filepath.Join(root, "videos")
	require.NoError(t, os.MkdirAll(catalogDir, 0o755))

	answerArchive, err := archive.New(answersDir)
	require.NoError(t, err)

	binder := session.NewBinder("test-secret", time.Hour)
	runner := &stubRunner{}

	router := gin.New()
	handler := NewHandler(Options{
		Users:      service.NewUserService(userRepo),
		Answers:    service.NewAnswerService(answerRepo, 100),
		Sessions:   binder,
		Archive:    answerArchive,
		Catalog:    archive.NewCatalog(catalogDir),
		Runner:     runner,
		CookieName: "prepdeck_session",
		CORSOrigin: "http://localhost:3000",
		CatalogDir: catalogDir,
		ModelsDir:  filepath.Join(root, "models"),
	})
	handler.RegisterRoutes(router)

	return &testServer{
		router:     router,
		binder:     binder,
		db:         db,
		runner:     runner,
		answersDir: answersDir,
		catalogDir: catalogDir,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(t *testing.T, path string, payload any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return ts.do(t, http.MethodPost, path, bytes.NewReader(body), "application/json", cookies...)
}

func (ts *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	w := ts.postJSON(t, "/login", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "prepdeck_session" {
			return cookie
		}
	}
	t.Fatal("login response carries no session cookie")
	return nil
}

func (ts *testServer) countAnswers(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, ts.db.QueryRow(`SELECT COUNT(*) FROM answers`).Scan(&n))
	return n
}

func TestRegisterAndDuplicate(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Registered successfully.", w.Body.String())

	w = ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "other", "email": "b@x.com"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "User already exists.", w.Body.String())
}

func TestLoginFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})

	w := ts.postJSON(t, "/login", gin.H{"username": "alice", "password": "wrong"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
	require.Empty(t, w.Result().Cookies())
}

func TestSaveAnswerUpsertFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})
	cookie := ts.login(t, "alice", "pw")

	w := ts.postJSON(t, "/save-answer", gin.H{"question": 1, "answer": "foo"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Saved", w.Body.String())

	w = ts.postJSON(t, "/save-answer", gin.H{"question": 1, "answer": "bar"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, 1, ts.countAnswers(t), "second save replaces the row, not appends")

	identity, err := ts.binder.Parse(cookie.Value)
	require.NoError(t, err)

	var answer string
	require.NoError(t, ts.db.QueryRow(
		`SELECT answer FROM answers WHERE username = ? AND question = ? AND timestamp = ?`,
		"alice", 1, identity.SessionTime,
	).Scan(&answer))
	require.Equal(t, "bar", answer)
}

func TestTwoLoginsWriteSeparateRows(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})

	first := ts.login(t, "alice", "pw")
	second := ts.login(t, "alice", "pw")

	ts.postJSON(t, "/save-answer", gin.H{"question": 1, "answer": "one"}, first)
	ts.postJSON(t, "/save-answer", gin.H{"question": 1, "answer": "two"}, second)

	require.Equal(t, 2, ts.countAnswers(t), "distinct sessions never collide on the compound key")
}

func TestSaveAnswerUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON(t, "/save-answer", gin.H{"question": 1, "answer": "foo"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Unauthorized", w.Body.String())
	require.Zero(t, ts.countAnswers(t))
}

func TestUploadTranscript(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})
	cookie := ts.login(t, "alice", "pw")

	w := ts.postJSON(t, "/upload-transcript", gin.H{"question": 2, "transcript": "hello world"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Transcript saved", w.Body.String())
	require.Equal(t, 1, ts.countAnswers(t))
}

func TestUploadAnswerStoresArtifact(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})
	cookie := ts.login(t, "alice", "pw")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("question", "2"))
	fw, err := mw.CreateFormFile("video", "clip.webm")
	require.NoError(t, err)
	_, err = fw.Write([]byte("recorded-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := ts.do(t, http.MethodPost, "/upload-answer", &buf, mw.FormDataContentType(), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Video uploaded", w.Body.String())

	identity, err := ts.binder.Parse(cookie.Value)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(ts.answersDir, archive.ArtifactName(identity, 2, ".webm")))
	require.NoError(t, err)
	require.Equal(t, "recorded-bytes", string(data))
}

func TestUploadAnswerUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/upload-answer", strings.NewReader(""), "multipart/form-data")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetVideosAndChooseDomain(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})
	cookie := ts.login(t, "alice", "pw")

	require.NoError(t, os.MkdirAll(filepath.Join(ts.catalogDir, "frontend"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ts.catalogDir, "frontend", "intro.mp4"), []byte("x"), 0o644))

	// no domain anywhere
	w := ts.do(t, http.MethodGet, "/get-videos", nil, "", cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// explicit query param
	w = ts.do(t, http.MethodGet, "/get-videos?domain=frontend", nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `["/videos/frontend/intro.mp4"]`, w.Body.String())

	// unknown domain is an empty list, not an error
	w = ts.do(t, http.MethodGet, "/get-videos?domain=nope", nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	// choose-domain re-mints the cookie with the selector
	w = ts.postJSON(t, "/choose-domain", gin.H{"domain": "frontend"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var updated *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "prepdeck_session" {
			updated = c
		}
	}
	require.NotNil(t, updated)

	w = ts.do(t, http.MethodGet, "/get-videos", nil, "", updated)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `["/videos/frontend/intro.mp4"]`, w.Body.String())
}

func TestListAnswers(t *testing.T) {
	ts := newTestServer(t)
	ts.postJSON(t, "/register", gin.H{"username": "alice", "password": "pw", "email": "a@x.com"})
	cookie := ts.login(t, "alice", "pw")

	ts.postJSON(t, "/save-answer", gin.H{"question": 2, "answer": "b"}, cookie)
	ts.postJSON(t, "/save-answer", gin.H{"question": 1, "answer": "a"}, cookie)

	w := ts.do(t, http.MethodGet, "/answers-list", nil, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[{"question":1,"answer":"a"},{"question":2,"answer":"b"}]`, w.Body.String())
}

func TestAnalyzeEndpoints(t *testing.T) {
	ts := newTestServer(t)

	ts.runner.out = []string{"gaze steady"}
	w := ts.do(t, http.MethodGet, "/analyze/eye", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"output":["gaze steady"]}`, w.Body.String())

	ts.runner.err = errors.New("boom")
	w = ts.do(t, http.MethodGet, "/analyze/fer", nil, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "FER failed", w.Body.String())

	w = ts.do(t, http.MethodGet, "/analyze/palmistry", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
