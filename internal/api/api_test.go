package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/preplay-ai/preplay/internal/config"
	"github.com/preplay-ai/preplay/internal/domain"
	"github.com/preplay-ai/preplay/internal/knowledge"
	"github.com/preplay-ai/preplay/internal/service"
	"github.com/preplay-ai/preplay/internal/store"
)

type stubChat struct {
	answer string
	sid    string
	err    error
}

func (s *stubChat) Chat(ctx context.Context, question string, history []domain.ChatMessage) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return s.answer, s.sid, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, fileIDs []string, question string, temperature float64) (string, error) {
	return "", nil
}

type stubReporter struct {
	report string
	err    error
}

func (s *stubReporter) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.report, nil
}

type stubRemote struct {
	uploadID  string
	uploadErr error
	deleteErr error
	rows      []knowledge.RemoteFile
}

func (s *stubRemote) Upload(ctx context.Context, fileName string, file io.Reader) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	_, _ = io.Copy(io.Discard, file)
	return s.uploadID, nil
}

func (s *stubRemote) Delete(ctx context.Context, fileIDs []string) error {
	return s.deleteErr
}

func (s *stubRemote) List(ctx context.Context, currentPage, pageSize int, fileName, extName string) (int, []knowledge.RemoteFile, error) {
	return len(s.rows), s.rows, nil
}

type testEnv struct {
	handler  *Handler
	echo     *echo.Echo
	store    *store.SQLiteStore
	red      *stubChat
	blue     *stubChat
	remote   *stubRemote
	reporter *stubReporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		echo:     echo.New(),
		store:    st,
		red:      &stubChat{answer: "red answer", sid: "sid-red"},
		blue:     &stubChat{answer: "blue answer", sid: "sid-blue"},
		remote:   &stubRemote{uploadID: "doc-1"},
		reporter: &stubReporter{report: "# Report"},
	}
	kn := knowledge.NewService(env.remote, st)
	cfg := &config.Config{TurnTimeout: 5 * time.Second}
	svc := service.New(st, env.red, env.blue, stubSearcher{}, kn, env.reporter, cfg)
	env.handler = NewHandler(svc)
	return env
}

func (env *testEnv) jsonRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return env.echo.NewContext(req, rec), rec
}

func (env *testEnv) createSession(t *testing.T) string {
	t.Helper()
	c, rec := env.jsonRequest(http.MethodPost, "/v1/sessions", "")
	if err := env.handler.CreateSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp["session_id"]
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)
	if !strings.HasPrefix(id, "session_") {
		t.Fatalf("unexpected session id %q", id)
	}

	c, rec := env.jsonRequest(http.MethodGet, "/v1/sessions/"+id, "")
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.GetSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var sess domain.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if sess.ID != id {
		t.Fatalf("expected session %s, got %s", id, sess.ID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.jsonRequest(http.MethodGet, "/v1/sessions/session_missing0", "")
	c.SetParamNames("session_id")
	c.SetParamValues("session_missing0")
	if err := env.handler.GetSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListSessionsLimitValidation(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.jsonRequest(http.MethodGet, "/v1/sessions?limit=abc", "")
	if err := env.handler.ListSessions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunTurnEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	body := `{"persona":"red","text":"我的论点站得住脚吗？"}`
	c, rec := env.jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/turns", body)
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.RunTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.TurnResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Reply != "red answer" || result.Source != domain.SourceRed || result.Round != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunTurnValidationAndErrorKinds(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	// Unknown persona is a client error.
	c, rec := env.jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/turns", `{"persona":"green","text":"hi"}`)
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.RunTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	// A transport failure maps onto 502 with kind "network".
	env.red.err = domain.ErrTransport
	c, rec = env.jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/turns", `{"persona":"red","text":"hi"}`)
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.RunTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["kind"] != "network" {
		t.Fatalf("expected kind network, got %q", resp["kind"])
	}
}

func TestSetAndAttachDocuments(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	c, rec := env.jsonRequest(http.MethodPut, "/v1/sessions/"+id+"/documents", `{"file_ids":["doc-1","doc-2"]}`)
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.SetDocuments(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = env.jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/documents/doc-3", "")
	c.SetParamNames("session_id", "file_id")
	c.SetParamValues(id, "doc-3")
	if err := env.handler.AttachDocument(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	ids, err := env.store.GetSessionDocuments(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSessionDocuments failed: %v", err)
	}
	want := []string{"doc-1", "doc-2", "doc-3"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "thesis.txt")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write([]byte("论文正文内容")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)
	if err := env.handler.UploadDocument(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var kf domain.KnowledgeFile
	if err := json.Unmarshal(rec.Body.Bytes(), &kf); err != nil {
		t.Fatalf("failed to decode file: %v", err)
	}
	if kf.FileID != "doc-1" || kf.FileName != "thesis.txt" {
		t.Fatalf("unexpected file: %+v", kf)
	}
}

func TestUploadDocumentRejectsType(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "thesis.pdf")
	_, _ = fw.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)
	if err := env.handler.UploadDocument(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteAllDocuments(t *testing.T) {
	env := newTestEnv(t)
	env.remote.rows = []knowledge.RemoteFile{
		{FileID: "doc-1", FileName: "a.txt", ExtName: "txt"},
		{FileID: "doc-2", FileName: "b.txt", ExtName: "txt"},
	}
	ctx := context.Background()
	if _, err := env.store.AddKnowledgeFile(ctx, &domain.KnowledgeFile{FileID: "doc-1", FileName: "a.txt", FileType: "txt"}); err != nil {
		t.Fatalf("AddKnowledgeFile failed: %v", err)
	}

	c, rec := env.jsonRequest(http.MethodDelete, "/v1/documents", "")
	if err := env.handler.DeleteAllDocuments(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OK      bool `json:"ok"`
		Deleted int  `json:"deleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.OK || resp.Deleted != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	files, err := env.store.ListKnowledgeFiles(ctx)
	if err != nil || len(files) != 0 {
		t.Fatalf("registry not empty after clear: (%v, %v)", files, err)
	}
}

func TestDeleteDocumentRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.remote.deleteErr = domain.ErrAuth

	c, rec := env.jsonRequest(http.MethodDelete, "/v1/documents/doc-1", "")
	c.SetParamNames("file_id")
	c.SetParamValues("doc-1")
	if err := env.handler.DeleteDocument(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestGenerateReportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	// An empty session has nothing to report on.
	c, rec := env.jsonRequest(http.MethodGet, "/v1/sessions/"+id+"/report", "")
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.GenerateReport(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	body := `{"persona":"blue","text":"帮我复盘一下"}`
	c, _ = env.jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/turns", body)
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.RunTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	c, rec = env.jsonRequest(http.MethodGet, "/v1/sessions/"+id+"/report", "")
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.GenerateReport(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["report"] != "# Report" {
		t.Fatalf("unexpected report: %q", resp["report"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	body := `{"persona":"red","text":"第一问"}`
	c, _ := env.jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/turns", body)
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.RunTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	c, rec := env.jsonRequest(http.MethodGet, "/v1/sessions/"+id+"/stats", "")
	c.SetParamNames("session_id")
	c.SetParamValues(id)
	if err := env.handler.GetStats(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats domain.SessionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Total != 2 || stats.User != 1 || stats.Assistant != 1 || stats.Red != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
