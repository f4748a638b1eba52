package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/engine/store"
	"github.com/askdocs/askdocs-backend/pkg/auth"
	"github.com/askdocs/askdocs-backend/pkg/config"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
)

// --- Fakes ---

type fakeStore struct {
	users   map[string]store.User
	turns   []store.ChatTurn
	pdfs    []store.PDFMeta
	histErr error
	turnErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]store.User)}
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	if _, ok := f.users[user.Email]; ok {
		return store.User{}, store.ErrDuplicateEmail
	}
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := f.users[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) AppendChatTurn(_ context.Context, turn store.ChatTurn) error {
	if f.turnErr != nil {
		return f.turnErr
	}
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeStore) History(_ context.Context, userEmail string, _ int) ([]store.ChatTurn, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	var out []store.ChatTurn
	for _, t := range f.turns {
		if t.UserEmail == userEmail {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) SavePDF(_ context.Context, meta store.PDFMeta) error {
	f.pdfs = append(f.pdfs, meta)
	return nil
}

func (f *fakeStore) PDFsByUploader(_ context.Context, email string) ([]store.PDFMeta, error) {
	var out []store.PDFMeta
	for _, m := range f.pdfs {
		if m.UploadedBy == email {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeAnswerer struct {
	answer     string
	gotHistory []domain.Message
}

func (f *fakeAnswerer) Ask(_ context.Context, question string, history []domain.Message) string {
	f.gotHistory = history
	if f.answer != "" {
		return f.answer
	}
	return "answer to: " + question
}

type fakeIngestor struct {
	chunks int
	err    error
	gotDoc domain.Document
}

func (f *fakeIngestor) Ingest(_ context.Context, doc domain.Document) (int, error) {
	f.gotDoc = doc
	if f.err != nil {
		return 0, f.err
	}
	return f.chunks, nil
}

func newTestApp(st *fakeStore, ans *fakeAnswerer, ing *fakeIngestor) *app {
	cfg := config.Config{MaxUploadBytes: 1 << 20, HistoryLimit: 20}
	return &app{
		store:   st,
		rag:     ans,
		ingest:  ing,
		tokens:  auth.NewTokens("test-secret", 0),
		extract: func(data []byte) (string, error) { return string(data), nil },
		cfg:     cfg,
		metrics: metrics.New(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func doJSON(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec := doJSON(t, h, "POST", "/api/auth/register", "", credentials{Email: email, Password: "pw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body)
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

// --- Tests ---

func TestRegisterAndLogin(t *testing.T) {
	a := newTestApp(newFakeStore(), &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()

	token := register(t, h, "Alice@Example.com")
	if token == "" {
		t.Fatal("empty token")
	}

	// Email is normalized, so the lowercase form logs in.
	rec := doJSON(t, h, "POST", "/api/auth/login", "", credentials{Email: "alice@example.com", Password: "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "POST", "/api/auth/login", "", credentials{Email: "alice@example.com", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/auth/login", "", credentials{Email: "nobody@example.com", Password: "pw"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown account status = %d", rec.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	a := newTestApp(newFakeStore(), &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()

	register(t, h, "bob@example.com")
	rec := doJSON(t, h, "POST", "/api/auth/register", "", credentials{Email: "bob@example.com", Password: "pw"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestApp(newFakeStore(), &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()

	for _, route := range []struct{ method, target string }{
		{"POST", "/api/chat"},
		{"POST", "/api/upload"},
		{"GET", "/api/history"},
		{"GET", "/api/documents"},
	} {
		rec := doJSON(t, h, route.method, route.target, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", route.method, route.target, rec.Code)
		}
	}
}

func TestChatAnswersAndRecordsTurn(t *testing.T) {
	st := newFakeStore()
	ans := &fakeAnswerer{answer: "blue"}
	a := newTestApp(st, ans, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")

	rec := doJSON(t, h, "POST", "/api/chat", token, chatRequest{Question: "sky color?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "blue" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if !resp.HistorySaved {
		t.Error("history_saved = false for a persisted turn")
	}
	if len(st.turns) != 1 || st.turns[0].Question != "sky color?" || st.turns[0].Answer != "blue" {
		t.Errorf("recorded turns = %+v", st.turns)
	}
}

func TestChatReportsUnsavedTurn(t *testing.T) {
	st := newFakeStore()
	st.turnErr = errors.New("mongo write failed")
	a := newTestApp(st, &fakeAnswerer{answer: "blue"}, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")

	rec := doJSON(t, h, "POST", "/api/chat", token, chatRequest{Question: "sky color?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "blue" {
		t.Errorf("answer = %q, the reply must still reach the user", resp.Answer)
	}
	if resp.HistorySaved {
		t.Error("history_saved = true despite a failed turn insert")
	}
}

func TestChatPassesHistory(t *testing.T) {
	st := newFakeStore()
	st.turns = []store.ChatTurn{{UserEmail: "alice@example.com", Question: "q1", Answer: "a1"}}
	ans := &fakeAnswerer{}
	a := newTestApp(st, ans, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")

	doJSON(t, h, "POST", "/api/chat", token, chatRequest{Question: "q2"})

	if len(ans.gotHistory) != 2 {
		t.Fatalf("history has %d messages, want user+assistant pair", len(ans.gotHistory))
	}
	if ans.gotHistory[0].Content != "q1" || ans.gotHistory[1].Content != "a1" {
		t.Errorf("history = %+v", ans.gotHistory)
	}
}

func TestChatRejectsBlankQuestion(t *testing.T) {
	a := newTestApp(newFakeStore(), &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")

	rec := doJSON(t, h, "POST", "/api/chat", token, chatRequest{Question: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank question status = %d", rec.Code)
	}
}

func TestChatAnswersWhenHistoryUnavailable(t *testing.T) {
	st := newFakeStore()
	a := newTestApp(st, &fakeAnswerer{answer: "still works"}, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")
	st.histErr = errors.New("mongo down")

	rec := doJSON(t, h, "POST", "/api/chat", token, chatRequest{Question: "anything?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat with broken history = %d, want 200", rec.Code)
	}
}

func uploadPDF(t *testing.T, h http.Handler, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(fw, content)
	mw.Close()

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadIndexesAndCommitsMetadata(t *testing.T) {
	st := newFakeStore()
	ing := &fakeIngestor{chunks: 7}
	a := newTestApp(st, &fakeAnswerer{}, ing)
	h := a.router()
	token := register(t, h, "alice@example.com")

	rec := uploadPDF(t, h, token, "report.pdf", "the extracted text")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ChunksIndexed != 7 || resp.Filename != "report.pdf" || resp.DocID == "" {
		t.Errorf("response = %+v", resp)
	}
	if ing.gotDoc.Text != "the extracted text" || ing.gotDoc.UploadedBy != "alice@example.com" {
		t.Errorf("ingested doc = %+v", ing.gotDoc)
	}
	if len(st.pdfs) != 1 || st.pdfs[0].DocID != resp.DocID || st.pdfs[0].ChunksIndexed != 7 {
		t.Errorf("saved metadata = %+v", st.pdfs)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	a := newTestApp(newFakeStore(), &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")

	rec := uploadPDF(t, h, token, "notes.txt", "text")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-pdf upload status = %d", rec.Code)
	}
}

func TestUploadFailureSkipsMetadata(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty document", domain.ErrEmptyDocument, http.StatusBadRequest},
		{"index unavailable", domain.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"unknown failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newFakeStore()
			a := newTestApp(st, &fakeAnswerer{}, &fakeIngestor{err: tc.err})
			h := a.router()
			token := register(t, h, "alice@example.com")

			rec := uploadPDF(t, h, token, "doc.pdf", "text")
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if len(st.pdfs) != 0 {
				t.Error("metadata saved despite failed indexing")
			}
		})
	}
}

func TestHistoryAndDocumentsEndpoints(t *testing.T) {
	st := newFakeStore()
	st.turns = []store.ChatTurn{{UserEmail: "alice@example.com", Question: "q", Answer: "a"}}
	st.pdfs = []store.PDFMeta{{DocID: "d1", Filename: "f.pdf", UploadedBy: "alice@example.com"}}
	a := newTestApp(st, &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()
	token := register(t, h, "alice@example.com")

	rec := doJSON(t, h, "GET", "/api/history", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"question":"q"`) {
		t.Errorf("history body = %s", rec.Body)
	}

	rec = doJSON(t, h, "GET", "/api/documents", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("documents status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "f.pdf") {
		t.Errorf("documents body = %s", rec.Body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestApp(newFakeStore(), &fakeAnswerer{}, &fakeIngestor{})
	h := a.router()

	rec := doJSON(t, h, "GET", "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	token := register(t, h, "alice@example.com")
	doJSON(t, h, "POST", "/api/chat", token, chatRequest{Question: "q?"})

	rec = doJSON(t, h, "GET", "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_chat_total 1") {
		t.Errorf("metrics body missing chat counter:\n%s", rec.Body)
	}
}
