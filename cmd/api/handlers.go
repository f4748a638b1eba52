package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/engine/store"
	"github.com/askdocs/askdocs-backend/pkg/auth"
	"github.com/askdocs/askdocs-backend/pkg/config"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
	"github.com/askdocs/askdocs-backend/pkg/mid"
	"github.com/askdocs/askdocs-backend/pkg/pdfx"
)

// userStore is the slice of the persistence layer the handlers consume.
type userStore interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	UserByEmail(ctx context.Context, email string) (store.User, error)
	AppendChatTurn(ctx context.Context, turn store.ChatTurn) error
	History(ctx context.Context, userEmail string, limit int) ([]store.ChatTurn, error)
	SavePDF(ctx context.Context, meta store.PDFMeta) error
	PDFsByUploader(ctx context.Context, email string) ([]store.PDFMeta, error)
}

// answerer runs one retrieval-augmented answer pass.
type answerer interface {
	Ask(ctx context.Context, question string, history []domain.Message) string
}

// documentIngestor chunks, embeds, and indexes one document.
type documentIngestor interface {
	Ingest(ctx context.Context, doc domain.Document) (int, error)
}

// tokenService issues and verifies bearer tokens.
type tokenService interface {
	Issue(email string) (string, error)
	Verify(token string) (string, error)
}

type app struct {
	store   userStore
	rag     answerer
	ingest  documentIngestor
	tokens  tokenService
	extract func(data []byte) (string, error)
	cfg     config.Config
	metrics *metrics.Registry
	logger  *slog.Logger
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		mid.Recover(a.logger),
		mid.Logger(a.logger),
		mid.CORS("*"),
		mid.OTel("askdocs-api"),
	)

	r.Get("/api/health", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())

	r.Post("/api/auth/register", a.handleRegister)
	r.Post("/api/auth/login", a.handleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(mid.Auth(a.tokens, a.logger))
		pr.Post("/api/upload", a.handleUpload)
		pr.Get("/api/documents", a.handleDocuments)
		pr.Post("/api/chat", a.handleChat)
		pr.Get("/api/history", a.handleHistory)
	})

	return r
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"access_token"`
}

func (a *app) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))
	if creds.Email == "" || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		a.logger.Error("password hash failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, err := a.store.CreateUser(r.Context(), store.User{Email: creds.Email, PasswordHash: hash}); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		a.logger.Error("create user failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	token, err := a.tokens.Issue(creds.Email)
	if err != nil {
		a.logger.Error("token issue failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	a.metrics.Counter("api_registrations_total", "Accounts created").Inc()
	respond(w, http.StatusCreated, tokenResponse{Token: token})
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))

	user, err := a.store.UserByEmail(r.Context(), creds.Email)
	if err != nil {
		// Same answer for unknown account and wrong password.
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := auth.VerifyPassword(creds.Password, user.PasswordHash); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := a.tokens.Issue(user.Email)
	if err != nil {
		a.logger.Error("token issue failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respond(w, http.StatusOK, tokenResponse{Token: token})
}

type uploadResponse struct {
	DocID         string `json:"doc_id"`
	Filename      string `json:"filename"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

func (a *app) handleUpload(w http.ResponseWriter, r *http.Request) {
	email, _ := mid.UserEmail(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(path.Ext(header.Filename), ".pdf") {
		respondError(w, http.StatusBadRequest, "only PDF files are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	text, err := a.extractText(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not extract text from PDF")
		return
	}

	doc := domain.Document{
		ID:         uuid.NewString(),
		Title:      header.Filename,
		Source:     header.Filename,
		Text:       text,
		UploadedBy: email,
		UploadedAt: time.Now().UTC(),
	}

	count, err := a.ingest.Ingest(r.Context(), doc)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyDocument):
			respondError(w, http.StatusBadRequest, "document contains no text")
		case errors.Is(err, domain.ErrIndexUnavailable):
			respondError(w, http.StatusServiceUnavailable, "document index is unavailable")
		default:
			a.logger.Error("ingest failed", "doc_id", doc.ID, "err", err)
			respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	// Metadata is committed only after the chunks are searchable.
	meta := store.PDFMeta{
		DocID:         doc.ID,
		Filename:      header.Filename,
		UploadedBy:    email,
		ChunksIndexed: count,
		UploadedAt:    doc.UploadedAt,
	}
	if err := a.store.SavePDF(r.Context(), meta); err != nil {
		a.logger.Error("save pdf meta failed", "doc_id", doc.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	a.metrics.Counter("api_uploads_total", "PDFs uploaded and indexed").Inc()
	respond(w, http.StatusCreated, uploadResponse{
		DocID:         doc.ID,
		Filename:      header.Filename,
		ChunksIndexed: count,
	})
}

func (a *app) extractText(data []byte) (string, error) {
	if a.extract != nil {
		return a.extract(data)
	}
	return pdfx.ExtractText(data)
}

func (a *app) handleDocuments(w http.ResponseWriter, r *http.Request) {
	email, _ := mid.UserEmail(r.Context())

	metas, err := a.store.PDFsByUploader(r.Context(), email)
	if err != nil {
		a.logger.Error("list documents failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if metas == nil {
		metas = []store.PDFMeta{}
	}
	respond(w, http.StatusOK, map[string]any{"documents": metas})
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer string `json:"answer"`
	// HistorySaved is false when the answer was produced but the turn could
	// not be persisted; the next question will not see this exchange.
	HistorySaved bool `json:"history_saved"`
}

func (a *app) handleChat(w http.ResponseWriter, r *http.Request) {
	email, _ := mid.UserEmail(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateQuestion(req.Question); err != nil {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	turns, err := a.store.History(r.Context(), email, a.cfg.HistoryLimit)
	if err != nil {
		// Answer without memory rather than refuse.
		a.logger.Warn("history load failed", "err", err)
		turns = nil
	}

	start := time.Now()
	answer := a.rag.Ask(r.Context(), req.Question, store.AsMessages(turns))
	a.metrics.Histogram("api_chat_seconds", "Chat answer latency", nil).Since(start)
	a.metrics.Counter("api_chat_total", "Chat questions answered").Inc()

	saved := true
	if err := a.store.AppendChatTurn(r.Context(), store.ChatTurn{
		UserEmail: email,
		Question:  req.Question,
		Answer:    answer,
	}); err != nil {
		a.logger.Error("append chat turn failed", "err", err)
		saved = false
	}

	respond(w, http.StatusOK, chatResponse{Answer: answer, HistorySaved: saved})
}

func (a *app) handleHistory(w http.ResponseWriter, r *http.Request) {
	email, _ := mid.UserEmail(r.Context())

	turns, err := a.store.History(r.Context(), email, a.cfg.HistoryLimit)
	if err != nil {
		a.logger.Error("history load failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	type turnDTO struct {
		Question  string    `json:"question"`
		Answer    string    `json:"answer"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]turnDTO, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnDTO{Question: t.Question, Answer: t.Answer, CreatedAt: t.CreatedAt})
	}
	respond(w, http.StatusOK, map[string]any{"history": out})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}
