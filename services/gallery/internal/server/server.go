package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"momentsstudio/internal/ratelimit"
	"momentsstudio/internal/util"
	"momentsstudio/pkg/domain"
	"momentsstudio/services/gallery/internal/app"
)

const (
	actionCreateAlbum  = "create_album"
	actionUploadPhotos = "upload_photos"

	multipartMemory = 32 << 20
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	GetUser(ctx context.Context, token string) (domain.User, error)
}

// TokenVerifier is an optional local check run before the Authenticator.
type TokenVerifier interface {
	VerifySubject(ctx context.Context, token string) (string, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Auth           Authenticator
	TokenVerifier  TokenVerifier
	UploadLimiter  Limiter
	AccessLimiter  Limiter
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes the ingestion endpoint and the gallery read API.
type Server struct {
	app            *app.App
	auth           Authenticator
	tokenVerifier  TokenVerifier
	uploadLimiter  Limiter
	accessLimiter  Limiter
	trusted        *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("authenticator required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 512 << 20
	}
	s := &Server{
		app:            cfg.App,
		auth:           cfg.Auth,
		tokenVerifier:  cfg.TokenVerifier,
		uploadLimiter:  cfg.UploadLimiter,
		accessLimiter:  cfg.AccessLimiter,
		trusted:        cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("gallery", s.trusted, util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// ingestion; the first path matches the hosted function URL
	s.mux.Handle("/functions/v1/google-drive-upload", s.withUser(s.handleIngest))
	s.mux.Handle("/ingest", s.withUser(s.handleIngest))

	// gallery reads
	s.mux.HandleFunc("/api/albums", s.handleAlbums)
	s.mux.Handle("/api/albums/", s.withUser(s.handleAlbumByID))
	s.mux.HandleFunc("/api/access", s.handleAccess)
	s.mux.Handle("/api/stats", s.withUser(s.handleStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionHandler func(http.ResponseWriter, *http.Request, domain.Session)

func (s *Server) withUser(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeAppError(w, r, unauthorized(nil))
			return
		}
		session, err := s.authenticate(r.Context(), token)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		next(w, r, session)
	})
}

func (s *Server) authenticate(ctx context.Context, token string) (domain.Session, error) {
	if s.tokenVerifier != nil {
		if _, err := s.tokenVerifier.VerifySubject(ctx, token); err != nil {
			return domain.Session{}, unauthorized(err)
		}
	}
	user, err := s.auth.GetUser(ctx, token)
	if err != nil {
		return domain.Session{}, unauthorized(err)
	}
	return domain.Session{User: user, AccessToken: token}, nil
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, session domain.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.uploadLimiter, "upload|"+session.User.ID) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	switch r.FormValue("action") {
	case actionCreateAlbum:
		s.handleCreateAlbum(w, r, session)
	case actionUploadPhotos:
		s.handleUploadPhotos(w, r, session)
	default:
		writeAppError(w, r, domain.NewError(domain.ErrInvalidRequest, "Invalid action", nil))
	}
}

func (s *Server) handleCreateAlbum(w http.ResponseWriter, r *http.Request, session domain.Session) {
	in := app.CreateAlbumInput{
		CoupleNames: r.FormValue("coupleNames"),
		EventDate:   r.FormValue("eventDate"),
		AccessCode:  r.FormValue("accessCode"),
	}
	if headers := r.MultipartForm.File["coverPhoto"]; len(headers) > 0 {
		cover, err := readUpload(headers[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		in.Cover = &cover
	}
	album, err := s.app.CreateAlbum(r.Context(), session, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "album": album})
}

func (s *Server) handleUploadPhotos(w http.ResponseWriter, r *http.Request, session domain.Session) {
	headers := r.MultipartForm.File["photos"]
	if len(headers) > s.app.MaxPhotosPerUpload() {
		writeAppError(w, r, domain.NewError(domain.ErrInvalidRequest, fmt.Sprintf("at most %d photos per upload", s.app.MaxPhotosPerUpload()), nil))
		return
	}
	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		upload, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		uploads = append(uploads, upload)
	}
	batch, err := s.app.UploadPhotos(r.Context(), session, r.FormValue("albumId"), uploads)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "photos": batch.Photos()})
}

// handleAlbums lists albums. The bearer token is optional; without one
// the listing runs with anonymous rights.
func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var accessToken string
	if token, ok := bearerToken(r); ok {
		session, err := s.authenticate(r.Context(), token)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		accessToken = session.AccessToken
	}
	albums, err := s.app.ListAlbums(r.Context(), accessToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": albums,
		"count": len(albums),
	})
}

// /api/albums/{id} or /api/albums/{id}/archive/{photoId}
func (s *Server) handleAlbumByID(w http.ResponseWriter, r *http.Request, session domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/albums/"), "/")
	id := parts[0]
	switch {
	case id == "":
		notFound(w, "not found")
	case len(parts) == 1:
		detail, err := s.app.GetAlbum(r.Context(), session, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case len(parts) == 3 && parts[1] == "archive" && parts[2] != "":
		url, err := s.app.ArchiveURL(r.Context(), session, id, parts[2])
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	default:
		notFound(w, "not found")
	}
}

type accessRequest struct {
	AccessCode string `json:"accessCode"`
}

// handleAccess is the guest entry: an access code opens one album.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.accessLimiter, "access|"+util.ClientIP(r, s.trusted)) {
		return
	}
	var req accessRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	detail, err := s.app.OpenAlbum(r.Context(), req.AccessCode)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, session domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(r.Context(), session)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter Limiter, key string) bool {
	if limiter == nil {
		return true
	}
	decision, err := limiter.Allow(r.Context(), key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "err", err)
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.Allowed {
		return true
	}
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func readUpload(fh *multipart.FileHeader) (domain.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Upload{}, err
	}
	return domain.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func unauthorized(cause error) error {
	return domain.NewError(domain.ErrUnauthorized, "Unauthorized", cause)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorCode(w, status, errorCodeForStatus(status), msg)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps an error kind to its status and code. Errors without
// a kind are logged and reported as internal.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeErrorCode(w, status, code, msg)
}

func errorStatus(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrConfiguration:
		return http.StatusBadRequest, "GALLERY_CONFIGURATION"
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized, "AUTH_INVALID_TOKEN"
	case domain.ErrInvalidRequest:
		return http.StatusBadRequest, "GALLERY_INVALID_REQUEST"
	case domain.ErrUpstreamAuth:
		return http.StatusBadRequest, "DRIVE_AUTH_FAILED"
	case domain.ErrUpstreamWrite:
		return http.StatusBadRequest, "DRIVE_WRITE_FAILED"
	case domain.ErrNotFound:
		return http.StatusNotFound, "GALLERY_NOT_FOUND"
	case domain.ErrPersistence:
		return http.StatusBadRequest, "STORE_WRITE_FAILED"
	default:
		return http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
	}
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "GALLERY_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "GALLERY_PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
