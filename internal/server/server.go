package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"smarthive/internal/app"
	"smarthive/internal/ratelimit"
	"smarthive/internal/util"
	"smarthive/pkg/ai"
	"smarthive/pkg/domain"
	"smarthive/pkg/session"
)

// ChatCompleter relays a conversation to the upstream chat service.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt string, history []ai.Message) (string, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App  *app.App
	Chat ChatCompleter

	// LoginLimiter and RegisterLimiter may be nil to disable throttling.
	LoginLimiter    *ratelimit.FixedWindowLimiter
	RegisterLimiter *ratelimit.FixedWindowLimiter

	// SecureCookies marks session cookies Secure; enable in production.
	SecureCookies bool
	// TrustProxy controls whether X-Forwarded-For is honoured for client IPs.
	TrustProxy bool
}

// Server exposes the HTTP API.
type Server struct {
	app             *app.App
	chat            ChatCompleter
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	secureCookies   bool
	trustProxy      bool
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		chat:            cfg.Chat,
		loginLimiter:    cfg.LoginLimiter,
		registerLimiter: cfg.RegisterLimiter,
		secureCookies:   cfg.SecureCookies,
		trustProxy:      cfg.TrustProxy,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/email-available", s.handleEmailAvailable)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// access + purchases
	s.mux.Handle("/api/access/status", s.authenticated(s.handleAccessStatus))
	s.mux.Handle("/api/purchases", s.adminOnly(s.handlePurchases))
	s.mux.Handle("/api/purchases/", s.adminOnly(s.handlePurchaseByID))

	// apiary locations
	s.mux.Handle("/api/locations", s.authenticated(s.handleLocations))
	s.mux.Handle("/api/locations/", s.adminOnly(s.handleLocationByID))

	// chat
	s.mux.Handle("/api/chat", s.authenticated(s.handleChat))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers

type authHandler func(http.ResponseWriter, *http.Request, session.Claims)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := s.app.Tokens().Verify(token)
		if err != nil {
			if errors.Is(err, session.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next(w, r, claims)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, claims session.Claims) {
		if claims.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, claims)
	})
}

func (s *Server) allow(limiter *ratelimit.FixedWindowLimiter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(util.ClientIP(r, s.trustProxy))
}

// auth handlers

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.loginLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	result, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.internalError(w, r, "login", err)
		return
	}
	s.setSessionCookie(w, result.Token, s.app.Tokens().TTL())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"token":               result.Token,
		"user":                result.User,
		"hasApprovedPurchase": result.HasApprovedPurchase,
	})
}

// handleLogout always succeeds, even without a live session, so a client
// with a stale or missing token can still reset its cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`

	MasterHives   int     `json:"masterHives"`
	NormalHives   int     `json:"normalHives"`
	TotalAmount   float64 `json:"totalAmount"`
	PaymentMethod string  `json:"paymentMethod"`
	CardLastFour  string  `json:"cardLastFour"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.registerLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "too many registration attempts, try again later")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, purchase, err := s.app.RegisterWithPurchase(app.RegistrationInput{
		Email:         req.Email,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		Address:       req.Address,
		City:          req.City,
		PostalCode:    req.PostalCode,
		MasterHives:   req.MasterHives,
		NormalHives:   req.NormalHives,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		CardLastFour:  req.CardLastFour,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmailTaken):
			writeError(w, http.StatusConflict, err.Error())
		case app.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "register", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"userId":     user.ID,
		"purchaseId": purchase.ID,
		"status":     purchase.Status,
	})
}

func (s *Server) handleEmailAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	available, err := s.app.EmailAvailable(email)
	if err != nil {
		s.internalError(w, r, "email availability", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"available": available,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, claims session.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok, err := s.app.UserFromClaims(claims)
	if err != nil {
		s.internalError(w, r, "resolve user", err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

// access + purchase handlers

func (s *Server) handleAccessStatus(w http.ResponseWriter, r *http.Request, claims session.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	status, err := s.app.ResolveAccess(claims)
	if err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		s.internalError(w, r, "resolve access", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		domain.AccessStatus
	}{Success: true, AccessStatus: status})
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request, _ session.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	purchases, err := s.app.ListPurchases()
	if err != nil {
		s.internalError(w, r, "list purchases", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   purchases,
		"count":   len(purchases),
	})
}

// handlePurchaseByID dispatches /api/purchases/{id}/grant-access and
// /api/purchases/{id}/containers. The whole approval surface is admin-only;
// purchase owners see their own containers through /api/access/status.
func (s *Server) handlePurchaseByID(w http.ResponseWriter, r *http.Request, _ session.Claims) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/purchases/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid purchase id")
		return
	}
	switch action {
	case "grant-access":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.grantAccess(w, r, id)
	case "containers":
		switch r.Method {
		case http.MethodGet:
			s.getContainers(w, r, id)
		case http.MethodPut:
			s.assignContainers(w, r, id)
		default:
			methodNotAllowed(w)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) grantAccess(w http.ResponseWriter, r *http.Request, id uint64) {
	purchase, err := s.app.GrantAccess(id)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, app.ErrAlreadyGranted):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.internalError(w, r, "grant access", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"purchase": purchase,
	})
}

type assignContainersRequest struct {
	AssignedContainers []string `json:"assignedContainers"`
	Notes              string   `json:"notes"`
}

func (s *Server) assignContainers(w http.ResponseWriter, r *http.Request, id uint64) {
	var req assignContainersRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	purchase, err := s.app.AssignContainers(id, req.AssignedContainers, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case app.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "assign containers", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"purchase": purchase,
	})
}

func (s *Server) getContainers(w http.ResponseWriter, r *http.Request, id uint64) {
	containers, notes, err := s.app.GetContainers(id)
	if err != nil {
		if errors.Is(err, app.ErrPurchaseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.internalError(w, r, "get containers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"assignedContainers": containers,
		"notes":              notes,
	})
}

// location handlers

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request, _ session.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	locations, err := s.app.ListLocations()
	if err != nil {
		s.internalError(w, r, "list locations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"locations": locations,
	})
}

// Coordinates are pointers so an omitted field is distinguishable from a
// genuine 0.0 reading; both must be present.
type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

func (s *Server) handleLocationByID(w http.ResponseWriter, r *http.Request, _ session.Claims) {
	containerID := strings.TrimPrefix(r.URL.Path, "/api/locations/")
	if containerID == "" || strings.Contains(containerID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req locationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Latitude == nil || req.Longitude == nil {
			writeError(w, http.StatusBadRequest, "latitude and longitude are required")
			return
		}
		location, err := s.app.UpsertLocation(containerID, *req.Latitude, *req.Longitude, req.Address)
		if err != nil {
			if app.IsValidation(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.internalError(w, r, "upsert location", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"location": location,
		})
	case http.MethodDelete:
		if err := s.app.RemoveLocation(containerID); err != nil {
			if errors.Is(err, app.ErrLocationNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			s.internalError(w, r, "remove location", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w)
	}
}

// chat handler

type chatRequest struct {
	SystemPrompt string       `json:"systemPrompt"`
	Messages     []ai.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, _ session.Claims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat service is not configured")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	text, err := s.chat.Complete(r.Context(), req.SystemPrompt, req.Messages)
	if err != nil {
		var upstream *ai.UpstreamError
		if errors.As(err, &upstream) {
			// Preserve the upstream status so clients can distinguish
			// quota and auth failures from our own errors.
			writeError(w, upstream.Status, "chat service error")
			return
		}
		s.internalError(w, r, "chat relay", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"content": []map[string]string{{"type": "text", "text": text}},
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	util.LoggerFromContext(r.Context()).Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
