package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-finance-server/auth"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/users"
	"github.com/rs/zerolog/log"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"` // bcrypt ignores bytes past 72
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	SessionID   string      `json:"session_id"`
	CSRFToken   string      `json:"csrf_token"`
	User        *users.User `json:"user"`
}

type refreshResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	ExpiresInSeconds int       `json:"expires_in_seconds"`
	Warning          bool      `json:"warning"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RegisterHandler creates a member account that an admin must approve before it can log in.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		user, err := s.auth.Register(r.Context(), req.Email, strings.TrimSpace(req.Name), req.Password, clientIP(r))
		if err != nil {
			switch {
			case isRejection(err):
				writeAuthError(w, r, err)
			case apperrors.Is(err, apperrors.ErrUserExists):
				writeJSONError(w, "user_exists", "an account with this email already exists", http.StatusConflict)
			case apperrors.Is(err, apperrors.ErrWeakPassword):
				writeJSONError(w, "weak_password", err.Error(), http.StatusBadRequest)
			default:
				log.Error().Err(err).Msg("Registration failed")
				writeJSONError(w, "server_error", "registration failed", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		res, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
		if err != nil {
			switch {
			case isRejection(err):
				writeAuthError(w, r, err)
			case apperrors.Is(err, apperrors.ErrInvalidCredentials):
				writeJSONError(w, "invalid_credentials", "invalid email or password", http.StatusUnauthorized)
			case apperrors.Is(err, apperrors.ErrAccountNotApproved):
				writeJSONError(w, "account_pending", "account is awaiting approval", http.StatusForbidden)
			case apperrors.Is(err, apperrors.ErrAccountRevoked):
				writeJSONError(w, "account_revoked", "account access has been revoked", http.StatusForbidden)
			default:
				log.Error().Err(err).Msg("Login failed")
				writeJSONError(w, "server_error", "login failed", http.StatusInternalServerError)
			}
			return
		}

		s.setAuthCookies(w, r, res.AccessToken, res.ExpiresAt, res.SessionID, res.CSRFToken)
		writeJSON(w, http.StatusOK, loginResponse{
			AccessToken: res.AccessToken,
			TokenType:   "Bearer",
			ExpiresAt:   res.ExpiresAt,
			SessionID:   res.SessionID,
			CSRFToken:   res.CSRFToken,
			User:        res.User,
		})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := AuthFromContext(r.Context())
		s.auth.TerminateSession(ac.PrincipalID, ac.SessionID)
		clearAuthCookies(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := AuthFromContext(r.Context())
		tok, expiresAt, err := s.auth.RefreshCredential(ac)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrAccountRevoked) {
				clearAuthCookies(w, r)
				writeJSONError(w, "account_revoked", "account access has been revoked", http.StatusForbidden)
				return
			}
			log.Error().Err(err).Str("user_id", ac.PrincipalID).Msg("Credential refresh failed")
			writeJSONError(w, "server_error", "refresh failed", http.StatusInternalServerError)
			return
		}

		s.setAccessTokenCookie(w, r, tok, expiresAt)
		writeJSON(w, http.StatusOK, refreshResponse{AccessToken: tok, TokenType: "Bearer", ExpiresAt: expiresAt})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := AuthFromContext(r.Context())
		user, err := s.auth.Users().GetByID(ac.PrincipalID)
		if err != nil {
			writeJSONError(w, "not_found", "user not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// SessionHandler reports the state of the caller's session for the client-side countdown.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := AuthFromContext(r.Context())
		session, remaining, err := s.auth.SessionInfo(ac)
		if err != nil {
			writeAuthError(w, r, &auth.Rejection{Kind: auth.SessionExpired, Message: "session expired"})
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			SessionID:        session.ID,
			CreatedAt:        session.CreatedAt,
			LastActivityAt:   session.LastActivityAt,
			ExpiresInSeconds: int(remaining.Seconds()),
			Warning:          ac.SessionWarning,
		})
	}
}

// CSRFHandler issues an additional nonce for the caller's session.
func (s *Server) CSRFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := AuthFromContext(r.Context())
		tok, err := s.auth.IssueCSRF(ac)
		if err != nil {
			log.Error().Err(err).Str("user_id", ac.PrincipalID).Msg("Failed to issue csrf token")
			writeJSONError(w, "server_error", "failed to issue csrf token", http.StatusInternalServerError)
			return
		}
		setCookie(w, r, csrfCookieName, tok, int(s.config.GetCSRFTokenTTL().Seconds()), false)
		writeJSON(w, http.StatusOK, map[string]string{"csrf_token": tok})
	}
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid_request", "invalid request format", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSONError(w, "invalid_request", formatValidationErrors(err), http.StatusBadRequest)
		return false
	}
	return true
}

func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		field := strings.ToLower(fieldError.Field())
		switch fieldError.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters long", field, fieldError.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters long", field, fieldError.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(messages, "; ")
}

func isRejection(err error) bool {
	_, ok := auth.AsRejection(err)
	return ok
}
