package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-finance-server/auth"
	"github.com/rs/zerolog/log"
)

const (
	headerSessionID      = "X-Session-ID"
	headerCSRFToken      = "X-CSRF-Token"
	headerSessionWarning = "X-Session-Warning"
	headerExpiresIn      = "X-Session-Expires-In"
	headerSessionExpired = "X-Session-Expired"
	formCSRFToken        = "csrf_token"
)

type authContextKey struct{}

// AuthFromContext returns the authorization context attached by RequireAuth.
func AuthFromContext(ctx context.Context) (*auth.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*auth.AuthContext)
	return ac, ok
}

// RequireAuth authorizes the request against reqs and attaches the result to the request
// context. Rejections are written as JSON and the next handler is not called.
func (s *Server) RequireAuth(reqs auth.Requirements) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ac, err := s.auth.Authorize(r.Context(), authRequest(r), reqs)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			if ac.SessionWarning {
				w.Header().Set(headerSessionWarning, "true")
				w.Header().Set(headerExpiresIn, strconv.Itoa(int(ac.ExpiresIn.Seconds())))
			}

			ctx := context.WithValue(r.Context(), authContextKey{}, ac)
			next(w, r.WithContext(ctx))
		}
	}
}

// authRequest pulls the credential, session id and CSRF nonce from headers, falling back to
// cookies and form fields for browser clients.
func authRequest(r *http.Request) auth.Request {
	req := auth.Request{
		Credential: bearerToken(r.Header.Get("Authorization")),
		SessionID:  r.Header.Get(headerSessionID),
		CSRFToken:  r.Header.Get(headerCSRFToken),
		Method:     r.Method,
		Origin:     clientIP(r),
	}
	if req.Credential == "" {
		req.Credential = cookieValue(r, accessTokenCookieName)
	}
	if req.SessionID == "" {
		req.SessionID = cookieValue(r, sessionCookieName)
	}
	if req.CSRFToken == "" && r.Method != http.MethodGet && r.Method != http.MethodHead {
		req.CSRFToken = r.PostFormValue(formCSRFToken)
	}
	return req
}

func bearerToken(value string) string {
	scheme, token, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// clientIP is the caller address without the port. RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeAuthError writes a rejection with its status and headers. Anything that is not a
// rejection is an internal error.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	rej, ok := auth.AsRejection(err)
	if !ok {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Authorization failed")
		writeJSONError(w, "server_error", "internal error", http.StatusInternalServerError)
		return
	}

	body := map[string]any{
		"error":             rej.Kind.String(),
		"error_description": rej.Message,
	}
	switch rej.Kind {
	case auth.SessionExpired:
		w.Header().Set(headerSessionExpired, "true")
		body["session_expired"] = true
	case auth.TooManyRequests:
		secs := rej.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		body["retry_after"] = secs
	}
	writeJSON(w, rej.Kind.StatusCode(), body)
}
