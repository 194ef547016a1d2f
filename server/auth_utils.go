package server

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	accessTokenCookieName = "access_token"
	sessionCookieName     = "session_id"
	csrfCookieName        = "csrf_token"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an error response in the same shape as authorization rejections
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// setAuthCookies stores the credential and session for browser clients. The CSRF nonce is
// readable by scripts so they can echo it in the X-CSRF-Token header.
func (s *Server) setAuthCookies(w http.ResponseWriter, r *http.Request, accessToken string, expiresAt time.Time, sessionID, csrfToken string) {
	s.setAccessTokenCookie(w, r, accessToken, expiresAt)
	if sessionID != "" {
		setCookie(w, r, sessionCookieName, sessionID, int(s.config.GetMaxSessionAge().Seconds()), true)
	}
	if csrfToken != "" {
		setCookie(w, r, csrfCookieName, csrfToken, int(s.config.GetCSRFTokenTTL().Seconds()), false)
	}
}

func (s *Server) setAccessTokenCookie(w http.ResponseWriter, r *http.Request, accessToken string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(s.config.GetAccessTokenTTL().Seconds())
	}
	setCookie(w, r, accessTokenCookieName, accessToken, maxAge, true)
}

func clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{accessTokenCookieName, sessionCookieName, csrfCookieName} {
		setCookie(w, r, name, "", -1, name != csrfCookieName)
	}
}

func setCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}
