package server

import "github.com/jrsteele09/go-finance-server/auth"

var (
	// Credential only. Read-only and valid until the credential expires, even after logout.
	credentialOnly = auth.Requirements{}

	// Live session, activity recorded.
	withSession = auth.Requirements{Session: true, CSRF: true}

	// Live session polled by the client countdown; polling must not keep the session alive.
	passiveSession = auth.Requirements{Session: true, Passive: true}

	adminRead   = auth.Requirements{Session: true, Privileged: true}
	adminAction = auth.Requirements{Session: true, Privileged: true, RateLimit: true, CSRF: true}
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// AUTH
	s.RegisterRouteFunc("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireAuth(withSession))...))
	s.RegisterRouteFunc("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware(s.RequireAuth(withSession))...))

	// API
	s.RegisterRouteFunc("GET "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth(credentialOnly))...))
	s.RegisterRouteFunc("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware(s.RequireAuth(passiveSession))...))
	s.RegisterRouteFunc("POST "+RouteAPICSRF, ChainMiddleware(s.CSRFHandler(), s.APIMiddleware(s.RequireAuth(withSession))...))

	// ADMIN
	s.RegisterRouteFunc("GET "+RouteAdminUsers, ChainMiddleware(s.AdminUsersListHandler(), s.APIMiddleware(s.RequireAuth(adminRead))...))
	s.RegisterRouteFunc("POST "+RouteAdminApproveUser, ChainMiddleware(s.AdminApproveUserHandler(), s.APIMiddleware(s.RequireAuth(adminAction))...))
	s.RegisterRouteFunc("POST "+RouteAdminRevokeUser, ChainMiddleware(s.AdminRevokeUserHandler(), s.APIMiddleware(s.RequireAuth(adminAction))...))
}
