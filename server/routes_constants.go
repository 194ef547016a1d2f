package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthRegister = "/auth/register"
	RouteAuthLogin    = "/auth/login"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthRefresh  = "/auth/refresh"

	// API Routes
	RouteAPIMe      = "/api/me"
	RouteAPISession = "/api/session"
	RouteAPICSRF    = "/api/csrf"

	// Admin Routes
	RouteAdminUsers       = "/admin/users"
	RouteAdminApproveUser = "/admin/users/{id}/approve"
	RouteAdminRevokeUser  = "/admin/users/{id}/revoke"

	RouteHealth = "/healthz"
)
