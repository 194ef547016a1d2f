package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-finance-server/auth"
	"github.com/jrsteele09/go-finance-server/internal/config"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.Handler // mux wrapped in the CORS handler
	routes   []string
	config   config.Config
	auth     *auth.AuthorizationService
	validate *validator.Validate
}

func New(config config.Config, authService *auth.AuthorizationService) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] authorization service is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		auth:     authService,
		validate: validator.New(),
	}

	if err := s.InitialiseSystem(config); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.handler = cors.Handler(cors.Options{
		AllowedOrigins:   config.GetAllowedOrigins().List(),
		AllowedMethods:   config.GetAllowedMethods(),
		AllowedHeaders:   config.GetAllowedHeaders(),
		ExposedHeaders:   config.GetExposedHeaders(),
		AllowCredentials: true,
		MaxAge:           300,
	})(s.mux)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Str("method", method).Str("path", path).Msg("Route registered")
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
