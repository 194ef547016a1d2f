package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-finance-server/auth"
	"github.com/jrsteele09/go-finance-server/csrf"
	"github.com/jrsteele09/go-finance-server/internal/config"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/internal/logging"
	"github.com/jrsteele09/go-finance-server/internal/reaper"
	"github.com/jrsteele09/go-finance-server/ratelimit"
	"github.com/jrsteele09/go-finance-server/server"
	"github.com/jrsteele09/go-finance-server/sessions"
	"github.com/jrsteele09/go-finance-server/token"
	"github.com/jrsteele09/go-finance-server/users/memrepo"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		err := run()
		if err == nil {
			break
		}
		// A bad configuration will not fix itself; refuse to start rather than loop.
		if apperrors.Is(err, apperrors.ErrConfiguration) {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		log.Error().Err(err).Msg("Error running server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	limiter, closeLimiter, err := newLimiter(c)
	if err != nil {
		return err
	}
	defer closeLimiter()

	authService, err := newAuthorizationService(c, limiter)
	if err != nil {
		return err
	}

	handler, err := server.New(c, authService)
	if err != nil {
		return err
	}

	sweeper := reaper.New(c.GetReaperInterval(), authService.SweepTasks())
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}

	return shutdown(httpServer)
}

func newAuthorizationService(c config.Config, limiter ratelimit.Limiter) (*auth.AuthorizationService, error) {
	codec, err := token.NewCodec(c.GetSigningKey(), token.WithIssuer(c.GetTokenIssuer()))
	if err != nil {
		return nil, err
	}
	policy, err := sessions.NewPolicy(c.GetInactivityTimeout(), c.GetWarningLeadTime(), c.GetMaxSessionAge())
	if err != nil {
		return nil, err
	}

	return auth.NewAuthorizationService(auth.Components{
		Users:         memrepo.NewInMemoryUserRepo(),
		Codec:         codec,
		Sessions:      sessions.NewStore(),
		Limiter:       limiter,
		CSRF:          csrf.NewRegistry(),
		LoginThrottle: ratelimit.NewThrottle(c.GetLoginThrottleRate(), c.GetLoginThrottleBurst(), time.Hour),
	}, policy, auth.Settings{
		AccessTokenTTL:  c.GetAccessTokenTTL(),
		CSRFTokenTTL:    c.GetCSRFTokenTTL(),
		RateLimitMax:    c.GetRateLimitMax(),
		RateLimitWindow: c.GetRateLimitWindow(),
	})
}

// newLimiter shares rate limits through Redis when REDIS_URL is set, otherwise keeps them in memory.
func newLimiter(c config.Config) (ratelimit.Limiter, func(), error) {
	redisURL := c.GetRedisURL()
	if redisURL == "" {
		log.Info().Msg("Using in-memory rate limiter")
		return ratelimit.NewMemoryLimiter(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, apperrors.Configf("REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	limiter := ratelimit.NewRedisLimiter(client, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := limiter.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info().Str("addr", opts.Addr).Msg("Using Redis rate limiter")
	return limiter, func() { _ = client.Close() }, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
