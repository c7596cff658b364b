// Package main is the entrypoint for the supportdesk portal service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cragr/supportdesk/internal/config"
	"github.com/cragr/supportdesk/internal/jira"
	"github.com/cragr/supportdesk/internal/logging"
	"github.com/cragr/supportdesk/internal/oauth"
	"github.com/cragr/supportdesk/internal/portal"
	"github.com/cragr/supportdesk/internal/remote"
	"github.com/cragr/supportdesk/internal/tokenstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger(slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("supportdesk exited", "error", err)
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM. Resources opened here are released
// before it returns.
func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting supportdesk")

	logger.Info("configuration loaded",
		"http_port", cfg.HTTPPort,
		"jira_domain", cfg.JiraDomain,
		"jira_project_key", cfg.JiraProjectKey,
		"oauth_enabled", cfg.OAuthEnabled(),
		"redis_enabled", cfg.RedisAddr != "",
	)

	remoteMetrics := remote.NewMetrics(prometheus.DefaultRegisterer)
	oauthMetrics := oauth.NewMetrics(prometheus.DefaultRegisterer)
	httpClient := &http.Client{Timeout: cfg.JiraHTTPTimeout}

	// Token store
	var store tokenstore.Store
	var ready func(context.Context) error
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		redisStore := tokenstore.NewRedis(rdb)
		store = redisStore
		ready = redisStore.Ping
	} else {
		store = tokenstore.NewMemory()
		if cfg.OAuthEnabled() {
			logger.Warn("REDIS_ADDR not set, site connections are kept in memory and lost on restart")
		}
	}

	// OAuth manager, only when delegated mode is configured
	var flow portal.OAuthFlow
	var refresher portal.Refresher
	if cfg.OAuthEnabled() {
		cipher, err := oauth.NewCipher(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to create token cipher: %w", err)
		}
		manager := oauth.NewManager(oauth.Config{
			ClientID:     cfg.AtlassianClientID,
			ClientSecret: cfg.AtlassianClientSecret,
			RedirectURL:  cfg.AtlassianRedirectURL,
			Endpoints:    oauth.DefaultEndpoints,
		}, cipher, logging.WithComponent(logger, "oauth"),
			oauth.WithHTTPClient(httpClient),
			oauth.WithRemoteMetrics(remoteMetrics),
			oauth.WithMetrics(oauthMetrics),
		)
		flow = manager
		refresher = manager
	}

	resolver := portal.NewTenantResolver(cfg.JiraDefaults(), store, refresher,
		logging.WithComponent(logger, "jira"),
		jira.WithHTTPClient(httpClient),
		jira.WithMetrics(remoteMetrics),
	)

	handler := portal.NewHandler(resolver, flow, store, portal.HeaderSession{}, logging.WithComponent(logger, "portal"))
	handler.SecureCookies = cfg.SecureCookies

	// Setup HTTP routes
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), portal.RequestLogger(logging.WithComponent(logger, "http")))

	handler.Register(router)

	// Health and readiness probes
	router.GET("/healthz", healthzHandler)
	router.GET("/readyz", readyzHandler(ready))

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Create HTTP server
	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * cfg.JiraHTTPTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// healthzHandler handles liveness probe requests.
func healthzHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// readyzHandler reports not ready while the token store is unreachable.
func readyzHandler(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "token store unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	}
}
