package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragr/supportdesk/internal/config"
)

func TestRun_InvalidEncryptionKey(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		JiraHTTPTimeout:    time.Second,
		AtlassianClientID:  "client-1",
		TokenEncryptionKey: "too-short",
		RedisAddr:          mr.Addr(),
		HTTPPort:           "0",
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	err := run(cfg, logger)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create token cipher")
}

func TestReadyzHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		ping       func(context.Context) error
		wantStatus int
	}{
		{name: "no store", ping: nil, wantStatus: http.StatusOK},
		{name: "store reachable", ping: func(context.Context) error { return nil }, wantStatus: http.StatusOK},
		{
			name:       "store unreachable",
			ping:       func(context.Context) error { return errors.New("connection refused") },
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/readyz", readyzHandler(tt.ping))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
