package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"news-qa/internal/logging"
	"news-qa/internal/mockapi"
)

func main() {
	var (
		addr      = flag.String("addr", ":8081", "Listen address")
		email     = flag.String("seed-email", "qa@example.com", "Email of the seeded user")
		password  = flag.String("seed-password", "password123", "Password of the seeded user")
		firstName = flag.String("seed-first-name", "QA", "First name of the seeded user")
		secret    = flag.String("secret", "", "HMAC secret for issued tokens (random when empty)")
		tokenTTL  = flag.Duration("token-ttl", time.Hour, "Lifetime of issued tokens")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	gin.SetMode(gin.ReleaseMode)

	opts := []mockapi.Option{mockapi.WithTokenTTL(*tokenTTL)}
	if *secret != "" {
		opts = append(opts, mockapi.WithSecret([]byte(*secret)))
	}
	api := mockapi.New(opts...)
	u, err := api.SeedUser(*email, *password, *firstName)
	if err != nil {
		logger.Fatal("seed user", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("apimock listening",
			zap.String("addr", *addr),
			zap.String("seed_user", u.Email),
			zap.String("seed_user_id", u.ID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	posts, comments := api.Store().Counts()
	logger.Info("apimock stopped", zap.Int("posts_left", posts), zap.Int("comments_left", comments))
}
