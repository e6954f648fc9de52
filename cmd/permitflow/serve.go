package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"permitflow/internal/server"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	config, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, config, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	deps := server.Deps{
		Gate:       rt.gate,
		Rejections: rt.rejections,
		Broker:     rt.broker,
		Payments:   rt.payments,
		Pipeline:   rt.pipeline,
		Signer:     rt.signer,
	}

	if config.AuthIssuerURL != "" {
		jwkCache, err := jwk.NewCache(ctx, httprc.NewClient())
		if err != nil {
			return fmt.Errorf("failed to initialize jwk cache: %w", err)
		}

		jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", config.AuthIssuerURL)
		if err := jwkCache.Register(ctx, jwksURL); err != nil {
			return fmt.Errorf("failed to register officer jwks with cache: %w", err)
		}

		deps.JWKS = jwkCache
		deps.JWKSURL = jwksURL
	} else {
		logger.Warn("AUTH_ISSUER_URL is empty; officer tokens are not verified")
	}

	srv, err := server.New(config, logger, deps)
	if err != nil {
		return err
	}

	go runSweeper(ctx, rt, logger, config.SweepInterval)

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

func runSweeper(ctx context.Context, rt *runtime, logger logrus.FieldLogger, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.sweep(ctx, logger); err != nil {
				logger.WithError(err).Error("sweep failed")
			}
		}
	}
}
