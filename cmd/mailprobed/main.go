package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mailprobe/mailprobe"
	"github.com/mailprobe/mailprobe/internal/config"
	"github.com/mailprobe/mailprobe/internal/httpapi"
	"github.com/mailprobe/mailprobe/resolve"
	"github.com/mailprobe/mailprobe/smtpprobe"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := config.SetupLogging(cfg)

	verifier := mailprobe.New(mailprobe.Options{
		Resolver: resolve.NewDNSResolver(resolve.Config{
			Nameservers: cfg.Verify.Nameservers,
			Timeout:     cfg.Verify.ResolveTimeout,
		}),
		Identity: mailprobe.Identity{
			SenderDomain:  cfg.Verify.SenderDomain,
			SenderAddress: cfg.Verify.SenderAddress,
		},
		MaxResolutions: cfg.Verify.MaxResolutions,
		CacheTTL:       cfg.Verify.CacheTTL,
		SMTP: smtpprobe.Config{
			Port:               cfg.SMTP.Port,
			ConnectTimeout:     cfg.SMTP.ConnectTimeout,
			CommandTimeout:     cfg.SMTP.CommandTimeout,
			MaxSessionsPerHost: cfg.SMTP.MaxSessionsPerHost,
			GreylistDelay:      cfg.SMTP.GreylistDelay,
		},
		Logger: logger,
	})
	defer func() { _ = verifier.Close() }()

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port)),
		Handler: httpapi.New(verifier, logger, cfg.Server.RequestTimeout),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting mailprobed", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
}
