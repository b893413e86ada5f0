package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bdevloed/graph-login-service/audit"
	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/identity"
	"github.com/bdevloed/graph-login-service/internal/config"
	"github.com/bdevloed/graph-login-service/login"
	"github.com/bdevloed/graph-login-service/oidc"
	"github.com/bdevloed/graph-login-service/server"
	"github.com/bdevloed/graph-login-service/sessions"
	"github.com/bdevloed/graph-login-service/sparql"
	"github.com/bdevloed/graph-login-service/tenants"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	displayAppName(cfg.AppName)

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server.New(cfg, engine, logger),
	}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildEngine(cfg *config.Config, logger zerolog.Logger) (*login.Service, error) {
	store := sparql.NewClient(cfg.SparqlEndpoint, cfg.SparqlUpdateEndpoint,
		sparql.WithRequestTimeout(cfg.SparqlRequestTimeout))

	extractor, err := claims.NewExtractor(claims.Keys{
		SubjectID:       cfg.UserIDClaim,
		AccountID:       cfg.AccountIDClaim,
		GroupID:         cfg.GroupIDClaim,
		ApplicationName: cfg.ApplicationNameClaim,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := oidc.New(oidc.Settings{
		DiscoveryURL: cfg.AuthDiscoveryURL,
		ClientID:     cfg.AuthClientID,
		ClientSecret: cfg.AuthClientSecret,
		AuthMethod:   oidc.AuthMethod(cfg.AuthIntrospectionVia),
		Timeout:      cfg.AuthRequestTimeout,
	}, extractor)
	if err != nil {
		return nil, err
	}

	resolver, err := tenants.NewResolver(store, cfg.OrganizationGraph, cfg.OrganizationType)
	if err != nil {
		return nil, err
	}

	reconciler, err := identity.NewReconciler(store, identity.Settings{
		UserGraphTemplate:    cfg.UserGraphTemplate,
		AccountGraphTemplate: cfg.AccountGraphTemplate,
		ResourceBaseURI:      cfg.ResourceBaseURI,
	})
	if err != nil {
		return nil, err
	}

	sessionManager, err := sessions.NewManager(store, sessions.Settings{
		SessionGraph:         cfg.SessionGraph,
		OrganizationGraph:    cfg.OrganizationGraph,
		OrganizationType:     cfg.OrganizationType,
		AccountGraphTemplate: cfg.AccountGraphTemplate,
	})
	if err != nil {
		return nil, err
	}

	auditor, err := audit.NewRecorder(store, cfg.LogsGraph, cfg.ResourceBaseURI)
	if err != nil {
		return nil, err
	}

	return login.NewService(login.Components{
		Verifier: verifier,
		Tenants:  resolver,
		Identity: reconciler,
		Sessions: sessionManager,
	},
		login.WithLogger(logger),
		login.WithAuditor(auditor),
		login.WithDebugClaimLogging(cfg.DebugLogClaims),
	)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Environment == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
