package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/MattyMroz/geminicli2api/internal/account"
	"github.com/MattyMroz/geminicli2api/internal/config"
	"github.com/MattyMroz/geminicli2api/internal/logging"
	"github.com/MattyMroz/geminicli2api/internal/oauth"
	"github.com/MattyMroz/geminicli2api/internal/onboarding"
	"github.com/MattyMroz/geminicli2api/internal/server"
	"github.com/MattyMroz/geminicli2api/internal/upstream"
	"github.com/MattyMroz/geminicli2api/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	login := flag.Bool("login", false, "add a Google account interactively and exit")
	flag.Parse()

	// Missing .env is fine; environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *debug {
		cfg.Debug = true
	}
	if err := logging.Setup(cfg.Debug, cfg.LogFile); err != nil {
		log.WithError(err).Fatal("failed to set up logging")
	}
	if err := cfg.ValidateAndExpandPaths(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	oauthClient := oauth.NewClient(config.DefaultScopes,
		oauth.WithClientCredentials(cfg.OAuthClientID, cfg.OAuthClientSecret))

	if *login {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		if _, err := oauthClient.Login(ctx, cfg.AccountsDir, cfg.OAuthCallbackPort); err != nil {
			log.WithError(err).Fatal("login failed")
		}
		return
	}

	store, err := account.NewStore(cfg.AccountsDir,
		account.WithLegacyFile(cfg.CredentialFile),
		account.WithRefresher(oauthClient),
		account.WithRefreshAhead(time.Duration(cfg.RefreshAheadSec)*time.Second),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to load accounts")
	}
	if store.Count() == 0 {
		log.Warn("no accounts loaded; run with -login to add one")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := store.Watch(ctx); err != nil {
		log.WithError(err).Warn("account watching disabled")
	}
	store.StartPeriodicRefresh(ctx, time.Duration(cfg.RefreshIntervalMin)*time.Minute)

	userAgent := util.UserAgent()
	onboard := onboarding.New(cfg.CodeAssistEndpoint, userAgent, store, cfg.GoogleProjectID)
	client := upstream.NewClient(cfg.CodeAssistEndpoint, userAgent,
		upstream.WithTimeouts(
			time.Duration(cfg.DialTimeoutSec)*time.Second,
			time.Duration(cfg.TLSHandshakeTimeoutSec)*time.Second,
			time.Duration(cfg.ResponseHeaderTimeoutSec)*time.Second,
			time.Duration(cfg.RequestTimeoutSec)*time.Second,
			time.Duration(cfg.StreamTimeoutSec)*time.Second,
		),
		upstream.WithProxy(cfg.ProxyURL),
	)
	dispatcher := upstream.NewDispatcher(store, onboard, client)

	srv := server.New(cfg, store, dispatcher)
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
