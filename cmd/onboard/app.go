package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/option"

	"github.com/Napageneral/onboard/internal/backboard"
	"github.com/Napageneral/onboard/internal/chats"
	"github.com/Napageneral/onboard/internal/clients"
	"github.com/Napageneral/onboard/internal/compute"
	"github.com/Napageneral/onboard/internal/config"
	"github.com/Napageneral/onboard/internal/db"
	"github.com/Napageneral/onboard/internal/documents"
	"github.com/Napageneral/onboard/internal/drive"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/relay"
	"github.com/Napageneral/onboard/internal/secrets"
	"github.com/Napageneral/onboard/internal/tools"
)

// app is the wired process: one database handle and the collaborators built on it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *db.DB
	cipher  *secrets.Cipher // nil when no encryption key is configured
	clients *clients.Registry
	docs    *documents.Store
	chats   *chats.Log
	fwd     *relay.Forwarder
	router  *tools.Router
	metrics *compute.PollMetrics
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logutil.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		clients: clients.NewRegistry(database.DB),
		docs:    documents.NewStore(database.DB),
		chats:   chats.NewLog(database.DB),
		metrics: compute.NewPollMetrics(),
	}

	// A typed nil must not reach the Decrypter interface.
	var dec relay.Decrypter
	if cfg.EncryptionKey != "" {
		c, err := secrets.New(cfg.EncryptionKey)
		if err != nil {
			database.Close()
			return nil, err
		}
		a.cipher = c
		dec = c
	} else {
		logger.Warn("ENCRYPTION_KEY is not set; stored client keys cannot be used")
	}

	a.fwd = relay.NewForwarder(a.clients, dec, a.sessions(), logger)
	a.router = &tools.Router{
		Backend: tools.ForwarderBackend{Forwarder: a.fwd},
		Logger:  logger,
		Metrics: a.metrics,
	}
	return a, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.Backboard.Timeout}
}

func (a *app) sessions() relay.SessionFactory {
	base, hc := a.cfg.Backboard.BaseURL, a.httpClient()
	return func(apiKey string) relay.Session {
		return backboard.NewClient(base, apiKey, hc)
	}
}

func (a *app) provisioner() (*clients.Provisioner, error) {
	if a.cipher == nil {
		return nil, secrets.ErrNoKey
	}
	base, hc := a.cfg.Backboard.BaseURL, a.httpClient()
	return &clients.Provisioner{
		Registry: a.clients,
		Cipher:   a.cipher,
		Assistants: func(apiKey string) clients.AssistantCreator {
			return backboard.NewClient(base, apiKey, hc)
		},
		Logger: a.logger,
	}, nil
}

// driveSource authorizes with the saved token. It never prompts; run `onboard drive auth` first.
func (a *app) driveSource(ctx context.Context) (*drive.Source, error) {
	oc, err := drive.LoadOAuthConfig(a.cfg.Drive.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := drive.TokenFromFile(a.cfg.Drive.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("no saved Drive token at %s (run `onboard drive auth`): %w", a.cfg.Drive.TokenFile, err)
	}
	ts := drive.TokenSource(ctx, oc, tok, a.cfg.Drive.TokenFile)
	return drive.NewSource(ctx, a.logger, option.WithTokenSource(ts))
}

func (a *app) clientID(flag, fallback string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", errors.New("--client is required")
}
