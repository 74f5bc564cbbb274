package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"immimate/internal/draftsync"
	"immimate/internal/draftsync/local"
	"immimate/internal/draftsync/remote"
	jwttoken "immimate/internal/jwt_token"
	"immimate/internal/platform/logger"
)

type rootConfig struct {
	server        string
	token         string
	jwtKey        string
	jwtIssuer     string
	userID        string
	email         string
	dbPath        string
	formID        string
	remoteTimeout time.Duration
	logLevel      string
}

func (c *rootConfig) register(fs *flag.FlagSet) {
	_ = fs.String("config", "", "config file (optional), json format")
	fs.StringVar(&c.server, "server", "http://localhost:8080", "base URL of the immimate server; empty works offline")
	fs.StringVar(&c.token, "token", "", "bearer token of the signed-in user")
	fs.StringVar(&c.jwtKey, "jwt-key", "", "signing key used to mint a token for -user when -token is empty")
	fs.StringVar(&c.jwtIssuer, "jwt-issuer", "immimate", "issuer of minted tokens")
	fs.StringVar(&c.userID, "user", "", "user id to sign in as")
	fs.StringVar(&c.email, "email", "", "email of the signed-in user")
	fs.StringVar(&c.dbPath, "db", "drafts.db", "path of the local draft database")
	fs.StringVar(&c.formID, "form", "profile-form", "form id")
	fs.DurationVar(&c.remoteTimeout, "remote-timeout", 3*time.Second, "bound on each server call")
	fs.StringVar(&c.logLevel, "log-level", "warn", "log level")
}

func (c *rootConfig) logger() *slog.Logger {
	return logger.New(c.logLevel)
}

// bearer returns the configured token, minting one for -user when a signing
// key is available. An empty result means nobody is signed in.
func (c *rootConfig) bearer() (string, error) {
	if c.token != "" || c.userID == "" || c.jwtKey == "" {
		return c.token, nil
	}
	id, err := uuid.Parse(c.userID)
	if err != nil {
		return "", fmt.Errorf("parse -user: %w", err)
	}
	return jwttoken.NewJWTService(c.jwtKey, c.jwtIssuer).GenerateAccessToken(id, c.email, time.Hour)
}

// session is one manager over the local database, closed together.
type session struct {
	manager *draftsync.Manager
	store   *local.SQLiteStore
}

func (s *session) Close() {
	_ = s.manager.Close()
	_ = s.store.Close()
}

func (c *rootConfig) open() (*session, error) {
	store, err := local.NewSQLiteStore(c.dbPath)
	if err != nil {
		return nil, err
	}
	token, err := c.bearer()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log := c.logger()
	cfg := draftsync.Config{
		FormID:   c.formID,
		Local:    store,
		Registry: draftsync.NewRegistry(),
		Identity: draftsync.Anonymous,
	}
	if c.server != "" && token != "" {
		cfg.Remote = remote.New(c.server, remote.StaticToken(token))
		user := &draftsync.User{ID: c.userID, Email: c.email}
		cfg.Identity = draftsync.IdentityFunc(func() *draftsync.User { return user })
	}
	m, err := draftsync.NewManager(cfg,
		draftsync.WithLogger(log),
		draftsync.WithRemoteTimeout(c.remoteTimeout),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &session{manager: m, store: store}, nil
}

func (c *rootConfig) load(ctx context.Context) (*session, draftsync.Snapshot, error) {
	s, err := c.open()
	if err != nil {
		return nil, draftsync.Snapshot{}, err
	}
	snap, err := s.manager.Load(ctx)
	if err != nil {
		s.Close()
		return nil, draftsync.Snapshot{}, err
	}
	return s, snap, nil
}
