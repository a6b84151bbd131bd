// Package app provides shared application initialization logic for
// fspulse's entry points: wiring config, logging, the store, the scan
// engine, the task manager, and the HTTP API into one running server.
package app

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/fspulse/internal/api"
	"github.com/lyallcooper/fspulse/internal/config"
	"github.com/lyallcooper/fspulse/internal/logging"
	"github.com/lyallcooper/fspulse/internal/scan"
	"github.com/lyallcooper/fspulse/internal/store"
	"github.com/lyallcooper/fspulse/internal/task"
	"github.com/lyallcooper/fspulse/internal/validator"
)

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// ConfigPath overrides the default platform config file location.
	// If empty, config.DefaultPath() is used.
	ConfigPath string

	// Port overrides the resolved config port, e.g. from a CLI flag.
	Port int

	// Version, GitCommit, BuildTimestamp are baked in by cmd/fspulse at
	// link time and surfaced via GET /api/app-info. Schema version is
	// reported separately, read from the store's applied migrations.
	Version        string
	GitCommit      string
	BuildTimestamp string

	// BindAddress is the address to bind to. Defaults to "" (all interfaces).
	BindAddress string
}

// Server wraps the HTTP server and the components it fronts.
type Server struct {
	API     *api.Server
	Store   *store.Store
	Engine  *scan.Engine
	Manager *task.Manager
	Config  *config.Config
	Log     zerolog.Logger
}

// CreateServer initializes all application components and returns a
// Server. Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	cfgPath := cfg.ConfigPath
	if cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfgPath = p
	}

	appCfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Port > 0 {
		appCfg.Port.Value = cfg.Port
	}

	log := logging.New(logging.Config{Level: parseLevel(appCfg.LogLevel.Value)})
	log.Info().
		Str("db_path", appCfg.DBPath.Value).
		Int("port", appCfg.Port.Value).
		Msg("fspulse starting")

	st, err := store.Open(appCfg.DBPath.Value, logging.WithComponent(log, "store"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	registry := validator.NewRegistry()
	engine := scan.NewEngine(st, registry, logging.WithComponent(log, "scan"))
	manager := task.NewManager(st, engine, logging.WithComponent(log, "task"))
	manager.Start()

	httpServer := api.NewServer(api.NewServerConfig{
		Store:      st,
		Engine:     engine,
		Manager:    manager,
		Config:     appCfg,
		ConfigPath: cfgPath,
		Build: api.BuildInfo{
			Version:        cfg.Version,
			GitCommit:      cfg.GitCommit,
			BuildTimestamp: cfg.BuildTimestamp,
		},
		Addr: fmt.Sprintf("%s:%d", cfg.BindAddress, appCfg.Port.Value),
		Log:  logging.WithComponent(log, "api"),
		Shutdown: func() {
			manager.Stop()
			st.Close()
		},
	})

	return &Server{
		API:     httpServer,
		Store:   st,
		Engine:  engine,
		Manager: manager,
		Config:  appCfg,
		Log:     log,
	}, nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.DebugLevel
	case "warn":
		return logging.WarnLevel
	case "error":
		return logging.ErrorLevel
	default:
		return logging.InfoLevel
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	if err := s.API.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	s.Manager.Stop()
	if s.Store != nil {
		_ = s.Store.Close()
	}
}
