package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emenda-labs/agentver/core/breaking"
	"github.com/emenda-labs/agentver/core/cli"
	"github.com/emenda-labs/agentver/core/config"
	"github.com/emenda-labs/agentver/core/depgraph"
	"github.com/emenda-labs/agentver/core/driver"
	"github.com/emenda-labs/agentver/core/impact"
	"github.com/emenda-labs/agentver/core/metrics"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/store"
	"github.com/emenda-labs/agentver/core/versioning"
	golangdriver "github.com/emenda-labs/agentver/drivers/golang"
	pythondriver "github.com/emenda-labs/agentver/drivers/python"
	"github.com/emenda-labs/agentver/pkg/badgerstore"
	"github.com/emenda-labs/agentver/pkg/filestore"
	"github.com/emenda-labs/agentver/pkg/sqlitestore"
	"github.com/emenda-labs/agentver/pkg/vcs"
)

// app holds the components one command run needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     store.Store
	workspace *snapshot.DirWorkspace
	manager   *versioning.Manager
	tracker   *depgraph.Tracker
	analyzer  *impact.Analyzer
	detector  *breaking.Detector
	json      bool
	out       io.Writer

	closeStore func() error
}

func newApp(globals cli.GlobalOptions) (*app, error) {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, err
	}
	if globals.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(globals.LogLevel)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	m := metrics.New()

	s, closeStore, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	ws := snapshot.NewDirWorkspace(cfg.Workspace.Root)
	opts := []versioning.Option{
		versioning.WithWorkspace(ws),
		versioning.WithLogger(logger),
		versioning.WithMetrics(m),
	}
	if cfg.VCS.Enabled {
		git, err := vcs.NewGit(cfg.VCS.Dir, func(agent string) (string, error) {
			dir, err := ws.AgentDir(agent)
			if err != nil {
				return "", err
			}
			// git runs in the repository, not in the working directory.
			return filepath.Abs(dir)
		})
		if err != nil {
			logger.Warn("vcs disabled", "error", err)
		} else {
			git.AuthorName, git.AuthorEmail = cfg.VCS.AuthorName, cfg.VCS.AuthorEmail
			opts = append(opts, versioning.WithVCS(git))
		}
	}
	manager := versioning.NewManager(s, opts...)
	tracker := depgraph.NewTracker(s, depgraph.WithLogger(logger), depgraph.WithMetrics(m))

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		store:     s,
		workspace: ws,
		manager:   manager,
		tracker:   tracker,
		analyzer: impact.NewAnalyzer(tracker,
			impact.WithVersions(manager),
			impact.WithThresholds(impact.Thresholds{LowMax: cfg.Impact.LowMax, MediumMax: cfg.Impact.MediumMax}),
			impact.WithLogger(logger)),
		detector:   breaking.NewDetector(driver.NewRegistry(golangdriver.NewExtractor(), pythondriver.NewExtractor())),
		json:       globals.JSON,
		out:        os.Stdout,
		closeStore: closeStore,
	}, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), noop, nil
	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig()
		bcfg.Path = cfg.Path
		bcfg.Logger = logger
		s, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendSQLite:
		s, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendFile:
		s, err := filestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// close releases the store and writes the metrics textfile when one is
// configured.
func (a *app) close() error {
	var errs []error
	if err := a.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withApp builds the app for one command, runs fn and closes the app.
func withApp(globals *cli.GlobalOptions, fn func(a *app) error) error {
	a, err := newApp(*globals)
	if err != nil {
		return err
	}
	err = fn(a)
	if cerr := a.close(); cerr != nil {
		a.logger.Error("shutdown failed", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}
