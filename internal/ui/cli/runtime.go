package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	coreapp "cprqa/internal/core/app"
	"cprqa/internal/core/config"
	"cprqa/internal/core/ports"
)

const closeTimeout = 5 * time.Second

// session is one command's wired application. Close must always run so
// queued activity reaches the store.
type session struct {
	app     *coreapp.App
	svc     ports.ReportService
	cfgPath string
	out     io.Writer
	format  string
}

func openSession(ctx context.Context, opts *globalOptions, out io.Writer) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}
	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfgPath == "" {
		slog.Debug("no config file found, using defaults")
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime paths: %w", err)
	}

	a, err := coreapp.New(cfg, paths)
	if err != nil {
		return nil, err
	}
	s := &session{app: a, svc: a.ReportService(), cfgPath: cfgPath, out: out, format: opts.format}

	if strings.TrimSpace(opts.tenant) != "" || len(cfg.Tenants.Entries) > 0 {
		if _, err := a.Tenants().Switch(ctx, opts.tenant); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.app.Close(ctx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
}

// loadConfig reads the explicit path, or checks the default locations and
// falls back to built-in defaults when none exists. The returned path is
// empty in that case.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidates, err := discoverDefaultConfig(cwd)
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range candidates {
		cfg, loadErr := config.Load(candidate)
		if loadErr == nil {
			return cfg, candidate, nil
		}
		if os.IsNotExist(loadErr) {
			continue
		}
		return nil, "", loadErr
	}
	return config.Default(), "", nil
}

func discoverDefaultConfig(cwd string) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, fmt.Errorf("cwd must not be empty")
	}
	return []string{
		filepath.Clean(filepath.Join(cwd, "data", "config", "cprqa.toml")),
		filepath.Clean(filepath.Join(cwd, "cprqa.toml")),
	}, nil
}

// configureLogging installs the process logger on stderr; stdout carries command output.
func configureLogging(verbose bool, format string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
