package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	DataDir     string
	SchemaDir   string
	TemplateDir string
	ArtifactDir string
	ExportDir   string
	DBPath      string
}

// ResolvePaths anchors every configured directory at the project root.
// Relative db.path values live under the data directory.
func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	projectRoot := strings.TrimSpace(cfg.Paths.ProjectRoot)
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		root, err := DetectProjectRoot([]string{cwd})
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = root
	}

	dataDir := ResolveRelative(projectRoot, cfg.Paths.DataDir)

	dbPath := strings.TrimSpace(cfg.DB.Path)
	if filepath.IsAbs(dbPath) {
		dbPath = filepath.Clean(dbPath)
	} else {
		dbPath = filepath.Join(dataDir, dbPath)
	}

	return ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		DataDir:     dataDir,
		SchemaDir:   ResolveRelative(projectRoot, cfg.Paths.SchemaDir),
		TemplateDir: ResolveRelative(projectRoot, cfg.Paths.TemplateDir),
		ArtifactDir: ResolveRelative(projectRoot, cfg.Paths.ArtifactDir),
		ExportDir:   ResolveRelative(projectRoot, cfg.Paths.ExportDir),
		DBPath:      filepath.Clean(dbPath),
	}, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate looking for a project marker
// and falls back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		"cprqa.toml",
		"data/config/cprqa.toml",
		"data/schemas",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
