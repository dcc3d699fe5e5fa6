package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the optional per-project configuration file, looked up at the
// project root.
const FileName = "codemod.yaml"

// DefaultStateDir holds editset artifacts, the apply journal and pre-image
// blobs, relative to the project root.
const DefaultStateDir = ".codemod"

type Config struct {
	Project struct {
		Root       string   `yaml:"root"`
		IgnoreDirs []string `yaml:"ignore_dirs"`
	} `yaml:"project"`
	Tools struct {
		AstGrep string `yaml:"astgrep"` // structural-match binary
		Ripgrep string `yaml:"ripgrep"` // text-search binary
	} `yaml:"tools"`
	StateDir string `yaml:"state_dir"`
}

func defaultConfig() *Config {
	cfg := &Config{StateDir: DefaultStateDir}
	cfg.Project.IgnoreDirs = []string{".git", "node_modules", "vendor", "dist", "build"}
	return cfg
}

// Load assembles the effective configuration. Precedence, lowest to highest:
// built-in defaults, codemod.yaml at the project root, environment variables.
// An empty root falls back to git worktree detection, then the working
// directory.
func Load(root string) (*Config, error) {
	// 1. Load .env if exists, so its variables join the override pass.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if root == "" {
		root = DetectRoot()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	cfg.Project.Root = abs

	// 2. Load YAML config when present.
	raw, err := os.ReadFile(filepath.Join(abs, FileName))
	if err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", FileName, err)
		}
		if cfg.Project.Root == "" {
			cfg.Project.Root = abs
		} else if !filepath.IsAbs(cfg.Project.Root) {
			cfg.Project.Root = filepath.Join(abs, cfg.Project.Root)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	// 3. Override with environment variables if present.
	if bin := os.Getenv("CODEMOD_ASTGREP_BIN"); bin != "" {
		cfg.Tools.AstGrep = bin
	}
	if bin := os.Getenv("CODEMOD_RIPGREP_BIN"); bin != "" {
		cfg.Tools.Ripgrep = bin
	}
	if dir := os.Getenv("CODEMOD_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	}

	// Discovery must never descend into the tool's own state dir.
	stateName := filepath.Base(cfg.StateDir)
	ignored := false
	for _, d := range cfg.Project.IgnoreDirs {
		if d == stateName {
			ignored = true
			break
		}
	}
	if !ignored {
		cfg.Project.IgnoreDirs = append(cfg.Project.IgnoreDirs, stateName)
	}
	return cfg, nil
}

// DetectRoot finds the enclosing git worktree, falling back to the current
// directory when there is none.
func DetectRoot() string {
	if repo, err := git.PlainOpenWithOptions(".", &git.PlainOpenOptions{DetectDotGit: true}); err == nil {
		if wt, err := repo.Worktree(); err == nil {
			return wt.Filesystem.Root()
		}
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func (c *Config) statePath() string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(c.Project.Root, c.StateDir)
}

// EditsetsDir is where proposal artifacts are persisted.
func (c *Config) EditsetsDir() string { return filepath.Join(c.statePath(), "editsets") }

// JournalPath is the sqlite apply journal.
func (c *Config) JournalPath() string { return filepath.Join(c.statePath(), "journal.db") }

// BlobsDir is the content-addressed pre-image pool.
func (c *Config) BlobsDir() string { return filepath.Join(c.statePath(), "blobs") }
