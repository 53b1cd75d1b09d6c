package cli

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/parallelcodex/codex-sdk-go/internal/errors"
)

const (
	// PathEnvVar overrides codex binary discovery when set.
	PathEnvVar = "PARALLEL_CODEX_CODEX_PATH"

	// LoginCheckTimeout bounds the `codex login status` probe.
	LoginCheckTimeout = 10 * time.Second
)

// Config holds configuration for codex CLI discovery.
type Config struct {
	// CodexPath is an explicit binary path that skips all searching.
	CodexPath string

	// SkipLoginCheck disables the authentication probe.
	SkipLoginCheck bool

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates and validates the codex CLI binary.
type Discoverer interface {
	// Discover locates the codex CLI binary and checks authentication.
	// Returns the path to the binary or an error.
	Discover(ctx context.Context) (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new codex CLI discoverer.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the codex CLI binary and checks authentication.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	d.log.Debug("Discovering codex CLI binary")

	codexPath, err := d.findCodex()
	if err != nil {
		d.log.Error("Failed to find codex CLI", "error", err)

		return "", err
	}

	d.log.Debug("Found codex CLI binary", "codex_path", codexPath)

	if err := d.checkLogin(ctx, codexPath); err != nil {
		return "", err
	}

	return codexPath, nil
}

// findCodex locates the codex CLI binary.
func (d *discoverer) findCodex() (string, error) {
	// If explicit path provided, use it and only it
	if d.cfg.CodexPath != "" {
		d.log.Debug("Using explicit codex path", "codex_path", d.cfg.CodexPath)

		if _, err := os.Stat(d.cfg.CodexPath); err == nil {
			return d.cfg.CodexPath, nil
		}

		return "", &errors.CodexNotFoundError{SearchedPaths: []string{d.cfg.CodexPath}}
	}

	// Environment override beats PATH
	if override := os.Getenv(PathEnvVar); override != "" {
		d.log.Debug("Using codex path from environment", "codex_path", override)

		return override, nil
	}

	searchedPaths := make([]string, 0, 4)

	d.log.Debug("Searching for 'codex' in PATH")

	if path, err := exec.LookPath("codex"); err == nil {
		d.log.Debug("Found 'codex' in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	commonPaths := []string{
		"/usr/local/bin/codex",
		"/usr/bin/codex",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(homeDir, ".local/bin/codex"))
	}

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)

		if _, err := os.Stat(path); err == nil {
			d.log.Debug("Found codex CLI at common path", "path", path)

			return path, nil
		}
	}

	d.log.Warn("codex CLI not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.CodexNotFoundError{SearchedPaths: searchedPaths}
}

// checkLogin verifies the codex CLI is authenticated.
// Returns NotLoggedInError if `codex login status` exits non-zero.
func (d *discoverer) checkLogin(ctx context.Context, codexPath string) error {
	if d.cfg.SkipLoginCheck {
		d.log.Debug("Skipping codex login check (configured)")

		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, LoginCheckTimeout)
	defer cancel()

	//nolint:gosec // G204: codexPath comes from discovery above
	cmd := exec.CommandContext(ctx, codexPath, "login", "status")
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		d.log.Warn("codex login check failed", "error", err)

		return &errors.NotLoggedInError{CodexPath: codexPath}
	}

	d.log.Debug("codex login check passed")

	return nil
}
