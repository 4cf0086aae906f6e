package updater

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
)

// ErrDevelopmentBuild is returned when the running binary carries no release version.
var ErrDevelopmentBuild = errors.New("development build cannot be compared with releases")

// releaseSource is the part of go-selfupdate the updater needs.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Updater handles checking for and applying updates
type Updater struct {
	config *Config
	logger *log.Logger
	source func() (releaseSource, error)
}

// New creates a new Updater backed by GitHub releases
func New(config *Config, logger *log.Logger) *Updater {
	return &Updater{
		config: config,
		logger: logger,
		source: newGitHubSource,
	}
}

func newGitHubSource() (releaseSource, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return updater, nil
}

// normalizeVersion prefixes a bare version with "v". Empty and "dev" mean
// the binary was not built from a release.
func normalizeVersion(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "dev" {
		return "", ErrDevelopmentBuild
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	return v, nil
}

// CheckForUpdate checks if a newer version is available
func (u *Updater) CheckForUpdate(ctx context.Context) (*selfupdate.Release, bool, error) {
	u.logger.Printf("Checking for updates... (current: %s)", u.config.CurrentVersion)

	currentVersion, err := normalizeVersion(u.config.CurrentVersion)
	if err != nil {
		return nil, false, err
	}

	source, err := u.source()
	if err != nil {
		return nil, false, err
	}

	latest, found, err := source.DetectLatest(ctx, selfupdate.ParseSlug(u.config.Slug()))
	if err != nil {
		return nil, false, fmt.Errorf("failed to detect latest version: %w", err)
	}

	if !found {
		u.logger.Printf("No release found for %s/%s", runtime.GOOS, runtime.GOARCH)
		return nil, false, nil
	}

	if latest.LessOrEqual(currentVersion) {
		u.logger.Printf("Current version (%s) is up to date", u.config.CurrentVersion)
		return latest, false, nil
	}

	u.logger.Printf("New version available: %s (current: %s)", latest.Version(), u.config.CurrentVersion)
	return latest, true, nil
}

// Update downloads and applies the update
func (u *Updater) Update(ctx context.Context, release *selfupdate.Release) error {
	u.logger.Printf("Downloading update %s...", release.Version())

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	source, err := u.source()
	if err != nil {
		return err
	}

	if err := source.UpdateTo(ctx, release, exe); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	u.logger.Printf("Successfully updated to version %s", release.Version())
	return nil
}
