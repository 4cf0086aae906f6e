// Package config loads run settings from a .env file and LEARNUS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sebastianrcnt/learnus-bot/scrapers"
)

var ErrMissingCredentials = errors.New("LEARNUS_USERNAME and LEARNUS_PASSWORD must be set")

// Config is everything one run needs. Credentials are carried explicitly
// into every session.
type Config struct {
	Credentials scrapers.Credentials
	Portal      scrapers.PortalConfig

	Headless            bool
	MaxThreads          int
	Download            bool
	DownloadDir         string
	DownloadConcurrency int

	BrowserProcess string
	KillBrowsers   bool
	ChromePath     string

	HistoryDB string
	NoHistory bool
	LogFile   string
	Plain     bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Portal:              scrapers.DefaultPortalConfig(),
		MaxThreads:          2,
		DownloadDir:         ".",
		DownloadConcurrency: 5,
		BrowserProcess:      "chrome",
		KillBrowsers:        true,
		HistoryDB:           defaultHistoryPath(),
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".learnus-bot", "history.db")
	}
	return filepath.Join(home, ".learnus-bot", "history.db")
}

// Load reads envFile (a missing file is fine) and then the environment over
// Default. Malformed values are errors.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	cfg.Credentials.Username = os.Getenv("LEARNUS_USERNAME")
	cfg.Credentials.Password = os.Getenv("LEARNUS_PASSWORD")

	if v := os.Getenv("LEARNUS_BASE_URL"); v != "" {
		cfg.Portal.BaseURL = v
	}
	if v := os.Getenv("LEARNUS_BROWSER_PROCESS"); v != "" {
		cfg.BrowserProcess = v
	}
	if v := os.Getenv("LEARNUS_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("LEARNUS_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("LEARNUS_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("LEARNUS_RATE_RULE"); v != "" {
		rule, err := scrapers.ParseRateRule(v)
		if err != nil {
			return Config{}, fmt.Errorf("LEARNUS_RATE_RULE: %w", err)
		}
		cfg.Portal.RateRule = rule
	}
	if v := os.Getenv("LEARNUS_MAX_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("LEARNUS_MAX_THREADS: %w", err)
		}
		cfg.MaxThreads = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"LEARNUS_STEP_TIMEOUT", &cfg.Portal.StepTimeout},
		{"LEARNUS_STALL_TIMEOUT", &cfg.Portal.StallTimeout},
		{"LEARNUS_POLL_INTERVAL", &cfg.Portal.PollInterval},
		{"LEARNUS_MAX_PLAYBACK", &cfg.Portal.MaxPlayback},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// Validate checks the settings a run cannot start without.
func (c Config) Validate() error {
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return ErrMissingCredentials
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("max threads must be at least 1, got %d", c.MaxThreads)
	}
	if c.DownloadConcurrency < 1 {
		return fmt.Errorf("download concurrency must be at least 1, got %d", c.DownloadConcurrency)
	}
	if c.Portal.StepTimeout <= 0 || c.Portal.PollInterval <= 0 {
		return fmt.Errorf("step timeout and poll interval must be positive")
	}
	if c.Portal.StallTimeout < 0 || c.Portal.MaxPlayback < 0 {
		return fmt.Errorf("stall timeout and max playback must not be negative")
	}
	if _, err := scrapers.ParseRateRule(string(c.Portal.RateRule)); err != nil {
		return err
	}
	if c.BrowserProcess == "" {
		return fmt.Errorf("browser process name must not be empty")
	}
	return nil
}
