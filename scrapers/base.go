package scrapers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
)

// Credentials are the single static username/password pair used to log in.
type Credentials struct {
	Username string
	Password string
}

// Course is one enrolled course tile from the dashboard.
type Course struct {
	Title string
	Link  string
}

// Vod is one lecture recording listed on a course page.
type Vod struct {
	Name       string
	Link       string
	IsComplete bool
}

// WorkItem pairs an incomplete Vod with the course it belongs to.
type WorkItem struct {
	Course Course
	Vod    Vod
}

func (w WorkItem) String() string {
	return w.Course.Title + " / " + w.Vod.Name
}

// PortalConfig holds the settings shared by every session against the portal.
type PortalConfig struct {
	BaseURL      string
	StepTimeout  time.Duration
	PollInterval time.Duration
	// StallTimeout is how long progress may stay flat before playback fails.
	StallTimeout time.Duration
	// MaxPlayback bounds one video's total polling time. Zero means no bound.
	MaxPlayback time.Duration
	Threshold   float64
	RateRule    RateRule
}

// DefaultPortalConfig returns the settings for https://ys.learnus.org.
func DefaultPortalConfig() PortalConfig {
	return PortalConfig{
		BaseURL:      "https://ys.learnus.org",
		StepTimeout:  30 * time.Second,
		PollInterval: time.Second,
		StallTimeout: 3 * time.Minute,
		Threshold:    0.995,
		RateRule:     RateFirst,
	}
}

// WithSession provisions a browser, logs in, runs fn and always closes the
// browser afterwards.
func WithSession(ctx context.Context, launcher browser.Launcher, opts browser.Options, cfg PortalConfig, creds Credentials, logger *log.Logger, fn func(*Portal) error) error {
	page, err := launcher.Launch(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer page.Close()

	portal := NewPortal(page, cfg, logger)
	if err := portal.Login(ctx, creds); err != nil {
		return err
	}
	return fn(portal)
}
