package scrapers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
)

var (
	// ErrLoginFailed is returned when the login form is still shown after submitting.
	ErrLoginFailed = errors.New("login did not complete")
	// ErrInvalidProgressReading is returned for a progress bar whose range is empty or unparsable.
	ErrInvalidProgressReading = errors.New("invalid progress reading")
	// ErrPlaybackStalled is returned when progress stops advancing for longer than StallTimeout.
	ErrPlaybackStalled = errors.New("playback stalled")
	// ErrPlaybackTimeout is returned when a video exceeds MaxPlayback.
	ErrPlaybackTimeout = errors.New("playback timed out")
)

const (
	selUsername    = `input[name="username"]`
	selPassword    = `input[name="password"]`
	selLoginButton = `input[name="loginbutton"]`

	loggedInScript = `document.readyState === 'complete' && !document.querySelector('input[name="loginbutton"]')`
)

// Portal drives one logged-in browser session against the portal.
type Portal struct {
	page   browser.Page
	cfg    PortalConfig
	logger *log.Logger
}

func NewPortal(page browser.Page, cfg PortalConfig, logger *log.Logger) *Portal {
	if logger == nil {
		logger = log.New(os.Stdout, "[LEARNUS] ", log.LstdFlags)
	}
	def := DefaultPortalConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = def.StepTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.RateRule == "" {
		cfg.RateRule = def.RateRule
	}
	return &Portal{page: page, cfg: cfg, logger: logger}
}

// Login submits the SSO form and waits until the form is gone.
func (p *Portal) Login(ctx context.Context, creds Credentials) error {
	loginURL := p.cfg.BaseURL + "/login/method/sso.php"
	p.logger.Printf("Navigating to %s", loginURL)
	if err := p.page.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	p.logger.Printf("Filling credentials for user: %s", creds.Username)
	if err := p.page.WaitVisible(ctx, selUsername); err != nil {
		return fmt.Errorf("failed to fill credentials: %w", err)
	}
	if err := p.page.SendKeys(ctx, selUsername, creds.Username); err != nil {
		return fmt.Errorf("failed to fill credentials: %w", err)
	}
	if err := p.page.SendKeys(ctx, selPassword, creds.Password); err != nil {
		return fmt.Errorf("failed to fill credentials: %w", err)
	}

	p.logger.Println("Clicking login button...")
	if err := p.page.Click(ctx, selLoginButton); err != nil {
		return fmt.Errorf("failed to click login: %w", err)
	}

	err := p.waitUntil(ctx, p.cfg.StepTimeout, func() (bool, error) {
		var ok bool
		if err := p.page.Evaluate(ctx, loggedInScript, &ok); err != nil {
			return false, err
		}
		return ok, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to login as %s: %w", creds.Username, ErrLoginFailed)
	}
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	p.logger.Println("Login completed!")
	return nil
}

// waitUntil polls cond every PollInterval until it holds or timeout elapses,
// in which case it returns context.DeadlineExceeded.
func (p *Portal) waitUntil(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		if err := sleep(ctx, p.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
