package scrapers

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/browser/browsertest"
	"github.com/sebastianrcnt/learnus-bot/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() PortalConfig {
	return PortalConfig{
		BaseURL:      "https://portal.test/",
		StepTimeout:  20 * time.Millisecond,
		PollInterval: time.Millisecond,
		StallTimeout: time.Minute,
		Threshold:    0.995,
		RateRule:     RateFirst,
	}
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func loginPage(loggedIn bool) *browsertest.Page {
	p := browsertest.New()
	p.Present[selUsername] = true
	p.Present[selPassword] = true
	p.Present[selLoginButton] = true
	p.Scripts[loggedInScript] = loggedIn
	return p
}

type recordingReporter struct {
	mu       sync.Mutex
	names    []string
	updates  []int64
	finished int
}

func (r *recordingReporter) AddTask(name string, total int64) progress.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return &recordingTask{r: r}
}

type recordingTask struct{ r *recordingReporter }

func (t *recordingTask) Update(completed int64) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.updates = append(t.r.updates, completed)
}

func (t *recordingTask) Finish() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.finished++
}

func TestNewPortal_FillsDefaults(t *testing.T) {
	p := NewPortal(browsertest.New(), PortalConfig{}, nil)

	assert.Equal(t, "https://ys.learnus.org", p.cfg.BaseURL)
	assert.Equal(t, 30*time.Second, p.cfg.StepTimeout)
	assert.Equal(t, time.Second, p.cfg.PollInterval)
	assert.Equal(t, 0.995, p.cfg.Threshold)
	assert.Equal(t, RateFirst, p.cfg.RateRule)
}

func TestLogin_Success(t *testing.T) {
	page := loginPage(true)
	p := NewPortal(page, testConfig(), testLogger())

	err := p.Login(context.Background(), Credentials{Username: "student", Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, []string{"https://portal.test/login/method/sso.php"}, page.Navigated)
	assert.Equal(t, "student", page.Keys[selUsername])
	assert.Equal(t, "secret", page.Keys[selPassword])
	assert.Equal(t, []string{selLoginButton}, page.Clicked)
}

func TestLogin_FormStillShownFails(t *testing.T) {
	page := loginPage(false)
	p := NewPortal(page, testConfig(), testLogger())

	err := p.Login(context.Background(), Credentials{Username: "student", Password: "wrong"})

	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestLogin_MissingFieldIsFatal(t *testing.T) {
	page := loginPage(true)
	delete(page.Present, selPassword)
	p := NewPortal(page, testConfig(), testLogger())

	err := p.Login(context.Background(), Credentials{Username: "student", Password: "secret"})

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestWithSession_ClosesPageAfterRun(t *testing.T) {
	l := &browsertest.Launcher{NewPage: func() *browsertest.Page { return loginPage(true) }}

	var called bool
	err := WithSession(context.Background(), l, browser.Options{Headless: true}, testConfig(),
		Credentials{Username: "u", Password: "p"}, testLogger(), func(p *Portal) error {
			called = true
			assert.Equal(t, 1, l.Open())
			return nil
		})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 0, l.Open())
	require.Len(t, l.Opts, 1)
	assert.True(t, l.Opts[0].Headless)
}

func TestWithSession_LoginFailureSkipsWork(t *testing.T) {
	l := &browsertest.Launcher{NewPage: func() *browsertest.Page { return loginPage(false) }}

	err := WithSession(context.Background(), l, browser.Options{}, testConfig(),
		Credentials{}, testLogger(), func(p *Portal) error {
			t.Fatal("work must not run without a session")
			return nil
		})

	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, 0, l.Open())
}

func TestWithSession_LaunchFailure(t *testing.T) {
	errNoChrome := errors.New("chrome not found")
	l := &browsertest.Launcher{Err: errNoChrome}

	err := WithSession(context.Background(), l, browser.Options{}, testConfig(), Credentials{}, testLogger(),
		func(p *Portal) error { return nil })

	assert.ErrorIs(t, err, errNoChrome)
}
