package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultStepTimeout bounds every element wait and script call.
const DefaultStepTimeout = 30 * time.Second

// ChromeLauncher provisions one isolated headful or headless Chrome per Launch.
type ChromeLauncher struct {
	Logger      *log.Logger
	StepTimeout time.Duration
	// ExecPath overrides the Chrome binary chromedp looks up on PATH.
	ExecPath string
}

// Launch starts a new browser with audio muted and the webdriver flag hidden.
func (l *ChromeLauncher) Launch(ctx context.Context, o Options) (Page, error) {
	logger := l.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[BROWSER] ", log.LstdFlags)
	}
	timeout := l.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	if o.Headless {
		logger.Println("Launching browser in HEADLESS mode")
	} else {
		logger.Println("Launching browser in VISIBLE mode")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Printf))

	c := &Chrome{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logger,
		timeout:     timeout,
		dialogCh:    make(chan struct{}, 1),
	}

	if err := chromedp.Run(tabCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	chromedp.ListenTarget(tabCtx, c.handleEvent)

	if err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
			return err
		}),
		chromedp.Evaluate(hideWebdriverScript, nil),
	); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to patch webdriver flag: %w", err)
	}

	return c, nil
}

// Chrome is a Page backed by a chromedp tab.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *log.Logger
	timeout     time.Duration

	mu         sync.Mutex
	dialogMsg  string
	dialogOpen bool
	dialogCh   chan struct{}
}

func (c *Chrome) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		c.logger.Printf("Dialog opened: %s", e.Message)
		c.mu.Lock()
		c.dialogMsg = e.Message
		c.dialogOpen = true
		c.mu.Unlock()
		select {
		case c.dialogCh <- struct{}{}:
		default:
		}
	case *page.EventJavascriptDialogClosed:
		c.dialogHandled()
	}
}

// dialogHandled marks the dialog closed and drops its pending signal, so the
// next Navigate is not cut short by a dialog that is already gone.
func (c *Chrome) dialogHandled() {
	c.mu.Lock()
	c.dialogOpen = false
	c.mu.Unlock()
	c.dropDialogSignal()
}

// clearStaleDialogSignal drops a signal left by a dialog that is no longer open.
func (c *Chrome) clearStaleDialogSignal() {
	if !c.hasDialog() {
		c.dropDialogSignal()
	}
}

func (c *Chrome) dropDialogSignal() {
	select {
	case <-c.dialogCh:
	default:
	}
}

func (c *Chrome) hasDialog() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialogOpen
}

// step derives a bounded context from the tab that also ends when ctx does.
func (c *Chrome) step(ctx context.Context) (context.Context, context.CancelFunc) {
	stepCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return stepCtx, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) lookupErr(ctx context.Context, selector string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NotFound(selector)
	}
	return &ElementError{Selector: selector, Err: err}
}

// Navigate returns early, without error, when a native dialog blocks the load.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.clearStaleDialogSignal()

	stepCtx, cancel := c.step(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.dialogCh:
			cancel()
		case <-stepCtx.Done():
		}
	}()

	err := chromedp.Run(stepCtx, chromedp.Navigate(url))
	if c.hasDialog() {
		return nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	stepCtx, cancel := c.step(ctx)
	defer cancel()
	if err := chromedp.Run(stepCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return c.lookupErr(ctx, selector, err)
	}
	return nil
}

func (c *Chrome) waitReady(ctx context.Context, selector string) error {
	stepCtx, cancel := c.step(ctx)
	defer cancel()
	if err := chromedp.Run(stepCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return c.lookupErr(ctx, selector, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	stepCtx, cancel := c.step(ctx)
	defer cancel()
	if err := chromedp.Run(stepCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return c.lookupErr(ctx, selector, err)
	}
	return nil
}

// ClickNth clicks through script so hidden menu entries can be selected.
func (c *Chrome) ClickNth(ctx context.Context, selector string, n int) error {
	if err := c.waitReady(ctx, selector); err != nil {
		return err
	}
	var clicked bool
	if err := c.Evaluate(ctx, clickNthScript(selector, n), &clicked); err != nil {
		return err
	}
	if !clicked {
		return NotFound(fmt.Sprintf("%s[%d]", selector, n))
	}
	return nil
}

func (c *Chrome) SendKeys(ctx context.Context, selector, text string) error {
	stepCtx, cancel := c.step(ctx)
	defer cancel()
	if err := chromedp.Run(stepCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return c.lookupErr(ctx, selector, err)
	}
	return nil
}

func (c *Chrome) Texts(ctx context.Context, selector string) ([]string, error) {
	var texts []string
	if err := c.Evaluate(ctx, textsScript(selector), &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

func (c *Chrome) Attribute(ctx context.Context, selector, name string) (string, error) {
	if err := c.waitReady(ctx, selector); err != nil {
		return "", err
	}
	var res struct {
		Found bool   `json:"found"`
		Has   bool   `json:"has"`
		Value string `json:"value"`
	}
	if err := c.Evaluate(ctx, attributeScript(selector, name), &res); err != nil {
		return "", err
	}
	if !res.Found {
		return "", NotFound(selector)
	}
	if !res.Has {
		return "", &ElementError{Selector: selector + "@" + name, Err: ErrAttributeMissing}
	}
	return res.Value, nil
}

func (c *Chrome) Collect(ctx context.Context, itemSelector string, fields []Field) ([]Record, error) {
	var records []Record
	if err := c.Evaluate(ctx, collectScript(itemSelector, fields), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Chrome) Remove(ctx context.Context, selector string) error {
	var n int
	return c.Evaluate(ctx, removeScript(selector), &n)
}

func (c *Chrome) Evaluate(ctx context.Context, script string, res any) error {
	stepCtx, cancel := c.step(ctx)
	defer cancel()
	if err := chromedp.Run(stepCtx, chromedp.Evaluate(script, res)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (c *Chrome) AcceptDialog(ctx context.Context) (string, error) {
	c.mu.Lock()
	msg, open := c.dialogMsg, c.dialogOpen
	c.mu.Unlock()
	if !open {
		return "", ErrNoDialog
	}

	stepCtx, cancel := c.step(ctx)
	defer cancel()
	if err := chromedp.Run(stepCtx, page.HandleJavaScriptDialog(true)); err != nil {
		return "", fmt.Errorf("failed to accept dialog: %w", err)
	}

	c.dialogHandled()
	return msg, nil
}

// Close shuts down the tab and its browser process.
func (c *Chrome) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}
