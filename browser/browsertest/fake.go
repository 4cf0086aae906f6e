// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sebastianrcnt/learnus-bot/browser"
)

// Page is a scripted browser.Page. Selectors in Present exist and are
// visible; everything else is not found.
type Page struct {
	mu sync.Mutex

	Present map[string]bool
	// TextsBySelector and Attrs answer Texts and Attribute.
	TextsBySelector map[string][]string
	Attrs           map[string]map[string]string
	// AttrFunc, when set, overrides Attrs. found=false means no element
	// matched; has=false means the attribute is missing.
	AttrFunc func(selector, name string) (value string, has, found bool)
	Records  map[string][]browser.Record
	// Scripts maps an evaluated script to the value stored into res.
	Scripts map[string]any
	// Dialogs are opened in order; one is open after each Navigate while any remain.
	Dialogs []string
	// LateDialog opens the first time Attribute fails.
	LateDialog string
	// OnNavigate lets a test change the page per URL.
	OnNavigate func(p *Page, url string)

	Navigated []string
	Clicked   []string
	Keys      map[string]string
	Removed   []string
	Accepted  []string
	Closed    bool

	open string
}

func New() *Page {
	return &Page{
		Present:         map[string]bool{},
		TextsBySelector: map[string][]string{},
		Attrs:           map[string]map[string]string{},
		Records:         map[string][]browser.Record{},
		Scripts:         map[string]any{},
		Keys:            map[string]string{},
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Navigated = append(p.Navigated, url)
	if p.open == "" && len(p.Dialogs) > 0 {
		p.open, p.Dialogs = p.Dialogs[0], p.Dialogs[1:]
	}
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) lookup(selector string) error {
	if !p.Present[selector] {
		return browser.NotFound(selector)
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(selector)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.lookup(selector); err != nil {
		return err
	}
	p.Clicked = append(p.Clicked, selector)
	return nil
}

func (p *Page) ClickNth(ctx context.Context, selector string, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n >= len(p.TextsBySelector[selector]) {
		return browser.NotFound(fmt.Sprintf("%s[%d]", selector, n))
	}
	p.Clicked = append(p.Clicked, fmt.Sprintf("%s[%d]", selector, n))
	return nil
}

func (p *Page) SendKeys(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.lookup(selector); err != nil {
		return err
	}
	p.Keys[selector] += text
	return nil
}

func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.TextsBySelector[selector]...), nil
}

func (p *Page) Attribute(ctx context.Context, selector, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		value      string
		has, found bool
	)
	if p.AttrFunc != nil {
		value, has, found = p.AttrFunc(selector, name)
	} else if attrs, ok := p.Attrs[selector]; ok {
		found = true
		value, has = attrs[name]
	}

	var err error
	switch {
	case !found:
		err = browser.NotFound(selector)
	case !has:
		err = &browser.ElementError{Selector: selector + "@" + name, Err: browser.ErrAttributeMissing}
	}
	if err != nil && p.LateDialog != "" {
		p.open, p.LateDialog = p.LateDialog, ""
	}
	return value, err
}

func (p *Page) Collect(ctx context.Context, itemSelector string, fields []browser.Field) ([]browser.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Records[itemSelector], nil
}

func (p *Page) Remove(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Removed = append(p.Removed, selector)
	return nil
}

func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.Scripts[script]
	if !ok {
		return fmt.Errorf("unexpected script: %s", script)
	}
	switch r := res.(type) {
	case nil:
	case *bool:
		*r = v.(bool)
	case *string:
		*r = v.(string)
	default:
		return fmt.Errorf("unsupported result type %T", res)
	}
	return nil
}

func (p *Page) AcceptDialog(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open == "" {
		return "", browser.ErrNoDialog
	}
	msg := p.open
	p.open = ""
	p.Accepted = append(p.Accepted, msg)
	return msg, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Launcher hands out pages built by NewPage and tracks how many are open.
type Launcher struct {
	NewPage func() *Page
	Err     error

	mu    sync.Mutex
	open  int
	Peak  int
	Pages []*Page
	Opts  []browser.Options
}

func (l *Launcher) Launch(ctx context.Context, opts browser.Options) (browser.Page, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	p := l.NewPage()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open++
	l.Peak = max(l.Peak, l.open)
	l.Pages = append(l.Pages, p)
	l.Opts = append(l.Opts, opts)
	return &trackedPage{Page: p, l: l}, nil
}

// Open returns the number of pages not yet closed.
func (l *Launcher) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

type trackedPage struct {
	*Page
	l    *Launcher
	once sync.Once
}

func (t *trackedPage) Close() error {
	t.once.Do(func() {
		t.l.mu.Lock()
		t.l.open--
		t.l.mu.Unlock()
	})
	return t.Page.Close()
}
