// Package browser provides the browser automation capability used by the
// portal scrapers: one isolated Chrome session per Page, driven through a
// small set of selector-based operations.
package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing within the step timeout.
	ErrElementNotFound = errors.New("element not found")
	// ErrAttributeMissing is returned when the element exists but lacks the attribute.
	ErrAttributeMissing = errors.New("attribute missing")
	// ErrNoDialog is returned by AcceptDialog when no native dialog is open.
	ErrNoDialog = errors.New("no dialog present")
)

// ElementError ties a lookup failure to the selector that caused it.
type ElementError struct {
	Selector string
	Err      error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: %v", e.Selector, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// NotFound builds an ElementError wrapping ErrElementNotFound.
func NotFound(selector string) error {
	return &ElementError{Selector: selector, Err: ErrElementNotFound}
}

// Field describes one value to read from inside each item matched by Collect.
// An empty Attr reads the element's text content.
type Field struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
	Attr     string `json:"attr,omitempty"`
}

// Record holds the values read for one item. Fields whose element (or
// attribute) was absent are not present in the map.
type Record map[string]string

// Page is one exclusively-owned browser session.
type Page interface {
	// Navigate opens url and waits until the document is ready or a native
	// dialog blocks it.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until selector is visible.
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the n-th (zero based) element matching selector.
	ClickNth(ctx context.Context, selector string, n int) error
	SendKeys(ctx context.Context, selector, text string) error
	// Texts returns the text of every element matching selector, in document order.
	Texts(ctx context.Context, selector string) ([]string, error)
	Attribute(ctx context.Context, selector, name string) (string, error)
	// Collect returns one Record per element matching itemSelector.
	Collect(ctx context.Context, itemSelector string, fields []Field) ([]Record, error)
	// Remove deletes every element matching selector from the DOM.
	Remove(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string, res any) error
	// AcceptDialog accepts the open native dialog and returns its message.
	AcceptDialog(ctx context.Context) (string, error)
	Close() error
}

// Options configures a new session.
type Options struct {
	Headless bool
}

// Launcher creates new isolated sessions.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Page, error)
}
