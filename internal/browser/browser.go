// Package browser defines the browser capability the interpreter drives.
//
// The interpreter and the capture engine only see these interfaces; the
// chromedp implementation lives in package chrome and tests use the
// recording fake in package testutil.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrElementNotFound is returned by FindVisible when no matching element
// becomes visible before the timeout.
var ErrElementNotFound = errors.New("element not found")

// SelectorKind is a strategy for locating an element.
type SelectorKind string

const (
	ByID              SelectorKind = "id"
	ByName            SelectorKind = "name"
	ByClassName       SelectorKind = "class_name"
	ByXPath           SelectorKind = "xpath"
	ByCSSSelector     SelectorKind = "css_selector"
	ByLinkText        SelectorKind = "link_text"
	ByPartialLinkText SelectorKind = "partial_link_text"
	ByTagName         SelectorKind = "tag_name"
)

// SelectorKinds lists every supported kind.
var SelectorKinds = []SelectorKind{
	ByID, ByName, ByClassName, ByXPath, ByCSSSelector, ByLinkText, ByPartialLinkText, ByTagName,
}

// ParseSelectorKind resolves a selector type cell, case-insensitively.
func ParseSelectorKind(s string) (SelectorKind, error) {
	k := SelectorKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SelectorKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid selector type: %q", s)
}

// NotFoundError wraps ErrElementNotFound with the selector that failed.
type NotFoundError struct {
	Kind  SelectorKind
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element not found: type=%q, value=%q (timeout)", e.Kind, e.Value)
}

func (e *NotFoundError) Unwrap() error {
	return ErrElementNotFound
}

// Size is a width and height in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// Element is a located page element.
type Element interface {
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Activate(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}

// Browser is one exclusively-owned browser session.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// FindVisible waits up to timeout for a visible element.
	FindVisible(ctx context.Context, kind SelectorKind, value string, timeout time.Duration) (Element, error)

	// CaptureViewport writes the visible viewport to path as PNG.
	CaptureViewport(ctx context.Context, path string) error

	ContentSize(ctx context.Context) (Size, error)
	ViewportSize(ctx context.Context) (Size, error)
	ScrollTo(ctx context.Context, y int) error
	ScrollOffset(ctx context.Context) (int, error)
	WindowSize(ctx context.Context) (Size, error)
	ResizeWindow(ctx context.Context, size Size) error

	Close() error
}

// FullPageCapturer is implemented by browsers that capture the whole page
// natively.
type FullPageCapturer interface {
	CaptureFullPage(ctx context.Context, path string) error
}
