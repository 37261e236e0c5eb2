package testutil

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/koki-mus/csvscenario/internal/browser"
)

// Call is one recorded browser interaction.
type Call struct {
	Method string   `json:"method" yaml:"method"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty"`
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Method, c.Args)
}

// FakeElement is a page element of a FakeBrowser.
type FakeElement struct {
	InnerText string
	Attrs     map[string]string

	// typed is the current content of an input; exposed as the "value"
	// attribute once the element has been cleared or typed into.
	typed   *string
	browser *FakeBrowser
	key     string
}

// FakeBrowser is an in-memory browser.Browser that records every call.
//
// Pages have no real layout: content, viewport and window sizes are plain
// fields. Viewport captures write a solid PNG whose colour encodes the
// capture index, so composites can be checked pixel by pixel.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeBrowser struct {
	mu       sync.Mutex
	calls    []Call
	elements map[string]*FakeElement

	Content  browser.Size
	Viewport browser.Size
	Window   browser.Size
	Scroll   int

	// Fail maps a method name to the error it returns.
	Fail map[string]error

	captures int
	closed   bool
}

// NewFakeBrowser returns a FakeBrowser with a 1280x2000 page in a
// 1280x800 viewport.
func NewFakeBrowser() *FakeBrowser {
	return &FakeBrowser{
		elements: make(map[string]*FakeElement),
		Content:  browser.Size{Width: 1280, Height: 2000},
		Viewport: browser.Size{Width: 1280, Height: 800},
		Window:   browser.Size{Width: 1280, Height: 900},
		Fail:     make(map[string]error),
	}
}

func elementKey(kind browser.SelectorKind, value string) string {
	return string(kind) + "=" + value
}

// AddElement places a visible element on the page.
func (f *FakeBrowser) AddElement(kind browser.SelectorKind, value string, el *FakeElement) *FakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el == nil {
		el = &FakeElement{}
	}
	el.browser = f
	el.key = elementKey(kind, value)
	f.elements[el.key] = el
	return el
}

// Calls returns a copy of the recorded calls.
func (f *FakeBrowser) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Methods returns the method names of the recorded calls.
func (f *FakeBrowser) Methods() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Closed reports whether Close was called.
func (f *FakeBrowser) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// record appends a call and returns the injected failure for method, if any.
func (f *FakeBrowser) record(method string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
	return f.Fail[method]
}

func (f *FakeBrowser) Navigate(ctx context.Context, url string) error {
	return f.record("Navigate", url)
}

func (f *FakeBrowser) FindVisible(ctx context.Context, kind browser.SelectorKind, value string, timeout time.Duration) (browser.Element, error) {
	if err := f.record("FindVisible", string(kind), value); err != nil {
		return nil, err
	}
	f.mu.Lock()
	el, ok := f.elements[elementKey(kind, value)]
	f.mu.Unlock()
	if !ok {
		return nil, &browser.NotFoundError{Kind: kind, Value: value}
	}
	return el, nil
}

func (f *FakeBrowser) CaptureViewport(ctx context.Context, path string) error {
	if err := f.record("CaptureViewport", path); err != nil {
		return err
	}
	f.mu.Lock()
	f.captures++
	idx := f.captures
	size := f.Viewport
	f.mu.Unlock()
	return WriteSolidPNG(path, size.Width, size.Height, TileColor(idx))
}

func (f *FakeBrowser) ContentSize(ctx context.Context) (browser.Size, error) {
	err := f.record("ContentSize")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Content, err
}

func (f *FakeBrowser) ViewportSize(ctx context.Context) (browser.Size, error) {
	err := f.record("ViewportSize")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Viewport, err
}

func (f *FakeBrowser) ScrollTo(ctx context.Context, y int) error {
	if err := f.record("ScrollTo", strconv.Itoa(y)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scroll = y
	return nil
}

func (f *FakeBrowser) ScrollOffset(ctx context.Context) (int, error) {
	err := f.record("ScrollOffset")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Scroll, err
}

func (f *FakeBrowser) WindowSize(ctx context.Context) (browser.Size, error) {
	err := f.record("WindowSize")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Window, err
}

func (f *FakeBrowser) ResizeWindow(ctx context.Context, size browser.Size) error {
	if err := f.record("ResizeWindow", strconv.Itoa(size.Width), strconv.Itoa(size.Height)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Window = size
	return nil
}

func (f *FakeBrowser) Close() error {
	err := f.record("Close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return err
}

// FullPage wraps the fake so it also implements browser.FullPageCapturer.
func (f *FakeBrowser) FullPage() *FullPageFakeBrowser {
	return &FullPageFakeBrowser{FakeBrowser: f}
}

// FullPageFakeBrowser is a FakeBrowser with native full-page capture.
type FullPageFakeBrowser struct {
	*FakeBrowser
}

func (f *FullPageFakeBrowser) CaptureFullPage(ctx context.Context, path string) error {
	if err := f.record("CaptureFullPage", path); err != nil {
		return err
	}
	f.mu.Lock()
	size := f.Content
	f.mu.Unlock()
	return WriteSolidPNG(path, size.Width, size.Height, TileColor(0))
}

func (e *FakeElement) Clear(ctx context.Context) error {
	if err := e.browser.record("Clear", e.key); err != nil {
		return err
	}
	e.browser.mu.Lock()
	defer e.browser.mu.Unlock()
	empty := ""
	e.typed = &empty
	return nil
}

func (e *FakeElement) Type(ctx context.Context, text string) error {
	if err := e.browser.record("Type", e.key, text); err != nil {
		return err
	}
	e.browser.mu.Lock()
	defer e.browser.mu.Unlock()
	cur := ""
	if e.typed != nil {
		cur = *e.typed
	}
	cur += text
	e.typed = &cur
	return nil
}

func (e *FakeElement) Activate(ctx context.Context) error {
	return e.browser.record("Activate", e.key)
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	err := e.browser.record("Text", e.key)
	return e.InnerText, err
}

func (e *FakeElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := e.browser.record("Attribute", e.key, name); err != nil {
		return "", err
	}
	e.browser.mu.Lock()
	defer e.browser.mu.Unlock()
	if name == "value" && e.typed != nil {
		return *e.typed, nil
	}
	return e.Attrs[name], nil
}

// TileColor is the solid colour of the idx-th viewport capture.
func TileColor(idx int) color.RGBA {
	return color.RGBA{R: uint8(idx * 40), G: uint8(255 - idx*40), B: uint8(idx), A: 255}
}

// WriteSolidPNG writes a w x h PNG filled with c.
func WriteSolidPNG(path string, w, h int, c color.Color) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
