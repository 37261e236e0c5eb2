// Package chrome implements browser.Browser on a local Chrome process driven
// over the DevTools protocol with chromedp.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/koki-mus/csvscenario/internal/browser"
)

// Config controls how Chrome is launched.
type Config struct {
	Headless bool
	// ExecPath overrides the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string
	// Window is the initial window size. Zero starts maximized.
	Window browser.Size

	Diagnostics *slog.Logger
}

// Browser is one Chrome tab in a dedicated Chrome process.
type Browser struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	diag        *slog.Logger
}

var _ browser.Browser = (*Browser)(nil)

// Launch starts Chrome and opens a blank tab.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diag := cfg.Diagnostics
	if diag == nil {
		diag = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("enable-automation", false),
	)
	if path := strings.TrimSpace(cfg.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Window.Width, cfg.Window.Height))
	} else {
		opts = append(opts, chromedp.Flag("start-maximized", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		diag.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
	}))

	b := &Browser{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		diag:        diag,
	}
	// The first Run allocates the browser and ties its lifetime to the
	// context it is given, so it must be the tab context itself.
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	diag.Debug("chrome started", "headless", cfg.Headless, "exec_path", cfg.ExecPath)
	return b, nil
}

// run executes actions in the tab. Cancelling ctx aborts the actions
// without closing the tab.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	return b.runTimeout(ctx, 0, actions...)
}

// runTimeout is run bounded by timeout; zero means no bound.
func (b *Browser) runTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(b.tabCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(b.tabCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

// FindVisible waits until the first element matching the selector is
// visible. Running out of time yields a *browser.NotFoundError.
func (b *Browser) FindVisible(ctx context.Context, kind browser.SelectorKind, value string, timeout time.Duration) (browser.Element, error) {
	q, err := queryFor(kind, value)
	if err != nil {
		return nil, err
	}

	var nodes []*cdp.Node
	err = b.runTimeout(ctx, timeout,
		chromedp.WaitVisible(q.sel, q.by),
		chromedp.Nodes(q.sel, &nodes, q.by),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &browser.NotFoundError{Kind: kind, Value: value}
		}
		return nil, fmt.Errorf("find %s=%q: %w", kind, value, err)
	}
	if len(nodes) == 0 {
		return nil, &browser.NotFoundError{Kind: kind, Value: value}
	}
	return &element{b: b, ids: []cdp.NodeID{nodes[0].NodeID}}, nil
}

func (b *Browser) CaptureViewport(ctx context.Context, path string) error {
	var buf []byte
	if err := b.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return os.WriteFile(path, buf, 0o644)
}

func (b *Browser) ContentSize(ctx context.Context) (browser.Size, error) {
	return b.evalSize(ctx, `[
		Math.max(document.body.scrollWidth, document.documentElement.scrollWidth),
		Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)
	]`)
}

func (b *Browser) ViewportSize(ctx context.Context) (browser.Size, error) {
	return b.evalSize(ctx, `[document.body.clientWidth, window.innerHeight]`)
}

func (b *Browser) evalSize(ctx context.Context, expr string) (browser.Size, error) {
	var dims []float64
	if err := b.run(ctx, chromedp.Evaluate(expr, &dims)); err != nil {
		return browser.Size{}, err
	}
	if len(dims) != 2 {
		return browser.Size{}, fmt.Errorf("unexpected dimensions %v", dims)
	}
	return browser.Size{Width: int(dims[0]), Height: int(dims[1])}, nil
}

func (b *Browser) ScrollTo(ctx context.Context, y int) error {
	return b.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d);", y), nil))
}

func (b *Browser) ScrollOffset(ctx context.Context) (int, error) {
	var y float64
	if err := b.run(ctx, chromedp.Evaluate(`window.pageYOffset`, &y)); err != nil {
		return 0, err
	}
	return int(y), nil
}

func (b *Browser) WindowSize(ctx context.Context) (browser.Size, error) {
	var size browser.Size
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, bounds, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		size = browser.Size{Width: int(bounds.Width), Height: int(bounds.Height)}
		return nil
	}))
	if err != nil {
		return browser.Size{}, fmt.Errorf("get window size: %w", err)
	}
	return size, nil
}

func (b *Browser) ResizeWindow(ctx context.Context, size browser.Size) error {
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return cdpbrowser.SetWindowBounds(id, &cdpbrowser.Bounds{
			Width:       int64(size.Width),
			Height:      int64(size.Height),
			WindowState: cdpbrowser.WindowStateNormal,
		}).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set window size: %w", err)
	}
	return nil
}

// Close shuts the tab and the Chrome process down.
func (b *Browser) Close() error {
	err := chromedp.Cancel(b.tabCtx)
	b.tabCancel()
	b.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

// FullPage returns b with native full-page capture enabled.
func (b *Browser) FullPage() *FullPageBrowser {
	return &FullPageBrowser{Browser: b}
}

// FullPageBrowser captures full pages with Chrome's own screenshot
// support instead of tiling.
type FullPageBrowser struct {
	*Browser
}

var _ browser.FullPageCapturer = (*FullPageBrowser)(nil)

func (b *FullPageBrowser) CaptureFullPage(ctx context.Context, path string) error {
	var buf []byte
	if err := b.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capture full page: %w", err)
	}
	return os.WriteFile(path, buf, 0o644)
}

// element is a node resolved by FindVisible.
type element struct {
	b   *Browser
	ids []cdp.NodeID
}

func (e *element) Clear(ctx context.Context) error {
	return e.b.run(ctx, chromedp.Clear(e.ids, chromedp.ByNodeID))
}

func (e *element) Type(ctx context.Context, text string) error {
	return e.b.run(ctx, chromedp.SendKeys(e.ids, text, chromedp.ByNodeID))
}

func (e *element) Activate(ctx context.Context) error {
	return e.b.run(ctx, chromedp.Click(e.ids, chromedp.ByNodeID))
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.b.run(ctx, chromedp.Text(e.ids, &text, chromedp.ByNodeID))
	return text, err
}

// Attribute returns the named attribute. "value" reads the live form value
// rather than the markup attribute.
func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var v string
	if name == "value" {
		err := e.b.run(ctx, chromedp.Value(e.ids, &v, chromedp.ByNodeID))
		return v, err
	}
	var ok bool
	err := e.b.run(ctx, chromedp.AttributeValue(e.ids, name, &v, &ok, chromedp.ByNodeID))
	return v, err
}
