// Package capture saves screenshots through the browser capability.
//
// Viewport captures are a single call. Full-page captures use the browser's
// native support when it has one; otherwise the page is scrolled one
// viewport at a time, each viewport is captured as a tile, and the tiles are
// pasted onto a canvas the size of the whole document.
//
// Tiling mutates the window size and scroll offset of the shared session.
// Both are recorded first and restored before Capture returns, whether the
// composite succeeded, fell back to a viewport capture, or panicked.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/bmp"

	"github.com/koki-mus/csvscenario/internal/browser"
)

// Defaults for the tiling algorithm.
const (
	DefaultOverlap       = 10
	DefaultSettle        = time.Second
	DefaultRestoreSettle = 500 * time.Millisecond
)

// EventLog receives the capture engine's run log entries.
// *runlog.Logger satisfies it.
type EventLog interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Tile is one captured viewport and the scroll offset it was taken at.
type Tile struct {
	Image  image.Image
	Offset int
}

// Engine captures screenshots from one browser session.
type Engine struct {
	Browser browser.Browser
	Log     EventLog

	// Overlap is how many pixels consecutive tiles share.
	Overlap int
	// Settle is the pause after each scroll so the page can repaint.
	Settle time.Duration
	// RestoreSettle is the pause after restoring the scroll offset.
	RestoreSettle time.Duration
	// TempDir holds tile files while they are composited. Defaults to the
	// directory of the target file.
	TempDir string

	Diagnostics *slog.Logger
}

// New returns an Engine with the default overlap and settle delays.
func New(b browser.Browser, log EventLog) *Engine {
	return &Engine{
		Browser:       b,
		Log:           log,
		Overlap:       DefaultOverlap,
		Settle:        DefaultSettle,
		RestoreSettle: DefaultRestoreSettle,
	}
}

// Capture saves a screenshot to path.
func (e *Engine) Capture(ctx context.Context, path string, fullPage bool) error {
	if !fullPage {
		return e.Browser.CaptureViewport(ctx, path)
	}
	if native, ok := e.Browser.(browser.FullPageCapturer); ok {
		return native.CaptureFullPage(ctx, path)
	}
	return e.captureTiled(ctx, path)
}

// captureTiled runs the scroll-and-stitch algorithm, falling back to a
// viewport capture when it fails.
func (e *Engine) captureTiled(ctx context.Context, path string) (err error) {
	window, err := e.Browser.WindowSize(ctx)
	if err != nil {
		return fmt.Errorf("read window size: %w", err)
	}
	scroll, err := e.Browser.ScrollOffset(ctx)
	if err != nil {
		return fmt.Errorf("read scroll offset: %w", err)
	}
	defer func() {
		if rerr := e.restore(ctx, window, scroll); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if serr := e.stitch(ctx, path, scroll); serr != nil {
		e.Log.Errorf("error while taking full page screenshot (scroll and stitch): %v", serr)
		e.Log.Infof("saving viewport-only screenshot instead")
		return e.Browser.CaptureViewport(ctx, path)
	}

	e.Log.Infof("stitched full page screenshot saved: %s", path)
	return nil
}

// restore puts the window size and scroll offset back. It uses a fresh
// context when ctx is already done so a cancelled run still leaves the
// session as it found it.
func (e *Engine) restore(ctx context.Context, window browser.Size, scroll int) error {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	rerr := e.Browser.ResizeWindow(ctx, window)
	if err := e.Browser.ScrollTo(ctx, scroll); err != nil {
		rerr = errors.Join(rerr, err)
	}
	_ = sleep(ctx, e.RestoreSettle)
	if rerr != nil {
		return fmt.Errorf("restore window state: %w", rerr)
	}
	return nil
}

// stitch captures the tiles and writes the composite. A recovered panic is
// reported as an error so the caller can fall back.
func (e *Engine) stitch(ctx context.Context, path string, startScroll int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during capture: %v", r)
		}
	}()

	content, err := e.Browser.ContentSize(ctx)
	if err != nil {
		return fmt.Errorf("read content size: %w", err)
	}
	viewport, err := e.Browser.ViewportSize(ctx)
	if err != nil {
		return fmt.Errorf("read viewport size: %w", err)
	}
	step := viewport.Height - e.Overlap
	if step <= 0 {
		return fmt.Errorf("viewport height %d does not exceed overlap %d", viewport.Height, e.Overlap)
	}
	if content.Width <= 0 || content.Height <= 0 {
		return fmt.Errorf("empty document (%dx%d)", content.Width, content.Height)
	}

	tempDir := e.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(path)
	}

	var files []string
	defer func() {
		for _, f := range files {
			if rmErr := os.Remove(f); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				e.diag().Warn("failed to remove tile", "path", f, "error", rmErr)
			}
		}
	}()

	if startScroll != 0 {
		if err := e.Browser.ScrollTo(ctx, 0); err != nil {
			return fmt.Errorf("scroll to top: %w", err)
		}
		if err := sleep(ctx, e.Settle); err != nil {
			return err
		}
	}

	var tiles []Tile
	for offset := 0; offset < content.Height; {
		tilePath := filepath.Join(tempDir, "temp_screenshot_"+strconv.Itoa(offset)+".png")
		files = append(files, tilePath)
		if err := e.Browser.CaptureViewport(ctx, tilePath); err != nil {
			return fmt.Errorf("capture tile at %d: %w", offset, err)
		}
		img, err := decodeFile(tilePath)
		if err != nil {
			return fmt.Errorf("read tile at %d: %w", offset, err)
		}
		tiles = append(tiles, Tile{Image: img, Offset: offset})

		offset += step
		if offset < content.Height {
			if err := e.Browser.ScrollTo(ctx, offset); err != nil {
				return fmt.Errorf("scroll to %d: %w", offset, err)
			}
			if err := sleep(ctx, e.Settle); err != nil {
				return err
			}
		}
	}

	canvas := Composite(content, tiles)
	if err := encodeFile(path, canvas); err != nil {
		return fmt.Errorf("save composite: %w", err)
	}
	return nil
}

// Composite pastes tiles onto a size canvas at their offsets, in order.
// Later tiles overwrite the overlap of earlier ones.
func Composite(size browser.Size, tiles []Tile) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for _, t := range tiles {
		b := t.Image.Bounds()
		dst := image.Rect(0, t.Offset, b.Dx(), t.Offset+b.Dy())
		draw.Draw(canvas, dst, t.Image, b.Min, draw.Src)
	}
	return canvas
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// encodeFile writes img in the format named by the path's extension.
// Unknown extensions are written as PNG.
func encodeFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, strings.ToLower(filepath.Ext(path)), img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encode(w io.Writer, ext string, img image.Image) error {
	switch ext {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return png.Encode(w, img)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) diag() *slog.Logger {
	if e.Diagnostics == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Diagnostics
}
