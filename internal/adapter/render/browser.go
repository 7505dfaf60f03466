package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// DefaultTimeout bounds a single render.
const DefaultTimeout = 30 * time.Second

// Compile-time check: Browser implements domain.Renderer.
var _ domain.Renderer = (*Browser)(nil)

// Options configures the headless browser.
type Options struct {
	// ExecPath overrides chromedp's browser discovery.
	ExecPath string
	Timeout  time.Duration
}

// Browser is one long-lived headless Chrome process. Each Render opens and
// closes its own tab. Close releases the process.
type Browser struct {
	timeout       time.Duration
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowser starts a headless browser.
func NewBrowser(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// The browser process outlives ctx; Close stops it.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// A browser that does not come up within the timeout is torn down.
	timer := time.AfterFunc(opts.Timeout, cancelBrowser)
	err := chromedp.Run(browserCtx)
	timer.Stop()
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("starting headless browser: %w", err)
	}

	return &Browser{
		timeout:       opts.Timeout,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// Render loads html into a fresh tab and prints it as PDF or captures it as PNG.
func (b *Browser) Render(ctx context.Context, html string, kind domain.AttachmentKind) ([]byte, error) {
	var capture func(ctx context.Context) ([]byte, error)
	switch kind {
	case domain.AttachmentPDF:
		capture = printPDF
	case domain.AttachmentPNG:
		capture = screenshotPNG
	default:
		return nil, fmt.Errorf("unsupported render kind %q", kind)
	}

	if b == nil || b.browserCtx == nil {
		return nil, errors.New("headless browser is not running")
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.timeout)
	defer cancel()

	// Abort the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var out []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, err := capture(ctx)
			out = data
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", kind, err)
	}
	return out, nil
}

// Close terminates the browser process.
func (b *Browser) Close() error {
	if b == nil || b.cancelBrowser == nil {
		return nil
	}
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

func printPDF(ctx context.Context) ([]byte, error) {
	data, _, err := page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(8.27).
		WithPaperHeight(11.69).
		Do(ctx)
	return data, err
}

func screenshotPNG(ctx context.Context) ([]byte, error) {
	return page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormatPng).
		WithCaptureBeyondViewport(true).
		Do(ctx)
}
