package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultRenderTimeout = 30 * time.Second

// ChromeOption customises a ChromeEngine.
type ChromeOption func(*ChromeEngine)

// WithExecPath points the engine at a specific Chrome or Chromium binary.
func WithExecPath(path string) ChromeOption {
	return func(e *ChromeEngine) {
		e.execPath = path
	}
}

// WithRenderTimeout bounds a single render including browser start-up.
func WithRenderTimeout(timeout time.Duration) ChromeOption {
	return func(e *ChromeEngine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithPaperSize sets the printed page size.
func WithPaperSize(size PaperSize) ChromeOption {
	return func(e *ChromeEngine) {
		if size.Width > 0 && size.Height > 0 {
			e.paper = size
		}
	}
}

// WithLogger routes browser diagnostics to logger.
func WithLogger(logger *zap.Logger) ChromeOption {
	return func(e *ChromeEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// ChromeEngine prints markup to PDF with a headless browser. Every render starts its own
// browser process and tears it down before returning.
type ChromeEngine struct {
	execPath string
	timeout  time.Duration
	paper    PaperSize
	logger   *zap.Logger
}

// NewChromeEngine constructs a ChromeEngine.
func NewChromeEngine(opts ...ChromeOption) *ChromeEngine {
	engine := &ChromeEngine{
		timeout: defaultRenderTimeout,
		paper:   PaperA4,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine
}

// Render implements Engine.
func (e *ChromeEngine) Render(ctx context.Context, markup []byte) ([]byte, error) {
	if len(markup) == 0 {
		return nil, errors.New("pdf: markup is empty")
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.DisableGPU, chromedp.NoSandbox)
	if e.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.execPath))
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, e.timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(timeoutCtx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			e.logger.Debug("chrome error", zap.String("detail", fmt.Sprintf(format, args...)))
		}),
	)
	defer cancelBrowser()

	var out []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(markup)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(false).
				WithPaperWidth(e.paper.Width).
				WithPaperHeight(e.paper.Height).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			if err != nil {
				return err
			}
			out = data
			return nil
		}),
	)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: render timed out after %s", ErrUnavailable, e.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: engine returned an empty document", ErrUnavailable)
	}
	return out, nil
}
