package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Chrome renders documents in a shared headless Chrome. Each Render opens
// its own tab.
type Chrome struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChrome starts a headless browser allocator. Call Close on shutdown.
func NewChrome(timeout time.Duration, logger *zap.Logger) *Chrome {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Chrome{allocCtx: allocCtx, cancel: cancel, timeout: timeout, logger: logger}
}

// Close shuts the browser down.
func (c *Chrome) Close() { c.cancel() }

// Render prints the record to PDF, or screenshots it to PNG for coupons.
func (c *Chrome) Render(ctx context.Context, kind Kind, rec Record) (*Document, error) {
	f, ok := formats[kind]
	if !ok {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	html, err := HTML(kind, rec)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()
	// Stop rendering when the caller gives up.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var out []byte
	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
	}
	if f.screenshot {
		actions = append(actions, chromedp.FullScreenshot(&out, 100))
	} else {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			out = pdf
			return nil
		}))
	}

	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}
	c.logger.Debug("document rendered", zap.String("kind", string(kind)), zap.Int("bytes", len(out)), zap.Duration("took", time.Since(start)))
	return &Document{Filename: f.filename, ContentType: f.contentType, Content: out}, nil
}
