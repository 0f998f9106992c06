package render

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromiumRasterizer renders PDF pages through headless Chrome. The PDF
// engine itself stays external: Chrome decodes the document, we only
// drive navigation and capture the bitmap.
type ChromiumRasterizer struct{}

func NewChromiumRasterizer() *ChromiumRasterizer { return &ChromiumRasterizer{} }

func (r *ChromiumRasterizer) RenderPage(ctx context.Context, doc Document, pageNumber int, scale float64) (*Bitmap, error) {
	if doc.URL == "" {
		return nil, fmt.Errorf("render: document has no url")
	}
	if err := validatePage(doc, pageNumber); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if p := os.Getenv("CHROME_PATH"); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	cctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	width := int64(math.Ceil(doc.PageWidth * scale))
	height := int64(math.Ceil(doc.PageHeight * scale))

	// Chrome's built-in viewer handles the page fragment.
	pageURL := fmt.Sprintf("%s#page=%d", doc.URL, pageNumber)

	var buf []byte
	err := chromedp.Run(cctx,
		emulation.SetDeviceMetricsOverride(width, height, scale, false),
		chromedp.Navigate(pageURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("render: chromium capture page %d: %w", pageNumber, err)
	}

	return &Bitmap{
		Width:  int(width),
		Height: int(height),
		Pixels: buf,
	}, nil
}
