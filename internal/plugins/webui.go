package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"assetrecon/internal/assets"
	"assetrecon/internal/reconcile"
)

const webUISourceName = "webui"

// WebUI loads the management web interface of a target in headless Chrome and
// reports its page title. Controllers such as iDRAC, iLO and PDUs name the
// device there.
type WebUI struct {
	timeout time.Duration
	schemes []string
}

// NewWebUI creates a new web UI adapter
func NewWebUI(timeout time.Duration) *WebUI {
	return &WebUI{timeout: timeout, schemes: []string{"https", "http"}}
}

// Name implements Plugin
func (w *WebUI) Name() string { return webUISourceName }

// Collect implements Plugin
func (w *WebUI) Collect(ctx context.Context, target Target) (reconcile.SourceReport, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Headless,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	for _, scheme := range w.schemes {
		url := fmt.Sprintf("%s://%s/", scheme, target.Address)
		var title string
		err := chromedp.Run(browserCtx,
			chromedp.Navigate(url),
			chromedp.Title(&title),
		)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if report, ok := webUIReport(target, url, title); ok {
			return report, nil
		}
	}
	return reconcile.SourceReport{}, ErrNoData
}

// webUIReport builds the report for a loaded page
func webUIReport(target Target, url, title string) (reconcile.SourceReport, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return reconcile.SourceReport{}, false
	}
	report := newReport(webUISourceName)
	report.Fields["web_title"] = title
	report.Fields["web_url"] = url
	report.Fields[assets.FieldManagementAddress] = target.Address
	if kind := assets.ClassifyDeviceType(title, ""); kind != assets.TypeUnknown {
		report.Fields[assets.FieldType] = kind
	}
	return report, true
}
