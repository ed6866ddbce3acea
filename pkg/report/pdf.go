package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/mscrnt/pwmbench/pkg/db"
)

// PDFOptions controls the page layout of a PDF report. Sizes are in inches.
type PDFOptions struct {
	Landscape   bool
	PaperWidth  float64
	PaperHeight float64
	Margin      float64

	// RunBanner repeats the run id, scenario and verdict at the top of every
	// page and the start time and page count at the bottom. The banner is
	// printed inside Margin.
	RunBanner bool
}

// DefaultPDFOptions returns US letter portrait with the run banner on
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PaperWidth:  8.5,
		PaperHeight: 11.0,
		Margin:      0.6,
		RunBanner:   true,
	}
}

// pdfTimeout bounds one headless browser render
const pdfTimeout = 30 * time.Second

// Chrome prints these on every page and fills the pageNumber and totalPages
// spans itself. Page styles do not reach them, so they carry their own.
var (
	bannerHeader = template.Must(template.New("header").Parse(
		`<div style="{{.Style}}"><span>pwmbench run #{{.RunID}} &middot; {{.Scenario}}</span>` +
			`<span style="color:{{.Color}};font-weight:bold">{{.Status}}</span></div>`))
	bannerFooter = template.Must(template.New("footer").Parse(
		`<div style="{{.Style}}"><span>started {{.Started}}{{if .Host}} on {{.Host}}{{end}}</span>` +
			`<span>page <span class="pageNumber"></span> of <span class="totalPages"></span></span></div>`))
)

type banner struct {
	RunID    int64
	Scenario string
	Status   string
	Color    string
	Started  string
	Host     string
	Style    template.CSS
}

func newBanner(data *ReportData, margin float64) banner {
	status := data.Run.GetStatus()
	color := "#555"
	switch status {
	case db.RunStatusPassed:
		color = "#1a7f37"
	case db.RunStatusFailed:
		color = "#cf222e"
	}
	return banner{
		RunID:    data.Run.ID,
		Scenario: data.Scenario,
		Status:   strings.ToUpper(string(status)),
		Color:    color,
		Started:  data.Run.StartTime.Format("2006-01-02 15:04:05"),
		Host:     data.SystemInfo.Hostname,
		Style: template.CSS(fmt.Sprintf(
			"font-size:8px;font-family:monospace;color:#555;width:100%%;margin:0 %.2fin;display:flex;justify-content:space-between",
			margin)),
	}
}

// renderBanner returns the page header and footer for a run
func renderBanner(data *ReportData, margin float64) (header, footer string, err error) {
	b := newBanner(data, margin)
	var buf bytes.Buffer
	if err := bannerHeader.Execute(&buf, b); err != nil {
		return "", "", fmt.Errorf("failed to render page header: %w", err)
	}
	header = buf.String()

	buf.Reset()
	if err := bannerFooter.Execute(&buf, b); err != nil {
		return "", "", fmt.Errorf("failed to render page footer: %w", err)
	}
	return header, buf.String(), nil
}

// GeneratePDF renders the report of a run to outputPath through a headless
// Chrome. A nil options uses DefaultPDFOptions.
func (g *Generator) GeneratePDF(ctx context.Context, runID int64, outputPath string, options *PDFOptions) error {
	if options == nil {
		defaults := DefaultPDFOptions()
		options = &defaults
	}

	data, err := g.loadReportData(runID)
	if err != nil {
		return err
	}
	html, err := renderHTML(data)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	params := page.PrintToPDF().
		WithLandscape(options.Landscape).
		WithPrintBackground(true).
		WithPaperWidth(options.PaperWidth).
		WithPaperHeight(options.PaperHeight).
		WithMarginTop(options.Margin).
		WithMarginBottom(options.Margin).
		WithMarginLeft(options.Margin).
		WithMarginRight(options.Margin)
	if options.RunBanner {
		header, footer, err := renderBanner(data, options.Margin)
		if err != nil {
			return err
		}
		params = params.
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate(header).
			WithFooterTemplate(footer)
	}

	pdf, err := printPDF(ctx, html, params)
	if err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	if err := os.WriteFile(outputPath, pdf, 0o600); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

func printPDF(ctx context.Context, html string, params *page.PrintToPDFParams) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	// base64 keeps '#' in the stylesheet from ending the URL
	dataURL := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var pdf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = params.Do(ctx)
			return err
		}),
	)
	return pdf, err
}
