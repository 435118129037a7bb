// Package scrape fetches web pages and extracts readable text and
// tables. Static pages go through the shared HTTP client; JS-rendered
// pages go through a headless browser.
package scrape

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/httpkit"
)

// maxBodySize caps how much of a page is read.
const maxBodySize = 8 << 20

// Renderer produces the post-JavaScript HTML of a page. The browserctl
// package implements it.
type Renderer interface {
	RenderHTML(ctx context.Context, url string) (string, error)
}

// Scraper fetches and extracts page content.
type Scraper struct {
	client   *http.Client
	renderer Renderer
	logger   *slog.Logger
}

// New creates a Scraper. renderer may be nil; scrape_dynamic then
// reports that no browser is available.
func New(renderer Renderer, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:   httpkit.NewClient(httpkit.WithRetry(2, 500*time.Millisecond), httpkit.WithLogger(logger)),
		renderer: renderer,
		logger:   logger,
	}
}

// fetch retrieves a page body as a string.
func (s *Scraper) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxBodySize)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "https://" + url
	}
	return url
}

func (s *Scraper) scrapePage(ctx context.Context, p actions.Params) (string, error) {
	url, err := p.String("url")
	if err != nil {
		return "", err
	}

	raw, err := s.fetch(ctx, normalizeURL(url))
	if err != nil {
		return "", err
	}

	title, text := extractReadable(raw)
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", url)
	}
	if title != "" {
		return title + "\n\n" + text, nil
	}
	return text, nil
}

func (s *Scraper) scrapeDynamic(ctx context.Context, p actions.Params) (string, error) {
	if s.renderer == nil {
		return "", fmt.Errorf("no browser available for dynamic scraping")
	}
	url, err := p.String("url")
	if err != nil {
		return "", err
	}

	raw, err := s.renderer.RenderHTML(ctx, normalizeURL(url))
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	title, text := extractReadable(raw)
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", url)
	}
	if title != "" {
		return title + "\n\n" + text, nil
	}
	return text, nil
}

func (s *Scraper) extractTable(ctx context.Context, p actions.Params) (string, error) {
	url, err := p.String("url")
	if err != nil {
		return "", err
	}
	index := p.IntOr("index", 0)

	raw, err := s.fetch(ctx, normalizeURL(url))
	if err != nil {
		return "", err
	}

	tables := extractTables(raw)
	if len(tables) == 0 {
		return "", fmt.Errorf("no tables found at %s", url)
	}
	if index < 0 || index >= len(tables) {
		return "", fmt.Errorf("table index %d out of range (page has %d)", index, len(tables))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range tables[index] {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Actions returns the scraping action set.
func (s *Scraper) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "scrape_page", Description: "Fetch a web page and return its readable text", Handler: s.scrapePage},
		{Name: "scrape_dynamic", Description: "Render a JavaScript page in a headless browser and return its text", Handler: s.scrapeDynamic},
		{Name: "extract_table", Description: "Extract a table from a web page as CSV", Handler: s.extractTable},
	}
}
