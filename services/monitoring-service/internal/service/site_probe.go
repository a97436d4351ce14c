package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
)

type BrowserProbeConfig struct {
	Headless    bool
	MaxPages    int
	PageTimeout time.Duration
	UserAgent   string
}

// BrowserProbe loads pages in headless Chromium and records every request
// the page makes, so tag checks can see pixels fired by scripts.
type BrowserProbe struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	cfg     BrowserProbeConfig
	slots   chan struct{}
	logger  logger.Logger
}

func NewBrowserProbe(cfg BrowserProbeConfig, log logger.Logger) (*BrowserProbe, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-gpu",
			"--no-first-run",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.WithField("max_pages", cfg.MaxPages).Info("Browser probe initialized")
	return &BrowserProbe{
		pw:      pw,
		browser: browser,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxPages),
		logger:  log,
	}, nil
}

// Probe returns an error only when the browser itself fails. A page that
// does not load is reported through ProbeResult.Err.
func (p *BrowserProbe) Probe(ctx context.Context, url string) (*checks.ProbeResult, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()

	timeout := p.cfg.PageTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	opts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if p.cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(p.cfg.UserAgent)
	}
	bctx, err := p.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	var mu sync.Mutex
	var requests []string
	page.OnRequest(func(req playwright.Request) {
		mu.Lock()
		requests = append(requests, req.URL())
		mu.Unlock()
	})

	result := &checks.ProbeResult{URL: url}
	start := time.Now()
	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	result.LoadTime = time.Since(start)

	switch {
	case err != nil:
		result.Err = err.Error()
	case resp == nil:
		result.Err = "no response"
	default:
		result.StatusCode = resp.Status()
	}

	mu.Lock()
	result.RequestURLs = append([]string(nil), requests...)
	mu.Unlock()

	p.logger.WithFields(logger.Fields{
		"url":       url,
		"status":    result.StatusCode,
		"load_ms":   result.LoadTime.Milliseconds(),
		"requests":  len(result.RequestURLs),
		"has_error": result.Err != "",
	}).Debug("Page probed")
	return result, nil
}

func (p *BrowserProbe) Close() error {
	if err := p.browser.Close(); err != nil {
		p.logger.WithError(err).Warn("Failed to close browser")
	}
	return p.pw.Stop()
}
