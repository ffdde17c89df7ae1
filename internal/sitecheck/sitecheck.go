// Package sitecheck fetches the content sites and reports their status.
package sitecheck

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"affiliate-tracking-system/internal/notify"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

type Result struct {
	Site   string
	Status int
	Err    error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Status >= 200 && r.Status < 400
}

func (r Result) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("❌ %s failed to open: %v", r.Site, r.Err)
	case r.OK():
		return fmt.Sprintf("✅ %s is working normally (Status: %d)", r.Site, r.Status)
	default:
		return fmt.Sprintf("❌ %s might have issues! (Status: %d)", r.Site, r.Status)
	}
}

type Checker struct {
	sites      []string
	httpClient *http.Client
	notifier   notify.Notifier
	logger     *logrus.Logger
}

func NewChecker(sites []string, notifier notify.Notifier, logger *logrus.Logger) *Checker {
	return &Checker{
		sites:      sites,
		httpClient: &http.Client{Timeout: defaultTimeout},
		notifier:   notifier,
		logger:     logger,
	}
}

// Check fetches every site in order.
func (c *Checker) Check(ctx context.Context) []Result {
	results := make([]Result, 0, len(c.sites))
	for _, site := range c.sites {
		results = append(results, c.fetch(ctx, site))
	}
	return results
}

func (c *Checker) fetch(ctx context.Context, site string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site, http.NoBody)
	if err != nil {
		return Result{Site: site, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SiteChecker/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Site: site, Err: err}
	}
	resp.Body.Close()
	return Result{Site: site, Status: resp.StatusCode}
}

func Report(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.String())
	}
	return "🌍 Daily Site Status Check 🌍\n\n" + strings.Join(lines, "\n")
}

// Run checks every site and sends the report.
func (c *Checker) Run(ctx context.Context) error {
	results := c.Check(ctx)
	down := 0
	for _, r := range results {
		if !r.OK() {
			down++
		}
	}
	c.logger.WithFields(logrus.Fields{
		"sites": len(results),
		"down":  down,
	}).Info("Site check finished")

	if err := c.notifier.Notify(ctx, Report(results)); err != nil {
		return fmt.Errorf("send site report: %w", err)
	}
	return nil
}
