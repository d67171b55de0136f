package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/velofit/framesearch/internal/pipeline"
)

const trekSizingURL = "https://api.trekbikes.com/occ/v2/pl/products/%s/sizing?lang=pl_PL&curr=PLN"

// CompanionResolver derives the companion data endpoint for a fetched page.
// It runs only after the primary page succeeded; returning false means the
// vendor needs no second fetch for this page.
type CompanionResolver func(slug string, html []byte) (string, bool)

// CompanionFor returns the resolver for a vendor, or nil when the vendor has
// no companion endpoint.
func CompanionFor(vendor pipeline.Vendor) CompanionResolver {
	if vendor != pipeline.VendorTrek {
		return nil
	}
	return trekCompanion
}

// trekCompanion resolves the sizing endpoint from the product id. The id is
// embedded in the slug; pages fetched under a non-canonical URL carry it in a
// data-pid attribute instead.
func trekCompanion(slug string, html []byte) (string, bool) {
	if pid, ok := pipeline.ProductID(slug); ok {
		return fmt.Sprintf(trekSizingURL, pid), true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false
	}
	pid, ok := doc.Find("[data-pid]").First().Attr("data-pid")
	if !ok || pid == "" {
		return "", false
	}
	return fmt.Sprintf(trekSizingURL, pid), true
}

// CollyCompanionClient fetches companion JSON payloads over plain HTTP.
type CollyCompanionClient struct {
	base *colly.Collector
}

// NewCompanionClient builds the JSON endpoint client.
func NewCompanionClient(userAgent string, timeout time.Duration) *CollyCompanionClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(timeout)
	if userAgent != "" {
		c.UserAgent = userAgent
	}
	return &CollyCompanionClient{base: c}
}

// GetJSON retrieves a companion payload and validates that it is JSON.
func (c *CollyCompanionClient) GetJSON(_ context.Context, url string) ([]byte, error) {
	collector := c.base.Clone()

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			fetchErr = pipeline.NewTransientFetchError(url, fmt.Errorf("status %d: %w", status, err))
		case status >= 400:
			fetchErr = pipeline.NewPermanentFetchError(url, status, err)
		default:
			fetchErr = pipeline.NewTransientFetchError(url, err)
		}
	})

	if err := collector.Visit(url); err != nil {
		return nil, pipeline.NewTransientFetchError(url, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if !json.Valid(body) {
		return nil, pipeline.NewPermanentFetchError(url, 0, fmt.Errorf("companion payload is not valid JSON"))
	}
	return body, nil
}
