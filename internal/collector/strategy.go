// Package collector walks vendor catalog listings and persists the set of
// discovered product URLs.
package collector

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/velofit/framesearch/internal/pipeline"
)

// Strategy supplies the vendor-specific pieces of catalog pagination: which
// anchors are product links and how to reach the next listing page. A
// strategy returning an empty next URL ends pagination.
type Strategy interface {
	Vendor() pipeline.Vendor
	ProductLinks(doc *goquery.Document, pageURL *url.URL) []string
	NextPage(doc *goquery.Document, pageURL *url.URL) string
}

// StrategyFor returns the pagination strategy for a vendor.
func StrategyFor(vendor pipeline.Vendor) (Strategy, bool) {
	switch vendor {
	case pipeline.VendorKross:
		return krossStrategy{}, true
	case pipeline.VendorTrek:
		return trekStrategy{}, true
	default:
		return nil, false
	}
}

func resolveHref(pageURL *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return pageURL.ResolveReference(ref).String()
}

// krossStrategy paginates kross.pl category listings. Product cards expose a
// secondary action anchor; the pager exposes a plain next link.
type krossStrategy struct{}

func (krossStrategy) Vendor() pipeline.Vendor { return pipeline.VendorKross }

func (krossStrategy) ProductLinks(doc *goquery.Document, pageURL *url.URL) []string {
	var links []string
	doc.Find("div.products a.action.secondary").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if resolved := resolveHref(pageURL, href); resolved != "" {
				links = append(links, resolved)
			}
		}
	})
	return links
}

func (krossStrategy) NextPage(doc *goquery.Document, pageURL *url.URL) string {
	href, ok := doc.Find("a.action.next").First().Attr("href")
	if !ok {
		return ""
	}
	return resolveHref(pageURL, href)
}

// trekStrategy paginates the trekbikes.com catalog. Product names sit inside
// qaid-tagged cards; the pager exposes an id-tagged next anchor.
type trekStrategy struct{}

func (trekStrategy) Vendor() pipeline.Vendor { return pipeline.VendorTrek }

func (trekStrategy) ProductLinks(doc *goquery.Document, pageURL *url.URL) []string {
	var links []string
	doc.Find(`[qaid="productCardProductName"] a`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if resolved := resolveHref(pageURL, href); resolved != "" {
				links = append(links, resolved)
			}
		}
	})
	return links
}

func (trekStrategy) NextPage(doc *goquery.Document, pageURL *url.URL) string {
	href, ok := doc.Find("a#search-page-next").First().Attr("href")
	if !ok {
		return ""
	}
	return resolveHref(pageURL, href)
}
