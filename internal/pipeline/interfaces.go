package pipeline

import "context"

// PageCache stores previously fetched raw pages keyed by vendor and slug.
// HTML and companion payloads are tracked independently because some vendors
// require a second fetch discovered only after the first.
type PageCache interface {
	Get(ctx context.Context, vendor Vendor, slug string) (CachedPage, error)
	PutHTML(ctx context.Context, vendor Vendor, slug, url string, html []byte) error
	PutCompanion(ctx context.Context, vendor Vendor, slug string, payload []byte) error
	HasHTML(ctx context.Context, vendor Vendor, slug string) (bool, error)
	HasCompanion(ctx context.Context, vendor Vendor, slug string) (bool, error)
	Slugs(ctx context.Context, vendor Vendor) ([]string, error)
}

// RenderResult is the outcome of one browser navigation.
type RenderResult struct {
	HTML       string
	StatusCode int
	FinalURL   string
}

// Renderer captures the fully rendered DOM of a page. Each fetch worker owns
// its own Renderer; implementations are not safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderResult, error)
	Close()
}

// CompanionClient retrieves secondary structured payloads over plain HTTP.
type CompanionClient interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

// Extractor converts a cached page into a canonical bike record. A nil record
// with a nil error never occurs; extraction failure is a *ParseError.
type Extractor interface {
	Vendor() Vendor
	Extract(page CachedPage) (*BikeRecord, error)
}

// Publisher pushes pipeline events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
