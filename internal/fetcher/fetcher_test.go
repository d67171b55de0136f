package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/pipeline"
)

type memoryCache struct {
	mu        sync.Mutex
	html      map[string][]byte
	companion map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		html:      make(map[string][]byte),
		companion: make(map[string][]byte),
	}
}

func cacheKey(vendor pipeline.Vendor, slug string) string {
	return string(vendor) + "/" + slug
}

func (m *memoryCache) Get(_ context.Context, vendor pipeline.Vendor, slug string) (pipeline.CachedPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	html, ok := m.html[cacheKey(vendor, slug)]
	if !ok {
		return pipeline.CachedPage{}, pipeline.ErrCacheMiss
	}
	return pipeline.CachedPage{
		Slug:      slug,
		Vendor:    vendor,
		HTML:      html,
		Companion: m.companion[cacheKey(vendor, slug)],
		FetchedAt: time.Now(),
	}, nil
}

func (m *memoryCache) PutHTML(_ context.Context, vendor pipeline.Vendor, slug, _ string, html []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.html[cacheKey(vendor, slug)] = html
	return nil
}

func (m *memoryCache) PutCompanion(_ context.Context, vendor pipeline.Vendor, slug string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companion[cacheKey(vendor, slug)] = payload
	return nil
}

func (m *memoryCache) HasHTML(_ context.Context, vendor pipeline.Vendor, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.html[cacheKey(vendor, slug)]
	return ok, nil
}

func (m *memoryCache) HasCompanion(_ context.Context, vendor pipeline.Vendor, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.companion[cacheKey(vendor, slug)]
	return ok, nil
}

func (m *memoryCache) Slugs(_ context.Context, vendor pipeline.Vendor) ([]string, error) {
	return nil, nil
}

type fakeRenderer struct {
	mu       sync.Mutex
	results  map[string][]renderStep
	rendered []string
	closed   bool
}

type renderStep struct {
	result pipeline.RenderResult
	err    error
}

func (f *fakeRenderer) Render(_ context.Context, url string) (pipeline.RenderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendered = append(f.rendered, url)
	steps := f.results[url]
	if len(steps) == 0 {
		return pipeline.RenderResult{HTML: "<html>" + url + "</html>", StatusCode: 200, FinalURL: url}, nil
	}
	step := steps[0]
	f.results[url] = steps[1:]
	return step.result, step.err
}

func (f *fakeRenderer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRenderer) renderCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.rendered {
		if u == url {
			n++
		}
	}
	return n
}

type fakeCompanionClient struct {
	mu      sync.Mutex
	payload []byte
	err     error
	calls   []string
}

func (f *fakeCompanionClient) GetJSON(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	return f.payload, f.err
}

type immediateRetry struct{ attempts int }

func (r immediateRetry) ShouldRetry(err error, attempt int) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return attempt < r.attempts && pipeline.IsTransientFetch(err)
}

func (r immediateRetry) Backoff(int) time.Duration { return 0 }
func (r immediateRetry) MaxAttempts() int          { return r.attempts }

func newTestFetcher(t *testing.T, cfg Config, cache pipeline.PageCache, renderer *fakeRenderer, companion pipeline.CompanionClient) *Fetcher {
	t.Helper()
	factory := func() (pipeline.Renderer, error) { return renderer, nil }
	return New(cfg, cache, immediateRetry{attempts: 3}, factory, companion, zap.NewNop())
}

func TestFetcherFetchesAndCaches(t *testing.T) {
	t.Parallel()

	cache := newMemoryCache()
	renderer := &fakeRenderer{results: map[string][]renderStep{}}
	f := newTestFetcher(t, Config{Concurrency: 2}, cache, renderer, nil)

	urls := []pipeline.CollectedURL{
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/esker-1-0"},
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/level-4-0"},
	}
	stats := f.Run(context.Background(), urls)

	require.Equal(t, 2, stats.Fetched)
	require.Zero(t, stats.Failed)
	has, err := cache.HasHTML(context.Background(), pipeline.VendorKross, "esker-1-0")
	require.NoError(t, err)
	require.True(t, has)
}

func TestFetcherSkipsAlreadyCached(t *testing.T) {
	t.Parallel()

	cache := newMemoryCache()
	require.NoError(t, cache.PutHTML(context.Background(), pipeline.VendorKross, "esker-1-0", "", []byte("<html></html>")))

	renderer := &fakeRenderer{results: map[string][]renderStep{}}
	f := newTestFetcher(t, Config{Concurrency: 1}, cache, renderer, nil)

	stats := f.Run(context.Background(), []pipeline.CollectedURL{
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/esker-1-0"},
	})

	require.Equal(t, 1, stats.Cached)
	require.Zero(t, renderer.renderCount("https://kross.eu/rowery/esker-1-0"))
}

func TestFetcherForceRefetches(t *testing.T) {
	t.Parallel()

	cache := newMemoryCache()
	require.NoError(t, cache.PutHTML(context.Background(), pipeline.VendorKross, "esker-1-0", "", []byte("stale")))

	renderer := &fakeRenderer{results: map[string][]renderStep{}}
	f := newTestFetcher(t, Config{Concurrency: 1, Force: true}, cache, renderer, nil)

	stats := f.Run(context.Background(), []pipeline.CollectedURL{
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/esker-1-0"},
	})

	require.Equal(t, 1, stats.Fetched)
	page, err := cache.Get(context.Background(), pipeline.VendorKross, "esker-1-0")
	require.NoError(t, err)
	require.NotEqual(t, "stale", string(page.HTML))
}

func TestFetcherRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	url := "https://kross.eu/rowery/esker-1-0"
	renderer := &fakeRenderer{results: map[string][]renderStep{
		url: {
			{result: pipeline.RenderResult{StatusCode: 503}},
			{result: pipeline.RenderResult{HTML: "<html>ok</html>", StatusCode: 200, FinalURL: url}},
		},
	}}
	cache := newMemoryCache()
	f := newTestFetcher(t, Config{Concurrency: 1}, cache, renderer, nil)

	stats := f.Run(context.Background(), []pipeline.CollectedURL{{Vendor: pipeline.VendorKross, URL: url}})

	require.Equal(t, 1, stats.Fetched)
	require.Equal(t, 2, renderer.renderCount(url))
}

func TestFetcherPermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	url := "https://kross.eu/rowery/gone"
	renderer := &fakeRenderer{results: map[string][]renderStep{
		url: {{result: pipeline.RenderResult{StatusCode: 404}}},
	}}
	cache := newMemoryCache()
	f := newTestFetcher(t, Config{Concurrency: 1}, cache, renderer, nil)

	stats := f.Run(context.Background(), []pipeline.CollectedURL{{Vendor: pipeline.VendorKross, URL: url}})

	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, renderer.renderCount(url))
	has, err := cache.HasHTML(context.Background(), pipeline.VendorKross, "gone")
	require.NoError(t, err)
	require.False(t, has)
}

func TestFetcherCompanionFetchedAfterPrimary(t *testing.T) {
	t.Parallel()

	url := "https://www.trekbikes.com/pl/pl_PL/rowery/szosowe/domane/domane-al-2/p/35795/"
	renderer := &fakeRenderer{results: map[string][]renderStep{}}
	companion := &fakeCompanionClient{payload: []byte(`{"sizes":[]}`)}
	cache := newMemoryCache()
	f := newTestFetcher(t, Config{Concurrency: 1}, cache, renderer, companion)

	stats := f.Run(context.Background(), []pipeline.CollectedURL{{Vendor: pipeline.VendorTrek, URL: url}})

	require.Equal(t, 1, stats.Fetched)
	require.Len(t, companion.calls, 1)
	require.Contains(t, companion.calls[0], "35795")

	has, err := cache.HasCompanion(context.Background(), pipeline.VendorTrek, "domane-al-2__35795")
	require.NoError(t, err)
	require.True(t, has)
}

func TestFetcherCompanionFailureKeepsPage(t *testing.T) {
	t.Parallel()

	url := "https://www.trekbikes.com/pl/pl_PL/rowery/szosowe/domane/domane-al-2/p/35795/"
	renderer := &fakeRenderer{results: map[string][]renderStep{}}
	companion := &fakeCompanionClient{err: pipeline.NewPermanentFetchError(url, 404, errors.New("status 404"))}
	cache := newMemoryCache()
	f := newTestFetcher(t, Config{Concurrency: 1}, cache, renderer, companion)

	stats := f.Run(context.Background(), []pipeline.CollectedURL{{Vendor: pipeline.VendorTrek, URL: url}})

	require.Equal(t, 1, stats.Fetched)
	has, err := cache.HasHTML(context.Background(), pipeline.VendorTrek, "domane-al-2__35795")
	require.NoError(t, err)
	require.True(t, has)
	has, err = cache.HasCompanion(context.Background(), pipeline.VendorTrek, "domane-al-2__35795")
	require.NoError(t, err)
	require.False(t, has)
}

// cancelOnRender cancels the run context from inside the first render so
// the worker sees a canceled context on the next item.
type cancelOnRender struct {
	*fakeRenderer
	cancel context.CancelFunc
}

func (r *cancelOnRender) Render(ctx context.Context, url string) (pipeline.RenderResult, error) {
	r.cancel()
	return r.fakeRenderer.Render(ctx, url)
}

func TestFetcherCancelCountsRemainingOnce(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderer := &cancelOnRender{
		fakeRenderer: &fakeRenderer{results: map[string][]renderStep{}},
		cancel:       cancel,
	}
	cache := newMemoryCache()
	factory := func() (pipeline.Renderer, error) { return renderer, nil }
	f := New(Config{Concurrency: 1}, cache, immediateRetry{attempts: 3}, factory, nil, zap.NewNop())

	// The first URL has no usable slug and is skipped before the cancel;
	// the remaining two after the fetch must be skipped exactly once each.
	stats := f.Run(ctx, []pipeline.CollectedURL{
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/"},
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/esker-1-0"},
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/level-4-0"},
		{Vendor: pipeline.VendorKross, URL: "https://kross.eu/rowery/vento-6-0"},
	})

	require.Equal(t, 1, stats.Fetched)
	require.Equal(t, 3, stats.Skipped)
	require.Equal(t, 4, stats.Fetched+stats.Cached+stats.Skipped+stats.Failed)
}

func TestFetcherSkipsCompanionWhenCached(t *testing.T) {
	t.Parallel()

	url := "https://www.trekbikes.com/pl/pl_PL/rowery/szosowe/domane/domane-al-2/p/35795/"
	cache := newMemoryCache()
	require.NoError(t, cache.PutCompanion(context.Background(), pipeline.VendorTrek, "domane-al-2__35795", []byte("{}")))

	renderer := &fakeRenderer{results: map[string][]renderStep{}}
	companion := &fakeCompanionClient{payload: []byte("{}")}
	f := newTestFetcher(t, Config{Concurrency: 1}, cache, renderer, companion)

	f.Run(context.Background(), []pipeline.CollectedURL{{Vendor: pipeline.VendorTrek, URL: url}})

	require.Empty(t, companion.calls)
}
