package pagecache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velofit/framesearch/internal/pipeline"
)

func TestFSCacheRoundTrip(t *testing.T) {
	t.Parallel()

	cache, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	html := []byte("<html><body>esker</body></html>")

	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorKross, "esker-7-0", "https://kross.pl/rowery/esker-7-0", html))

	page, err := cache.Get(ctx, pipeline.VendorKross, "esker-7-0")
	require.NoError(t, err)
	require.Equal(t, html, page.HTML)
	require.Equal(t, pipeline.VendorKross, page.Vendor)
	require.False(t, page.HasCompanion())
	require.False(t, page.FetchedAt.IsZero())
}

func TestFSCacheMiss(t *testing.T) {
	t.Parallel()

	cache, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), pipeline.VendorTrek, "missing")
	require.True(t, errors.Is(err, pipeline.ErrCacheMiss))
}

func TestFSCacheCompanionTrackedIndependently(t *testing.T) {
	t.Parallel()

	cache, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorTrek, "madone-sl-7", "", []byte("<html/>")))

	hasHTML, err := cache.HasHTML(ctx, pipeline.VendorTrek, "madone-sl-7")
	require.NoError(t, err)
	require.True(t, hasHTML)

	hasCompanion, err := cache.HasCompanion(ctx, pipeline.VendorTrek, "madone-sl-7")
	require.NoError(t, err)
	require.False(t, hasCompanion)

	require.NoError(t, cache.PutCompanion(ctx, pipeline.VendorTrek, "madone-sl-7", []byte(`{"sizes":[]}`)))

	hasCompanion, err = cache.HasCompanion(ctx, pipeline.VendorTrek, "madone-sl-7")
	require.NoError(t, err)
	require.True(t, hasCompanion)

	page, err := cache.Get(ctx, pipeline.VendorTrek, "madone-sl-7")
	require.NoError(t, err)
	require.True(t, page.HasCompanion())
	require.JSONEq(t, `{"sizes":[]}`, string(page.Companion))
}

func TestFSCacheOverwrite(t *testing.T) {
	t.Parallel()

	cache, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorKross, "esker", "", []byte("v1")))
	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorKross, "esker", "", []byte("v2")))

	page, err := cache.Get(ctx, pipeline.VendorKross, "esker")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), page.HTML)
}

func TestFSCacheSlugs(t *testing.T) {
	t.Parallel()

	cache, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorKross, "vento", "", []byte("a")))
	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorKross, "esker", "", []byte("b")))
	require.NoError(t, cache.PutCompanion(ctx, pipeline.VendorKross, "esker", []byte("{}")))
	require.NoError(t, cache.PutHTML(ctx, pipeline.VendorTrek, "madone", "", []byte("c")))

	slugs, err := cache.Slugs(ctx, pipeline.VendorKross)
	require.NoError(t, err)
	require.Equal(t, []string{"esker", "vento"}, slugs)

	slugs, err = cache.Slugs(ctx, pipeline.VendorTrek)
	require.NoError(t, err)
	require.Equal(t, []string{"madone"}, slugs)
}

func TestFSCacheRejectsTraversal(t *testing.T) {
	t.Parallel()

	cache, err := NewFS(t.TempDir())
	require.NoError(t, err)

	err = cache.PutHTML(context.Background(), pipeline.VendorKross, "../../escape", "", []byte("x"))
	require.Error(t, err)
}
