package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChromedpRendererRender(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, `<!doctype html><html><body><script>document.body.innerHTML = '<div id="late">late content</div>';</script></body></html>`)
	}))
	defer srv.Close()

	renderer, err := NewChromedpRenderer(RendererConfig{
		UserAgent:  "TestAgent",
		NavTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer renderer.Close()

	result, err := renderer.Render(context.Background(), srv.URL)
	if err != nil {
		t.Skipf("render failed: %v", err)
	}
	if !strings.Contains(result.HTML, "late content") {
		t.Fatal("rendered body missing dynamic content")
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", result.StatusCode)
	}
	if gotAgent != "TestAgent" {
		t.Fatalf("user agent = %q, want TestAgent", gotAgent)
	}
}
