package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/config"
	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/posts/fresh</loc><lastmod>2024-03-01T10:00:00Z</lastmod></url>
  <url><loc>%s/posts/empty</loc><lastmod>2024-03-02</lastmod></url>
</urlset>`, base, base)
	})
	mux.HandleFunc("/posts/fresh", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Fresh Post</title></head>
<body><p>First  paragraph.</p><p>Second paragraph.</p></body></html>`)
	})
	mux.HandleFunc("/posts/empty", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Empty</title></head><body></body></html>`)
	})
	srv := httptest.NewServer(mux)
	base = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, endpoint string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Sources: []config.SourceConfig{{
			ID:       endpoint,
			Kind:     "sitemap",
			Endpoint: endpoint,
			Name:     "Test Blog",
		}},
		Fetch: config.FetchConfig{
			MaxRetries: 0,
			RetryDelay: 0,
			Timeout:    5 * time.Second,
			UserAgent:  "delta-harvester-test",
			Burst:      1,
		},
		Run: config.RunConfig{Workers: 2, Timeout: 30 * time.Second},
		Checkpoint: config.CheckpointConfig{
			Backend: "memory",
			Table:   "sources",
		},
		Notify: config.NotifyConfig{
			Channel:     "none",
			Title:       "test",
			FallbackLog: filepath.Join(dir, "logs", "fallback.log"),
		},
		Output: config.OutputConfig{
			Backend: "local",
			Dir:     filepath.Join(dir, "out"),
			Prefix:  "datasets",
		},
		Telemetry: config.TelemetryConfig{ServiceName: "delta-harvester-test"},
	}
}

func TestBuildAndRunOnce(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, site.URL+"/sitemap.xml")
	ctx := context.Background()

	app, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	report, err := app.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, report.Failed())
	require.Len(t, report.Result.Documents, 1)
	doc := report.Result.Documents[0]
	require.Equal(t, "Test Blog", doc.Source)
	require.Equal(t, site.URL+"/posts/fresh", doc.URL)
	require.Equal(t, "Fresh Post", doc.Title)
	require.Equal(t, "First paragraph. Second paragraph.", doc.Body)
	require.Equal(t, 1, report.Result.Skipped)

	require.True(t, strings.HasPrefix(report.DatasetURI, "file://"), report.DatasetURI)
	data, err := os.ReadFile(strings.TrimPrefix(report.DatasetURI, "file://"))
	require.NoError(t, err)
	require.Contains(t, string(data), "source,url,title,content")
	require.Contains(t, string(data), "Fresh Post")

	at, ok, err := app.Checkpoints().Get(ctx, cfg.Sources[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, report.StartedAt, at)

	latest, err := app.Runs().Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, report.RunID, latest.RunID)

	// The checkpoint now postdates every lastmod.
	second, err := app.RunOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, second.Result.Documents)
	require.Empty(t, second.DatasetURI)
	require.Equal(t, harvest.StateSourceDone, second.Sources[0].State)
}

func TestBuildRejectsBadSource(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://graph.example/graphql")
	cfg.Sources[0].Kind = "feed"
	cfg.Sources[0].URLTemplate = "https://wiki.example/wiki/"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "graph.example")
}

func TestBuildPostgresBadDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://blog.example/sitemap.xml")
	cfg.Checkpoint.Backend = "postgres"
	cfg.Checkpoint.DSN = "postgres://%zz"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "checkpoint store init failed")
}

func TestServeRequiresAddress(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://blog.example/sitemap.xml")
	cfg.Output.Backend = "none"
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.Error(t, app.Serve(context.Background(), false))
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://blog.example/sitemap.xml")
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, true) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
